package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/kinetics"
	"github.com/hochfrequenz/knightshock/internal/resultstore"
)

var (
	resultsLimit     int
	resultsStatus    string
	resultsMechanism string
)

func init() {
	resultsCmd := &cobra.Command{
		Use:   "results [SWEEP_ID]",
		Short: "List recorded sweeps, or the results of one sweep",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runResults,
	}
	resultsCmd.Flags().IntVar(&resultsLimit, "limit", 20, "maximum number of sweeps listed (0 = all)")
	resultsCmd.Flags().StringVar(&resultsStatus, "status", "", "only show results with this status (ok, undefined, failed)")
	resultsCmd.Flags().StringVar(&resultsMechanism, "mechanism", "", "only show results for this mechanism")
	rootCmd.AddCommand(resultsCmd)

	mechanismsCmd := &cobra.Command{
		Use:   "mechanisms",
		Short: "List the available kinetic mechanisms",
		Args:  cobra.NoArgs,
		RunE:  runMechanisms,
	}
	rootCmd.AddCommand(mechanismsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 0 {
		return listSweeps(store)
	}
	return listResults(store, args[0])
}

func listSweeps(store *resultstore.Store) error {
	sweeps, err := store.ListSweeps(resultsLimit)
	if err != nil {
		return err
	}
	if len(sweeps) == 0 {
		fmt.Println("No sweeps recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLAN\tSTARTED\tCASES\tOK\tUNDEFINED\tFAILED\tSTATE")
	for _, s := range sweeps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%d\t%d\t%s\n",
			s.ID, s.Plan, humanize.Time(s.StartedAt), s.Written(), s.Total,
			s.OK, s.Undefined, s.Failed, sweepState(s))
	}
	return w.Flush()
}

func sweepState(s *resultstore.SweepRecord) string {
	switch {
	case s.FinishedAt == nil:
		return "incomplete"
	case s.Cancelled:
		return "cancelled"
	default:
		return "finished " + humanize.Time(*s.FinishedAt)
	}
}

func listResults(store *resultstore.Store, id string) error {
	rec, err := store.GetSweep(id)
	if err != nil {
		return err
	}
	results, err := store.ListResults(id, resultstore.ListOptions{
		MechanismID: resultsMechanism,
		Status:      domain.ResultStatus(resultsStatus),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Sweep %s (%s): %d of %d cases, %d workers\n\n", rec.ID, rec.Plan, rec.Written(), rec.Total, rec.Workers)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CASE\tMECHANISM\tCOMPOSITION\tP\tT [K]\tDELAY\tSTATUS\tWORKER\tELAPSED")
	for _, r := range results {
		delay := "-"
		if r.Defined() {
			delay = humanize.SIWithDigits(r.IgnitionDelay, 4, "s")
		}
		status := string(r.Status)
		if r.Failed() && r.Error != "" {
			status += ": " + r.Error
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%g\t%s\t%s\t%d\t%s\n",
			r.Case.Index, r.Case.MechanismID, r.Case.Composition.Label(),
			humanize.SIWithDigits(r.Case.Pressure, 3, "Pa"), r.Case.Temperature,
			delay, status, r.Worker, r.Elapsed.Round(time.Millisecond))
	}
	return w.Flush()
}

func runMechanisms(cmd *cobra.Command, args []string) error {
	loader := mechanismLoader()
	ids, err := loader.Available()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSPECIES\tDESCRIPTION")
	for _, id := range ids {
		m, err := loader.Load(id)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\tinvalid: %v\n", id, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", id, len(m.SpeciesNames()), describe(m))
	}
	return w.Flush()
}

func describe(m kinetics.Mechanism) string {
	if g, ok := m.(*kinetics.GlobalMechanism); ok {
		return g.Description
	}
	return ""
}
