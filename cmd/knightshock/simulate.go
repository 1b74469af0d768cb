package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/ignition"
	"github.com/hochfrequenz/knightshock/internal/kinetics"
	"github.com/hochfrequenz/knightshock/internal/mixture"
)

var (
	simTemperature float64
	simPressure    float64
	simMixture     string
	simTop         int
	simExclude     []string
	simOut         string
	simFlags       simulationFlags
)

func init() {
	simulateCmd := &cobra.Command{
		Use:   "simulate MECHANISM",
		Short: "Simulate a single case and report its ignition delay",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulate,
	}
	simulateCmd.Flags().Float64VarP(&simTemperature, "temperature", "T", 1200, "initial temperature [K]")
	simulateCmd.Flags().Float64VarP(&simPressure, "pressure", "P", 101325, "initial pressure [Pa]")
	simulateCmd.Flags().StringVarP(&simMixture, "mixture", "X", "H2:2, O2:1, AR:7", "initial composition, e.g. \"H2:2, O2:1, AR:7\"")
	simulateCmd.Flags().IntVar(&simTop, "top", 5, "number of species listed by peak mole fraction (negative lists all)")
	simulateCmd.Flags().StringSliceVar(&simExclude, "exclude", []string{"AR", "HE", "N2"}, "species left out of the ranking")
	simulateCmd.Flags().StringVarP(&simOut, "output", "o", "", "write the trajectory as CSV to this path")
	simFlags.register(simulateCmd)
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	simCfg := simFlags.apply(cfg.Simulation)
	opts, err := engineOptions(cfg.General, simCfg, 1)
	if err != nil {
		return err
	}
	mix, err := mixture.Parse(simMixture)
	if err != nil {
		return err
	}

	mech, err := mechanismLoader().Load(args[0])
	if err != nil {
		return err
	}
	reactor, err := mech.NewReactor(opts.Reactor)
	if err != nil {
		return err
	}

	horizon := simCfg.Horizon
	tr, err := kinetics.Run(ctx, reactor, kinetics.State{
		Temperature: simTemperature,
		Pressure:    simPressure,
		X:           mix.Normalized(),
	}, kinetics.RunOptions{Horizon: horizon, MaxSteps: simCfg.MaxSteps})
	if err != nil {
		return err
	}

	delay, defined, err := ignition.Delay(tr, opts.Ignition)
	if err != nil {
		return err
	}

	fmt.Printf("Mechanism:   %s (%s)\n", mech.Name(), opts.Reactor)
	fmt.Printf("Initial:     T=%g K  P=%s  X=%s\n", simTemperature, humanize.SIWithDigits(simPressure, 4, "Pa"), mix)
	fmt.Printf("Samples:     %s over %s\n", humanize.Comma(int64(tr.Len())), humanize.SIWithDigits(horizon, 3, "s"))
	if defined {
		fmt.Printf("Ignition:    %s (%s, %s)\n", humanize.SIWithDigits(delay, 4, "s"), opts.Ignition.Method, opts.Ignition.Signal())
	} else {
		fmt.Printf("Ignition:    undefined within the simulated window (%s, %s)\n", opts.Ignition.Method, opts.Ignition.Signal())
	}

	rank := ignition.RankOptions{Exclude: simExclude}
	if simTop >= 0 {
		rank.Count = ignition.Limit(simTop)
	}
	top := ignition.TopSpecies(tr, rank)
	if len(top) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SPECIES\tINITIAL\tPEAK\tFINAL")
		for _, name := range top {
			x, _ := tr.MoleFractions(name)
			fmt.Fprintf(w, "%s\t%.4g\t%.4g\t%.4g\n", name, x[0], maxOf(x), x[len(x)-1])
		}
		w.Flush()
	}

	if simOut != "" {
		if err := writeTrajectory(simOut, tr, top); err != nil {
			return err
		}
		fmt.Printf("\nTrajectory written to %s\n", simOut)
	}
	return nil
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = max(m, x)
	}
	return m
}

// writeTrajectory writes time, temperature, pressure and the given species
func writeTrajectory(path string, tr *domain.Trajectory, species []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"time", "temperature", "pressure"}, species...)
	if err := w.Write(header); err != nil {
		return err
	}

	cols := make([][]float64, len(species))
	for i, name := range species {
		cols[i], _ = tr.MoleFractions(name)
	}
	times, temps, pressures := tr.Times(), tr.Temperatures(), tr.Pressures()
	for i := range times {
		rec := []string{
			strconv.FormatFloat(times[i], 'g', -1, 64),
			strconv.FormatFloat(temps[i], 'g', -1, 64),
			strconv.FormatFloat(pressures[i], 'g', -1, 64),
		}
		for _, col := range cols {
			rec = append(rec, strconv.FormatFloat(col[i], 'g', -1, 64))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
