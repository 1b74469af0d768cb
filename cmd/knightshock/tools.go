package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/knightshock/internal/absorption"
	"github.com/hochfrequenz/knightshock/internal/shocktube"
)

var (
	driverGas       string
	driverMW        float64
	driverGamma     float64
	driverT4        float64
	driverP2        float64
	driverU2        float64
	driverAreaRatio float64
)

func init() {
	driverCmd := &cobra.Command{
		Use:   "driver",
		Short: "Compute the driver fill pressure for a target post-shock state",
		Long: `Computes the driver fill pressure P4 that produces the given pressure P2
and gas velocity U2 behind the incident shock, for a driver gas given by
preset name (--gas) or by molecular weight and specific heat ratio.`,
		Args: cobra.NoArgs,
		RunE: runDriver,
	}
	driverCmd.Flags().StringVar(&driverGas, "gas", "He", "driver gas preset ("+strings.Join(shocktube.DriverGasNames(), ", ")+")")
	driverCmd.Flags().Float64Var(&driverMW, "mw", 0, "driver gas molecular weight [kg/kmol] (overrides --gas)")
	driverCmd.Flags().Float64Var(&driverGamma, "gamma", 0, "driver gas specific heat ratio (overrides --gas)")
	driverCmd.Flags().Float64Var(&driverT4, "t4", 298.15, "driver gas temperature [K]")
	driverCmd.Flags().Float64Var(&driverP2, "p2", 0, "pressure behind the incident shock [Pa]")
	driverCmd.Flags().Float64Var(&driverU2, "u2", 0, "gas velocity behind the incident shock [m/s]")
	driverCmd.Flags().Float64Var(&driverAreaRatio, "area-ratio", 1, "driver-to-driven area ratio")
	driverCmd.MarkFlagRequired("p2")
	driverCmd.MarkFlagRequired("u2")
	rootCmd.AddCommand(driverCmd)

	absorbCmd := &cobra.Command{
		Use:   "absorb MEASUREMENT",
		Short: "Invert a multi-wavelength absorbance record to mole fractions",
		Args:  cobra.ExactArgs(1),
		RunE:  runAbsorb,
	}
	rootCmd.AddCommand(absorbCmd)
}

// driverCondition resolves the driver gas from preset and overrides
func driverCondition() (shocktube.ShockCondition, string, error) {
	c := shocktube.ShockCondition{
		P2:        driverP2,
		U2:        driverU2,
		T4:        driverT4,
		AreaRatio: driverAreaRatio,
	}

	name := "custom"
	if driverMW == 0 || driverGamma == 0 {
		g, err := shocktube.LookupDriverGas(driverGas)
		if err != nil {
			return c, "", err
		}
		name = g.Name
		c.MW4, c.Gamma4 = g.MW, g.Gamma
	}
	if driverMW != 0 {
		c.MW4 = driverMW
	}
	if driverGamma != 0 {
		c.Gamma4 = driverGamma
	}
	return c, name, c.Validate()
}

func runDriver(cmd *cobra.Command, args []string) error {
	c, gas, err := driverCondition()
	if err != nil {
		return err
	}

	sol, err := shocktube.SolveDriverPressure(c)
	if err != nil {
		var rf *shocktube.RootFindError
		if errors.As(err, &rf) {
			log.WithError(rf.Err).Debug("root finder diverged")
		}
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Driver gas:\t%s (MW %.4g, gamma %.4g, T4 %g K)\n", gas, c.MW4, c.Gamma4, c.T4)
	fmt.Fprintf(w, "Target:\tP2 %s, U2 %g m/s, area ratio %g\n", humanize.SIWithDigits(c.P2, 4, "Pa"), c.U2, c.AreaRatio)
	fmt.Fprintf(w, "Regime:\t%s\n", sol.Regime)
	fmt.Fprintf(w, "Mach numbers:\tM3 %.4f, M3a %.4f, Me %.4f\n", sol.M3, sol.M3a, sol.Me)
	fmt.Fprintf(w, "Fill pressure P4:\t%s (%.4g bar)\n", humanize.SIWithDigits(sol.Pressure, 4, "Pa"), sol.Pressure/1e5)
	return w.Flush()
}

func runAbsorb(cmd *cobra.Command, args []string) error {
	m, err := absorption.LoadMeasurement(args[0])
	if err != nil {
		return err
	}
	b, err := m.Batch()
	if err != nil {
		return err
	}

	x, err := absorption.SolveBatch(b)
	if err != nil {
		var se *absorption.SampleError
		if errors.As(err, &se) {
			return fmt.Errorf("%s: sample %d: %w", args[0], se.Index, se.Err)
		}
		return err
	}

	rows := timeMajor(x, b.Layout)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := append([]string{"SAMPLE"}, m.Species...)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for k, fractions := range rows {
		row := []string{strconv.Itoa(k)}
		for _, v := range fractions {
			row = append(row, strconv.FormatFloat(v, 'g', 5, 64))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

// timeMajor returns one row of mole fractions per time sample
func timeMajor(x [][]float64, layout absorption.Layout) [][]float64 {
	if layout == absorption.TimeFirst || len(x) == 0 {
		return x
	}
	rows := make([][]float64, len(x[0]))
	for k := range rows {
		rows[k] = make([]float64, len(x))
		for n := range x {
			rows[k][n] = x[n][k]
		}
	}
	return rows
}
