package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/knightshock/internal/config"
	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/ignition"
	"github.com/hochfrequenz/knightshock/internal/kinetics"
	"github.com/hochfrequenz/knightshock/internal/notify"
	"github.com/hochfrequenz/knightshock/internal/observer"
	"github.com/hochfrequenz/knightshock/internal/plan"
	"github.com/hochfrequenz/knightshock/internal/resultstore"
	"github.com/hochfrequenz/knightshock/internal/sweep"
	"github.com/hochfrequenz/knightshock/tui"
	"github.com/hochfrequenz/knightshock/web/api"
)

var (
	sweepWorkers        int
	sweepCSV            string
	sweepNoDB           bool
	sweepWatch          bool
	sweepTUI            bool
	sweepHistoryDir     string
	sweepHistorySpecies int
	sweepHistoryExclude []string
	sweepServe          string
	sim                 simulationFlags
)

// simulationFlags are the flags shared by sweep and simulate that
// override the [simulation] config section
type simulationFlags struct {
	horizon  float64
	reactor  string
	method   string
	signal   string
	maxSteps int
}

func (f *simulationFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.horizon, "horizon", 0, "simulated time per case [s]")
	cmd.Flags().StringVar(&f.reactor, "reactor", "", "reactor model: constant-volume or constant-pressure")
	cmd.Flags().StringVar(&f.method, "method", "", "ignition detection: inflection or peak")
	cmd.Flags().StringVar(&f.signal, "species", "", "species whose mole fraction is the ignition signal (default temperature)")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", 0, "step limit per case (0 = unlimited)")
}

func (f *simulationFlags) apply(s config.SimulationConfig) config.SimulationConfig {
	return s.Merge(config.SimulationConfig{
		Horizon:  f.horizon,
		Reactor:  f.reactor,
		Method:   f.method,
		Signal:   f.signal,
		MaxSteps: f.maxSteps,
	})
}

func init() {
	sweepCmd := &cobra.Command{
		Use:   "sweep PLAN",
		Short: "Run an ignition-delay sweep from a plan file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().IntVar(&sweepWorkers, "workers", 0, "worker count (default general.workers, 0 = one per CPU)")
	sweepCmd.Flags().StringVar(&sweepCSV, "csv", "", "result table path (default <output_dir>/<plan>.csv)")
	sweepCmd.Flags().BoolVar(&sweepNoDB, "no-db", false, "do not record the sweep in the result database")
	sweepCmd.Flags().BoolVar(&sweepWatch, "watch", false, "re-run the sweep whenever the plan file changes")
	sweepCmd.Flags().BoolVar(&sweepTUI, "tui", false, "show a live progress dashboard")
	sweepCmd.Flags().StringVar(&sweepServe, "serve", "", "serve the results API with live progress on this address while the sweep runs")
	sweepCmd.Flags().StringVar(&sweepHistoryDir, "history-dir", "", "write one species-history CSV per case into this directory")
	sweepCmd.Flags().IntVar(&sweepHistorySpecies, "history-species", 10, "species written per history file (0 = all)")
	sweepCmd.Flags().StringSliceVar(&sweepHistoryExclude, "history-exclude", []string{"AR", "HE", "N2"}, "species left out of history files")
	sim.register(sweepCmd)
	rootCmd.AddCommand(sweepCmd)
}

// engineOptions builds sweep options from config, plan and flags
func engineOptions(general config.GeneralConfig, s config.SimulationConfig, workers int) (sweep.Options, error) {
	kind, err := kinetics.ParseKind(s.Reactor)
	if err != nil {
		return sweep.Options{}, err
	}
	method, err := ignition.ParseMethod(s.Method)
	if err != nil {
		return sweep.Options{}, err
	}
	if workers == 0 {
		workers = general.Workers
	}
	return sweep.Options{
		Workers:  workers,
		Horizon:  s.Horizon,
		Reactor:  kind,
		Ignition: ignition.Options{Method: method, Species: s.Signal},
		MaxSteps: s.MaxSteps,
	}, nil
}

func mechanismLoader() *kinetics.FileLoader {
	wd, _ := os.Getwd()
	return kinetics.DefaultLoader(wd, cfg.Mechanisms.SearchDirs...)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	planPath := args[0]

	var live *api.Server
	if sweepServe != "" {
		var store api.Store
		if !sweepNoDB {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			store = s
		}
		live = api.NewServer(store, sweepServe)
		live.SetLogger(log)
		go func() {
			if err := live.Start(ctx); err != nil {
				log.WithError(err).Error("results API stopped")
			}
		}()
	}

	if !sweepWatch {
		_, err := sweepOnce(ctx, planPath, live)
		return err
	}

	changed := make(chan string, 1)
	watcher, err := observer.NewPlanWatcher(func(path string) {
		select {
		case changed <- path:
		default: // a re-run is already queued
		}
	})
	if err != nil {
		return err
	}
	watcher.SetLogger(log)
	if err := watcher.AddPlan(planPath); err != nil {
		return err
	}
	watcher.Start(ctx)
	defer watcher.Stop()

	for {
		if _, err := sweepOnce(ctx, planPath, live); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Error("sweep failed; waiting for the plan to change")
		}
		log.WithField("plan", planPath).Info("watching plan for changes")

		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			log.WithField("plan", planPath).Info("plan changed, re-running sweep")
		}
	}
}

// openStore opens the configured result database, creating its directory
func openStore() (*resultstore.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0755); err != nil {
		return nil, err
	}
	store, err := resultstore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening result database: %w", err)
	}
	return store, nil
}

func sweepOnce(ctx context.Context, planPath string, live *api.Server) (sweep.Summary, error) {
	p, err := plan.Load(planPath)
	if err != nil {
		return sweep.Summary{}, err
	}
	grid, err := p.Grid()
	if err != nil {
		return sweep.Summary{}, err
	}

	simCfg := sim.apply(cfg.Simulation.Merge(p.Simulation))
	opts, err := engineOptions(cfg.General, simCfg, sweepWorkers)
	if err != nil {
		return sweep.Summary{}, err
	}
	opts.HistoryDir = sweepHistoryDir
	opts.HistorySpecies = sweepHistorySpecies
	opts.HistoryExclude = sweepHistoryExclude

	engine, err := sweep.New(mechanismLoader(), opts)
	if err != nil {
		return sweep.Summary{}, err
	}
	engine.SetLogger(log.WithField("plan", p.Name))

	csvPath := sweepCSV
	if csvPath == "" {
		csvPath = filepath.Join(cfg.General.OutputDir, p.Name+".csv")
	}
	if dir := filepath.Dir(csvPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return sweep.Summary{}, err
		}
	}
	sinks := sweep.MultiSink{sweep.NewCSVSink(csvPath)}

	if !sweepNoDB {
		store, err := openStore()
		if err != nil {
			return sweep.Summary{}, err
		}
		defer store.Close()
		sinks = append(sinks, store)
	}
	if live != nil {
		sinks = append(sinks, live)
	}

	var sum sweep.Summary
	if sweepTUI {
		sum, err = runWithTUI(ctx, engine, grid, sinks)
	} else {
		obs := observer.New(2 * time.Minute)
		sinks = append(sinks, obs, progressSink(log, obs))
		sum, err = engine.Run(ctx, grid, sinks)
	}
	if sum.Finished.IsZero() {
		// the sweep never started
		return sum, err
	}

	announce(sum)
	fmt.Printf("Sweep %s: %s ok, %s undefined, %s failed of %s cases -> %s\n",
		sum.ID,
		humanize.Comma(int64(sum.OK)),
		humanize.Comma(int64(sum.Undefined)),
		humanize.Comma(int64(sum.Failed)),
		humanize.Comma(int64(sum.Total)),
		csvPath)
	return sum, err
}

// progressSink logs every finished case with the observer's progress
func progressSink(l logrus.FieldLogger, obs *observer.Observer) sweep.FuncSink {
	return sweep.FuncSink{
		OnAppend: func(r domain.SweepResult) error {
			entry := l.WithFields(logrus.Fields{
				"remaining":   obs.GetMetrics().Remaining(),
				"eta":         obs.ETA(time.Now()).Round(time.Second),
				"case":        r.Case.Index,
				"mechanism":   r.Case.MechanismID,
				"T":           r.Case.Temperature,
				"P":           humanize.SIWithDigits(r.Case.Pressure, 3, "Pa"),
				"composition": r.Case.Composition.Label(),
				"status":      r.Status,
			})
			if r.Defined() {
				entry = entry.WithField("delay", humanize.SIWithDigits(r.IgnitionDelay, 3, "s"))
			}
			entry.Info("case finished")
			return nil
		},
	}
}

// runWithTUI drives the sweep in the background while the dashboard runs
func runWithTUI(ctx context.Context, engine *sweep.Engine, grid sweep.Grid, sinks sweep.MultiSink) (sweep.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.NewModel(tui.ModelConfig{Cancel: cancel})
	prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	// keep log lines from tearing the dashboard
	quiet := logrus.New()
	quiet.SetLevel(logrus.ErrorLevel)
	quiet.SetOutput(log.Out)
	engine.SetLogger(quiet)

	type outcome struct {
		sum sweep.Summary
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		sum, err := engine.Run(ctx, grid, append(sinks, tui.NewSink(prog.Send)))
		prog.Send(tui.DoneMsg{Summary: sum, Err: err})
		done <- outcome{sum, err}
	}()

	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-done
		return sweep.Summary{}, err
	}
	cancel()
	out := <-done
	return out.sum, out.err
}

func announce(sum sweep.Summary) {
	n := notify.NewMultiNotifier(
		notify.NewDesktopNotifier(cfg.Notifications.Desktop),
		notify.NewSlackNotifier(cfg.Notifications.SlackWebhook),
	)
	if err := n.Send(notify.SweepFinished(sum)); err != nil {
		log.WithError(err).Warn("sending completion notice")
	}
}
