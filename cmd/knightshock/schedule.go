package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/knightshock/internal/schedule"
)

var scheduleList bool

func init() {
	scheduleCmd := &cobra.Command{
		Use:   "schedule FILE",
		Short: "Re-run sweep plans on cron schedules",
		Long: `Reads a schedule file of [[sweep]] entries (name, cron, plan,
max_duration) and runs each plan whenever its five-field cron expression
comes due. Sweeps are run one at a time.`,
		Args: cobra.ExactArgs(1),
		RunE: runSchedule,
	}
	scheduleCmd.Flags().BoolVar(&scheduleList, "list", false, "print the next run of every entry and exit")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	sc, err := schedule.Load(args[0])
	if err != nil {
		return err
	}
	sched, err := schedule.NewScheduler(sc.Entries)
	if err != nil {
		return err
	}
	sched.SetLogger(log)

	if scheduleList {
		now := time.Now()
		for _, name := range sched.Names() {
			e, _ := sched.Entry(name)
			fmt.Printf("%-20s %-16s next %s  %s\n", name, e.Cron, sched.NextRun(name, now).Format(time.RFC3339), e.Plan)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var one sync.Mutex
	return sched.Run(ctx, func(ctx context.Context, e schedule.Entry) error {
		one.Lock()
		defer one.Unlock()
		_, err := sweepOnce(ctx, e.Plan, nil)
		return err
	})
}
