package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rednix/eu-grants-monitor-agent/internal/monitor"
)

var (
	runContinuous bool
	runInterval   time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one monitoring cycle, or loop with --continuous",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if runInterval > 0 {
			cfg.Monitor.Interval = runInterval
		}

		runner, st, err := buildRunner(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if runContinuous {
			err := runner.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		report, err := runner.Cycle(ctx)
		if err != nil {
			return err
		}
		printReport(report)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runContinuous, "continuous", false, "keep running on the configured interval")
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "override the cycle interval (e.g. 30m)")
}

func printReport(report *monitor.CycleReport) {
	fmt.Printf("cycle finished in %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	for _, s := range report.PerSource {
		fmt.Printf("  %-20s fetched=%d dropped=%d\n", s.Source, s.Fetched, s.Dropped)
	}
	for _, f := range report.Failures {
		fmt.Printf("  %-20s FAILED: %s\n", f.Source, f.Error)
	}
	fmt.Printf("  new=%d updated=%d unchanged=%d alerts=%d\n",
		report.New, report.Updated, report.Unchanged, len(report.Alerts))
}
