package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rednix/eu-grants-monitor-agent/internal/alert"
	"github.com/rednix/eu-grants-monitor-agent/internal/collect"
	"github.com/rednix/eu-grants-monitor-agent/internal/config"
	"github.com/rednix/eu-grants-monitor-agent/internal/models"
	"github.com/rednix/eu-grants-monitor-agent/internal/monitor"
	"github.com/rednix/eu-grants-monitor-agent/internal/notify"
	"github.com/rednix/eu-grants-monitor-agent/internal/score"
	"github.com/rednix/eu-grants-monitor-agent/internal/store"
)

var (
	cfgPath string
	cfg     *config.Config
	profile models.BusinessProfile
)

var rootCmd = &cobra.Command{
	Use:   "monitor",
	Short: "EU funding opportunity monitor",
	Long:  "Collects funding opportunities from configured portals, scores them against a business profile, and alerts on high-priority matches.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = c

		logger, err := config.BuildLogger(cfg.Log)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(logger)

		profile, err = config.LoadProfile(cfg.ProfilePath)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (optional)")
	rootCmd.AddCommand(runCmd, listCmd, showCmd, alertsCmd, serveCmd)
}

// buildRunner assembles the full pipeline from the loaded config. The
// returned store must be closed by the caller.
func buildRunner(ctx context.Context) (*monitor.Runner, store.SnapshotStore, error) {
	registry, err := collect.LoadRegistry(cfg.SourcesPath)
	if err != nil {
		return nil, nil, err
	}
	collectors, err := registry.Build()
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	scorer := score.New(profile, cfg.Scoring)
	decider := alert.New(cfg.Alerts)

	notifiers := notify.Multi{notify.NewLogNotifier(nil)}
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram)
		if err != nil {
			st.Close()
			return nil, nil, err
		}
		notifiers = append(notifiers, tg)
	}

	runner := monitor.NewRunner(collectors, scorer, decider, st, notifiers, cfg.Monitor)
	return runner, st, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
