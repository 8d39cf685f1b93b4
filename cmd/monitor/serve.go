package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rednix/eu-grants-monitor-agent/internal/api"
	"github.com/rednix/eu-grants-monitor-agent/internal/score"
)

var serveWithMonitor bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API, optionally with the background monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runner, st, err := buildRunner(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		srv := api.NewServer(st, score.New(profile, cfg.Scoring), runner)

		if serveWithMonitor {
			go func() {
				if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
					zap.L().Error("background monitor stopped", zap.Error(err))
				}
			}()
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(cfg.Server.Addr)
		}()
		zap.L().Info("api listening", zap.String("addr", cfg.Server.Addr))

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		}
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithMonitor, "with-monitor", false, "run monitoring cycles in the background while serving")
}
