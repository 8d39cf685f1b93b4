package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rednix/eu-grants-monitor-agent/internal/store"
)

var alertsLimit int

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show recent alert history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		alerts, err := st.ListAlerts(ctx, alertsLimit)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Created", "Reason", "Title", "Source", "Priority", "Deadline"})
		for _, a := range alerts {
			deadline := "-"
			if a.Deadline != nil {
				deadline = a.Deadline.UTC().Format("2006-01-02")
			}
			t.AppendRow(table.Row{
				a.CreatedAt.UTC().Format("01-02 15:04"),
				a.Reason,
				truncate(a.Title, 48),
				a.SourceSystem,
				fmt.Sprintf("%.0f", a.Score.Priority),
				deadline,
			})
		}
		t.Render()
		return nil
	},
}

func init() {
	alertsCmd.Flags().IntVar(&alertsLimit, "limit", 25, "maximum alerts to show")
}
