package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rednix/eu-grants-monitor-agent/internal/models"
	"github.com/rednix/eu-grants-monitor-agent/internal/score"
	"github.com/rednix/eu-grants-monitor-agent/internal/store"
)

var (
	listStatus string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored opportunities ranked by priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		snapshot, err := st.Load(ctx)
		if err != nil {
			return err
		}

		scorer := score.New(profile, cfg.Scoring)
		now := time.Now().UTC()

		type row struct {
			opp models.Opportunity
			res models.ScoreResult
		}
		rows := make([]row, 0, len(snapshot))
		for _, opp := range snapshot {
			if listStatus != "" && string(opp.Status) != listStatus {
				continue
			}
			rows = append(rows, row{opp: opp, res: scorer.Score(opp, now)})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].res.Priority > rows[j].res.Priority })
		if len(rows) > listLimit {
			rows = rows[:listLimit]
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Title", "Source", "Status", "Deadline", "Priority", "Relevance"})
		for _, r := range rows {
			deadline := "-"
			if r.opp.Deadline != nil {
				deadline = r.opp.Deadline.UTC().Format("2006-01-02")
			}
			t.AppendRow(table.Row{
				r.opp.ID.String()[:8],
				truncate(r.opp.Title, 48),
				r.opp.SourceSystem,
				r.opp.Status,
				deadline,
				fmt.Sprintf("%.0f", r.res.Priority),
				fmt.Sprintf("%.0f", r.res.Relevance),
			})
		}
		t.Render()
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (open, upcoming, closed, cancelled)")
	listCmd.Flags().IntVar(&listLimit, "limit", 25, "maximum rows to show")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
