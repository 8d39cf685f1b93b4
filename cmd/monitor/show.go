package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/rednix/eu-grants-monitor-agent/internal/models"
	"github.com/rednix/eu-grants-monitor-agent/internal/score"
	"github.com/rednix/eu-grants-monitor-agent/internal/store"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one opportunity with its full score breakdown",
	Args:  cobra.ExactArgs(1),
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

		opp, err := findOpportunity(snapshot, args[0])
		if err != nil {
			return err
		}

		res := score.New(profile, cfg.Scoring).Score(opp, time.Now().UTC())

		fmt.Printf("%s\n", opp.Title)
		fmt.Printf("  id:       %s\n", opp.ID)
		fmt.Printf("  source:   %s (%s)\n", opp.SourceSystem, opp.ExternalID)
		fmt.Printf("  program:  %s\n", orDash(opp.Program))
		fmt.Printf("  status:   %s\n", opp.Status)
		if opp.Deadline != nil {
			fmt.Printf("  deadline: %s\n", opp.Deadline.UTC().Format("2006-01-02 15:04"))
		}
		if amount, ok := opp.FundingAmount(); ok {
			fmt.Printf("  funding:  %.0f %s\n", amount, orDash(opp.Currency))
		}
		if len(opp.Keywords) > 0 {
			fmt.Printf("  keywords: %s\n", strings.Join(opp.Keywords, ", "))
		}
		fmt.Printf("  url:      %s\n", orDash(opp.SourceURL))
		fmt.Println()
		fmt.Printf("  relevance:  %6.1f\n", res.Relevance)
		fmt.Printf("  complexity: %6.1f\n", res.Complexity)
		fmt.Printf("  success:    %6.1f\n", res.SuccessProbability)
		fmt.Printf("  urgency:    %6.1f\n", res.DeadlineUrgency)
		fmt.Printf("  priority:   %6.1f\n", res.Priority)
		return nil
	},
}

// findOpportunity accepts a full UUID or an unambiguous prefix.
func findOpportunity(snapshot map[uuid.UUID]models.Opportunity, key string) (models.Opportunity, error) {
	if id, err := uuid.Parse(key); err == nil {
		if opp, ok := snapshot[id]; ok {
			return opp, nil
		}
		return models.Opportunity{}, eris.Errorf("opportunity %s not found", key)
	}

	var matches []models.Opportunity
	for id, opp := range snapshot {
		if strings.HasPrefix(id.String(), strings.ToLower(key)) {
			matches = append(matches, opp)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return models.Opportunity{}, eris.Errorf("opportunity %s not found", key)
	default:
		return models.Opportunity{}, eris.Errorf("id prefix %s is ambiguous (%d matches)", key, len(matches))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
