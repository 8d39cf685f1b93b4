package normalize

import (
	"strings"
	"time"

	"github.com/rednix/eu-grants-monitor-agent/internal/models"
)

// StatusDecision is the outcome of resolving an opportunity's lifecycle
// state at a point in time.
type StatusDecision struct {
	Status models.Status
	Reason string
}

// ResolveStatus computes the lifecycle state from the source-reported status
// and the record's dates. Pure function of its inputs.
//
// Precedence: an explicit cancellation or closure from the source wins; a
// passed deadline closes the record regardless of what the source claims; a
// future opening date makes it upcoming; everything else is open.
func ResolveStatus(sourceStatus string, deadline, openDate *time.Time, now time.Time) StatusDecision {
	now = now.UTC()
	mapped := mapSourceStatus(sourceStatus)

	if mapped == models.StatusCancelled {
		return StatusDecision{Status: models.StatusCancelled, Reason: "source_cancelled"}
	}
	if mapped == models.StatusClosed {
		return StatusDecision{Status: models.StatusClosed, Reason: "source_closed"}
	}

	if deadline != nil && !deadline.After(now) {
		return StatusDecision{Status: models.StatusClosed, Reason: "deadline_passed"}
	}

	if openDate != nil && openDate.After(now) {
		return StatusDecision{Status: models.StatusUpcoming, Reason: "open_date_in_future"}
	}
	if mapped == models.StatusUpcoming {
		return StatusDecision{Status: models.StatusUpcoming, Reason: "source_upcoming"}
	}

	if deadline != nil && deadline.After(now) {
		return StatusDecision{Status: models.StatusOpen, Reason: "future_deadline"}
	}

	return StatusDecision{Status: models.StatusOpen, Reason: "source_open"}
}

// mapSourceStatus folds the many strings portals use into the canonical
// lifecycle states. Returns "" when the source said nothing recognizable.
func mapSourceStatus(raw string) models.Status {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}

	cancelledHints := []string{"cancel", "withdrawn", "annulled"}
	for _, hint := range cancelledHints {
		if strings.Contains(raw, hint) {
			return models.StatusCancelled
		}
	}

	closedHints := []string{"closed", "archived", "expired", "finalized", "no longer accepting", "awarded"}
	for _, hint := range closedHints {
		if strings.Contains(raw, hint) {
			return models.StatusClosed
		}
	}

	upcomingHints := []string{"forthcoming", "upcoming", "forecasted", "coming soon", "anticipated"}
	for _, hint := range upcomingHints {
		if strings.Contains(raw, hint) {
			return models.StatusUpcoming
		}
	}

	openHints := []string{"open", "posted", "active", "accepting"}
	for _, hint := range openHints {
		if strings.Contains(raw, hint) {
			return models.StatusOpen
		}
	}

	return ""
}
