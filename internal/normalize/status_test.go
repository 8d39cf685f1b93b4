package normalize

import (
	"testing"
	"time"

	"github.com/rednix/eu-grants-monitor-agent/internal/models"
)

func TestResolveStatusPastDeadlineClosed(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)

	d := ResolveStatus("open", &past, nil, now)
	if d.Status != models.StatusClosed {
		t.Fatalf("expected closed, got %s", d.Status)
	}
	if d.Reason != "deadline_passed" {
		t.Fatalf("expected reason deadline_passed, got %s", d.Reason)
	}
}

func TestResolveStatusCancelledWins(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	future := now.AddDate(0, 1, 0)

	d := ResolveStatus("Call cancelled", &future, nil, now)
	if d.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", d.Status)
	}
}

func TestResolveStatusFutureOpenDateUpcoming(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	open := now.AddDate(0, 1, 0)
	deadline := now.AddDate(0, 3, 0)

	d := ResolveStatus("open", &deadline, &open, now)
	if d.Status != models.StatusUpcoming {
		t.Fatalf("expected upcoming, got %s", d.Status)
	}
}

func TestResolveStatusForecastedUpcoming(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	d := ResolveStatus("forecasted", nil, nil, now)
	if d.Status != models.StatusUpcoming {
		t.Fatalf("expected upcoming, got %s", d.Status)
	}
}

func TestResolveStatusDefaultsOpen(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	future := now.AddDate(0, 2, 0)

	d := ResolveStatus("", &future, nil, now)
	if d.Status != models.StatusOpen {
		t.Fatalf("expected open, got %s", d.Status)
	}
}
