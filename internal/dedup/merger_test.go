package dedup

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/rednix/eu-grants-monitor-agent/internal/models"
)

var (
	mergeNow  = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mergeThen = mergeNow.AddDate(0, 0, -7)
)

func storedOpportunity() models.Opportunity {
	deadline := mergeNow.AddDate(0, 2, 0)
	budget := 100000.0
	return models.Opportunity{
		ID:           models.OpportunityID("horizon-europe", "T-1"),
		SourceSystem: "horizon-europe",
		ExternalID:   "T-1",
		Title:        "AI for Health",
		Status:       models.StatusOpen,
		Deadline:     &deadline,
		BudgetMax:    &budget,
		Keywords:     []string{"ai", "health"},
		FirstSeen:    mergeThen,
		LastUpdated:  mergeThen,
	}
}

func snapshotWith(opps ...models.Opportunity) map[uuid.UUID]models.Opportunity {
	m := make(map[uuid.UUID]models.Opportunity)
	for _, o := range opps {
		m[o.ID] = o
	}
	return m
}

func TestMergeNewOpportunity(t *testing.T) {
	inc := storedOpportunity()

	merged, events, err := Merge(map[uuid.UUID]models.Opportunity{}, []models.Opportunity{inc}, mergeNow)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, models.ChangeNew, events[0].Kind)

	got := merged[inc.ID]
	require.Equal(t, mergeNow, got.FirstSeen)
	require.Equal(t, mergeNow, got.LastUpdated)
}

func TestMergeUnchangedKeepsTimestamps(t *testing.T) {
	stored := storedOpportunity()
	inc := storedOpportunity()
	inc.FirstSeen, inc.LastUpdated = time.Time{}, time.Time{}

	merged, events, err := Merge(snapshotWith(stored), []models.Opportunity{inc}, mergeNow)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, models.ChangeUnchanged, events[0].Kind)
	require.Equal(t, mergeThen, merged[stored.ID].LastUpdated)
	require.Equal(t, mergeThen, merged[stored.ID].FirstSeen)
}

func TestMergePassedDeadlineRetiresAbsentRecord(t *testing.T) {
	stored := storedOpportunity()
	past := mergeNow.AddDate(0, 0, -10)
	stored.Deadline = &past

	merged, events, err := Merge(snapshotWith(stored), nil, mergeNow)
	require.NoError(t, err)
	require.Equal(t, models.StatusClosed, merged[stored.ID].Status)
	require.Equal(t, mergeNow, merged[stored.ID].LastUpdated)

	require.Len(t, events, 1)
	require.Equal(t, models.ChangeUpdated, events[0].Kind)
	require.Len(t, events[0].Diff, 1)
	require.Equal(t, "status", events[0].Diff[0].Field)
	require.Equal(t, string(models.StatusClosed), events[0].Diff[0].New)
}

func TestMergePassedDeadlineUpgradesUnchangedEvent(t *testing.T) {
	stored := storedOpportunity()
	past := mergeNow.AddDate(0, 0, -1)
	stored.Deadline = &past
	inc := stored

	merged, events, err := Merge(snapshotWith(stored), []models.Opportunity{inc}, mergeNow)
	require.NoError(t, err)
	require.Equal(t, models.StatusClosed, merged[stored.ID].Status)

	// One event for the record, not an unchanged plus an updated.
	require.Len(t, events, 1)
	require.Equal(t, models.ChangeUpdated, events[0].Kind)
}

func TestMergePassedDeadlineLeavesCancelledAlone(t *testing.T) {
	stored := storedOpportunity()
	past := mergeNow.AddDate(0, 0, -10)
	stored.Deadline = &past
	stored.Status = models.StatusCancelled

	merged, events, err := Merge(snapshotWith(stored), nil, mergeNow)
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, merged[stored.ID].Status)
	require.Empty(t, events)
}

func TestMergeDetectsDeadlineChange(t *testing.T) {
	stored := storedOpportunity()
	inc := storedOpportunity()
	newDeadline := mergeNow.AddDate(0, 3, 0)
	inc.Deadline = &newDeadline

	merged, events, err := Merge(snapshotWith(stored), []models.Opportunity{inc}, mergeNow)
	require.NoError(t, err)
	require.Equal(t, models.ChangeUpdated, events[0].Kind)
	require.Len(t, events[0].Diff, 1)
	require.Equal(t, "deadline", events[0].Diff[0].Field)
	require.Equal(t, mergeNow, merged[stored.ID].LastUpdated)
}

func TestMergeAbsentFieldsDoNotDelete(t *testing.T) {
	stored := storedOpportunity()
	inc := storedOpportunity()
	inc.BudgetMax = nil
	inc.Keywords = nil

	merged, events, err := Merge(snapshotWith(stored), []models.Opportunity{inc}, mergeNow)
	require.NoError(t, err)
	require.Equal(t, models.ChangeUnchanged, events[0].Kind)
	require.NotNil(t, merged[stored.ID].BudgetMax)
	require.Equal(t, []string{"ai", "health"}, merged[stored.ID].Keywords)
}

func TestMergeAbsenceFromBatchKeepsStored(t *testing.T) {
	stored := storedOpportunity()

	merged, events, err := Merge(snapshotWith(stored), nil, mergeNow)
	require.NoError(t, err)
	require.Empty(t, events)
	require.Contains(t, merged, stored.ID)
}

func TestMergeNonResurrection(t *testing.T) {
	stored := storedOpportunity()
	stored.Status = models.StatusClosed
	inc := storedOpportunity()
	inc.Status = models.StatusOpen

	merged, events, err := Merge(snapshotWith(stored), []models.Opportunity{inc}, mergeNow)
	require.NoError(t, err)
	require.Equal(t, models.StatusClosed, merged[stored.ID].Status)
	require.Equal(t, models.ChangeUnchanged, events[0].Kind)
}

func TestMergeConflictAcrossSources(t *testing.T) {
	stored := storedOpportunity()
	inc := storedOpportunity()
	inc.SourceSystem = "grants-gov"

	_, _, err := Merge(snapshotWith(stored), []models.Opportunity{inc}, mergeNow)
	require.Error(t, err)
	require.True(t, eris.Is(err, ErrMergeConflict))
}

func TestMergeDoesNotMutateInputSnapshot(t *testing.T) {
	stored := storedOpportunity()
	snapshot := snapshotWith(stored)
	inc := storedOpportunity()
	inc.Status = models.StatusClosed

	_, _, err := Merge(snapshot, []models.Opportunity{inc}, mergeNow)
	require.NoError(t, err)
	require.Equal(t, models.StatusOpen, snapshot[stored.ID].Status)
}
