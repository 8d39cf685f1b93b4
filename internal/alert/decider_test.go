package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rednix/eu-grants-monitor-agent/internal/config"
	"github.com/rednix/eu-grants-monitor-agent/internal/models"
)

var alertNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testAlertConfig() config.AlertConfig {
	return config.AlertConfig{
		PriorityThreshold: 70,
		BucketWidth:       10,
		ReminderDays:      []int{30, 14, 7, 3},
	}
}

func alertOpportunity(daysToDeadline int) models.Opportunity {
	deadline := alertNow.AddDate(0, 0, daysToDeadline)
	return models.Opportunity{
		ID:           models.OpportunityID("horizon-europe", "A-1"),
		SourceSystem: "horizon-europe",
		Title:        "AI Call",
		Status:       models.StatusOpen,
		Deadline:     &deadline,
	}
}

func scoreWithPriority(p float64) models.ScoreResult {
	return models.ScoreResult{Priority: p}
}

func newEvent(opp models.Opportunity) models.ChangeEvent {
	return models.ChangeEvent{Kind: models.ChangeNew, OpportunityID: opp.ID}
}

func unchangedEvent(opp models.Opportunity) models.ChangeEvent {
	return models.ChangeEvent{Kind: models.ChangeUnchanged, OpportunityID: opp.ID}
}

func TestDecideNovelAboveThreshold(t *testing.T) {
	d := New(testAlertConfig())
	d.BeginCycle()

	opp := alertOpportunity(60)
	a := d.Decide(newEvent(opp), opp, scoreWithPriority(85), alertNow)
	require.NotNil(t, a)
	require.Equal(t, models.ReasonNovel, a.Reason)
	require.Equal(t, 8, a.PriorityBucket)
	require.Equal(t, models.AlertID(opp.ID, models.ReasonNovel, 8), a.ID)
}

func TestDecideSuppressedBelowThreshold(t *testing.T) {
	d := New(testAlertConfig())
	d.BeginCycle()

	opp := alertOpportunity(60)
	require.Nil(t, d.Decide(newEvent(opp), opp, scoreWithPriority(50), alertNow))
}

func TestDecideSameBucketOncePerCycle(t *testing.T) {
	d := New(testAlertConfig())
	d.BeginCycle()

	opp := alertOpportunity(60)
	require.NotNil(t, d.Decide(newEvent(opp), opp, scoreWithPriority(85), alertNow))
	ev := models.ChangeEvent{Kind: models.ChangeNew, OpportunityID: opp.ID}
	require.Nil(t, d.Decide(ev, opp, scoreWithPriority(87), alertNow))

	// A fresh cycle may emit the same identity again.
	d.BeginCycle()
	require.NotNil(t, d.Decide(ev, opp, scoreWithPriority(85), alertNow))
}

func TestDecideRescoredAfterThresholdCrossing(t *testing.T) {
	d := New(testAlertConfig())
	opp := alertOpportunity(60)

	// Cycle 1: the opportunity scores just under the threshold.
	d.BeginCycle()
	require.Nil(t, d.Decide(newEvent(opp), opp, scoreWithPriority(69), alertNow))

	// Cycle 2: a material update lifts the priority above the threshold.
	d.BeginCycle()
	ev := models.ChangeEvent{Kind: models.ChangeUpdated, OpportunityID: opp.ID}
	a := d.Decide(ev, opp, scoreWithPriority(72), alertNow)
	require.NotNil(t, a)
	require.Equal(t, models.ReasonRescored, a.Reason)
	require.Equal(t, 7, a.PriorityBucket)
	require.Nil(t, d.Decide(ev, opp, scoreWithPriority(72), alertNow))
}

func TestDecideTerminalNeverAlerts(t *testing.T) {
	d := New(testAlertConfig())
	d.BeginCycle()

	opp := alertOpportunity(60)
	opp.Status = models.StatusClosed
	require.Nil(t, d.Decide(newEvent(opp), opp, scoreWithPriority(95), alertNow))
}

func TestDecideReminderOnBoundaryCrossing(t *testing.T) {
	d := New(testAlertConfig())

	// First sighting inside the 30 day boundary counts as a crossing.
	d.BeginCycle()
	opp := alertOpportunity(20)
	a := d.Decide(unchangedEvent(opp), opp, scoreWithPriority(80), alertNow)
	require.NotNil(t, a)
	require.Equal(t, models.ReasonDeadlineApproaching, a.Reason)
	require.Equal(t, 30, a.PriorityBucket)

	// Same boundary next cycle: no new alert.
	d.BeginCycle()
	later := alertNow.AddDate(0, 0, 2)
	opp2 := alertOpportunity(20) // 18 days from later
	require.Nil(t, d.Decide(unchangedEvent(opp2), opp2, scoreWithPriority(80), later))

	// Crossing into the 14 day boundary fires again.
	d.BeginCycle()
	muchLater := alertNow.AddDate(0, 0, 10) // 10 days remain
	require.NotNil(t, d.Decide(unchangedEvent(opp2), opp2, scoreWithPriority(80), muchLater))
}

func TestDecideReminderRequiresThreshold(t *testing.T) {
	d := New(testAlertConfig())
	d.BeginCycle()

	opp := alertOpportunity(5)
	require.Nil(t, d.Decide(unchangedEvent(opp), opp, scoreWithPriority(40), alertNow))
}

func TestDecideUnchangedWithoutBoundaryIsSilent(t *testing.T) {
	d := New(testAlertConfig())
	d.BeginCycle()

	opp := alertOpportunity(60)
	require.Nil(t, d.Decide(unchangedEvent(opp), opp, scoreWithPriority(90), alertNow))
}
