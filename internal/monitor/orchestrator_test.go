package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/rednix/eu-grants-monitor-agent/internal/alert"
	"github.com/rednix/eu-grants-monitor-agent/internal/collect"
	"github.com/rednix/eu-grants-monitor-agent/internal/config"
	"github.com/rednix/eu-grants-monitor-agent/internal/models"
	"github.com/rednix/eu-grants-monitor-agent/internal/score"
	"github.com/rednix/eu-grants-monitor-agent/internal/store"
)

var cycleNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeCollector struct {
	name    string
	records []collect.RawRecord
	err     error
}

func (f *fakeCollector) Name() string { return f.name }

func (f *fakeCollector) Fetch(context.Context) ([]collect.RawRecord, error) {
	return f.records, f.err
}

// memStore is an in-memory SnapshotStore with optional fault injection.
type memStore struct {
	snapshot map[uuid.UUID]models.Opportunity
	alerts   []models.Alert
	cycles   []store.CycleRecord
	saves    int
	saveErr  error
}

func newMemStore() *memStore {
	return &memStore{snapshot: make(map[uuid.UUID]models.Opportunity)}
}

func (m *memStore) Load(context.Context) (map[uuid.UUID]models.Opportunity, error) {
	out := make(map[uuid.UUID]models.Opportunity, len(m.snapshot))
	for k, v := range m.snapshot {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Save(_ context.Context, snapshot map[uuid.UUID]models.Opportunity) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.snapshot = snapshot
	return nil
}

func (m *memStore) RecordCycle(_ context.Context, rec store.CycleRecord) error {
	m.cycles = append(m.cycles, rec)
	return nil
}

func (m *memStore) RecordAlerts(_ context.Context, alerts []models.Alert) error {
	seen := make(map[uuid.UUID]struct{}, len(m.alerts))
	for _, a := range m.alerts {
		seen[a.ID] = struct{}{}
	}
	for _, a := range alerts {
		if _, dup := seen[a.ID]; !dup {
			m.alerts = append(m.alerts, a)
		}
	}
	return nil
}

func (m *memStore) ListAlerts(context.Context, int) ([]models.Alert, error) {
	return m.alerts, nil
}

func (m *memStore) Close() error { return nil }

type captureNotifier struct {
	batches [][]models.Alert
}

func (c *captureNotifier) Dispatch(_ context.Context, alerts []models.Alert) error {
	c.batches = append(c.batches, alerts)
	return nil
}

func relevantRecord(externalID string, daysToDeadline int) collect.RawRecord {
	deadline := cycleNow.AddDate(0, 0, daysToDeadline)
	amount := 200000.0
	return collect.RawRecord{
		SourceSystem: "horizon-europe",
		ExternalID:   externalID,
		Title:        "Machine Learning for Healthcare " + externalID,
		RawStatus:    "open",
		Deadline:     &deadline,
		TotalBudget:  &amount,
		Keywords:     []string{"machine learning", "healthcare"},
	}
}

func testRunner(st store.SnapshotStore, notifier *captureNotifier, collectors ...collect.Collector) *Runner {
	profile := models.BusinessProfile{
		CompanySize:         "small",
		Country:             "DE",
		AIExpertise:         []string{"machine learning"},
		IndustrySectors:     []string{"healthcare"},
		PreferredFundingMin: 50000,
		PreferredFundingMax: 500000,
	}
	scoringCfg := config.ScoringConfig{
		Weights:            config.PriorityWeights{Relevance: 0.4, Simplicity: 0.3, Success: 0.2, Urgency: 0.1},
		Success:            config.SuccessWeights{Relevance: 0.6, Simplicity: 0.4},
		UrgencyHorizonDays: 90,
	}
	alertCfg := config.AlertConfig{PriorityThreshold: 60, BucketWidth: 10, ReminderDays: []int{30, 14, 7, 3}}
	monitorCfg := config.MonitorConfig{MaxConcurrentCollectors: 2, CollectorTimeout: 5 * time.Second, Interval: time.Hour}

	r := NewRunner(collectors, score.New(profile, scoringCfg), alert.New(alertCfg), st, notifier, monitorCfg)
	r.now = func() time.Time { return cycleNow }
	return r
}

func TestCycleIngestsAndAlerts(t *testing.T) {
	st := newMemStore()
	notifier := &captureNotifier{}
	r := testRunner(st, notifier, &fakeCollector{
		name:    "horizon-europe",
		records: []collect.RawRecord{relevantRecord("C-1", 45)},
	})

	report, err := r.Cycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.New)
	require.Len(t, st.snapshot, 1)
	require.NotEmpty(t, report.Alerts)
	require.Len(t, notifier.batches, 1)
	require.Len(t, st.cycles, 1)
}

func TestCycleIsolatesCollectorFailure(t *testing.T) {
	st := newMemStore()
	r := testRunner(st, &captureNotifier{},
		&fakeCollector{name: "horizon-europe", records: []collect.RawRecord{relevantRecord("C-1", 45)}},
		&fakeCollector{name: "grants-gov", err: eris.New("upstream 503")},
	)

	report, err := r.Cycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.New)
	require.Len(t, report.Failures, 1)
	require.Equal(t, "grants-gov", report.Failures[0].Source)
	require.Equal(t, 1, st.saves)
}

// slowCollector blocks until its context expires.
type slowCollector struct{ name string }

func (s *slowCollector) Name() string { return s.name }

func (s *slowCollector) Fetch(ctx context.Context) ([]collect.RawRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCycleTimesOutSlowCollector(t *testing.T) {
	st := newMemStore()
	r := testRunner(st, &captureNotifier{},
		&fakeCollector{name: "horizon-europe", records: []collect.RawRecord{relevantRecord("C-1", 45)}},
		&slowCollector{name: "slow-portal"},
	)
	r.cfg.CollectorTimeout = 20 * time.Millisecond

	report, err := r.Cycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.New)
	require.Len(t, report.Failures, 1)
	require.Equal(t, "slow-portal", report.Failures[0].Source)
}

func TestCycleDropsMalformedRecords(t *testing.T) {
	bad := relevantRecord("C-2", 45)
	bad.Title = ""

	st := newMemStore()
	r := testRunner(st, &captureNotifier{}, &fakeCollector{
		name:    "horizon-europe",
		records: []collect.RawRecord{relevantRecord("C-1", 45), bad},
	})

	report, err := r.Cycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.New)
	require.Equal(t, 1, report.PerSource[0].Dropped)
}

func TestCycleRerunDoesNotDuplicateAlerts(t *testing.T) {
	st := newMemStore()
	collector := &fakeCollector{
		name:    "horizon-europe",
		records: []collect.RawRecord{relevantRecord("C-1", 45)},
	}
	r := testRunner(st, &captureNotifier{}, collector)

	first, err := r.Cycle(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, first.Alerts)

	// A fresh runner against the same snapshot models a crash-and-retry:
	// the unchanged record produces no new alert, and replayed alert IDs
	// collapse in the store.
	r2 := testRunner(st, &captureNotifier{}, collector)
	second, err := r2.Cycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, second.New)
	require.Equal(t, 1, second.Unchanged)

	alerts, _ := st.ListAlerts(context.Background(), 100)
	require.Len(t, alerts, len(first.Alerts))
}

func TestCycleSameExternalIDAcrossSourcesStaysDistinct(t *testing.T) {
	a := relevantRecord("SHARED-1", 45)
	b := relevantRecord("SHARED-1", 45)
	b.SourceSystem = "grants-gov"

	st := newMemStore()
	r := testRunner(st, &captureNotifier{},
		&fakeCollector{name: "horizon-europe", records: []collect.RawRecord{a}},
		&fakeCollector{name: "grants-gov", records: []collect.RawRecord{b}},
	)

	report, err := r.Cycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.New)
	require.Len(t, st.snapshot, 2)
}

func TestCycleRemindsForOpportunityAbsentFromBatch(t *testing.T) {
	st := newMemStore()
	seed := relevantRecord("C-1", 45)
	r := testRunner(st, &captureNotifier{}, &fakeCollector{
		name:    "horizon-europe",
		records: []collect.RawRecord{seed},
	})
	_, err := r.Cycle(context.Background())
	require.NoError(t, err)

	// The source stops listing the record but its deadline keeps closing
	// in; a later cycle crosses the 30 day reminder boundary.
	later := cycleNow.AddDate(0, 0, 25) // 20 days to deadline
	r2 := testRunner(st, &captureNotifier{}, &fakeCollector{name: "horizon-europe"})
	r2.now = func() time.Time { return later }

	report, err := r2.Cycle(context.Background())
	require.NoError(t, err)
	require.Contains(t, st.snapshot, models.OpportunityID("horizon-europe", "C-1"))

	require.Len(t, report.Alerts, 1)
	require.Equal(t, models.ReasonDeadlineApproaching, report.Alerts[0].Reason)
}

func TestCycleMergeConflictAbortsBeforePersist(t *testing.T) {
	st := newMemStore()
	seed := relevantRecord("C-1", 45)
	conflicting := relevantRecord("C-1", 45)
	conflicting.SourceSystem = "grants-gov"

	r := testRunner(st, &captureNotifier{}, &fakeCollector{
		name:    "horizon-europe",
		records: []collect.RawRecord{seed},
	})
	_, err := r.Cycle(context.Background())
	require.NoError(t, err)
	savesBefore := st.saves

	// Force the same derived ID from a different source.
	opp := st.snapshot[models.OpportunityID("horizon-europe", "C-1")]
	opp.SourceSystem = "grants-gov"
	st.snapshot[opp.ID] = opp

	r2 := testRunner(st, &captureNotifier{}, &fakeCollector{
		name:    "horizon-europe",
		records: []collect.RawRecord{seed},
	})
	_, err = r2.Cycle(context.Background())
	require.Error(t, err)
	require.Equal(t, savesBefore, st.saves)
}

func TestCyclePersistFailureFailsCycle(t *testing.T) {
	st := newMemStore()
	st.saveErr = eris.New("disk full")
	notifier := &captureNotifier{}
	r := testRunner(st, notifier, &fakeCollector{
		name:    "horizon-europe",
		records: []collect.RawRecord{relevantRecord("C-1", 45)},
	})

	_, err := r.Cycle(context.Background())
	require.Error(t, err)
	require.Empty(t, notifier.batches)
}

func TestCycleClosedOpportunityNeverAlerts(t *testing.T) {
	rec := relevantRecord("C-1", -5) // deadline already passed

	st := newMemStore()
	r := testRunner(st, &captureNotifier{}, &fakeCollector{
		name:    "horizon-europe",
		records: []collect.RawRecord{rec},
	})

	report, err := r.Cycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.New)
	require.Empty(t, report.Alerts)

	got := st.snapshot[models.OpportunityID("horizon-europe", "C-1")]
	require.Equal(t, models.StatusClosed, got.Status)
}
