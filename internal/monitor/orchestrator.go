// Package monitor runs the collection cycle: fetch from every enabled
// source, normalize, merge into the snapshot, score, decide alerts, persist,
// notify. One cycle is a single atomic unit; cycles never overlap.
package monitor

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rednix/eu-grants-monitor-agent/internal/alert"
	"github.com/rednix/eu-grants-monitor-agent/internal/collect"
	"github.com/rednix/eu-grants-monitor-agent/internal/config"
	"github.com/rednix/eu-grants-monitor-agent/internal/dedup"
	"github.com/rednix/eu-grants-monitor-agent/internal/models"
	"github.com/rednix/eu-grants-monitor-agent/internal/normalize"
	"github.com/rednix/eu-grants-monitor-agent/internal/notify"
	"github.com/rednix/eu-grants-monitor-agent/internal/score"
	"github.com/rednix/eu-grants-monitor-agent/internal/store"
)

// CollectorFailure records one source that failed this cycle. Failures are
// reported, never fatal: the cycle proceeds with the sources that answered.
type CollectorFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// SourceStats summarizes one source's contribution to a cycle.
type SourceStats struct {
	Source  string `json:"source"`
	Fetched int    `json:"fetched"`
	Dropped int    `json:"dropped"` // records rejected by normalization
}

// CycleReport is the outcome of one monitoring cycle.
type CycleReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	PerSource []SourceStats      `json:"per_source"`
	Failures  []CollectorFailure `json:"failures"`

	New       int `json:"new"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`

	Alerts []models.Alert `json:"alerts"`
}

// Runner owns the pipeline components and executes cycles.
type Runner struct {
	// mu serializes cycles: a cycle's persistence completes before the
	// next cycle reads the snapshot.
	mu sync.Mutex

	collectors []collect.Collector
	scorer     *score.Scorer
	decider    *alert.Decider
	store      store.SnapshotStore
	notifier   notify.Notifier
	cfg        config.MonitorConfig

	now func() time.Time
}

// NewRunner wires the pipeline. A nil notifier disables dispatch.
func NewRunner(collectors []collect.Collector, scorer *score.Scorer, decider *alert.Decider, st store.SnapshotStore, notifier notify.Notifier, cfg config.MonitorConfig) *Runner {
	if notifier == nil {
		notifier = notify.NewLogNotifier(nil)
	}
	return &Runner{
		collectors: collectors,
		scorer:     scorer,
		decider:    decider,
		store:      st,
		notifier:   notifier,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Cycle runs one full monitoring pass. It returns an error only when the
// cycle could not complete as a unit (merge conflict or persistence
// failure); individual source failures land in the report instead.
func (r *Runner) Cycle(ctx context.Context) (*CycleReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := r.now().UTC()
	report := &CycleReport{StartedAt: started}

	batches, failures := r.collectAll(ctx)
	report.Failures = failures

	now := r.now().UTC()
	var incoming []models.Opportunity
	for _, batch := range batches {
		stats := SourceStats{Source: batch.source, Fetched: len(batch.records)}
		for _, rec := range batch.records {
			opp, err := normalize.Normalize(rec, now)
			if err != nil {
				stats.Dropped++
				zap.L().Warn("record rejected",
					zap.String("source", batch.source),
					zap.String("external_id", rec.ExternalID),
					zap.Error(err))
				continue
			}
			incoming = append(incoming, opp)
		}
		report.PerSource = append(report.PerSource, stats)
	}

	snapshot, err := r.store.Load(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitor: load snapshot")
	}

	merged, events, err := dedup.Merge(snapshot, incoming, now)
	if err != nil {
		// Nothing was persisted; the stored snapshot is untouched.
		return nil, eris.Wrap(err, "monitor: merge")
	}

	for _, ev := range events {
		switch ev.Kind {
		case models.ChangeNew:
			report.New++
		case models.ChangeUpdated:
			report.Updated++
		case models.ChangeUnchanged:
			report.Unchanged++
		}
	}

	// Open opportunities missing from this batch still age toward their
	// deadlines; the decider must see them for reminder crossings.
	covered := make(map[uuid.UUID]struct{}, len(events))
	for _, ev := range events {
		covered[ev.OpportunityID] = struct{}{}
	}
	for id, opp := range merged {
		if _, ok := covered[id]; !ok && opp.Status == models.StatusOpen {
			events = append(events, models.ChangeEvent{
				Kind:          models.ChangeUnchanged,
				OpportunityID: id,
			})
		}
	}

	scores, err := r.scoreAll(ctx, merged, events, now)
	if err != nil {
		return nil, err
	}

	report.Alerts = r.decideAll(events, merged, scores, now)

	if err := r.store.Save(ctx, merged); err != nil {
		return nil, eris.Wrap(err, "monitor: persist snapshot")
	}
	if err := r.store.RecordAlerts(ctx, report.Alerts); err != nil {
		return nil, eris.Wrap(err, "monitor: persist alerts")
	}

	report.FinishedAt = r.now().UTC()
	if err := r.store.RecordCycle(ctx, r.cycleRecord(report)); err != nil {
		zap.L().Warn("cycle history not recorded", zap.Error(err))
	}

	if len(report.Alerts) > 0 {
		if err := r.notifier.Dispatch(ctx, report.Alerts); err != nil {
			// Alerts are already persisted; delivery can be retried.
			zap.L().Error("alert dispatch failed", zap.Error(err))
		}
	}

	zap.L().Info("cycle complete",
		zap.Int("sources_ok", len(report.PerSource)),
		zap.Int("sources_failed", len(report.Failures)),
		zap.Int("new", report.New),
		zap.Int("updated", report.Updated),
		zap.Int("alerts", len(report.Alerts)),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))

	return report, nil
}

// Run executes cycles on the configured interval until the context ends.
// The first cycle starts immediately.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zap.L().Error("cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type sourceBatch struct {
	source  string
	records []collect.RawRecord
}

// collectAll fans out all collectors with bounded concurrency and a
// per-collector timeout. A panic or error in one collector is isolated.
func (r *Runner) collectAll(ctx context.Context) ([]sourceBatch, []CollectorFailure) {
	sem := semaphore.NewWeighted(int64(r.cfg.MaxConcurrentCollectors))
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var batches []sourceBatch
	var failures []CollectorFailure

	for _, c := range r.collectors {
		c := c
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			cctx, cancel := context.WithTimeout(gctx, r.cfg.CollectorTimeout)
			defer cancel()

			records, err := c.Fetch(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zap.L().Error("collector failed",
					zap.String("source", c.Name()),
					zap.Error(err))
				failures = append(failures, CollectorFailure{Source: c.Name(), Error: err.Error()})
				return nil
			}
			batches = append(batches, sourceBatch{source: c.Name(), records: records})
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(batches, func(i, j int) bool { return batches[i].source < batches[j].source })
	sort.Slice(failures, func(i, j int) bool { return failures[i].Source < failures[j].Source })
	return batches, failures
}

// scoreAll scores every opportunity touched by an event, in parallel. The
// scorer is pure, so workers share it without locking.
func (r *Runner) scoreAll(ctx context.Context, merged map[uuid.UUID]models.Opportunity, events []models.ChangeEvent, now time.Time) (map[uuid.UUID]models.ScoreResult, error) {
	ids := make([]uuid.UUID, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.OpportunityID)
	}

	results := make([]models.ScoreResult, len(ids))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			opp, ok := merged[id]
			if !ok {
				return eris.Errorf("monitor: event for unknown opportunity %s", id)
			}
			results[i] = r.scorer.Score(opp, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scores := make(map[uuid.UUID]models.ScoreResult, len(ids))
	for i, id := range ids {
		scores[id] = results[i]
	}
	return scores, nil
}

// decideAll runs the alert decider over the events in a deterministic
// order: newest material change first, then by ID.
func (r *Runner) decideAll(events []models.ChangeEvent, merged map[uuid.UUID]models.Opportunity, scores map[uuid.UUID]models.ScoreResult, now time.Time) []models.Alert {
	ordered := append([]models.ChangeEvent(nil), events...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := merged[ordered[i].OpportunityID], merged[ordered[j].OpportunityID]
		if !a.LastUpdated.Equal(b.LastUpdated) {
			return a.LastUpdated.After(b.LastUpdated)
		}
		return ordered[i].OpportunityID.String() < ordered[j].OpportunityID.String()
	})

	r.decider.BeginCycle()
	var alerts []models.Alert
	for _, ev := range ordered {
		opp := merged[ev.OpportunityID]
		if a := r.decider.Decide(ev, opp, scores[ev.OpportunityID], now); a != nil {
			alerts = append(alerts, *a)
		}
	}
	return alerts
}

func (r *Runner) cycleRecord(report *CycleReport) store.CycleRecord {
	dropped := 0
	for _, s := range report.PerSource {
		dropped += s.Dropped
	}
	return store.CycleRecord{
		StartedAt:      report.StartedAt,
		FinishedAt:     report.FinishedAt,
		SourcesOK:      len(report.PerSource),
		SourcesFailed:  len(report.Failures),
		NewCount:       report.New,
		UpdatedCount:   report.Updated,
		UnchangedCount: report.Unchanged,
		DroppedCount:   dropped,
		AlertCount:     len(report.Alerts),
	}
}
