// Package alert decides which snapshot changes are worth telling the
// operator about. The decider is stateful across cycles so that the same
// opportunity does not re-alert every hour at the same priority.
package alert

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rednix/eu-grants-monitor-agent/internal/config"
	"github.com/rednix/eu-grants-monitor-agent/internal/models"
)

// phase tracks where an opportunity sits in the alerting lifecycle.
type phase string

const (
	phaseNew        phase = "new"
	phaseAlerted    phase = "alerted"
	phaseSuppressed phase = "suppressed"
	phaseTerminal   phase = "terminal"
)

type oppState struct {
	phase phase
	// lastBoundary is the tightest reminder boundary already announced,
	// in days to deadline. Zero means none yet.
	lastBoundary int
}

// Decider turns change events plus scores into alerts. Not safe for
// concurrent use; the orchestrator serializes cycles.
type Decider struct {
	cfg       config.AlertConfig
	reminders []int // descending days-to-deadline boundaries

	states map[uuid.UUID]*oppState
	// emitted holds the alert IDs produced this cycle; the same identity
	// fires at most once per cycle.
	emitted map[uuid.UUID]struct{}
}

// New builds a Decider from validated alert configuration.
func New(cfg config.AlertConfig) *Decider {
	reminders := append([]int(nil), cfg.ReminderDays...)
	sort.Sort(sort.Reverse(sort.IntSlice(reminders)))

	return &Decider{
		cfg:       cfg,
		reminders: reminders,
		states:    make(map[uuid.UUID]*oppState),
		emitted:   make(map[uuid.UUID]struct{}),
	}
}

// BeginCycle resets the per-cycle emission set. Call once before the first
// Decide of each monitoring cycle.
func (d *Decider) BeginCycle() {
	d.emitted = make(map[uuid.UUID]struct{})
}

// Decide evaluates one change event and returns an alert or nil. Terminal
// opportunities never alert regardless of score.
func (d *Decider) Decide(event models.ChangeEvent, opp models.Opportunity, score models.ScoreResult, now time.Time) *models.Alert {
	state, ok := d.states[opp.ID]
	if !ok {
		state = &oppState{phase: phaseNew}
		d.states[opp.ID] = state
	}

	if opp.Status.Terminal() {
		state.phase = phaseTerminal
		return nil
	}

	switch event.Kind {
	case models.ChangeNew:
		return d.decideScored(state, opp, score, models.ReasonNovel, now)
	case models.ChangeUpdated:
		return d.decideScored(state, opp, score, models.ReasonRescored, now)
	case models.ChangeUnchanged:
		return d.decideReminder(state, opp, score, now)
	default:
		return nil
	}
}

// decideScored handles new and materially changed opportunities: alert when
// the priority clears the threshold, at most once per bucket per cycle.
func (d *Decider) decideScored(state *oppState, opp models.Opportunity, score models.ScoreResult, reason models.AlertReason, now time.Time) *models.Alert {
	d.trackBoundary(state, opp, now)

	if score.Priority < d.cfg.PriorityThreshold {
		if state.phase == phaseNew {
			state.phase = phaseSuppressed
		}
		return nil
	}

	bucket := d.bucket(score.Priority)
	id := models.AlertID(opp.ID, reason, bucket)
	if _, dup := d.emitted[id]; dup {
		return nil
	}
	d.emitted[id] = struct{}{}
	state.phase = phaseAlerted

	return d.build(id, opp, score, reason, bucket, now)
}

// decideReminder handles unchanged opportunities: the only alert they can
// produce is a deadline reminder, fired once per boundary crossing.
func (d *Decider) decideReminder(state *oppState, opp models.Opportunity, score models.ScoreResult, now time.Time) *models.Alert {
	boundary, crossed := d.trackBoundary(state, opp, now)
	if !crossed {
		return nil
	}
	if score.Priority < d.cfg.PriorityThreshold {
		return nil
	}

	id := models.AlertID(opp.ID, models.ReasonDeadlineApproaching, boundary)
	if _, dup := d.emitted[id]; dup {
		return nil
	}
	d.emitted[id] = struct{}{}

	zap.L().Debug("deadline reminder boundary crossed",
		zap.String("id", opp.ID.String()),
		zap.Int("days_boundary", boundary))

	return d.build(id, opp, score, models.ReasonDeadlineApproaching, boundary, now)
}

// trackBoundary records the tightest reminder boundary the deadline has
// passed and reports whether a new one was crossed since the last cycle.
func (d *Decider) trackBoundary(state *oppState, opp models.Opportunity, now time.Time) (int, bool) {
	if opp.Status != models.StatusOpen {
		return 0, false
	}
	days, ok := opp.DaysUntilDeadline(now)
	if !ok || days < 0 {
		return 0, false
	}

	current := 0
	for _, b := range d.reminders {
		if days <= float64(b) {
			current = b
		}
	}
	if current == 0 {
		return 0, false
	}

	crossed := state.lastBoundary == 0 || current < state.lastBoundary
	if crossed {
		state.lastBoundary = current
	}
	return current, crossed
}

func (d *Decider) bucket(priority float64) int {
	return int(priority / d.cfg.BucketWidth)
}

func (d *Decider) build(id uuid.UUID, opp models.Opportunity, score models.ScoreResult, reason models.AlertReason, bucket int, now time.Time) *models.Alert {
	return &models.Alert{
		ID:             id,
		OpportunityID:  opp.ID,
		Reason:         reason,
		Title:          opp.Title,
		SourceSystem:   opp.SourceSystem,
		SourceURL:      opp.SourceURL,
		Deadline:       opp.Deadline,
		Score:          score,
		PriorityBucket: bucket,
		CreatedAt:      now,
	}
}
