// Package dedup reconciles each cycle's normalized records with the stored
// snapshot. One opportunity identity maps to one record; merging decides
// whether an incoming record is new, materially changed, or noise.
package dedup

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rednix/eu-grants-monitor-agent/internal/models"
)

// ErrMergeConflict signals an identity collision: two records with the same
// derived ID but different source systems. The cycle must abort before
// persisting because the snapshot can no longer be trusted.
var ErrMergeConflict = eris.New("dedup: opportunity identity collision across sources")

// Merge folds the incoming batch into a copy of the stored snapshot and
// reports what changed. The input snapshot is never mutated. Records absent
// from the batch survive untouched; only an explicit terminal status or a
// passed deadline retires an opportunity, never silence from a source.
func Merge(snapshot map[uuid.UUID]models.Opportunity, incoming []models.Opportunity, now time.Time) (map[uuid.UUID]models.Opportunity, []models.ChangeEvent, error) {
	merged := make(map[uuid.UUID]models.Opportunity, len(snapshot)+len(incoming))
	for id, opp := range snapshot {
		merged[id] = opp
	}

	events := make([]models.ChangeEvent, 0, len(incoming))
	seen := make(map[uuid.UUID]string, len(incoming))

	for _, inc := range incoming {
		if prevSource, ok := seen[inc.ID]; ok && prevSource != inc.SourceSystem {
			return nil, nil, eris.Wrapf(ErrMergeConflict, "id %s claimed by %q and %q",
				inc.ID, prevSource, inc.SourceSystem)
		}
		seen[inc.ID] = inc.SourceSystem

		stored, exists := merged[inc.ID]
		if !exists {
			inc.FirstSeen = now
			inc.LastUpdated = now
			merged[inc.ID] = inc
			events = append(events, models.ChangeEvent{
				Kind:          models.ChangeNew,
				OpportunityID: inc.ID,
			})
			continue
		}

		if stored.SourceSystem != inc.SourceSystem {
			return nil, nil, eris.Wrapf(ErrMergeConflict, "id %s stored as %q, incoming from %q",
				inc.ID, stored.SourceSystem, inc.SourceSystem)
		}

		next := overlay(stored, inc)
		diff := materialDiff(stored, next)
		if len(diff) == 0 {
			merged[inc.ID] = next
			events = append(events, models.ChangeEvent{
				Kind:          models.ChangeUnchanged,
				OpportunityID: inc.ID,
			})
			continue
		}

		next.LastUpdated = now
		merged[inc.ID] = next
		events = append(events, models.ChangeEvent{
			Kind:          models.ChangeUpdated,
			OpportunityID: inc.ID,
			Diff:          diff,
		})
	}

	byID := make(map[uuid.UUID]int, len(events))
	for i, ev := range events {
		byID[ev.OpportunityID] = i
	}

	// Deadline passing retires a record even when its source went quiet
	// and never reported it closed.
	for id, opp := range merged {
		if opp.Status.Terminal() {
			continue
		}
		if opp.Deadline == nil || opp.Deadline.After(now) {
			continue
		}

		change := models.FieldChange{
			Field: "status",
			Old:   string(opp.Status),
			New:   string(models.StatusClosed),
		}
		opp.Status = models.StatusClosed
		opp.LastUpdated = now
		merged[id] = opp

		if i, ok := byID[id]; ok {
			if events[i].Kind == models.ChangeUnchanged {
				events[i].Kind = models.ChangeUpdated
			}
			events[i].Diff = append(events[i].Diff, change)
			continue
		}
		events = append(events, models.ChangeEvent{
			Kind:          models.ChangeUpdated,
			OpportunityID: id,
			Diff:          []models.FieldChange{change},
		})
	}

	return merged, events, nil
}

// overlay applies the incoming record on top of the stored one. Absent
// incoming fields keep the stored value: a source that stops reporting a
// budget has not withdrawn it. Terminal statuses never revert.
func overlay(stored, inc models.Opportunity) models.Opportunity {
	next := stored

	next.Title = pickString(stored.Title, inc.Title)
	next.Program = pickString(stored.Program, inc.Program)
	next.Synopsis = pickString(stored.Synopsis, inc.Synopsis)
	next.Description = pickString(stored.Description, inc.Description)
	next.Currency = pickString(stored.Currency, inc.Currency)
	next.SourceURL = pickString(stored.SourceURL, inc.SourceURL)

	if inc.BudgetMin != nil {
		next.BudgetMin = inc.BudgetMin
	}
	if inc.BudgetMax != nil {
		next.BudgetMax = inc.BudgetMax
	}
	if inc.TotalBudget != nil {
		next.TotalBudget = inc.TotalBudget
	}
	if inc.Deadline != nil {
		next.Deadline = inc.Deadline
	}
	if inc.OpenDate != nil {
		next.OpenDate = inc.OpenDate
	}
	if inc.DurationMonths > 0 {
		next.DurationMonths = inc.DurationMonths
	}

	if len(inc.EligibleCountries) > 0 {
		next.EligibleCountries = inc.EligibleCountries
	}
	if len(inc.TargetOrganizations) > 0 {
		next.TargetOrganizations = inc.TargetOrganizations
	}
	if len(inc.Keywords) > 0 {
		next.Keywords = inc.Keywords
	}
	if len(inc.TechnologyAreas) > 0 {
		next.TechnologyAreas = inc.TechnologyAreas
	}

	switch {
	case stored.Status.CanTransition(inc.Status):
		next.Status = inc.Status
	default:
		// A closed or cancelled call stays that way even when a source
		// re-reports it as open; stale listings are common.
		zap.L().Warn("illegal status transition ignored",
			zap.String("id", stored.ID.String()),
			zap.String("stored", string(stored.Status)),
			zap.String("incoming", string(inc.Status)))
	}

	return next
}

// materialDiff compares the fields whose change is worth re-alerting on.
// Cosmetic edits to descriptions or URLs do not count.
func materialDiff(old, new models.Opportunity) []models.FieldChange {
	var diff []models.FieldChange

	if old.Status != new.Status {
		diff = append(diff, models.FieldChange{Field: "status", Old: string(old.Status), New: string(new.Status)})
	}
	if !timesEqual(old.Deadline, new.Deadline) {
		diff = append(diff, models.FieldChange{Field: "deadline", Old: formatTime(old.Deadline), New: formatTime(new.Deadline)})
	}
	if !floatsEqual(old.BudgetMin, new.BudgetMin) {
		diff = append(diff, models.FieldChange{Field: "budget_min", Old: formatFloat(old.BudgetMin), New: formatFloat(new.BudgetMin)})
	}
	if !floatsEqual(old.BudgetMax, new.BudgetMax) {
		diff = append(diff, models.FieldChange{Field: "budget_max", Old: formatFloat(old.BudgetMax), New: formatFloat(new.BudgetMax)})
	}
	if !setsEqual(old.Keywords, new.Keywords) {
		diff = append(diff, models.FieldChange{Field: "keywords", Old: strings.Join(old.Keywords, ","), New: strings.Join(new.Keywords, ",")})
	}

	return diff
}

func pickString(stored, incoming string) string {
	if incoming != "" {
		return incoming
	}
	return stored
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func floatsEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func setsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *f)
}
