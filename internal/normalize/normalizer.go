// Package normalize converts untrusted raw records into canonical
// opportunities: it sanitizes text, parses dates and amounts out of free-form
// strings, resolves the lifecycle state and assigns the stable identity.
package normalize

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rednix/eu-grants-monitor-agent/internal/collect"
	"github.com/rednix/eu-grants-monitor-agent/internal/models"
)

// Sentinel errors for records that cannot become opportunities. The
// orchestrator counts these per source instead of failing the cycle.
var (
	ErrMissingTitle    = eris.New("normalize: record has no title")
	ErrMissingDeadline = eris.New("normalize: record has no parseable deadline")
)

// Normalize converts one raw record into a canonical opportunity. A record
// without a title, or an open record without a parseable deadline, is
// rejected with a sentinel error. FirstSeen and LastUpdated are left zero;
// the merger stamps them against the stored snapshot.
func Normalize(rec collect.RawRecord, now time.Time) (models.Opportunity, error) {
	title := cleanText(rec.Title)
	if title == "" {
		return models.Opportunity{}, ErrMissingTitle
	}

	opp := models.Opportunity{
		ID:           models.OpportunityID(rec.SourceSystem, rec.ExternalID),
		SourceSystem: rec.SourceSystem,
		ExternalID:   rec.ExternalID,

		Title:       title,
		Program:     cleanText(rec.Program),
		Synopsis:    htmlToText(rec.Synopsis),
		Description: sanitizeHTML(rec.Description),

		DurationMonths: rec.DurationMonths,

		EligibleCountries:   normalizeSet(rec.EligibleCountries),
		TargetOrganizations: normalizeSet(rec.TargetOrganizations),
		Keywords:            normalizeSet(rec.Keywords),
		TechnologyAreas:     normalizeSet(rec.TechnologyAreas),

		SourceURL: cleanText(rec.SourceURL),
	}

	resolveBudget(&opp, rec)
	resolveDates(&opp, rec)

	decision := ResolveStatus(rec.RawStatus, opp.Deadline, opp.OpenDate, now)
	opp.Status = decision.Status

	if opp.Deadline == nil && opp.Status != models.StatusUpcoming {
		return models.Opportunity{}, eris.Wrapf(ErrMissingDeadline,
			"source %s record %s", rec.SourceSystem, rec.ExternalID)
	}

	zap.L().Debug("normalized record",
		zap.String("source", rec.SourceSystem),
		zap.String("external_id", rec.ExternalID),
		zap.String("status", string(opp.Status)),
		zap.String("status_reason", decision.Reason))

	return opp, nil
}

// resolveBudget prefers the typed amounts from structured sources and falls
// back to parsing the free-form budget string. A min above max means the
// source swapped the bounds; the pair is reordered rather than dropped.
func resolveBudget(opp *models.Opportunity, rec collect.RawRecord) {
	opp.BudgetMin = rec.BudgetMin
	opp.BudgetMax = rec.BudgetMax
	opp.TotalBudget = rec.TotalBudget
	opp.Currency = cleanText(rec.Currency)

	if opp.BudgetMin == nil && opp.BudgetMax == nil && rec.RawBudget != "" {
		min, max, currency := parseAmountRobust(rec.RawBudget, opp.Currency)
		opp.BudgetMin = min
		opp.BudgetMax = max
		if opp.Currency == "" {
			opp.Currency = currency
		}
	}

	if opp.BudgetMin != nil && opp.BudgetMax != nil && *opp.BudgetMin > *opp.BudgetMax {
		opp.BudgetMin, opp.BudgetMax = opp.BudgetMax, opp.BudgetMin
	}
}

// resolveDates prefers typed timestamps and falls back to the raw deadline
// string. Date-only strings come back as end of day so a call does not read
// as closed on the morning of its deadline.
func resolveDates(opp *models.Opportunity, rec collect.RawRecord) {
	opp.Deadline = rec.Deadline
	opp.OpenDate = rec.OpenDate

	if opp.Deadline == nil && rec.RawDeadline != "" {
		if t, err := parseDateRobust(rec.RawDeadline); err == nil {
			opp.Deadline = &t
		}
	}
}
