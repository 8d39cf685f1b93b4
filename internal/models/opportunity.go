package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an opportunity. Transitions are forward
// only: upcoming -> open -> closed. Closed and cancelled are terminal.
type Status string

const (
	StatusOpen      Status = "open"
	StatusUpcoming  Status = "upcoming"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further lifecycle transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Identity transitions are always legal.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusUpcoming:
		return next == StatusOpen || next == StatusClosed || next == StatusCancelled
	case StatusOpen:
		return next == StatusClosed || next == StatusCancelled
	default:
		return false
	}
}

// opportunityNamespace seeds deterministic opportunity IDs. Fixed forever so
// that the same (source_system, external_id) pair maps to the same ID across
// runs and across deployments.
var opportunityNamespace = uuid.MustParse("3f1d9a4e-8c2b-4b6f-9d7e-5a0c1b2d3e4f")

// OpportunityID derives the stable identity for a record. Identity never
// crosses sources: the same grant reported by two portals yields two IDs.
func OpportunityID(sourceSystem, externalID string) uuid.UUID {
	name := strings.ToLower(strings.TrimSpace(sourceSystem)) + "/" + strings.TrimSpace(externalID)
	return uuid.NewSHA1(opportunityNamespace, []byte(name))
}

// Opportunity is the canonical funding-opportunity record. Budget fields are
// pointers because an absent amount is not the same as an explicitly stated
// zero budget.
type Opportunity struct {
	ID           uuid.UUID `json:"id"`
	SourceSystem string    `json:"source_system"`
	ExternalID   string    `json:"external_id"`

	Title       string `json:"title"`
	Program     string `json:"program"`
	Synopsis    string `json:"synopsis"`
	Description string `json:"description"`

	BudgetMin   *float64 `json:"budget_min"`
	BudgetMax   *float64 `json:"budget_max"`
	TotalBudget *float64 `json:"total_budget"`
	Currency    string   `json:"currency"`

	Deadline       *time.Time `json:"deadline"`
	OpenDate       *time.Time `json:"open_date"`
	DurationMonths int        `json:"duration_months"`

	EligibleCountries   []string `json:"eligible_countries"`
	TargetOrganizations []string `json:"target_organizations"`
	Keywords            []string `json:"keywords"`
	TechnologyAreas     []string `json:"technology_areas"`

	Status    Status `json:"status"`
	SourceURL string `json:"source_url"`

	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
}

// FundingAmount returns the best single estimate of the award size: the total
// budget when stated, otherwise the upper bound, otherwise the lower bound.
// The second return is false when the source stated no amount at all.
func (o Opportunity) FundingAmount() (float64, bool) {
	switch {
	case o.TotalBudget != nil:
		return *o.TotalBudget, true
	case o.BudgetMax != nil:
		return *o.BudgetMax, true
	case o.BudgetMin != nil:
		return *o.BudgetMin, true
	default:
		return 0, false
	}
}

// DaysUntilDeadline returns days from now until the deadline, negative when
// the deadline has passed. The second return is false without a deadline.
func (o Opportunity) DaysUntilDeadline(now time.Time) (float64, bool) {
	if o.Deadline == nil {
		return 0, false
	}
	return o.Deadline.Sub(now).Hours() / 24, true
}
