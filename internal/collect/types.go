// Package collect fetches raw opportunity records from external funding
// portals. Each collector is isolated: its failure is reported to the
// orchestrator but never aborts a monitoring cycle.
package collect

import (
	"context"
	"time"
)

// RawRecord is one untrusted record as reported by a source, before
// normalization. Structured sources fill the typed fields; scraped sources
// fill the Raw* strings and leave parsing to the normalizer.
type RawRecord struct {
	SourceSystem string
	ExternalID   string

	Title       string
	Program     string
	Synopsis    string
	Description string

	RawBudget   string
	BudgetMin   *float64
	BudgetMax   *float64
	TotalBudget *float64
	Currency    string

	RawDeadline    string
	Deadline       *time.Time
	OpenDate       *time.Time
	DurationMonths int

	RawStatus string

	EligibleCountries   []string
	TargetOrganizations []string
	Keywords            []string
	TechnologyAreas     []string

	SourceURL string
}

// Collector fetches raw records from one external system. Implementations
// must be safe to call from the orchestrator's worker pool and must respect
// the passed context's deadline.
type Collector interface {
	// Name identifies the source system; it becomes the source_system half
	// of every opportunity identity this collector produces.
	Name() string
	Fetch(ctx context.Context) ([]RawRecord, error)
}
