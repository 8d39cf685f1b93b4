package models

import "github.com/google/uuid"

// ChangeKind classifies the outcome of merging one incoming record against
// the snapshot.
type ChangeKind string

const (
	ChangeNew       ChangeKind = "new"
	ChangeUpdated   ChangeKind = "updated"
	ChangeUnchanged ChangeKind = "unchanged"
)

// FieldChange records one material field difference found during a merge.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// ChangeEvent is emitted by the merger for every incoming record that is new
// or materially changed. Unchanged records produce no event but are still
// re-scored each cycle.
type ChangeEvent struct {
	Kind          ChangeKind    `json:"kind"`
	OpportunityID uuid.UUID     `json:"opportunity_id"`
	Diff          []FieldChange `json:"diff,omitempty"`
}
