package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AlertReason explains why an alert was emitted.
type AlertReason string

const (
	ReasonNovel               AlertReason = "novel"
	ReasonRescored            AlertReason = "re-scored"
	ReasonDeadlineApproaching AlertReason = "deadline-approaching"
)

// alertNamespace seeds deterministic alert IDs so that re-running a cycle
// against an old snapshot reproduces the same alert identities; downstream
// notifiers deduplicate delivery on the ID.
var alertNamespace = uuid.MustParse("9b7e5c31-2f84-4a6d-b1c0-7d8e9f0a1b2c")

// AlertID derives the delivery-idempotency key for an alert from the
// opportunity, the reason, and the priority bucket it fired in.
func AlertID(opportunityID uuid.UUID, reason AlertReason, bucket int) uuid.UUID {
	name := fmt.Sprintf("%s|%s|%d", opportunityID, reason, bucket)
	return uuid.NewSHA1(alertNamespace, []byte(name))
}

// Alert is emitted when an opportunity crosses the priority threshold or a
// deadline reminder boundary. Created once per qualifying transition.
type Alert struct {
	ID             uuid.UUID   `json:"id"`
	OpportunityID  uuid.UUID   `json:"opportunity_id"`
	Reason         AlertReason `json:"reason"`
	Title          string      `json:"title"`
	SourceSystem   string      `json:"source_system"`
	SourceURL      string      `json:"source_url"`
	Deadline       *time.Time  `json:"deadline"`
	Score          ScoreResult `json:"score_snapshot"`
	PriorityBucket int         `json:"priority_bucket"`
	CreatedAt      time.Time   `json:"created_at"`
}
