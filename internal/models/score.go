package models

// ScoreResult holds the per-cycle scores for one opportunity. All values are
// clamped to [0,100] and recomputed every cycle; nothing here is persisted
// independently of its opportunity.
type ScoreResult struct {
	Relevance          float64 `json:"relevance_score"`
	Complexity         float64 `json:"complexity_score"`
	SuccessProbability float64 `json:"success_probability"`
	DeadlineUrgency    float64 `json:"deadline_urgency"`
	Priority           float64 `json:"priority_score"`
}
