package model

import "time"

// Checkpoint is the durable, per-run state persisted by the checkpoint
// store between stage and item boundaries. Stage is terminal
// (StageCompleted, StageFailed or StageCanceled) if and only if the run
// itself is terminal.
type Checkpoint struct {
	RunID                RunID          `json:"run_id"`
	Stage                Stage          `json:"stage"`
	StageProgress        float64        `json:"stage_progress"` // 0-1
	CompletedItems       []string       `json:"completed_items"`
	CurrentItem          string         `json:"current_item,omitempty"`
	CurrentItemProgress  float64        `json:"current_item_progress"` // 0-1
	LastError            string         `json:"last_error,omitempty"`
	RetryCount           int            `json:"retry_count"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	ConfigSnapshot       map[string]any `json:"config_snapshot,omitempty"`
}

// HasCompleted reports whether item is already recorded as completed in the
// current stage, letting StageRunner skip it on resume.
func (c Checkpoint) HasCompleted(item string) bool {
	for _, done := range c.CompletedItems {
		if done == item {
			return true
		}
	}
	return false
}

// WithCompletedItem returns a copy of c with item appended to
// CompletedItems, preserving the monotonic-growth invariant (duplicates are
// not re-added).
func (c Checkpoint) WithCompletedItem(item string) Checkpoint {
	if c.HasCompleted(item) {
		return c
	}
	next := c
	next.CompletedItems = append(append([]string{}, c.CompletedItems...), item)
	return next
}
