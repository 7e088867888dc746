package domain

import "time"

// ChangeOperation describes a persisted activity operation on a board.
type ChangeOperation string

// ChangeOperation values used by the board activity ledger.
const (
	ChangeOperationCreate  ChangeOperation = "create"
	ChangeOperationMove    ChangeOperation = "move"
	ChangeOperationResize  ChangeOperation = "resize"
	ChangeOperationReplace ChangeOperation = "replace"
	ChangeOperationDelete  ChangeOperation = "delete"
)

// ChangeEvent represents a single activity-log entry for one tile.
type ChangeEvent struct {
	ID         int64
	BoardID    string
	TileID     string
	Operation  ChangeOperation
	Metadata   map[string]string
	OccurredAt time.Time
}
