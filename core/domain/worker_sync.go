package domain

import "time"

// =============================================================================
// History Changes
// =============================================================================

// ChangeType is a mailbox history record type that marks a message as touched.
type ChangeType string

const (
	ChangeTypeMessageAdded ChangeType = "messageAdded"
	ChangeTypeLabelAdded   ChangeType = "labelAdded"
	ChangeTypeLabelRemoved ChangeType = "labelRemoved"
)

// TrackedChangeTypes are the history types incremental sync asks for.
var TrackedChangeTypes = []ChangeType{
	ChangeTypeMessageAdded,
	ChangeTypeLabelAdded,
	ChangeTypeLabelRemoved,
}

// =============================================================================
// Sync windows
// =============================================================================

const (
	// StaleCursorBackfillDays is the window used when incremental sync falls back to backfill.
	StaleCursorBackfillDays = 7

	// DefaultStaleJobThreshold marks RUNNING jobs with no update for this long as abandoned.
	DefaultStaleJobThreshold = 2 * time.Hour
)

// BackfillWindowStart returns the lower bound for a backfill listing.
func BackfillWindowStart(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}
