// Package store provides SQLite-based usage statistics for unilang.
//
// Only the trigger pattern and its replacement are recorded, with a count
// and first and last use times. The text around a trigger is never stored.
package store

import "time"

// Use is one performed replacement, as handed to a Recorder.
type Use struct {
	Pattern     string
	Replacement string
	At          time.Time
}

// Usage is the aggregate row for one trigger.
type Usage struct {
	Pattern     string
	Replacement string
	Count       int64
	FirstUsed   time.Time
	LastUsed    time.Time
}

// Totals summarizes the whole table.
type Totals struct {
	Patterns int64
	Uses     int64
	Since    time.Time
}
