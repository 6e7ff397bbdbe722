package ports

import (
	"context"

	"github.com/ahrav/guardtax/internal/domain"
)

// TrialSink is an append-only destination for trial records within one
// store segment. Append must be safe for concurrent use: many worker
// goroutines complete trials out of order and each persists its record
// immediately, so the sink is responsible for serializing writes and
// guaranteeing line-level atomicity.
type TrialSink interface {
	// Append persists one record. It returns once the record is queued
	// for durable write; a mid-run crash loses at most in-flight trials,
	// never records for which Append has returned.
	Append(ctx context.Context, rec domain.TrialRecord) error

	// Close flushes queued records and releases the segment. Appending
	// after Close returns ErrStoreClosed.
	Close() error
}

// ResultStore owns the persisted output of a run: one append-only
// segment per (mechanism, repetition) plus the run manifest. Records
// are write-once; nothing in the system edits a persisted record.
type ResultStore interface {
	// OpenSegment creates the segment for one (mechanism, repetition)
	// and returns its sink. The segment's file name is recorded in the
	// manifest file map.
	OpenSegment(mechanism string, repetition int) (TrialSink, error)

	// WriteManifest persists the run manifest. It is called once at run
	// start and once at run end with the finalized manifest; the second
	// write replaces the first.
	WriteManifest(m domain.RunManifest) error

	// Validate checks that the results directory is writable; called
	// during runner preflight.
	Validate() error
}
