package domain

import (
	"time"
)

// SegmentKey identifies one result-store segment: all trials for one
// mechanism within one repetition.
type SegmentKey struct {
	Mechanism  string `json:"mechanism"`
	Repetition int    `json:"repetition"`
}

// RunManifest describes one experiment run. It is created at run start,
// finalized when the run completes, and read-only thereafter. The
// analysis pass uses it only for provenance; record files are
// self-describing and can be analyzed without it.
type RunManifest struct {
	// RunID uniquely identifies this run (a UUID).
	RunID string `json:"run_id"`

	// StartedAt and CompletedAt bound the run's wall-clock window.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Seed is the base seed used to derive per-repetition mechanism
	// order; with it the exact dispatch order is reproducible.
	Seed int64 `json:"seed"`

	// Repetitions is the requested repetition count.
	Repetitions int `json:"repetitions"`

	// TotalCases is the corpus size per (mechanism, repetition).
	TotalCases int `json:"total_cases"`

	// MechanismOrder records the shuffled execution order for each
	// repetition, indexed 0..Repetitions-1.
	MechanismOrder [][]string `json:"mechanism_order"`

	// Segments maps each (mechanism, repetition) to its record file,
	// relative to the results directory.
	Segments []ManifestSegment `json:"segments"`
}

// ManifestSegment is one entry in the manifest file map.
type ManifestSegment struct {
	Mechanism  string `json:"mechanism"`
	Repetition int    `json:"repetition"`
	File       string `json:"file"`
}
