package domain

import (
	"fmt"
	"time"
)

// Classification is the judge's confusion-matrix cell for one trial.
// The semantics are fixed: "positive" means the response was effectively
// a block or refusal, judged from content and tone rather than from any
// mechanism-native flag.
type Classification string

const (
	// ClassTP: the prompt is adversarial and the response effectively
	// blocked it.
	ClassTP Classification = "TP"

	// ClassFP: the prompt is benign but the response refused it anyway.
	ClassFP Classification = "FP"

	// ClassTN: the prompt is benign and was answered normally.
	ClassTN Classification = "TN"

	// ClassFN: the prompt is adversarial and the response complied.
	ClassFN Classification = "FN"
)

// Valid reports whether c is one of the four recognized cells.
func (c Classification) Valid() bool {
	switch c {
	case ClassTP, ClassFP, ClassTN, ClassFN:
		return true
	}
	return false
}

// Blocked reports whether this classification means the response was
// effectively a refusal. This is the single source of truth for the
// standardized blocked flag on persisted records.
func (c Classification) Blocked() bool {
	return c == ClassTP || c == ClassFP
}

// ParseClassification validates a raw judge label.
func ParseClassification(s string) (Classification, error) {
	c := Classification(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: classification %q", ErrInvalidVerdict, s)
	}
	return c, nil
}

// JudgeVerdict is the judge's assessment of one successful trial.
// A verdict produced by the deterministic fallback path carries
// Confidence 0.0 so downstream filtering can exclude it.
type JudgeVerdict struct {
	// Classification is the confusion-matrix cell.
	Classification Classification `json:"classification"`

	// Confidence is the judge's self-reported certainty in [0, 1].
	Confidence float64 `json:"confidence"`

	// Reasoning is the judge's one-sentence rationale.
	Reasoning string `json:"reasoning"`
}

// TrialRecord is the durable unit of the experiment: one line in the
// result store per (mechanism, case) trial. Records are self-describing
// so completion order never matters for reconstruction, and append-only
// once written.
type TrialRecord struct {
	TestID        string   `json:"test_id"`
	Category      Category `json:"category"`
	IsAdversarial bool     `json:"is_adversarial"`
	Prompt        string   `json:"prompt"`

	// Mechanism names the condition that produced this trial.
	Mechanism string `json:"mechanism"`

	// Repetition is the 1-based repetition index this trial belongs to.
	Repetition int `json:"repetition"`

	RawOutput   string     `json:"raw_output"`
	FinalOutput string     `json:"final_output"`
	Blocked     bool       `json:"blocked"`
	LatencyMs   float64    `json:"latency_ms"`
	Tokens      TokenUsage `json:"tokens"`
	RetryCount  int        `json:"retry_count"`

	// Verdict is nil when the mechanism call errored; such records are
	// persisted for audit but excluded from every aggregate metric.
	Verdict *JudgeVerdict `json:"verdict,omitempty"`

	// StandardizedBlocked is always derived from the judge's
	// classification, never from the mechanism's Blocked flag.
	StandardizedBlocked bool `json:"standardized_blocked"`

	// Error carries the mechanism failure message, empty on success.
	Error string `json:"error,omitempty"`

	// Timestamp records when the trial completed.
	Timestamp time.Time `json:"timestamp"`
}

// Errored reports whether the mechanism call failed for this trial.
func (r TrialRecord) Errored() bool { return r.Error != "" }

// NewTrialRecord assembles the durable record for a successful trial.
// The standardized blocked flag is computed here, from the verdict, so
// the invariant holds for every record the runner can produce.
func NewTrialRecord(c TestCase, mechanism string, rep int, out MechanismOutcome, v JudgeVerdict) TrialRecord {
	return TrialRecord{
		TestID:              c.ID,
		Category:            c.Category,
		IsAdversarial:       c.IsAdversarial,
		Prompt:              c.Prompt,
		Mechanism:           mechanism,
		Repetition:          rep,
		RawOutput:           out.RawOutput,
		FinalOutput:         out.FinalOutput,
		Blocked:             out.Blocked,
		LatencyMs:           out.LatencyMs,
		Tokens:              out.Tokens,
		RetryCount:          out.RetryCount,
		Verdict:             &v,
		StandardizedBlocked: v.Classification.Blocked(),
		Timestamp:           time.Now().UTC(),
	}
}

// NewErrorRecord assembles the partial record for a failed trial.
// Verdict fields stay nil and the error message is preserved verbatim
// for audit access.
func NewErrorRecord(c TestCase, mechanism string, rep int, latencyMs float64, callErr error) TrialRecord {
	return TrialRecord{
		TestID:        c.ID,
		Category:      c.Category,
		IsAdversarial: c.IsAdversarial,
		Prompt:        c.Prompt,
		Mechanism:     mechanism,
		Repetition:    rep,
		LatencyMs:     latencyMs,
		Error:         callErr.Error(),
		Timestamp:     time.Now().UTC(),
	}
}
