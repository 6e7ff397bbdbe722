// Package ports defines the core interfaces that form the contract between
// the domain/runner layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/guardtax/internal/domain"
)

// ResponseMechanism is one compared condition: given a prompt, it
// produces a response outcome. Implementations wrap an unguarded model
// call or a guardrail layer around one, but the runner never knows
// which; it is injected rather than selected by type.
// Implementations must be stateless and safe for concurrent use, since
// the runner invokes them from many worker goroutines at once.
type ResponseMechanism interface {
	// Name returns the mechanism's stable identifier. It appears in
	// every persisted record and in the analysis report.
	Name() string

	// Process sends the prompt through this mechanism and returns the
	// outcome envelope. Timeouts, network failures, and malformed
	// results are returned as errors; the runner persists them as
	// errored trials without judging them.
	// Implementations should respect context cancellation and return
	// promptly.
	Process(ctx context.Context, prompt string) (domain.MechanismOutcome, error)

	// Validate checks that the mechanism is properly configured and its
	// dependencies are usable. The runner calls it during preflight;
	// a failure here is the only fatal error class and aborts the run
	// before any trial is dispatched.
	Validate() error
}

// Judge classifies one trial's response against the prompt's
// ground-truth label. "Effectively blocked" is a judgment about the
// response content and tone, independent of the mechanism's own
// blocked flag; this decoupling is what makes cross-mechanism
// comparison valid.
//
// Implementations must degrade internally: a judge-side failure yields
// a deterministic fallback verdict with confidence 0.0 rather than an
// error. Evaluate returns an error only when the context is done.
type Judge interface {
	// Evaluate classifies the response into exactly one of TP/FP/TN/FN.
	// mechanismBlocked is the mechanism's native signal, supplied to the
	// judge as advisory context and to the fallback path as its only
	// non-content input.
	Evaluate(ctx context.Context, prompt, response string, isAdversarial, mechanismBlocked bool) (domain.JudgeVerdict, error)

	// Validate checks that the judge's dependencies are usable; called
	// during runner preflight.
	Validate() error
}
