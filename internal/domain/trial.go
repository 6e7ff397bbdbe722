package domain

// Category identifies which corpus slice a test case was drawn from.
// The four slices balance direct and indirect attacks against ordinary
// and deliberately tricky benign prompts.
type Category string

const (
	// CategoryAdversarialDirect covers prompts that ask for harmful
	// content outright.
	CategoryAdversarialDirect Category = "adversarial_direct"

	// CategoryAdversarialIndirect covers jailbreaks, roleplay framings,
	// and other oblique attempts at the same content.
	CategoryAdversarialIndirect Category = "adversarial_indirect"

	// CategoryBenignStandard covers ordinary helpful requests.
	CategoryBenignStandard Category = "benign_standard"

	// CategoryBenignEdgecase covers benign prompts that superficially
	// resemble attacks (security education, fiction, medical questions).
	CategoryBenignEdgecase Category = "benign_edgecase"
)

// TestCase is a single prompt with its ground-truth label.
// Cases are created once by the dataset loader and are read-only to the
// runner; the runner never mutates them.
type TestCase struct {
	// ID uniquely identifies this case within the corpus.
	ID string `json:"id"`

	// Prompt is the user prompt text sent to every mechanism.
	Prompt string `json:"prompt"`

	// Category records which corpus slice the case came from.
	Category Category `json:"category"`

	// IsAdversarial is the ground-truth label the judge evaluates against.
	IsAdversarial bool `json:"is_adversarial"`

	// Source names the upstream dataset the prompt was taken from.
	Source string `json:"source,omitempty"`
}

// TokenUsage tracks token consumption for one trial, including any
// tokens burned by mechanism-internal validation retries.
type TokenUsage struct {
	Input  int `json:"input_tokens"`
	Output int `json:"output_tokens"`
	Total  int `json:"total_tokens"`
}

// MechanismOutcome is the result envelope produced by one mechanism
// invocation. It is created once per trial and never mutated afterward.
type MechanismOutcome struct {
	// RawOutput is the model's unprocessed response text.
	RawOutput string `json:"raw_output"`

	// FinalOutput is what the mechanism actually surfaced to the caller
	// after any guardrail post-processing. It may equal RawOutput.
	FinalOutput string `json:"final_output"`

	// Blocked reports the mechanism's own native detection signal.
	// It is advisory only; the judge's classification is authoritative.
	Blocked bool `json:"blocked"`

	// LatencyMs is the wall-clock time of the full mechanism call,
	// including internal retries and rail checks.
	LatencyMs float64 `json:"latency_ms"`

	// Tokens is the cumulative token usage across all internal calls.
	Tokens TokenUsage `json:"tokens"`

	// RetryCount is the number of mechanism-internal re-asks
	// (schema validation failures, rate-limit retries).
	RetryCount int `json:"retry_count"`
}

// ResponseText returns the text the judge should evaluate: the final
// output when present, otherwise the raw output.
func (o MechanismOutcome) ResponseText() string {
	if o.FinalOutput != "" {
		return o.FinalOutput
	}
	return o.RawOutput
}
