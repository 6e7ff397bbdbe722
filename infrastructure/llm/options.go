package llm

// Default request parameters shared across providers.
const (
	// DefaultMaxTokens bounds response length when the caller does not
	// set one.
	DefaultMaxTokens = 1024
)

// IsValidTemperature checks the range accepted by all three providers.
func IsValidTemperature(val float64) bool { return val >= 0.0 && val <= 2.0 }

// IsPositiveInt checks if the integer value is positive.
func IsPositiveInt(val int) bool { return val > 0 }

// IsNonEmptyString checks if the string is non-empty.
func IsNonEmptyString(val string) bool { return val != "" }

// ExtractOptionalInt pulls an int option from the request options map,
// falling back to def when absent, mistyped, or rejected by valid.
func ExtractOptionalInt(opts map[string]any, key string, def int, valid func(int) bool) int {
	if opts == nil {
		return def
	}
	v, ok := opts[key].(int)
	if !ok || (valid != nil && !valid(v)) {
		return def
	}
	return v
}

// ExtractOptionalString pulls a string option from the request options map.
func ExtractOptionalString(opts map[string]any, key, def string, valid func(string) bool) string {
	if opts == nil {
		return def
	}
	v, ok := opts[key].(string)
	if !ok || (valid != nil && !valid(v)) {
		return def
	}
	return v
}

// ExtractOptionalFloat64 pulls a float option from the request options map.
func ExtractOptionalFloat64(opts map[string]any, key string, def float64, valid func(float64) bool) float64 {
	if opts == nil {
		return def
	}
	v, ok := opts[key].(float64)
	if !ok || (valid != nil && !valid(v)) {
		return def
	}
	return v
}

// requestConfig holds parsed per-request configuration common to all
// providers.
type requestConfig struct {
	maxTokens   int
	model       string
	temperature *float64
	system      string
	jsonMode    bool
}

// parseRequestOptions extracts standard options with provider defaults.
func parseRequestOptions(opts map[string]any, defaultModel string) requestConfig {
	cfg := requestConfig{
		maxTokens: ExtractOptionalInt(opts, "max_tokens", DefaultMaxTokens, IsPositiveInt),
		model:     ExtractOptionalString(opts, "model", defaultModel, IsNonEmptyString),
		system:    ExtractOptionalString(opts, "system", "", nil),
	}
	if temp := ExtractOptionalFloat64(opts, "temperature", -1, IsValidTemperature); temp != -1 {
		cfg.temperature = &temp
	}
	if opts != nil {
		if rf, ok := opts["response_format"].(map[string]string); ok && rf["type"] == "json_object" {
			cfg.jsonMode = true
		}
	}
	return cfg
}
