package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/guardtax/internal/domain"
)

func TestLoadRunConfig_DefaultsWhenPathEmpty(t *testing.T) {
	cfg, err := LoadRunConfig("")
	require.NoError(t, err)

	assert.Equal(t, KnownMechanisms, cfg.Mechanisms)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 1, cfg.Repetitions)
	assert.Equal(t, int64(42), cfg.Seed)
}

func TestLoadRunConfig_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	content := `
corpus_dir: data/corpus
results_dir: out
mechanisms: [control, dialogguard]
concurrency: 2
repetitions: 5
seed: 1234
target_model: anthropic/claude-sonnet-4-5
judge_model: openai/gpt-4o-mini
min_confidence: 0.5
rate_limit_rps: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "data/corpus", cfg.CorpusDir)
	assert.Equal(t, []string{"control", "dialogguard"}, cfg.Mechanisms)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 5, cfg.Repetitions)
	assert.Equal(t, int64(1234), cfg.Seed)
	assert.InDelta(t, 0.5, cfg.MinConfidence, 1e-9)
	assert.InDelta(t, 4.0, cfg.RateLimitRPS, 1e-9)
}

func TestRunConfig_Validate(t *testing.T) {
	valid := func() RunConfig { return DefaultRunConfig() }

	tests := []struct {
		name    string
		mutate  func(*RunConfig)
		wantErr bool
	}{
		{"defaults are valid", func(c *RunConfig) {}, false},
		{"zero concurrency", func(c *RunConfig) { c.Concurrency = 0 }, true},
		{"zero repetitions", func(c *RunConfig) { c.Repetitions = 0 }, true},
		{"unknown mechanism", func(c *RunConfig) { c.Mechanisms = []string{"nemo"} }, true},
		{"duplicate mechanisms", func(c *RunConfig) { c.Mechanisms = []string{"control", "control"} }, true},
		{"empty mechanism list", func(c *RunConfig) { c.Mechanisms = nil }, true},
		{"bad model ref", func(c *RunConfig) { c.TargetModel = "claude-sonnet-4-5" }, true},
		{"unknown provider", func(c *RunConfig) { c.JudgeModel = "nosuch/model" }, true},
		{"confidence above one", func(c *RunConfig) { c.MinConfidence = 1.5 }, true},
		{"missing corpus dir", func(c *RunConfig) { c.CorpusDir = "" }, true},
		{"negative seed is allowed", func(c *RunConfig) { c.Seed = -9 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunConfig_ValidateCollectsAllFailures(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.Concurrency = 0
	cfg.Repetitions = 0

	err := cfg.Validate()
	require.Error(t, err)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "run config", verr.Entity)
	assert.Len(t, verr.Errors, 2, "both failures should be reported together")
}

func TestLoadRunConfig_MissingFileIsAnError(t *testing.T) {
	_, err := LoadRunConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRunConfig_InvalidYAMLRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mechanisms: [unterminated"), 0o644))

	_, err := LoadRunConfig(path)
	require.Error(t, err)
}
