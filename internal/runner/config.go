package runner

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/guardtax/infrastructure/llm"
	"github.com/ahrav/guardtax/internal/domain"
)

// KnownMechanisms lists the mechanism names a run may select, in
// canonical order.
var KnownMechanisms = []string{"control", "schemaguard", "dialogguard"}

// RunConfig is the complete, immutable configuration for one experiment
// run. It is loaded from YAML, optionally overridden by CLI flags, and
// validated once before any dispatch; the runner receives it by value
// and never mutates it.
type RunConfig struct {
	// CorpusDir holds the category slice files of the prompt corpus.
	CorpusDir string `yaml:"corpus_dir" validate:"required"`

	// ResultsDir receives the trial segments and run manifest.
	ResultsDir string `yaml:"results_dir" validate:"required"`

	// Mechanisms selects which conditions to run. Order here is
	// irrelevant; execution order is reshuffled per repetition.
	Mechanisms []string `yaml:"mechanisms" validate:"required,min=1,unique,dive,oneof=control schemaguard dialogguard"`

	// Concurrency caps simultaneously in-flight mechanism invocations.
	Concurrency int `yaml:"concurrency" validate:"required,min=1,max=256"`

	// Repetitions is how many times the full corpus runs per mechanism.
	Repetitions int `yaml:"repetitions" validate:"required,min=1,max=100"`

	// Seed drives the corpus shuffle and the per-repetition mechanism
	// order. Zero is a valid seed; runs are reproducible for any value.
	Seed int64 `yaml:"seed"`

	// TargetModel is the model under test in "provider/model" form.
	TargetModel string `yaml:"target_model" validate:"required,modelref"`

	// JudgeModel is the independent judge in "provider/model" form.
	// It should differ from TargetModel to avoid self-grading bias,
	// but the same model is permitted.
	JudgeModel string `yaml:"judge_model" validate:"required,modelref"`

	// MinConfidence is the verdict confidence floor applied during
	// analysis. Zero keeps every judged record, including fallback
	// verdicts.
	MinConfidence float64 `yaml:"min_confidence" validate:"min=0,max=1"`

	// TrialTimeoutSeconds bounds each individual LLM request.
	TrialTimeoutSeconds int `yaml:"trial_timeout_seconds" validate:"omitempty,min=1,max=3600"`

	// RateLimitRPS caps requests per second across the run; zero
	// disables rate limiting.
	RateLimitRPS float64 `yaml:"rate_limit_rps" validate:"min=0"`

	// MaxRetries caps transient-error retries per LLM request.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`

	// DryRun prints the execution plan without issuing API calls.
	DryRun bool `yaml:"dry_run"`
}

// DefaultRunConfig returns the config defaults applied before YAML and
// flag values land on top.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		CorpusDir:           "corpus",
		ResultsDir:          "results",
		Mechanisms:          KnownMechanisms,
		Concurrency:         8,
		Repetitions:         1,
		Seed:                42,
		TargetModel:         "anthropic/" + llm.AnthropicDefaultModel,
		JudgeModel:          "openai/" + llm.OpenAIDefaultModel,
		TrialTimeoutSeconds: 120,
		MaxRetries:          3,
	}
}

func newConfigValidator() *validator.Validate {
	v := validator.New()
	// modelref accepts "provider/model" where the provider is one of
	// the registered LLM providers.
	_ = v.RegisterValidation("modelref", func(fl validator.FieldLevel) bool {
		_, err := llm.ParseModelRef(fl.Field().String())
		return err == nil
	})
	return v
}

// LoadRunConfig reads a YAML run config over the defaults and validates
// it. A missing path returns validated defaults, so a config file is
// optional.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return RunConfig{}, fmt.Errorf("read run config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return RunConfig{}, fmt.Errorf("parse run config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Validate checks the config against its struct rules. All failures
// are collected into a single ValidationError so the caller can report
// every problem at once.
func (c RunConfig) Validate() error {
	err := newConfigValidator().Struct(c)
	if err == nil {
		return nil
	}

	verr := domain.NewValidationError("run config")
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			verr.AddError(fmt.Sprintf("%s failed %q check", fe.Field(), fe.Tag()))
		}
	} else {
		verr.AddError(err.Error())
	}
	return verr
}
