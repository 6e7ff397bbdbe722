package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/ahrav/guardtax/infrastructure/judge"
	"github.com/ahrav/guardtax/infrastructure/llm"
	"github.com/ahrav/guardtax/infrastructure/mechanisms"
	"github.com/ahrav/guardtax/infrastructure/metrics"
	"github.com/ahrav/guardtax/infrastructure/store"
	"github.com/ahrav/guardtax/internal/dataset"
	"github.com/ahrav/guardtax/internal/ports"
	"github.com/ahrav/guardtax/internal/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the experiment over the prompt corpus",
	RunE:  runExperiment,
}

func init() {
	runCmd.Flags().String("config", "", "run config YAML (flags override file values)")
	runCmd.Flags().StringSlice("mechanisms", nil, "mechanism subset to run (control, schemaguard, dialogguard)")
	runCmd.Flags().Int("concurrency", 0, "max in-flight trials")
	runCmd.Flags().Int("repetitions", 0, "corpus repetitions per mechanism")
	runCmd.Flags().Int64("seed", 0, "base seed for shuffles")
	runCmd.Flags().String("corpus", "", "corpus directory")
	runCmd.Flags().String("results", "", "results directory")
	runCmd.Flags().Bool("dry-run", false, "print the execution plan without API calls")
	rootCmd.AddCommand(runCmd)
}

func runExperiment(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := runner.LoadRunConfig(configPath)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	cases, err := dataset.LoadCorpus(cfg.CorpusDir, cfg.Seed)
	if err != nil {
		return err
	}

	if cfg.DryRun {
		return printPlan(cmd, cfg, len(cases))
	}

	collector := metrics.NewPrometheusMetrics()

	targetClient, err := buildClient(cfg.TargetModel, cfg, collector, true)
	if err != nil {
		return fmt.Errorf("target model: %w", err)
	}
	judgeClient, err := buildClient(cfg.JudgeModel, cfg, collector, false)
	if err != nil {
		return fmt.Errorf("judge model: %w", err)
	}

	var mechs []ports.ResponseMechanism
	for _, name := range cfg.Mechanisms {
		switch name {
		case "control":
			mechs = append(mechs, mechanisms.NewControl(targetClient))
		case "schemaguard":
			mechs = append(mechs, mechanisms.NewSchemaGuard(targetClient))
		case "dialogguard":
			mechs = append(mechs, mechanisms.NewDialogGuard(targetClient))
		default:
			return fmt.Errorf("unknown mechanism %q", name)
		}
	}

	resultStore, err := store.NewJSONLStore(cfg.ResultsDir)
	if err != nil {
		return err
	}

	r := runner.NewExperimentRunner(cfg, judge.NewLLMJudge(judgeClient), resultStore, collector, slog.Default())

	manifest, err := r.Run(cmd.Context(), mechs, cases)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s complete: %d cases x %d mechanisms x %d repetitions -> %s\n",
		manifest.RunID, manifest.TotalCases, len(cfg.Mechanisms), manifest.Repetitions, cfg.ResultsDir)
	return nil
}

func applyRunFlags(cmd *cobra.Command, cfg *runner.RunConfig) {
	if v, _ := cmd.Flags().GetStringSlice("mechanisms"); len(v) > 0 {
		cfg.Mechanisms = v
	}
	if v, _ := cmd.Flags().GetInt("concurrency"); v > 0 {
		cfg.Concurrency = v
	}
	if v, _ := cmd.Flags().GetInt("repetitions"); v > 0 {
		cfg.Repetitions = v
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed, _ = cmd.Flags().GetInt64("seed")
	}
	if v, _ := cmd.Flags().GetString("corpus"); v != "" {
		cfg.CorpusDir = v
	}
	if v, _ := cmd.Flags().GetString("results"); v != "" {
		cfg.ResultsDir = v
	}
	if v, _ := cmd.Flags().GetBool("dry-run"); v {
		cfg.DryRun = true
	}
}

// buildClient assembles a middleware-wrapped client for one model
// reference. The target client carries the rate limiter so mechanism
// traffic is paced run-wide; the judge gets retry and timeout only.
func buildClient(modelRef string, cfg runner.RunConfig, collector ports.MetricsCollector, rateLimited bool) (*llm.Client, error) {
	ref, err := llm.ParseModelRef(modelRef)
	if err != nil {
		return nil, err
	}
	apiKey, err := apiKeyFor(ref.Provider)
	if err != nil {
		return nil, err
	}

	var chain []llm.Middleware
	chain = append(chain,
		llm.TracingMiddleware("github.com/ahrav/guardtax/cmd/guardtax"),
		llm.MetricsMiddleware(collector),
	)
	if rateLimited && cfg.RateLimitRPS > 0 {
		chain = append(chain, llm.RateLimitMiddleware(rate.Limit(cfg.RateLimitRPS), 1))
	}
	chain = append(chain,
		llm.TimeoutMiddleware(time.Duration(cfg.TrialTimeoutSeconds)*time.Second),
		llm.RetryMiddleware(cfg.MaxRetries, 500*time.Millisecond, 30*time.Second),
	)

	return llm.NewClient(ref.Provider, llm.ClientConfig{
		APIKey:     apiKey,
		Model:      ref.Model,
		Middleware: chain,
	})
}

func printPlan(cmd *cobra.Command, cfg runner.RunConfig, cases int) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "dry run: no API calls will be made")
	fmt.Fprintf(out, "  corpus: %d cases from %s\n", cases, cfg.CorpusDir)
	fmt.Fprintf(out, "  mechanisms: %v\n", cfg.Mechanisms)
	fmt.Fprintf(out, "  repetitions: %d, concurrency: %d, seed: %d\n",
		cfg.Repetitions, cfg.Concurrency, cfg.Seed)
	fmt.Fprintf(out, "  target model: %s, judge model: %s\n", cfg.TargetModel, cfg.JudgeModel)
	fmt.Fprintf(out, "  total trials: %d\n", cases*len(cfg.Mechanisms)*cfg.Repetitions)
	fmt.Fprintf(out, "  results dir: %s\n", cfg.ResultsDir)
	return nil
}
