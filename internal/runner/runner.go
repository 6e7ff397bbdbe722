// Package runner drives the experiment: every selected mechanism over
// every corpus case, repeated and judged, with all trial results
// streamed to the result store as they complete.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/guardtax/internal/domain"
	"github.com/ahrav/guardtax/internal/ports"
)

// ExperimentRunner executes one run. Mechanisms execute strictly
// sequentially; cases within a mechanism share one bounded worker pool.
type ExperimentRunner struct {
	judge   ports.Judge
	store   ports.ResultStore
	metrics ports.MetricsCollector
	logger  *slog.Logger

	concurrency int
	repetitions int
	seed        int64

	inFlight atomic.Int64
}

// NewExperimentRunner wires a runner from its dependencies. The metrics
// collector and logger may be nil; absent observability never changes
// run semantics.
func NewExperimentRunner(
	cfg RunConfig,
	judge ports.Judge,
	store ports.ResultStore,
	metrics ports.MetricsCollector,
	logger *slog.Logger,
) *ExperimentRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExperimentRunner{
		judge:       judge,
		store:       store,
		metrics:     metrics,
		logger:      logger,
		concurrency: cfg.Concurrency,
		repetitions: cfg.Repetitions,
		seed:        cfg.Seed,
	}
}

// Run executes every (mechanism, case) trial for every repetition and
// returns the finalized manifest. The only errors returned before
// completion are preflight ConfigurationErrors and store failures;
// individual trial failures are persisted and the run continues.
func (r *ExperimentRunner) Run(
	ctx context.Context,
	mechanisms []ports.ResponseMechanism,
	cases []domain.TestCase,
) (domain.RunManifest, error) {
	if len(cases) == 0 {
		return domain.RunManifest{}, domain.NewConfigurationError("corpus", domain.ErrEmptyCorpus)
	}
	if len(mechanisms) == 0 {
		return domain.RunManifest{}, domain.NewConfigurationError("mechanisms",
			fmt.Errorf("no mechanisms selected: %w", domain.ErrInvalidConfiguration))
	}
	if err := r.preflight(mechanisms); err != nil {
		return domain.RunManifest{}, err
	}

	manifest := domain.RunManifest{
		RunID:       uuid.NewString(),
		StartedAt:   time.Now().UTC(),
		Seed:        r.seed,
		Repetitions: r.repetitions,
		TotalCases:  len(cases),
	}
	for rep := 1; rep <= r.repetitions; rep++ {
		manifest.MechanismOrder = append(manifest.MechanismOrder,
			mechanismOrder(mechanisms, r.seed, rep))
	}
	if err := r.store.WriteManifest(manifest); err != nil {
		return domain.RunManifest{}, err
	}

	r.logger.Info("run started",
		"run_id", manifest.RunID,
		"mechanisms", len(mechanisms),
		"cases", len(cases),
		"repetitions", r.repetitions,
		"concurrency", r.concurrency,
	)

	byName := make(map[string]ports.ResponseMechanism, len(mechanisms))
	for _, m := range mechanisms {
		byName[m.Name()] = m
	}

	for rep := 1; rep <= r.repetitions; rep++ {
		for _, name := range manifest.MechanismOrder[rep-1] {
			segment, err := r.runMechanism(ctx, byName[name], cases, rep)
			if err != nil {
				return domain.RunManifest{}, err
			}
			manifest.Segments = append(manifest.Segments, segment)
		}
	}

	manifest.CompletedAt = time.Now().UTC()
	if err := r.store.WriteManifest(manifest); err != nil {
		return domain.RunManifest{}, err
	}

	r.logger.Info("run completed",
		"run_id", manifest.RunID,
		"duration", manifest.CompletedAt.Sub(manifest.StartedAt).Round(time.Second).String(),
	)
	return manifest, nil
}

// preflight validates every dependency before the first trial.
func (r *ExperimentRunner) preflight(mechanisms []ports.ResponseMechanism) error {
	for _, m := range mechanisms {
		if err := m.Validate(); err != nil {
			return domain.NewConfigurationError(m.Name(), err)
		}
	}
	if err := r.judge.Validate(); err != nil {
		return domain.NewConfigurationError("judge", err)
	}
	if err := r.store.Validate(); err != nil {
		return domain.NewConfigurationError("store", err)
	}
	if r.concurrency < 1 {
		return domain.NewConfigurationError("runner",
			fmt.Errorf("concurrency %d: %w", r.concurrency, domain.ErrInvalidConfiguration))
	}
	if r.repetitions < 1 {
		return domain.NewConfigurationError("runner",
			fmt.Errorf("repetitions %d: %w", r.repetitions, domain.ErrInvalidConfiguration))
	}
	return nil
}

// runMechanism drives the full corpus through one mechanism for one
// repetition under the shared concurrency bound, appending each record
// as its trial completes.
func (r *ExperimentRunner) runMechanism(
	ctx context.Context,
	mechanism ports.ResponseMechanism,
	cases []domain.TestCase,
	rep int,
) (domain.ManifestSegment, error) {
	name := mechanism.Name()
	sink, err := r.store.OpenSegment(name, rep)
	if err != nil {
		return domain.ManifestSegment{}, err
	}

	r.logger.Info("mechanism started", "mechanism", name, "repetition", rep)
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for _, c := range cases {
		g.Go(func() error {
			rec := r.trial(ctx, mechanism, c, rep)
			if err := sink.Append(ctx, rec); err != nil {
				r.logger.Error("record append failed",
					"mechanism", name, "case", c.ID, "error", err)
			}
			// Trial failures are recorded, never propagated: one bad
			// trial must not cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()

	if err := sink.Close(); err != nil {
		return domain.ManifestSegment{}, err
	}
	if ctx.Err() != nil {
		return domain.ManifestSegment{}, ctx.Err()
	}

	r.logger.Info("mechanism completed",
		"mechanism", name,
		"repetition", rep,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	return domain.ManifestSegment{
		Mechanism:  name,
		Repetition: rep,
		File:       fmt.Sprintf("%s_rep%d.jsonl", name, rep),
	}, nil
}

// trial executes one (mechanism, case) invocation and produces its
// durable record. It never returns an error: mechanism failures become
// error records, judge failures become fallback verdicts.
func (r *ExperimentRunner) trial(
	ctx context.Context,
	mechanism ports.ResponseMechanism,
	c domain.TestCase,
	rep int,
) domain.TrialRecord {
	name := mechanism.Name()
	labels := map[string]string{"mechanism": name}
	start := time.Now()

	r.trackInFlight(1, labels)
	defer r.trackInFlight(-1, labels)

	out, err := mechanism.Process(ctx, c.Prompt)
	if err != nil {
		r.logger.Warn("trial errored", "mechanism", name, "case", c.ID, "error", err)
		r.count("trials_total", map[string]string{"mechanism": name, "status": "error"})
		return domain.NewErrorRecord(c, name, rep, elapsedMs(start), err)
	}

	verdict, err := r.judge.Evaluate(ctx, c.Prompt, out.ResponseText(), c.IsAdversarial, out.Blocked)
	if err != nil {
		// Only context cancellation reaches here; the judge degrades
		// internally for everything else. Record the trial as errored
		// so a partial run stays analyzable.
		r.count("trials_total", map[string]string{"mechanism": name, "status": "error"})
		return domain.NewErrorRecord(c, name, rep, elapsedMs(start), err)
	}

	r.count("trials_total", map[string]string{"mechanism": name, "status": "success"})
	if r.metrics != nil {
		r.metrics.RecordLatency("trial", time.Duration(out.LatencyMs*float64(time.Millisecond)), labels)
		r.metrics.RecordCounter("trial_tokens_total", float64(out.Tokens.Input),
			map[string]string{"mechanism": name, "token_type": "input"})
		r.metrics.RecordCounter("trial_tokens_total", float64(out.Tokens.Output),
			map[string]string{"mechanism": name, "token_type": "output"})
	}
	return domain.NewTrialRecord(c, name, rep, out, verdict)
}

func (r *ExperimentRunner) count(metric string, labels map[string]string) {
	if r.metrics != nil {
		r.metrics.RecordCounter(metric, 1, labels)
	}
}

// trackInFlight maintains the in-flight trial gauge. Mechanisms run
// sequentially, so the run-wide count is also the count for the
// labeled mechanism; the gauge drains to zero as each pool empties.
func (r *ExperimentRunner) trackInFlight(delta int64, labels map[string]string) {
	n := r.inFlight.Add(delta)
	if r.metrics != nil {
		r.metrics.RecordGauge("trials_in_flight", float64(n), labels)
	}
}

// mechanismOrder returns the execution order for one repetition. The
// shuffle is seeded by (base seed, repetition), so the order varies
// across repetitions yet the whole run replays exactly from the
// manifest seed.
func mechanismOrder(mechanisms []ports.ResponseMechanism, seed int64, rep int) []string {
	names := make([]string, len(mechanisms))
	for i, m := range mechanisms {
		names[i] = m.Name()
	}
	rng := rand.New(rand.NewSource(seed + int64(rep)*1_000_003))
	rng.Shuffle(len(names), func(i, j int) {
		names[i], names[j] = names[j], names[i]
	})
	return names
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
