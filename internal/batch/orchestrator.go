package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mise/internal/classify"
	"mise/internal/llm"
	"mise/internal/logging"
	"mise/internal/types"
)

// Rough cost model for outcome records: chars/4 approximates tokens, and
// the completion is assumed comparable in size to the step payload.
const (
	charsPerToken          = 4
	promptCostPerMTokens   = 0.15
	responseCostPerMTokens = 0.60
)

const (
	reasonRetriesExhausted  = "retries exhausted"
	reasonAlreadyClassified = "already classified"
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Classifier produces a classification record for one recipe. Satisfied
// by *classify.Engine; tests inject scripted fakes.
type Classifier interface {
	ClassifyRecipe(ctx context.Context, job types.RecipeJob) (*types.RecipeClassificationRecord, error)
}

// RecipeSource supplies the backlog. Satisfied by the SQLite recipe store.
type RecipeSource interface {
	ListRecipesNeedingClassification(ctx context.Context) ([]types.RecipeJob, error)
}

// MetadataStore persists and reads back classification records.
type MetadataStore interface {
	Get(ctx context.Context, recipeID string) (*types.RecipeClassificationRecord, error)
	Save(ctx context.Context, recipeID string, record *types.RecipeClassificationRecord) error
}

// Worker is one rate-limit key's processing lane: its own classifier
// (bound to one API key) and its own token bucket. Multiple workers run
// in parallel without violating any single key's budget.
type Worker struct {
	Key        string
	Classifier Classifier
	Limiter    *Limiter
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Config tunes retry and reporting behavior.
type Config struct {
	MaxAttempts       int           // bound on attempts per recipe
	BackoffBase       time.Duration // first backoff delay on rate limits
	BackoffMultiplier float64       // delay growth per attempt
	ConfidenceFloor   float64       // below this, a recipe joins the review queue
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		ConfidenceFloor:   0.7,
	}
}

// Orchestrator iterates the recipe backlog, classifying each recipe as
// one atomic unit under the rate budget. Recipes are independent: no
// ordering is guaranteed across them, and a failure never halts the run.
type Orchestrator struct {
	source   RecipeSource
	metadata MetadataStore
	workers  []Worker
	cfg      Config
	clock    Clock
}

// New creates an orchestrator. At least one worker is required.
func New(source RecipeSource, metadata MetadataStore, workers []Worker, cfg Config, clock Clock) (*Orchestrator, error) {
	if len(workers) == 0 {
		return nil, fmt.Errorf("at least one worker required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 2.0
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Orchestrator{
		source:   source,
		metadata: metadata,
		workers:  workers,
		cfg:      cfg,
		clock:    clock,
	}, nil
}

// Run processes the whole backlog and returns the run report. The run is
// interruptible between recipes via ctx: in-flight recipes simply remain
// unclassified and are picked up by the next run. Run returns an error
// only when the backlog itself cannot be listed.
func (o *Orchestrator) Run(ctx context.Context) (*types.RunReport, error) {
	timer := logging.StartTimer(logging.CategoryBatch, "Run")
	defer timer.Stop()

	report := &types.RunReport{
		RunID:   uuid.NewString(),
		Started: o.clock.Now().UTC(),
	}

	jobs, err := o.source.ListRecipesNeedingClassification(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list backlog: %w", err)
	}
	logging.Batch("run %s: %d recipes in backlog, %d workers", report.RunID, len(jobs), len(o.workers))

	queue := make(chan types.RecipeJob)
	var mu sync.Mutex // guards report mutation across workers

	g, gctx := errgroup.WithContext(ctx)
	for i := range o.workers {
		w := o.workers[i]
		g.Go(func() error {
			for job := range queue {
				outcome := o.processRecipe(gctx, w, job)
				mu.Lock()
				o.record(report, outcome)
				mu.Unlock()
			}
			return nil
		})
	}

feed:
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			break feed
		case queue <- job:
		}
	}
	close(queue)
	_ = g.Wait()

	report.Finished = o.clock.Now().UTC()
	o.finalize(report)
	logging.Batch("run %s done: succeeded=%d exhausted=%d terminal=%d skipped=%d",
		report.RunID, report.Succeeded, report.RetriesExhausted, report.FailedTerminal, report.Skipped)
	return report, nil
}

// processRecipe drives one recipe through the state machine:
// Pending -> InFlight -> {Succeeded, FailedRetryable, FailedTerminal}.
// FailedRetryable re-enters Pending after backoff, up to MaxAttempts.
func (o *Orchestrator) processRecipe(ctx context.Context, w Worker, job types.RecipeJob) types.RecipeOutcome {
	start := o.clock.Now()
	outcome := types.RecipeOutcome{
		RecipeID: job.RecipeID,
		State:    types.StatePending,
	}

	// Idempotence: an already-classified, unchanged recipe is a no-op.
	// The source filters staleness, but the stored snapshot is re-checked
	// here in case it was classified between listing and processing.
	if existing, err := o.metadata.Get(ctx, job.RecipeID); err == nil && existing != nil && existing.MatchesSteps(job.Steps) {
		outcome.State = types.StateSucceeded
		outcome.Reason = reasonAlreadyClassified
		outcome.Confidence = existing.Confidence
		outcome.Elapsed = o.clock.Now().Sub(start)
		logging.BatchDebug("recipe %s: fresh metadata exists, skipping", job.RecipeID)
		return outcome
	}

	for {
		if err := w.Limiter.Acquire(ctx); err != nil {
			outcome.State = types.StatePending // interrupted; next run picks it up
			outcome.Reason = "run interrupted"
			outcome.Elapsed = o.clock.Now().Sub(start)
			return outcome
		}

		outcome.State = types.StateInFlight
		outcome.Attempts++
		logging.BatchDebug("recipe %s: attempt %d on key %s", job.RecipeID, outcome.Attempts, w.Key)

		record, err := w.Classifier.ClassifyRecipe(ctx, job)
		if err == nil {
			if saveErr := o.metadata.Save(ctx, job.RecipeID, record); saveErr != nil {
				// Persistence errors are not retried by this core.
				outcome.State = types.StateFailedTerminal
				outcome.Reason = fmt.Sprintf("persist failed: %v", saveErr)
				break
			}
			outcome.State = types.StateSucceeded
			outcome.Confidence = record.Confidence
			break
		}

		if !retryable(err) {
			outcome.State = types.StateFailedTerminal
			outcome.Reason = err.Error()
			break
		}

		if outcome.Attempts >= o.cfg.MaxAttempts {
			outcome.State = types.StateFailedTerminal
			outcome.Reason = fmt.Sprintf("%s after %d attempts: %v", reasonRetriesExhausted, outcome.Attempts, err)
			break
		}

		// FailedRetryable -> Pending. Rate limits back off exponentially
		// with jitter; other transient failures retry immediately.
		outcome.State = types.StateFailedRetryable
		if llm.IsRateLimited(err) {
			delay := o.backoffDelay(outcome.Attempts)
			logging.BatchDebug("recipe %s: rate limited, backing off %v", job.RecipeID, delay)
			select {
			case <-ctx.Done():
				outcome.State = types.StatePending
				outcome.Reason = "run interrupted"
				outcome.Elapsed = o.clock.Now().Sub(start)
				return outcome
			case <-o.clock.After(delay):
			}
		}
		outcome.State = types.StatePending
	}

	outcome.Elapsed = o.clock.Now().Sub(start)
	outcome.EstimatedCost = estimateCost(job)
	return outcome
}

// retryable: upstream transport failures and malformed responses are
// retried as whole-recipe requests (never partially patched); input
// errors and unrepairable taxonomy violations are terminal.
func retryable(err error) bool {
	var malformed *classify.MalformedResponseError
	return llm.IsRetryable(err) || errors.As(err, &malformed)
}

// backoffDelay computes the jittered exponential delay for the given
// attempt number (1-based). Workers back off concurrently, so the jitter
// source is the locked top-level rand; the token bucket stays the only
// mutable state the orchestrator shares between workers.
func (o *Orchestrator) backoffDelay(attempt int) time.Duration {
	delay := float64(o.cfg.BackoffBase)
	for i := 1; i < attempt; i++ {
		delay *= o.cfg.BackoffMultiplier
	}
	// Up to 50% jitter to de-synchronize workers hitting the same cap.
	jitter := delay * 0.5 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (o *Orchestrator) record(report *types.RunReport, outcome types.RecipeOutcome) {
	report.Outcomes = append(report.Outcomes, outcome)
	switch outcome.State {
	case types.StateSucceeded:
		if outcome.Reason == reasonAlreadyClassified {
			report.Skipped++
			return
		}
		report.Succeeded++
		if outcome.Confidence < o.cfg.ConfidenceFloor {
			report.NeedsReview = append(report.NeedsReview, outcome.RecipeID)
		}
	case types.StateFailedTerminal:
		if strings.HasPrefix(outcome.Reason, reasonRetriesExhausted) {
			report.RetriesExhausted++
		} else {
			report.FailedTerminal++
		}
		logging.Get(logging.CategoryBatch).Warn("recipe %s terminal: %s", outcome.RecipeID, outcome.Reason)
	}
}

func (o *Orchestrator) finalize(report *types.RunReport) {
	var sum float64
	var n int
	for _, outcome := range report.Outcomes {
		if outcome.State == types.StateSucceeded && outcome.Reason == "" {
			sum += outcome.Confidence
			n++
		}
	}
	if n > 0 {
		report.AverageConfidence = sum / float64(n)
	}
}

// estimateCost approximates the USD cost of one classification request
// from the prompt size. Observability only; never used for budgeting.
func estimateCost(job types.RecipeJob) float64 {
	prompt, err := classify.BuildPrompt(job.Steps, job.Context)
	if err != nil {
		return 0
	}
	promptTokens := float64(len(prompt) / charsPerToken)
	// Assume the classification array roughly mirrors the step payload.
	responseTokens := float64(len(job.Steps) * 120)
	return promptTokens/1e6*promptCostPerMTokens + responseTokens/1e6*responseCostPerMTokens
}
