package store

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/ashureev/lead-agent/internal/domain"
)

var errSimulatedFailure = errors.New("simulated CRM failure")

// Default retry policy values.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// RetryPolicy controls how SaveLead retries failed appends.
type RetryPolicy struct {
	MaxRetries  int           // retries after the first attempt
	Delay       time.Duration // fixed pause between attempts
	FailureRate float64       // probability of an injected fault per attempt, 0 disables
	EnableRetry bool          // false limits SaveLead to a single attempt
}

// DefaultRetryPolicy returns three retries one second apart without fault injection.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  DefaultMaxRetries,
		Delay:       DefaultRetryDelay,
		EnableRetry: true,
	}
}

// PolicySource yields the policy for the next SaveLead call.
type PolicySource func() RetryPolicy

// StaticPolicy returns a source that always yields p.
func StaticPolicy(p RetryPolicy) PolicySource {
	return func() RetryPolicy { return p }
}

// SaveResult reports the outcome of SaveLead.
type SaveResult struct {
	Status   domain.SaveStatus
	Attempts int
}

// Retries returns the number of attempts made after the first one.
func (r SaveResult) Retries() int {
	if r.Attempts <= 1 {
		return 0
	}
	return r.Attempts - 1
}

// Recorder wraps a LeadStore with bounded, blocking retry semantics.
type Recorder struct {
	store  LeadStore
	policy PolicySource
	logger *slog.Logger

	sleep func(time.Duration)
	roll  func() float64
}

// NewRecorder creates a recorder. A nil source uses DefaultRetryPolicy.
func NewRecorder(store LeadStore, source PolicySource, logger *slog.Logger) *Recorder {
	if source == nil {
		source = StaticPolicy(DefaultRetryPolicy())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  store,
		policy: source,
		logger: logger,
		sleep:  time.Sleep,
		roll:   rand.Float64,
	}
}

// SaveLead appends the lead, retrying on any failure until the policy's
// attempt budget is spent. It blocks for the whole retry cycle and ignores
// cancellation of ctx once started.
func (r *Recorder) SaveLead(ctx context.Context, lead domain.LeadRecord) SaveResult {
	ctx = context.WithoutCancel(ctx)

	policy := r.policy()
	maxAttempts := 1
	if policy.EnableRetry && policy.MaxRetries > 0 {
		maxAttempts += policy.MaxRetries
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := r.attempt(ctx, lead, policy.FailureRate)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("Lead saved after retry", "attempt", attempt)
			}
			return SaveResult{Status: domain.SaveStatusSuccess, Attempts: attempt}
		}

		r.logger.Warn("Lead save attempt failed",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)

		if attempt < maxAttempts {
			r.logger.Info("Retrying lead save", "delay", policy.Delay, "next_attempt", attempt+1)
			r.sleep(policy.Delay)
		}
	}

	r.logger.Error("All lead save attempts failed, giving up", "attempts", maxAttempts)
	return SaveResult{Status: domain.SaveStatusFailure, Attempts: maxAttempts}
}

func (r *Recorder) attempt(ctx context.Context, lead domain.LeadRecord, failureRate float64) error {
	if failureRate > 0 && r.roll() < failureRate {
		return errSimulatedFailure
	}
	return r.store.AppendLead(ctx, lead)
}

// Stats returns store statistics. Failures are reported in Stats.Error with
// zeroed counters.
func (r *Recorder) Stats(ctx context.Context) Stats {
	stats, err := r.store.Stats(ctx)
	if err != nil {
		r.logger.Error("Failed to read lead store stats", "error", err)
		return Stats{Error: err.Error()}
	}
	return stats
}
