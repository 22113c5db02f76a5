package query

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/mindshare-cli/internal/model"
	"github.com/sells-group/mindshare-cli/internal/pricing"
	"github.com/sells-group/mindshare-cli/internal/resilience"
)

// DefaultCallTimeout bounds a single provider call. A timed-out call
// counts as a retryable failure.
const DefaultCallTimeout = 30 * time.Second

// Executor runs one work item to a terminal ExecutionOutcome. Retries
// are sequential inside the call; the only suspension points are the
// network call and the backoff sleep.
type Executor struct {
	clients     map[string]Client
	pricing     *pricing.Cache
	retry       resilience.RetryConfig
	callTimeout time.Duration
	limiters    map[string]*rate.Limiter
}

// Option configures an Executor.
type Option func(*Executor)

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(e *Executor) { e.retry = cfg }
}

// WithCallTimeout overrides the per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithRateLimit throttles calls to one provider to rps requests/second.
// Purely an upstream courtesy; zero or negative rps means no limit.
func WithRateLimit(provider string, rps float64) Option {
	return func(e *Executor) {
		if rps > 0 {
			e.limiters[provider] = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewExecutor creates an Executor over the given provider clients.
func NewExecutor(clients map[string]Client, pc *pricing.Cache, opts ...Option) *Executor {
	e := &Executor{
		clients:     clients,
		pricing:     pc,
		retry:       resilience.DefaultRetryConfig(),
		callTimeout: DefaultCallTimeout,
		limiters:    make(map[string]*rate.Limiter),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute performs the work item's LLM call with bounded retry and
// returns exactly one terminal outcome. It never returns an error:
// every failure mode is encoded in the outcome value.
func (e *Executor) Execute(ctx context.Context, item model.WorkItem) model.ExecutionOutcome {
	client, ok := e.clients[item.Provider]
	if !ok {
		return model.FailureOutcome(model.FailurePermanent, "no client configured for provider "+item.Provider, 0)
	}

	retryCfg := e.retry
	retryCfg.OnRetry = resilience.RetryLogger(item.Provider, "ask")

	answer, attempts, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*Answer, error) {
		if limiter := e.limiters[item.Provider]; limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()

		a, err := client.Ask(callCtx, item.Model, item.Intent.Prompt)
		if err != nil {
			// A per-call timeout is retryable; only the parent
			// context's cancellation is terminal.
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, resilience.NewTransientError(err, 0)
			}
			return nil, err
		}
		return a, nil
	})
	if err != nil {
		kind := model.FailureTransient
		if resilience.IsPermanent(err) {
			kind = model.FailurePermanent
		}
		zap.L().Warn("query failed",
			zap.String("intent", item.Intent.ID),
			zap.String("provider", item.Provider),
			zap.String("model", item.Model),
			zap.String("kind", string(kind)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return model.FailureOutcome(kind, err.Error(), attempts)
	}

	cost := e.pricing.Snapshot().Cost(item.Provider, item.Model, answer.Usage.InputTokens, answer.Usage.OutputTokens)
	zap.L().Debug("query succeeded",
		zap.String("intent", item.Intent.ID),
		zap.String("provider", item.Provider),
		zap.String("model", item.Model),
		zap.Int64("input_tokens", answer.Usage.InputTokens),
		zap.Int64("output_tokens", answer.Usage.OutputTokens),
		zap.Float64("cost_usd", cost),
		zap.Int("attempts", attempts),
	)
	return model.SuccessOutcome(answer.Text, answer.Usage, cost, attempts)
}
