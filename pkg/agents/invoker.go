// Package agents runs a single generative stage: it renders the stage
// prompt, calls the model and recovers a structured record from the answer.
package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/artifact"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/llm"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/logging"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/prompts"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/retry"
)

// Invoker runs one stage against the generative provider.
type Invoker interface {
	// Invoke renders the prompt for stage from input, calls the provider and
	// parses the answer. Missing required inputs fail with
	// *apperrors.ValidationError before anything is sent; every other
	// failure is an *AgentError.
	Invoke(ctx context.Context, stage models.Stage, input map[string]any) (artifact.Record, error)

	// Provider reports the model behind the stages and its circuit state.
	Provider() ProviderStatus
}

// ProviderStatus describes the generative provider as seen by the invoker.
type ProviderStatus struct {
	Model    string
	Endpoint string
	Breaker  llm.BreakerSnapshot
}

// Config bounds a single invocation.
type Config struct {
	Timeout time.Duration
	Retry   *retry.Config
	Breaker llm.CircuitBreakerConfig
}

// DefaultConfig allows 60s per invocation, two retries of transient errors
// and trips the breaker after five consecutive failures.
func DefaultConfig() Config {
	return Config{
		Timeout: 60 * time.Second,
		Retry:   retry.DefaultConfig(),
		Breaker: llm.DefaultCircuitBreakerConfig(),
	}
}

type invoker struct {
	client    llm.LLMClient
	catalogue *prompts.Catalogue
	breaker   *llm.CircuitBreaker
	cfg       Config
	logger    *zap.Logger
}

var _ Invoker = (*invoker)(nil)

// NewInvoker creates an Invoker that sends every stage to client.
func NewInvoker(client llm.LLMClient, catalogue *prompts.Catalogue, cfg Config, logger *zap.Logger) Invoker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultConfig()
	}
	return &invoker{
		client:    client,
		catalogue: catalogue,
		breaker:   llm.NewCircuitBreaker(cfg.Breaker),
		cfg:       cfg,
		logger:    logger.Named("agents"),
	}
}

func (i *invoker) Invoke(ctx context.Context, stage models.Stage, input map[string]any) (artifact.Record, error) {
	def, err := i.catalogue.Stage(stage)
	if err != nil {
		return nil, err
	}

	prompt, err := def.BuildPrompt(input)
	if err != nil {
		return nil, err
	}

	if err := i.breaker.Allow(); err != nil {
		snap := i.breaker.Snapshot()
		i.logger.Error("Circuit breaker prevented LLM call",
			zap.String("stage", string(stage)),
			zap.String("circuit_state", snap.State.String()),
			zap.Int("consecutive_failures", snap.ConsecutiveFailures),
			zap.Duration("retry_in", snap.RetryIn))
		return nil, &AgentError{Stage: stage, Cause: CauseUnreachable, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
	defer cancel()

	retryCfg := *i.cfg.Retry
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		i.logger.Warn("LLM call failed, retrying",
			zap.String("stage", string(stage)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("error_type", string(llm.GetErrorType(err))),
			zap.String("error", logging.SanitizeError(err)))
	}

	start := time.Now()
	result, err := retry.DoIfRetryable(callCtx, &retryCfg, func() (*llm.GenerateResponseResult, error) {
		return i.client.GenerateResponse(callCtx, prompt, def.System, def.Temperature)
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			i.logger.Info("Stage invocation canceled by caller",
				zap.String("stage", string(stage)),
				zap.Duration("elapsed", time.Since(start)))
			return nil, fmt.Errorf("invoke %s: %w", stage, ctx.Err())
		}
		cause := CauseUnreachable
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) || llm.GetErrorType(err) == llm.ErrorTypeTimeout {
			cause = CauseTimeout
		}
		// Caller cancellation is not a provider failure.
		if ctx.Err() == nil {
			i.breaker.RecordFailure()
		}
		i.logger.Error("Stage invocation failed",
			zap.String("stage", string(stage)),
			zap.String("cause", string(cause)),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("circuit_state", i.breaker.Snapshot().State.String()),
			zap.String("error", logging.SanitizeError(err)))
		return nil, &AgentError{Stage: stage, Cause: cause, Err: err}
	}
	i.breaker.RecordSuccess()

	rec, err := artifact.Parse(result.Content)
	if err != nil {
		i.logger.Warn("Stage response did not contain a record",
			zap.String("stage", string(stage)),
			zap.Int("response_len", len(result.Content)),
			zap.Bool("truncated", result.Truncated),
			zap.String("response_preview", logging.SanitizeModelOutput(result.Content)))
		if result.Truncated {
			err = fmt.Errorf("response cut off at the token limit: %w", err)
		}
		return nil, &AgentError{Stage: stage, Cause: CauseInvalidResponse, Err: err}
	}

	i.logger.Debug("Stage completed",
		zap.String("stage", string(stage)),
		zap.Int("total_tokens", result.TotalTokens),
		zap.Duration("elapsed", time.Since(start)))

	return rec, nil
}

func (i *invoker) Provider() ProviderStatus {
	return ProviderStatus{
		Model:    i.client.GetModel(),
		Endpoint: i.client.GetEndpoint(),
		Breaker:  i.breaker.Snapshot(),
	}
}
