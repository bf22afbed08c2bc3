package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-ingest/core"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks an error as non-retryable regardless of its category.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var marker *permanentError
	return errors.As(err, &marker)
}

// Orchestrator retries a handler invocation with exponential backoff.
// Waits ride a timer and the context, never a blocking sleep: cancellation
// interrupts a pending backoff immediately.
type Orchestrator struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      core.Logger

	// Wait is swappable in tests to observe delays without real time.
	Wait func(ctx context.Context, delay time.Duration) error
}

func NewOrchestrator(cfg core.RetryConfig, logger core.Logger) *Orchestrator {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := cfg.BaseDelay()
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	maxDelay := cfg.MaxDelay()
	if maxDelay > 0 && maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &Orchestrator{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		logger:      glog.Ensure(logger),
		Wait:        timerWait,
	}
}

// Execute runs fn up to the attempt budget. It returns the final result, the
// number of attempts used, and the last error when every attempt failed.
func (o *Orchestrator) Execute(
	ctx context.Context,
	operation string,
	fn func(ctx context.Context) (core.HandlerResult, error),
) (core.HandlerResult, int, error) {
	if o == nil {
		return core.HandlerResult{}, 0, fmt.Errorf("retry: orchestrator is not configured")
	}
	if fn == nil {
		return core.HandlerResult{}, 0, fmt.Errorf("retry: operation function is required")
	}

	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return core.HandlerResult{}, attempt - 1, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		if IsPermanent(err) || !isRetryable(err) {
			if o.logger != nil {
				o.logger.Debug("operation failed with non-retryable error",
					"operation", operation,
					"attempt", attempt,
					"error", err.Error(),
				)
			}
			return core.HandlerResult{}, attempt, err
		}
		if attempt == o.maxAttempts {
			break
		}

		delay := o.Backoff(attempt)
		if o.logger != nil {
			o.logger.Debug("operation failed, backing off",
				"operation", operation,
				"attempt", attempt,
				"delay_ms", delay.Milliseconds(),
				"error", err.Error(),
			)
		}
		wait := o.Wait
		if wait == nil {
			wait = timerWait
		}
		if err := wait(ctx, delay); err != nil {
			return core.HandlerResult{}, attempt, err
		}
	}

	return core.HandlerResult{}, o.maxAttempts, lastErr
}

// Backoff returns the delay after a failed attempt: base doubled per attempt,
// optionally capped.
func (o *Orchestrator) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := o.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if o.maxDelay > 0 && delay >= o.maxDelay {
			return o.maxDelay
		}
	}
	if o.maxDelay > 0 && delay > o.maxDelay {
		return o.maxDelay
	}
	return delay
}

func (o *Orchestrator) MaxAttempts() int {
	if o == nil {
		return 0
	}
	return o.maxAttempts
}

func timerWait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Validation, bad input, and auth failures never heal on retry. Everything
// else is presumed transient.
func isRetryable(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return true
	}
	switch richErr.Category {
	case goerrors.CategoryValidation,
		goerrors.CategoryBadInput,
		goerrors.CategoryAuth,
		goerrors.CategoryAuthz,
		goerrors.CategoryConflict,
		goerrors.CategoryNotFound:
		return false
	default:
		return true
	}
}
