// Package retry re-invokes fallible operations with exponential backoff.
package retry

import (
	"context"
	"time"

	logx "linkwatch/pkg/logx"
)

// Policy controls how Do retries an operation.
//
// Each Do call starts its own delay sequence; the policy itself carries no
// state across invocations.
type Policy struct {
	// MaxAttempts is the total number of invocations (not extra retries).
	MaxAttempts int
	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration
	// Factor multiplies the delay after every attempt.
	Factor float64
	// Retryable decides whether an error is worth retrying. A nil Retryable
	// retries every error.
	Retryable func(error) bool

	Log  logx.Logger
	Name string // operation label for logging
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	if p.Name == "" {
		p.Name = "operation"
	}
	return p
}

// Do invokes op until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts, or ctx is done. The last error is the one propagated.
// Non-retryable errors propagate immediately without delay.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	delay := p.InitialDelay
	var last error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		last = err

		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		p.Log.Warn("retrying after failure",
			logx.String("op", p.Name),
			logx.Int("attempt", attempt),
			logx.Int("max_attempts", p.MaxAttempts),
			logx.Duration("delay", delay),
			logx.Err(err))

		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return zero, ctx.Err()
		case <-tmr.C:
		}
		delay = time.Duration(float64(delay) * p.Factor)
	}

	p.Log.Error("giving up after repeated failures",
		logx.String("op", p.Name),
		logx.Int("attempts", p.MaxAttempts),
		logx.Err(last))
	return zero, last
}
