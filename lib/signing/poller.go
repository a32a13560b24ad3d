// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/shipwright/lib/clock"
)

// ErrTimeout is returned when a service gives no terminal answer before
// the poll timeout, or when the transient error budget is exhausted.
var ErrTimeout = errors.New("timed out waiting for service")

// ErrDenied is returned when a service reports a terminal failure.
var ErrDenied = errors.New("request denied")

// Outcome is one observation of a pending request.
type Outcome int

const (
	Pending Outcome = iota
	Succeeded
	Failed
)

// TransientError marks an error the poller may retry: throttling,
// server errors, transport failures.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a [TransientError]. Nil stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is a [TransientError].
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// PollPolicy bounds a poll loop.
type PollPolicy struct {
	// Interval is the wait before the second check.
	Interval time.Duration

	// Factor multiplies the interval after every pending check.
	Factor float64

	// MaxInterval caps the interval.
	MaxInterval time.Duration

	// Timeout bounds the whole loop, measured from the first check.
	Timeout time.Duration

	// RetryBudget is how many consecutive transient errors are
	// tolerated. A successful check resets the count.
	RetryBudget int
}

// DefaultPollPolicy checks after 10s, doubling to at most a minute,
// for up to 30 minutes, tolerating 5 consecutive transient errors.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    10 * time.Second,
		Factor:      2,
		MaxInterval: time.Minute,
		Timeout:     30 * time.Minute,
		RetryBudget: 5,
	}
}

// WithOverrides returns p with every non-zero argument applied.
func (p PollPolicy) WithOverrides(interval, maxInterval, timeout time.Duration, retryBudget int) PollPolicy {
	if interval > 0 {
		p.Interval = interval
	}
	if maxInterval > 0 {
		p.MaxInterval = maxInterval
	}
	if timeout > 0 {
		p.Timeout = timeout
	}
	if retryBudget > 0 {
		p.RetryBudget = retryBudget
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = p.Interval
	}
	return p
}

// Poller runs poll loops.
type Poller struct {
	Clock  clock.Clock
	Policy PollPolicy
	Logger *slog.Logger
}

// Check observes a request once. A non-transient error ends the loop.
type Check func(ctx context.Context) (Outcome, error)

// Poll calls check until it reports a terminal outcome. It returns nil
// on success, [ErrDenied] on failure, and [ErrTimeout] when the
// timeout passes or the transient error budget runs out.
func (p *Poller) Poll(ctx context.Context, what string, check Check) error {
	deadline := p.Clock.Now().Add(p.Policy.Timeout)
	interval := p.Policy.Interval
	factor := max(p.Policy.Factor, 1)
	consecutiveErrors := 0

	for attempt := 1; ; attempt++ {
		outcome, err := check(ctx)
		switch {
		case err != nil && !IsTransient(err):
			return fmt.Errorf("%s: %w", what, err)
		case err != nil:
			consecutiveErrors++
			p.Logger.Warn("transient error while polling",
				"request", what,
				"attempt", attempt,
				"consecutive_errors", consecutiveErrors,
				"error", err,
			)
			if consecutiveErrors > p.Policy.RetryBudget {
				return fmt.Errorf("%s: %w after %d consecutive errors: %v", what, ErrTimeout, consecutiveErrors, err)
			}
		case outcome == Succeeded:
			p.Logger.Info("request completed", "request", what, "attempts", attempt)
			return nil
		case outcome == Failed:
			return fmt.Errorf("%s: %w", what, ErrDenied)
		default:
			consecutiveErrors = 0
			p.Logger.Debug("request pending", "request", what, "attempt", attempt, "next_check", interval)
		}

		remaining := deadline.Sub(p.Clock.Now())
		if remaining <= 0 {
			return fmt.Errorf("%s: %w after %s", what, ErrTimeout, p.Policy.Timeout)
		}
		wait := min(interval, remaining)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-p.Clock.After(wait):
		}
		interval = min(time.Duration(float64(interval)*factor), p.Policy.MaxInterval)
	}
}
