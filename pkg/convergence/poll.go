// Package convergence waits for eventually-consistent state to settle by bounded polling.
package convergence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotConverged is returned when every attempt ran and the condition never held.
var ErrNotConverged = errors.New("state did not converge")

// Policy bounds a poll. The ceiling is Interval * MaxAttempts.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPolicy polls every 500ms for up to 10s.
func DefaultPolicy() Policy {
	return Policy{Interval: 500 * time.Millisecond, MaxAttempts: 20}
}

// Ceiling is the longest a poll with this policy waits.
func (p Policy) Ceiling() time.Duration {
	return p.Interval * time.Duration(p.MaxAttempts)
}

// Result describes a finished poll.
type Result struct {
	Attempts int
	Elapsed  time.Duration
}

// Check reports whether the condition holds. An error aborts the poll.
type Check func(ctx context.Context) (bool, error)

// Poll runs check until it reports true, it fails, the attempts run out (ErrNotConverged) or
// ctx is done (ctx.Err()).
func Poll(ctx context.Context, p Policy, check Check) (Result, error) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	start := time.Now()
	res := Result{}

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		res.Attempts = attempt
		ok, err := check(ctx)
		res.Elapsed = time.Since(start)
		if err != nil {
			return res, fmt.Errorf("check failed on attempt %d: %w", attempt, err)
		}
		if ok {
			return res, nil
		}
		if attempt == p.MaxAttempts {
			break
		}

		t := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return res, ctx.Err()
		case <-t.C:
		}
	}
	return res, fmt.Errorf("%w after %d attempts (%s)", ErrNotConverged, res.Attempts, res.Elapsed.Round(time.Millisecond))
}
