package events

import (
	"context"
	"time"
)

// Handler applies one event. A nil return acknowledges it; an error asks for redelivery, except
// for errors wrapping ErrMalformed which are dead-lettered immediately.
type Handler func(ctx context.Context, e Event) error

// Publisher hands an event to the bus. Delivery is at-least-once and ordered per Event.Key.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber delivers events to a handler until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, h Handler) error
}

// Bus is both ends of an event channel.
type Bus interface {
	Publisher
	Subscriber
}

// RetryPolicy controls in-place redelivery for buses that retry themselves.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy retries five times starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseBackoff: 100 * time.Millisecond, MaxBackoff: 5 * time.Second}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = d.BaseBackoff
	}
	if p.MaxBackoff < p.BaseBackoff {
		p.MaxBackoff = p.BaseBackoff
	}
	return p
}

// Backoff returns the delay before the given retry (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return d
}

// DeadLetter is an event that exhausted its attempts.
type DeadLetter struct {
	Event    Event
	Err      string
	Attempts int
	At       time.Time
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
