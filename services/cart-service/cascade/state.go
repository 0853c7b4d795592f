package cascade

import (
	"sync"

	"go.uber.org/zap"

	"github.com/shopswift/commerce-backend/pkg/events"
)

// State is the processing state of one event.
type State string

const (
	StateReceived State = "received"
	StateApplying State = "applying"
	StateApplied  State = "applied"
	StateFailed   State = "failed"
	// StateSkipped marks an event whose token is already in the ledger.
	StateSkipped State = "skipped"
)

var allowed = map[State][]State{
	"":            {StateReceived},
	StateReceived: {StateApplying, StateSkipped},
	StateApplying: {StateApplied, StateFailed},
	StateFailed:   {StateReceived},
}

// tracker follows every in-flight token through the state machine and counts transitions.
// Tokens leave the tracker once applied or skipped; failed tokens stay until redelivered.
type tracker struct {
	mu       sync.Mutex
	logger   *zap.Logger
	current  map[string]State
	attempts map[string]int
	counts   map[State]int
}

func newTracker(logger *zap.Logger) *tracker {
	return &tracker{
		logger:   logger,
		current:  map[string]State{},
		attempts: map[string]int{},
		counts:   map[State]int{},
	}
}

// move transitions e's token to next and returns the delivery attempt number.
func (t *tracker) move(e events.Event, next State) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.current[e.Token]
	if !permitted(prev, next) {
		t.logger.Warn("unexpected cascade state transition",
			zap.String("token", e.Token), zap.String("from", string(prev)), zap.String("to", string(next)))
	}

	if next == StateReceived {
		t.attempts[e.Token]++
	}
	attempt := t.attempts[e.Token]
	t.counts[next]++

	switch next {
	case StateApplied, StateSkipped:
		delete(t.current, e.Token)
		delete(t.attempts, e.Token)
	default:
		t.current[e.Token] = next
	}

	t.logger.Debug("cascade state",
		zap.String("event_type", string(e.Type)),
		zap.String("key", e.Key),
		zap.String("token", e.Token),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.Int("attempt", attempt),
	)
	return attempt
}

func permitted(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// snapshot returns how many times each state was entered.
func (t *tracker) snapshot() map[State]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[State]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}
