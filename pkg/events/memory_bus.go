package events

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadySubscribed is returned when a second handler subscribes to a MemoryBus.
var ErrAlreadySubscribed = errors.New("memory bus already has a subscriber")

// MemoryBusConfig sizes the in-process bus.
type MemoryBusConfig struct {
	Partitions int
	Buffer     int
	Retry      RetryPolicy
}

// MemoryBus is an in-process bus. Events are hashed by key onto partitions, each drained by
// one goroutine, so events for one key are delivered in publish order. A failing event is
// retried in place and blocks its partition until it succeeds or is dead-lettered.
type MemoryBus struct {
	cfg        MemoryBusConfig
	logger     *zap.Logger
	partitions []chan Event

	mu         sync.Mutex
	subscribed bool
	dead       []DeadLetter
	onDead     func(DeadLetter)
}

func NewMemoryBus(cfg MemoryBusConfig, logger *zap.Logger) *MemoryBus {
	if cfg.Partitions <= 0 {
		cfg.Partitions = 8
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	cfg.Retry = cfg.Retry.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &MemoryBus{cfg: cfg, logger: logger, partitions: make([]chan Event, cfg.Partitions)}
	for i := range b.partitions {
		b.partitions[i] = make(chan Event, cfg.Buffer)
	}
	return b
}

// OnDeadLetter registers a callback run for every dead-lettered event.
func (b *MemoryBus) OnDeadLetter(fn func(DeadLetter)) {
	b.mu.Lock()
	b.onDead = fn
	b.mu.Unlock()
}

func (b *MemoryBus) partition(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(b.partitions)))
}

// Publish enqueues e. It blocks only when the partition buffer is full.
func (b *MemoryBus) Publish(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if len(e.Aliases) > 0 {
		e.Aliases = append([]string(nil), e.Aliases...)
	}

	select {
	case b.partitions[b.partition(e.Key)] <- e:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish %s %s: %w", e.Type, e.Key, ctx.Err())
	}
}

// Subscribe runs h over every partition until ctx is done.
func (b *MemoryBus) Subscribe(ctx context.Context, h Handler) error {
	b.mu.Lock()
	if b.subscribed {
		b.mu.Unlock()
		return ErrAlreadySubscribed
	}
	b.subscribed = true
	b.mu.Unlock()

	var wg sync.WaitGroup
	for i, ch := range b.partitions {
		wg.Add(1)
		go func(partition int, ch <-chan Event) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case e := <-ch:
					b.deliver(ctx, partition, e, h)
				}
			}
		}(i, ch)
	}
	wg.Wait()

	b.mu.Lock()
	b.subscribed = false
	b.mu.Unlock()
	return nil
}

func (b *MemoryBus) deliver(ctx context.Context, partition int, e Event, h Handler) {
	var err error
	for attempt := 1; attempt <= b.cfg.Retry.MaxAttempts; attempt++ {
		if err = h(ctx, e); err == nil {
			return
		}
		if errors.Is(err, ErrMalformed) {
			b.deadLetter(e, err, attempt)
			return
		}
		if attempt == b.cfg.Retry.MaxAttempts {
			break
		}

		backoff := b.cfg.Retry.Backoff(attempt)
		b.logger.Warn("event delivery failed, retrying",
			zap.String("event_type", string(e.Type)),
			zap.String("key", e.Key),
			zap.Int("partition", partition),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if sleepCtx(ctx, backoff) != nil {
			// shutting down
			return
		}
	}
	b.deadLetter(e, err, b.cfg.Retry.MaxAttempts)
}

func (b *MemoryBus) deadLetter(e Event, err error, attempts int) {
	dl := DeadLetter{Event: e, Err: err.Error(), Attempts: attempts, At: time.Now().UTC()}

	b.mu.Lock()
	b.dead = append(b.dead, dl)
	onDead := b.onDead
	b.mu.Unlock()

	b.logger.Error("event dead-lettered",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.Type)),
		zap.String("key", e.Key),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	if onDead != nil {
		onDead(dl)
	}
}

// DeadLetters returns a snapshot of the dead-letter list.
func (b *MemoryBus) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DeadLetter(nil), b.dead...)
}

// Replay republishes every dead-lettered event and clears the list. Events that fail to
// enqueue stay dead-lettered.
func (b *MemoryBus) Replay(ctx context.Context) (int, error) {
	b.mu.Lock()
	dead := b.dead
	b.dead = nil
	b.mu.Unlock()

	for i, dl := range dead {
		if err := b.Publish(ctx, dl.Event); err != nil {
			b.mu.Lock()
			b.dead = append(dead[i:], b.dead...)
			b.mu.Unlock()
			return i, err
		}
	}
	return len(dead), nil
}
