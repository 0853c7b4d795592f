package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
)

// OutboxRecord is one event appended in the same transaction as the change it describes.
type OutboxRecord struct {
	Seq       int64
	Event     Event
	CreatedAt time.Time
	Attempts  int
	LastError string
}

// Outbox is the read side used by the Relay. Writes happen inside each store's own transaction.
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, seq int64) error
	MarkFailed(ctx context.Context, seq int64, reason string) error
}

// MemoryOutbox backs the in-memory repositories. Append is called while the repository holds
// its own lock, so the event and the change become visible together. Published records are
// dropped.
type MemoryOutbox struct {
	mu      sync.Mutex
	seq     int64
	records map[int64]*OutboxRecord
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{records: make(map[int64]*OutboxRecord)}
}

// Append stores e with the next sequence number and returns it as stored.
func (o *MemoryOutbox) Append(e Event) Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.seq++
	e.Seq = o.seq
	o.records[e.Seq] = &OutboxRecord{Seq: e.Seq, Event: e, CreatedAt: time.Now().UTC()}
	return e
}

func (o *MemoryOutbox) Pending(_ context.Context, limit int) ([]OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]OutboxRecord, 0, len(o.records))
	for _, r := range o.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (o *MemoryOutbox) MarkPublished(_ context.Context, seq int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.records[seq]; !ok {
		return fmt.Errorf("outbox record %d not found", seq)
	}
	delete(o.records, seq)
	return nil
}

func (o *MemoryOutbox) MarkFailed(_ context.Context, seq int64, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.records[seq]
	if !ok {
		return fmt.Errorf("outbox record %d not found", seq)
	}
	r.Attempts++
	r.LastError = reason
	return nil
}

// RelayConfig tunes the outbox relay.
type RelayConfig struct {
	Name      string
	Interval  time.Duration
	BatchSize int
	Breaker   gobreaker.Settings
	Metrics   awspkg.Recorder
}

// Relay moves pending outbox records onto the bus. Records are published in sequence order
// and a batch stops at the first failure so a later event never overtakes an earlier one.
// Publishing goes through a circuit breaker so a dead broker is not hammered every tick.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	breaker   *gobreaker.CircuitBreaker
	logger    *zap.Logger
	metrics   awspkg.Recorder
	interval  time.Duration
	batchSize int
	tracer    trace.Tracer
}

func NewRelay(outbox Outbox, publisher Publisher, cfg RelayConfig, logger *zap.Logger) *Relay {
	if cfg.Name == "" {
		cfg.Name = "outbox-relay"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Metrics == nil {
		cfg.Metrics = awspkg.NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := cfg.Breaker
	settings.Name = cfg.Name
	if settings.Timeout == 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("outbox breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		breaker:   gobreaker.NewCircuitBreaker(settings),
		logger:    logger,
		metrics:   cfg.Metrics,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		tracer:    otel.Tracer("outbox-relay"),
	}
}

// Start runs the relay until ctx is done.
func (r *Relay) Start(ctx context.Context) {
	r.logger.Info("Starting outbox relay", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Outbox relay stopping")
			return
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("Error processing outbox batch", zap.Error(err))
			}
		}
	}
}

// ProcessBatch publishes up to one batch of pending records and returns how many were published.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "Relay.ProcessBatch")
	defer span.End()

	pending, err := r.outbox.Pending(ctx, r.batchSize)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("load pending outbox records: %w", err)
	}
	span.SetAttributes(attribute.Int("outbox.pending", len(pending)))

	published := 0
	for _, rec := range pending {
		_, err := r.breaker.Execute(func() (interface{}, error) {
			return nil, r.publisher.Publish(ctx, rec.Event)
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "publish failed")
			_ = r.metrics.RecordCount(ctx, awspkg.MetricOutboxFailed, map[string]string{"EventType": string(rec.Event.Type)})
			if markErr := r.outbox.MarkFailed(ctx, rec.Seq, err.Error()); markErr != nil {
				r.logger.Error("failed to record outbox failure", zap.Int64("seq", rec.Seq), zap.Error(markErr))
			}
			return published, fmt.Errorf("publish outbox record %d: %w", rec.Seq, err)
		}

		if err := r.outbox.MarkPublished(ctx, rec.Seq); err != nil {
			// the record will be republished next tick; consumers are idempotent
			return published, fmt.Errorf("mark outbox record %d published: %w", rec.Seq, err)
		}
		published++
		_ = r.metrics.RecordCount(ctx, awspkg.MetricOutboxPublished, map[string]string{"EventType": string(rec.Event.Type)})
		r.logger.Debug("outbox record published",
			zap.Int64("seq", rec.Seq),
			zap.String("event_type", string(rec.Event.Type)),
			zap.String("key", rec.Event.Key),
		)
	}

	span.SetAttributes(attribute.Int("outbox.published", published))
	return published, nil
}

// BreakerState exposes the breaker state for the outbox status endpoints.
func (r *Relay) BreakerState() gobreaker.State {
	return r.breaker.State()
}
