// Package cascade removes cart items that reference deleted users and products. It consumes
// the domain events published by the user and product services and only mutates carts through
// the CartStore.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
	"github.com/shopswift/commerce-backend/pkg/events"
	"github.com/shopswift/commerce-backend/services/cart-service/database"
	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
)

// Config tunes the worker.
type Config struct {
	// Concurrency bounds the per-event fan-out over affected carts.
	Concurrency int
}

// Worker applies cascade events. Handling is idempotent: removing an absent item and clearing
// an empty cart are no-ops, and the optional ledger skips tokens that were already applied.
type Worker struct {
	store       database.CartStore
	tombstones  database.Tombstones
	ledger      database.Ledger
	logger      *zap.Logger
	metrics     awspkg.Recorder
	tracer      trace.Tracer
	concurrency int
	states      *tracker
}

// NewWorker builds a worker. ledger and metrics may be nil.
func NewWorker(store database.CartStore, ledger database.Ledger, cfg Config, logger *zap.Logger, metrics awspkg.Recorder) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = awspkg.NopRecorder{}
	}
	return &Worker{
		store:       store,
		tombstones:  store.Tombstones(),
		ledger:      ledger,
		logger:      logger,
		metrics:     metrics,
		tracer:      otel.Tracer("cart-cascade"),
		concurrency: cfg.Concurrency,
		states:      newTracker(logger),
	}
}

// Run subscribes the worker to sub and blocks until ctx is done.
func (w *Worker) Run(ctx context.Context, sub events.Subscriber) error {
	w.logger.Info("cascade worker started", zap.Int("concurrency", w.concurrency))
	err := sub.Subscribe(ctx, w.Handle)
	w.logger.Info("cascade worker stopped")
	return err
}

// StateCounts reports how many times each state was entered since start.
func (w *Worker) StateCounts() map[State]int {
	return w.states.snapshot()
}

// Handle applies one event. It satisfies events.Handler; a returned error asks the bus to
// redeliver.
func (w *Worker) Handle(ctx context.Context, e events.Event) error {
	ctx, span := w.tracer.Start(ctx, "cascade."+string(e.Type), trace.WithAttributes(
		attribute.String("event.id", e.ID),
		attribute.String("event.key", e.Key),
		attribute.String("event.token", e.Token),
		attribute.Int64("event.seq", e.Seq),
	))
	defer span.End()

	start := time.Now()
	attempt := w.states.move(e, StateReceived)
	log := w.logger.With(
		zap.String("event_type", string(e.Type)),
		zap.String("key", e.Key),
		zap.String("token", e.Token),
		zap.Int("attempt", attempt),
	)
	dims := map[string]string{"EventType": string(e.Type)}

	if err := e.Validate(); err != nil {
		w.states.move(e, StateApplying)
		w.states.move(e, StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed")
		log.Error("rejecting malformed cascade event", zap.Error(err))
		return err
	}

	if w.ledger != nil {
		seen, err := w.ledger.Seen(ctx, e.Token)
		if err != nil {
			log.Warn("cascade ledger unavailable, applying anyway", zap.Error(err))
		} else if seen {
			w.states.move(e, StateSkipped)
			span.SetAttributes(attribute.Bool("cascade.duplicate", true))
			log.Debug("cascade event already applied")
			return nil
		}
	}

	w.states.move(e, StateApplying)
	removed, err := w.apply(ctx, e)
	span.SetAttributes(attribute.Int("cascade.items_removed", removed))
	if err != nil {
		w.states.move(e, StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "cascade failed")
		_ = w.metrics.RecordCount(ctx, awspkg.MetricCascadeFailed, dims)
		log.Warn("cascade failed, will be redelivered", zap.Int("items_removed", removed), zap.Error(err))
		return apperrors.Delivery(fmt.Sprintf("apply %s %s", e.Type, e.Key), err)
	}

	w.states.move(e, StateApplied)
	if w.ledger != nil {
		if _, err := w.ledger.Record(ctx, e.Token); err != nil {
			log.Warn("failed to record cascade marker", zap.Error(err))
		}
	}

	elapsed := time.Since(start)
	_ = w.metrics.RecordCount(ctx, awspkg.MetricCascadeApplied, dims)
	_ = w.metrics.RecordLatency(ctx, awspkg.MetricCascadeLatency, elapsed, dims)
	_ = w.metrics.RecordValue(ctx, awspkg.MetricCascadeItemsRemoved, float64(removed), dims)
	log.Info("cascade applied",
		zap.Int("items_removed", removed),
		zap.Duration("latency", elapsed),
		zap.Duration("lag", time.Since(e.OccurredAt)),
	)
	return nil
}

func (w *Worker) apply(ctx context.Context, e events.Event) (int, error) {
	switch e.Type {
	case events.TypeProductDeleted:
		return w.removeProduct(ctx, e.Key)
	case events.TypeUserDeleted:
		return w.clearUser(ctx, e.Aliases)
	case events.TypeUserCreated:
		return 0, w.reviveUser(ctx, e.Aliases)
	case events.TypeUserEmailUpdated, events.TypeUsernameUpdated:
		return w.retireAliases(ctx, e.Aliases, e.Retired)
	default:
		return 0, fmt.Errorf("%w: unknown type %q", events.ErrMalformed, e.Type)
	}
}

// removeProduct tombstones the product before reading the index, so any add that commits
// after the read is rejected.
func (w *Worker) removeProduct(ctx context.Context, productID string) (int, error) {
	if err := w.tombstones.Mark(ctx, database.TombstoneProduct, productID); err != nil {
		return 0, fmt.Errorf("tombstone product: %w", err)
	}
	users, err := w.store.UsersWithProduct(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("list carts with product: %w", err)
	}
	return w.removeFromCarts(ctx, productID, users)
}

func (w *Worker) removeFromCarts(ctx context.Context, productID string, users []string) (int, error) {
	var removed atomic.Int64
	err := fanOut(ctx, w.concurrency, users, func(ctx context.Context, user string) error {
		item, err := w.store.RemoveItem(ctx, user, productID)
		if err != nil {
			return err
		}
		if item != nil {
			removed.Add(1)
		}
		return nil
	})
	return int(removed.Load()), err
}

func (w *Worker) clearUser(ctx context.Context, aliases []string) (int, error) {
	for _, alias := range aliases {
		if err := w.tombstones.Mark(ctx, database.TombstoneUser, alias); err != nil {
			return 0, fmt.Errorf("tombstone user %s: %w", alias, err)
		}
	}

	var removed atomic.Int64
	err := fanOut(ctx, w.concurrency, aliases, func(ctx context.Context, alias string) error {
		items, err := w.store.ClearCart(ctx, alias)
		removed.Add(int64(len(items)))
		return err
	})
	return int(removed.Load()), err
}

func (w *Worker) reviveUser(ctx context.Context, aliases []string) error {
	var errs []error
	for _, alias := range aliases {
		if err := w.tombstones.Lift(ctx, database.TombstoneUser, alias); err != nil {
			errs = append(errs, fmt.Errorf("lift tombstone %s: %w", alias, err))
		}
	}
	return errors.Join(errs...)
}

// retireAliases clears and tombstones the carts under aliases the user gave up, so the next
// owner of a vacated email or username starts empty. The aliases still held are revived
// first, since a reclaimed alias may carry a previous owner's tombstone.
func (w *Worker) retireAliases(ctx context.Context, current, retired []string) (int, error) {
	if err := w.reviveUser(ctx, current); err != nil {
		return 0, err
	}
	held := make(map[string]struct{}, len(current))
	for _, a := range current {
		held[a] = struct{}{}
	}
	gone := make([]string, 0, len(retired))
	for _, a := range retired {
		if _, ok := held[a]; !ok {
			gone = append(gone, a)
		}
	}
	return w.clearUser(ctx, gone)
}
