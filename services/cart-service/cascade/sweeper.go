package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
	"github.com/shopswift/commerce-backend/services/cart-service/database"
)

// SweeperConfig tunes the reconciliation loop.
type SweeperConfig struct {
	Interval time.Duration
	// Horizon is how far back tombstones are re-checked.
	Horizon time.Duration
}

// Sweeper periodically re-applies recent deletions. It removes items that were added to a
// cart while the matching cascade was in flight.
type Sweeper struct {
	store      database.CartStore
	tombstones database.Tombstones
	cfg        SweeperConfig
	logger     *zap.Logger
	metrics    awspkg.Recorder
	now        func() time.Time
}

func NewSweeper(store database.CartStore, cfg SweeperConfig, logger *zap.Logger, metrics awspkg.Recorder) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = awspkg.NopRecorder{}
	}
	return &Sweeper{
		store:      store,
		tombstones: store.Tombstones(),
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Start sweeps every interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("cascade sweeper started", zap.Duration("interval", s.cfg.Interval), zap.Duration("horizon", s.cfg.Horizon))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cascade sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("cascade sweep incomplete", zap.Error(err))
			}
		}
	}
}

// SweepOnce removes stragglers for every tombstone younger than the horizon and returns how
// many items it removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	since := s.now().Add(-s.cfg.Horizon)
	var errs []error
	removed := 0

	products, err := s.tombstones.Since(ctx, database.TombstoneProduct, since)
	if err != nil {
		return 0, fmt.Errorf("list product tombstones: %w", err)
	}
	for _, ts := range products {
		users, err := s.store.UsersWithProduct(ctx, ts.Key)
		if err != nil {
			errs = append(errs, fmt.Errorf("product %s: %w", ts.Key, err))
			continue
		}
		for _, u := range users {
			item, err := s.store.RemoveItem(ctx, u, ts.Key)
			if err != nil {
				errs = append(errs, fmt.Errorf("product %s cart %s: %w", ts.Key, u, err))
				continue
			}
			if item != nil {
				removed++
				s.logger.Info("swept straggling cart item", zap.String("product_id", ts.Key), zap.String("user", u))
			}
		}
	}

	users, err := s.tombstones.Since(ctx, database.TombstoneUser, since)
	if err != nil {
		errs = append(errs, fmt.Errorf("list user tombstones: %w", err))
	}
	for _, ts := range users {
		items, err := s.store.ClearCart(ctx, ts.Key)
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", ts.Key, err))
			continue
		}
		if len(items) > 0 {
			removed += len(items)
			s.logger.Info("swept straggling cart", zap.String("user", ts.Key), zap.Int("items", len(items)))
		}
	}

	if removed > 0 {
		_ = s.metrics.RecordValue(ctx, awspkg.MetricCascadeSwept, float64(removed), nil)
	}
	return removed, errors.Join(errs...)
}
