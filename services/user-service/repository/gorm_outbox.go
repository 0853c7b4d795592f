package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/shopswift/commerce-backend/pkg/events"
	"github.com/shopswift/commerce-backend/services/user-service/models"
)

func appendOutbox(tx *gorm.DB, e events.Event) error {
	payload, err := events.Encode(e)
	if err != nil {
		return err
	}
	row := models.OutboxEvent{
		AggregateID: e.Key,
		EventType:   string(e.Type),
		Payload:     payload,
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("append outbox event %s: %w", e.Type, err)
	}
	return nil
}

// GormOutbox is the relay side of the outbox_events table.
type GormOutbox struct {
	db *gorm.DB
}

func NewGormOutbox(db *gorm.DB) *GormOutbox {
	return &GormOutbox{db: db}
}

func (o *GormOutbox) Pending(ctx context.Context, limit int) ([]events.OutboxRecord, error) {
	var rows []models.OutboxEvent
	err := o.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query pending outbox events: %w", err)
	}

	out := make([]events.OutboxRecord, 0, len(rows))
	for _, row := range rows {
		e, err := events.Decode(row.Payload)
		if err != nil {
			return nil, fmt.Errorf("outbox event %d: %w", row.ID, err)
		}
		e.Seq = row.ID
		out = append(out, events.OutboxRecord{
			Seq:       row.ID,
			Event:     e,
			CreatedAt: row.CreatedAt,
			Attempts:  row.Attempts,
			LastError: row.LastError,
		})
	}
	return out, nil
}

func (o *GormOutbox) MarkPublished(ctx context.Context, seq int64) error {
	return o.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("id = ?", seq).
		Updates(map[string]any{"published_at": time.Now().UTC(), "last_error": ""}).Error
}

func (o *GormOutbox) MarkFailed(ctx context.Context, seq int64, reason string) error {
	return o.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("id = ?", seq).
		Updates(map[string]any{"attempts": gorm.Expr("attempts + 1"), "last_error": reason}).Error
}
