package models

import "time"

// OutboxEvent is a domain event written in the same transaction as the user change it
// describes. The relay publishes rows in ID order.
type OutboxEvent struct {
	ID          int64      `gorm:"primaryKey;autoIncrement"`
	AggregateID string     `gorm:"index;not null"`
	EventType   string     `gorm:"not null"`
	Payload     []byte     `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	PublishedAt *time.Time `gorm:"index"`
	Attempts    int
	LastError   string
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}
