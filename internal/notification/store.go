package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

// NotificationRecord is the durable form of a CRITICAL or COMPLIANCE event.
type NotificationRecord struct {
	ID        uint      `gorm:"primaryKey"`
	EventID   string    `gorm:"uniqueIndex;size:36;not null"`
	UserID    string    `gorm:"index;size:64"`
	Type      string    `gorm:"size:64"`
	Severity  string    `gorm:"index;size:16"`
	Payload   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (NotificationRecord) TableName() string { return "notification_records" }

// DurableStore persists notification events via gorm.
type DurableStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewDurableStore migrates the schema and returns the store.
func NewDurableStore(db *gorm.DB, logger *zap.Logger) (*DurableStore, error) {
	if err := db.AutoMigrate(&NotificationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate notification_records: %w", err)
	}
	return &DurableStore{db: db, logger: logger}, nil
}

// Save persists one event. Saving the same event twice is a no-op thanks to
// the unique index on event_id, which keeps durable retries idempotent.
func (s *DurableStore) Save(ctx context.Context, event model.NotificationEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	rec := NotificationRecord{
		EventID:   event.EventID.String(),
		UserID:    event.UserID,
		Type:      event.Type,
		Severity:  string(event.Severity),
		Payload:   string(payload),
		CreatedAt: event.CreatedAt,
	}
	err = s.db.WithContext(ctx).
		Where("event_id = ?", rec.EventID).
		FirstOrCreate(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to persist notification: %w", err)
	}
	return nil
}

// ByUser returns persisted events for a user, newest first.
func (s *DurableStore) ByUser(ctx context.Context, userID string, limit int) ([]NotificationRecord, error) {
	var recs []NotificationRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	return recs, nil
}

// ByEventID fetches one persisted event.
func (s *DurableStore) ByEventID(ctx context.Context, eventID string) (*NotificationRecord, error) {
	var rec NotificationRecord
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
