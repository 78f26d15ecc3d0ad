// Package audit persists order snapshots to the durable store for the
// compliance trail. Writes happen off the decision path through an
// asynchronous writer; the engine never reads audit data to make dispatch
// decisions.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

// ExecutionRecord is the persisted snapshot of an order at a state
// transition. One row per transition, append-only.
type ExecutionRecord struct {
	ID             uint      `gorm:"primaryKey"`
	OrderID        string    `gorm:"index;size:36;not null"`
	UserID         string    `gorm:"index;size:64"`
	StrategyID     string    `gorm:"size:64"`
	SignalID       string    `gorm:"size:64"`
	Symbol         string    `gorm:"index;size:32"`
	Side           string    `gorm:"size:8"`
	OrderType      string    `gorm:"size:16"`
	Status         string    `gorm:"size:24"`
	Priority       string    `gorm:"size:12"`
	Quantity       string    `gorm:"size:40"`
	Price          string    `gorm:"size:40"`
	FilledQuantity string    `gorm:"size:40"`
	FilledPrice    string    `gorm:"size:40"`
	BrokerOrderID  *string   `gorm:"size:64"`
	ErrorMessage   *string   `gorm:"size:512"`
	RecordedAt     time.Time `gorm:"index"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (ExecutionRecord) TableName() string { return "execution_records" }

// Store appends and queries execution records.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore migrates the schema and returns a store.
func NewStore(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&ExecutionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate execution_records: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Append writes a snapshot of the order's current state.
func (s *Store) Append(ctx context.Context, order *model.Order) error {
	rec := recordFromOrder(order)
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to append execution record: %w", err)
	}
	return nil
}

// QueryByID returns the most recent snapshot for an order.
func (s *Store) QueryByID(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	var rec ExecutionRecord
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID.String()).
		Order("id DESC").
		First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to query execution record: %w", err)
	}
	return orderFromRecord(&rec)
}

// History returns all snapshots for an order, oldest first.
func (s *Store) History(ctx context.Context, orderID uuid.UUID) ([]ExecutionRecord, error) {
	var recs []ExecutionRecord
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID.String()).
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query execution history: %w", err)
	}
	return recs, nil
}

func recordFromOrder(order *model.Order) *ExecutionRecord {
	return &ExecutionRecord{
		OrderID:        order.ID.String(),
		UserID:         order.UserID,
		StrategyID:     order.StrategyID,
		SignalID:       order.SignalID,
		Symbol:         order.Symbol,
		Side:           string(order.Side),
		OrderType:      string(order.OrderType),
		Status:         string(order.Status),
		Priority:       string(order.Priority),
		Quantity:       order.Quantity.String(),
		Price:          order.Price.String(),
		FilledQuantity: order.FilledQuantity.String(),
		FilledPrice:    order.FilledPrice.String(),
		BrokerOrderID:  order.BrokerOrderID,
		ErrorMessage:   order.ErrorMessage,
		RecordedAt:     time.Now(),
	}
}

func orderFromRecord(rec *ExecutionRecord) (*model.Order, error) {
	id, err := uuid.Parse(rec.OrderID)
	if err != nil {
		return nil, fmt.Errorf("corrupt execution record %d: %w", rec.ID, err)
	}
	qty, err := decimal.NewFromString(rec.Quantity)
	if err != nil {
		return nil, fmt.Errorf("corrupt quantity in record %d: %w", rec.ID, err)
	}
	price, err := decimal.NewFromString(rec.Price)
	if err != nil {
		return nil, fmt.Errorf("corrupt price in record %d: %w", rec.ID, err)
	}
	filledQty, err := decimal.NewFromString(rec.FilledQuantity)
	if err != nil {
		return nil, fmt.Errorf("corrupt filled quantity in record %d: %w", rec.ID, err)
	}
	filledPrice, err := decimal.NewFromString(rec.FilledPrice)
	if err != nil {
		return nil, fmt.Errorf("corrupt filled price in record %d: %w", rec.ID, err)
	}

	return &model.Order{
		ID:             id,
		UserID:         rec.UserID,
		StrategyID:     rec.StrategyID,
		SignalID:       rec.SignalID,
		Symbol:         rec.Symbol,
		Side:           model.Side(rec.Side),
		OrderType:      model.OrderType(rec.OrderType),
		Status:         model.OrderStatus(rec.Status),
		Priority:       model.Priority(rec.Priority),
		Quantity:       qty,
		Price:          price,
		FilledQuantity: filledQty,
		FilledPrice:    filledPrice,
		BrokerOrderID:  rec.BrokerOrderID,
		ErrorMessage:   rec.ErrorMessage,
		UpdatedAt:      rec.RecordedAt,
	}, nil
}
