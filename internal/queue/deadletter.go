package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

const deadLetterPrefix = "dlq:"

// DeadLetterRecord is the persisted form of an exhausted work item.
type DeadLetterRecord struct {
	Item         *model.WorkItem `json:"item"`
	Reason       string          `json:"reason"`
	DeadLettered time.Time       `json:"dead_lettered_at"`
}

// DeadLetterSink is a disk-backed store for work that exhausted its retry
// attempts. Items survive restarts and can be replayed by an operator.
type DeadLetterSink struct {
	db     *badger.DB
	logger *zap.SugaredLogger
}

// NewDeadLetterSink opens (or creates) the badger store at path.
func NewDeadLetterSink(path string, logger *zap.SugaredLogger) (*DeadLetterSink, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open dead-letter store: %w", err)
	}
	return &DeadLetterSink{db: db, logger: logger}, nil
}

// Add persists an exhausted work item.
func (s *DeadLetterSink) Add(item *model.WorkItem, reason string) error {
	rec := DeadLetterRecord{Item: item, Reason: reason, DeadLettered: time.Now()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal dead-letter record: %w", err)
	}

	key := []byte(deadLetterPrefix + item.ID.String())
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("failed to persist dead-letter record: %w", err)
	}

	s.logger.Warnw("work item dead-lettered",
		"item_id", item.ID.String(),
		"order_id", item.Order.ID.String(),
		"reason", reason)
	return nil
}

// List returns all dead-lettered records without removing them.
func (s *DeadLetterSink) List() ([]DeadLetterRecord, error) {
	var records []DeadLetterRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(deadLetterPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec DeadLetterRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("corrupt dead-letter record: %w", err)
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return records, err
}

// Drain removes and returns all dead-lettered work items for replay.
func (s *DeadLetterSink) Drain() ([]*model.WorkItem, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}

	items := make([]*model.WorkItem, 0, len(records))
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range records {
			if err := txn.Delete([]byte(deadLetterPrefix + rec.Item.ID.String())); err != nil {
				return err
			}
			items = append(items, rec.Item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain dead-letter store: %w", err)
	}
	return items, nil
}

// Count returns the number of dead-lettered items.
func (s *DeadLetterSink) Count() (int, error) {
	records, err := s.List()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Close shuts the underlying store.
func (s *DeadLetterSink) Close() error {
	return s.db.Close()
}
