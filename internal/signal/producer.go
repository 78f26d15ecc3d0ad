// Package signal carries trading signals from strategy processes to the
// engine over a Redis Stream with consumer-group semantics: each signal is
// delivered to exactly one member of the engine's group, and unacknowledged
// deliveries are replayed after a restart or consumer failure.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

// Producer emits signals onto the stream. Strategy processes hold one each.
type Producer struct {
	client *redis.Client
	stream string
}

// NewProducer creates a producer for the given stream.
func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

// Emit appends the signal to the stream.
func (p *Producer) Emit(ctx context.Context, sig model.Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":        string(data),
			"strategy_id": sig.StrategyID,
			"symbol":      sig.Symbol,
			"emitted_at":  time.Now().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append signal to %s: %w", p.stream, err)
	}
	return nil
}
