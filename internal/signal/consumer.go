package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
)

// Handler processes one decoded signal. A nil return acknowledges the
// stream entry; an error leaves it pending for redelivery.
type Handler func(ctx context.Context, sig model.Signal, entryID string) error

// Consumer is one member of the engine's consumer group.
type Consumer struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	handler  Handler
	logger   *zap.Logger

	// staleClaimAge bounds how old a pending delivery must be before this
	// consumer claims it from a failed peer.
	staleClaimAge time.Duration
}

// NewConsumer creates a consumer-group member.
func NewConsumer(client *redis.Client, stream, group, consumerName string, handler Handler, logger *zap.Logger) *Consumer {
	return &Consumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumerName,
		handler:       handler,
		logger:        logger,
		staleClaimAge: time.Minute,
	}
}

// Start ensures the group exists, replays stale pending deliveries, then
// consumes new entries until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	if err := c.claimStale(ctx); err != nil {
		c.logger.Warn("failed to claim stale signal deliveries", zap.Error(err))
	}

	go c.readLoop(ctx)
	return nil
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s: %w", c.group, err)
	}
	return nil
}

// claimStale takes over deliveries a crashed group member never
// acknowledged so no signal is lost to a consumer failure.
func (c *Consumer) claimStale(ctx context.Context) error {
	start := "0-0"
	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  c.staleClaimAge,
			Start:    start,
			Count:    100,
		}).Result()
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			c.handleMessage(ctx, msg)
		}
		if next == "0-0" || len(msgs) == 0 {
			return nil
		}
		start = next
	}
}

func (c *Consumer) readLoop(ctx context.Context) {
	c.logger.Info("signal consumer started",
		zap.String("stream", c.stream),
		zap.String("group", c.group),
		zap.String("consumer", c.consumer))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("signal consumer stopped")
			return
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    16,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			c.logger.Error("failed to read signal stream", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.handleMessage(ctx, msg)
			}
		}
	}
}

// handleMessage decodes and dispatches one entry, acknowledging on
// success. Undecodable entries are acknowledged and dropped: replaying
// garbage forever helps nobody.
func (c *Consumer) handleMessage(ctx context.Context, msg redis.XMessage) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		c.logger.Error("signal entry missing data field", zap.String("entry_id", msg.ID))
		c.ack(ctx, msg.ID)
		return
	}

	var sig model.Signal
	if err := json.Unmarshal([]byte(raw), &sig); err != nil {
		c.logger.Error("failed to decode signal",
			zap.String("entry_id", msg.ID), zap.Error(err))
		c.ack(ctx, msg.ID)
		return
	}

	if err := c.handler(ctx, sig, msg.ID); err != nil {
		c.logger.Error("signal handler failed, leaving entry pending",
			zap.String("entry_id", msg.ID),
			zap.String("strategy_id", sig.StrategyID),
			zap.Error(err))
		return
	}
	c.ack(ctx, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, entryID string) {
	if err := c.client.XAck(ctx, c.stream, c.group, entryID).Err(); err != nil {
		c.logger.Error("failed to ack signal entry",
			zap.String("entry_id", entryID), zap.Error(err))
	}
}
