// Command strategyhost runs strategy processes out-of-process from the
// engine. Strategies emit signals onto the Redis stream; the engine's
// consumer group picks them up. This host ships with a demo interval
// strategy for paper runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/config"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/health"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
	signalstream "github.com/jai-bhardwaj/trading-backend-sub001/internal/signal"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/strategy"
	"github.com/jai-bhardwaj/trading-backend-sub001/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	symbols := flag.String("symbols", "RELIANCE,INFY,TCS", "comma-separated demo symbols")
	interval := flag.Duration("interval", 5*time.Second, "demo signal interval")
	flag.Parse()

	if err := run(*configPath, strings.Split(*symbols, ","), *interval); err != nil {
		fmt.Fprintf(os.Stderr, "strategy host failed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, symbols []string, interval time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Engine.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	defer rdb.Close()

	monitor := health.NewMonitor(cfg.Health, log)
	monitor.Start(ctx)
	defer monitor.Stop()

	producer := signalstream.NewProducer(rdb, cfg.Redis.SignalStream)
	registry := strategy.NewRegistry(producer, monitor, cfg.Health.RestartBackoff, log)

	// A strategy that stops heartbeating without exiting is relaunched.
	monitor.OnDead(model.ProcessStrategy, func(processID string) {
		registry.Restart(ctx, processID)
	})

	for _, symbol := range symbols {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		id := "demo-" + strings.ToLower(symbol)
		if err := registry.Register(id, &intervalStrategy{
			strategyID: id,
			symbol:     symbol,
			interval:   interval,
		}); err != nil {
			return err
		}
	}

	registry.StartAll(ctx)
	defer registry.Stop()

	log.Info("strategy host started",
		zap.Strings("symbols", symbols),
		zap.String("stream", cfg.Redis.SignalStream))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("strategy host shutting down")
	return nil
}

// intervalStrategy emits a random-direction signal per tick. Confidence is
// drawn uniformly so the engine's priority mapping sees all tiers.
type intervalStrategy struct {
	strategyID string
	symbol     string
	interval   time.Duration
}

func (s *intervalStrategy) Run(ctx context.Context, emitter strategy.Emitter) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			side := model.SignalBuy
			if rand.Intn(2) == 1 {
				side = model.SignalSell
			}
			sig := model.Signal{
				StrategyID: s.strategyID,
				Symbol:     s.symbol,
				SignalType: side,
				Confidence: rand.Float64(),
				Price:      decimal.NewFromInt(int64(90 + rand.Intn(20))),
				Quantity:   decimal.NewFromInt(int64(1 + rand.Intn(10))),
				Timestamp:  time.Now(),
			}
			if err := emitter.Emit(ctx, sig); err != nil {
				return fmt.Errorf("failed to emit signal: %w", err)
			}
		}
	}
}
