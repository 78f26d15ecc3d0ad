// Command engine runs the order/signal dispatch engine: signal ingress,
// queue manager, worker pool, order executor, notification router and
// health monitor, wired per the configuration file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/audit"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/broker"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/config"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/executor"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/health"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/notification"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/queue"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/risk"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/server"
	signalstream "github.com/jai-bhardwaj/trading-backend-sub001/internal/signal"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/worker"
	"github.com/jai-bhardwaj/trading-backend-sub001/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "engine failed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
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

	// Shared infrastructure.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	defer rdb.Close()

	var db *gorm.DB
	if cfg.Database.DSN != "" {
		db, err = gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		defer sqlDB.Close()
	} else {
		log.Warn("no database configured, audit trail and durable notifications disabled")
	}

	// Notification router: transient channel always, durable store when a
	// database is configured.
	transient := notification.NewRedisTransient(rdb, cfg.Redis.NotificationChannel, cfg.Redis.TransientTTL, log)
	prefs := notification.NewPreferences()

	var durable notification.Persister
	if db != nil {
		store, err := notification.NewDurableStore(db, log)
		if err != nil {
			return err
		}
		durable = store
	}
	router := notification.NewRouter(transient, durable, prefs, cfg.Notification.BufferSize, log)
	router.Start(ctx)
	defer router.Stop()

	// External delivery fan-out consuming the transient channel.
	deliverers := []notification.Deliverer{
		notification.NewLogDeliverer("email", log),
		notification.NewLogDeliverer("sms", log),
	}
	if cfg.Notification.WebhookURL != "" {
		deliverers = append(deliverers, notification.NewWebhookDeliverer(cfg.Notification.WebhookURL))
	}
	if cfg.Kafka.Enabled {
		kafkaDeliverer := notification.NewKafkaDeliverer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaDeliverer.Close()
		deliverers = append(deliverers, kafkaDeliverer)
	}
	fanout := notification.NewFanout(transient, deliverers, prefs,
		cfg.Notification.DeliveryRetries, cfg.Notification.DeliveryBackoff, log)
	if err := fanout.Start(ctx); err != nil {
		return err
	}

	// Queue manager with disk-backed dead-letter sink.
	dlq, err := queue.NewDeadLetterSink(cfg.Queue.DeadLetterPath, log.Sugar())
	if err != nil {
		return err
	}
	defer dlq.Close()

	manager := queue.NewManager(cfg.Queue, dlq, router, log)
	manager.Start(ctx)
	defer manager.Stop()

	// Risk gate and exposure accounting.
	limits, err := risk.LimitsFromConfig(cfg.Risk)
	if err != nil {
		return err
	}
	gate := risk.NewGate(limits)
	exposure := risk.NewExposureBook()

	// Broker capability.
	var brk broker.Broker
	switch cfg.Broker.Provider {
	case "paper", "":
		brk = broker.NewPaperBroker(log.Sugar())
	default:
		return fmt.Errorf("unknown broker provider %q", cfg.Broker.Provider)
	}
	defer brk.Close()
	routing := broker.NewRouting(cfg.Broker.SymbolTokens)

	// Audit trail.
	var auditor *audit.Writer
	if db != nil {
		store, err := audit.NewStore(db, log)
		if err != nil {
			return err
		}
		auditor = audit.NewWriter(store, 256, log)
		auditor.Start(ctx)
		defer auditor.Stop()
	}

	// Executor and worker pool.
	orders := executor.NewOrderStore()
	exec := executor.New(brk, routing, gate, exposure, auditor, router, orders,
		cfg.Broker.SubmitTimeout, log)
	go exec.Run(ctx)

	monitor := health.NewMonitor(cfg.Health, log)
	monitor.Start(ctx)
	defer monitor.Stop()

	var poolAuditor worker.AuditRecorder
	if auditor != nil {
		poolAuditor = auditor
	}
	pool := worker.NewPool(cfg.Worker.Count, manager, exec, monitor, router,
		poolAuditor, cfg.Worker.IdleBackoff, log.Sugar())
	pool.Start(ctx)
	defer pool.Stop()

	// Restart policies: dead workers surrender their in-flight work.
	monitor.OnDead(model.ProcessWorker, func(processID string) {
		n := manager.ReassignWorker(processID)
		log.Warn("dead worker work reassigned",
			zap.String("worker_id", processID), zap.Int("items", n))
	})

	// Signal ingress.
	ingestor := signalstream.NewIngestor(manager, cfg.Engine, log)
	hostname, _ := os.Hostname()
	consumer := signalstream.NewConsumer(rdb, cfg.Redis.SignalStream,
		cfg.Redis.ConsumerGroup, fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		ingestor.Handle, log)
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	// Operational surface.
	srv := server.New(cfg.Server.Addr, manager, pool, monitor, exec, log)
	go func() {
		if err := srv.Start(); err != nil {
			log.Error("operational server failed", zap.Error(err))
			cancel()
		}
	}()

	log.Info("dispatch engine started",
		zap.Int("workers", cfg.Worker.Count),
		zap.String("signal_stream", cfg.Redis.SignalStream),
		zap.String("broker", cfg.Broker.Provider))

	// Wait for shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("operational server shutdown failed", zap.Error(err))
	}
	cancel()
	return nil
}
