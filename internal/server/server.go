// Package server exposes the operational HTTP surface: liveness and
// readiness probes, Prometheus metrics, read-only snapshots of queue,
// worker and process health, and operator actions (order cancellation,
// strategy resume, dead-letter replay).
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jai-bhardwaj/trading-backend-sub001/internal/health"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/model"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/queue"
	"github.com/jai-bhardwaj/trading-backend-sub001/internal/worker"
)

// Controller is the slice of the order executor the operational surface
// drives: cancel targeting and lifting a strategy's post-failure pause.
type Controller interface {
	Lookup(id uuid.UUID) *model.Order
	Resume(strategyID string)
}

// Server wires the gin engine over the engine's views.
type Server struct {
	manager *queue.Manager
	pool    *worker.Pool
	monitor *health.Monitor
	ctrl    Controller
	logger  *zap.Logger

	httpServer *http.Server
}

// New creates the operational server.
func New(addr string, manager *queue.Manager, pool *worker.Pool, monitor *health.Monitor, ctrl Controller, logger *zap.Logger) *Server {
	s := &Server{
		manager: manager,
		pool:    pool,
		monitor: monitor,
		ctrl:    ctrl,
		logger:  logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.healthz)
	router.GET("/readyz", s.readyz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/queues", s.queues)
		api.GET("/workers", s.workers)
		api.GET("/processes", s.processes)
		api.GET("/deadletters", s.deadLetters)
		api.POST("/deadletters/replay", s.replayDeadLetters)
		api.POST("/orders/:id/cancel", s.cancelOrder)
		api.POST("/strategies/:id/resume", s.resumeStrategy)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown. Blocks; run in a goroutine.
func (s *Server) Start() error {
	s.logger.Info("operational server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readyz(c *gin.Context) {
	stats := s.manager.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"in_flight": stats.InFlight,
	})
}

func (s *Server) queues(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Snapshot())
}

func (s *Server) workers(c *gin.Context) {
	stats := s.pool.Snapshot()
	utilization := 0.0
	if stats.Size > 0 {
		utilization = float64(stats.Busy) / float64(stats.Size)
	}
	c.JSON(http.StatusOK, gin.H{
		"size":        stats.Size,
		"busy":        stats.Busy,
		"utilization": utilization,
	})
}

func (s *Server) processes(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Snapshot())
}

func (s *Server) deadLetters(c *gin.Context) {
	records, err := s.manager.DeadLetters()
	if err != nil {
		s.logger.Error("failed to list dead letters", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list dead letters"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(records), "records": records})
}

func (s *Server) replayDeadLetters(c *gin.Context) {
	n, err := s.manager.ReplayDeadLetters()
	if err != nil {
		s.logger.Error("dead-letter replay failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "replay failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"replayed": n})
}

// cancelOrder enqueues a cancellation control item for a tracked order. The
// cancel rides the queue like any other work, so the response is an
// acknowledgement of intent, not of outcome.
func (s *Server) cancelOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order := s.ctrl.Lookup(id)
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not tracked"})
		return
	}

	if _, err := s.manager.EnqueueCancel(order); err != nil {
		s.logger.Error("failed to enqueue cancel",
			zap.String("order_id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue cancel"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"order_id": id.String(),
		"status":   "cancel_enqueued",
	})
}

// resumeStrategy lifts the submission pause applied after a fatal failure.
func (s *Server) resumeStrategy(c *gin.Context) {
	id := c.Param("id")
	s.ctrl.Resume(id)
	s.logger.Info("strategy resumed by operator", zap.String("strategy_id", id))
	c.JSON(http.StatusOK, gin.H{
		"strategy_id": id,
		"status":     "resumed",
	})
}
