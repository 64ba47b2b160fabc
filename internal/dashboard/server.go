// Package dashboard exposes the bot's state over a small HTTP API,
// consumed by the terminal dashboard and by curl.
package dashboard

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/swingbot/goswing/internal/trader"
)

var log = logrus.WithField("module", "dashboard")

// Server serves the monitoring API for one running bot.
type Server struct {
	orch  *trader.Orchestrator
	sched *trader.Scheduler

	httpServer *http.Server
}

// New creates the dashboard server.
func New(listen string, orch *trader.Orchestrator, sched *trader.Scheduler) *Server {
	s := &Server{orch: orch, sched: sched}
	s.httpServer = &http.Server{
		Addr:              listen,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/portfolio", s.handlePortfolio)
	api.GET("/performance", s.handlePerformance)
	api.GET("/positions", s.handlePositions)
	api.GET("/trades", s.handleTrades)
	api.POST("/start", s.handleStart)
	api.POST("/stop", s.handleStop)

	return r
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	log.Infof("dashboard API listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// StatusResponse is the /api/status payload.
type StatusResponse struct {
	State    string                     `json:"state"`
	Analysis map[string]trader.Analysis `json:"analysis"`
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		State:    s.sched.State().String(),
		Analysis: s.orch.LastAnalysis(),
	})
}

func (s *Server) handlePortfolio(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.PortfolioSummary())
}

func (s *Server) handlePerformance(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.PerformanceStats())
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.ActivePositions())
}

func (s *Server) handleTrades(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	c.JSON(http.StatusOK, s.orch.RecentTrades(limit))
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.sched.Start(context.Background()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": s.sched.State().String()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.sched.State().String()})
}

func (s *Server) handleStop(c *gin.Context) {
	s.sched.Stop()
	c.JSON(http.StatusOK, gin.H{"state": s.sched.State().String()})
}
