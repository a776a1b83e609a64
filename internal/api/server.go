package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"slidecast/internal/session"
)

// RegistryView is the read-only slice of the Session Registry the API
// needs; it keeps this package decoupled from registry internals.
type RegistryView interface {
	Sessions() []session.Snapshot
	Snapshot(sessionID string) (session.Snapshot, error)
	Stats() map[string]int
}

// HistoryReader serves stats from the relay event log. Nil when history is
// disabled.
type HistoryReader interface {
	SessionStats(ctx context.Context, sessionID string) (map[string]int64, error)
	RecentSessions(ctx context.Context, limit int) ([]string, error)
	Health(ctx context.Context) error
}

// Server exposes the HTTP surface: WebSocket endpoint, session inspection,
// health, and metrics. No business logic lives here.
type Server struct {
	registry RegistryView
	history  HistoryReader
}

// NewServer creates the API server.
func NewServer(registry RegistryView, history HistoryReader) *Server {
	return &Server{
		registry: registry,
		history:  history,
	}
}

// Router builds the gin engine. wsHandler serves GET /ws; mode selects the
// gin run mode ("release" or "debug").
func (s *Server) Router(mode string, wsHandler http.HandlerFunc) *gin.Engine {
	if mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.GET("/ws", func(c *gin.Context) {
		wsHandler(c.Writer, c.Request)
	})

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")
	apiGroup.GET("/sessions", s.listSessions)
	apiGroup.GET("/sessions/recent", s.recentSessions)
	apiGroup.GET("/sessions/:id", s.getSession)

	return r
}

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	History   string         `json:"history"`
	Relay     map[string]int `json:"relay"`
}

type sessionListResponse struct {
	Sessions []session.Snapshot `json:"sessions"`
}

type sessionDetailResponse struct {
	Session session.Snapshot `json:"session"`
	Events  map[string]int64 `json:"events,omitempty"`
}

type recentSessionsResponse struct {
	Sessions []string `json:"sessions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	historyStatus := "disabled"

	if s.history != nil {
		historyStatus = "healthy"
		if err := s.history.Health(ctx); err != nil {
			status = "unhealthy"
			historyStatus = err.Error()
		}
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, healthResponse{
		Status:    status,
		Timestamp: time.Now(),
		History:   historyStatus,
		Relay:     s.registry.Stats(),
	})
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, sessionListResponse{Sessions: s.registry.Sessions()})
}

func (s *Server) getSession(c *gin.Context) {
	sessionID := c.Param("id")

	snapshot, err := s.registry.Snapshot(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}

	resp := sessionDetailResponse{Session: snapshot}
	if s.history != nil {
		if stats, err := s.history.SessionStats(c.Request.Context(), sessionID); err == nil {
			resp.Events = stats
		}
	}

	c.JSON(http.StatusOK, resp)
}

// recentSessions lists session IDs from the event log, most recently
// active first. The live registry only knows sessions since the last
// restart; this view reaches back across restarts.
func (s *Server) recentSessions(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusOK, recentSessionsResponse{Sessions: []string{}})
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	ids, err := s.history.RecentSessions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "history query failed"})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, recentSessionsResponse{Sessions: ids})
}

// corsMiddleware allows browser remotes served from any origin to reach
// the API. Joins are unauthenticated, so there is nothing to protect here
// beyond what the relay itself enforces.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}
