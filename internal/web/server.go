package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fixcal/internal/clock"
	"fixcal/internal/config"
	"fixcal/internal/metadata"
	"fixcal/internal/metrics"
	"fixcal/internal/model"
	"fixcal/internal/reconcile"
)

// TeamProvider returns a team's fixtures, usually through the cache.
type TeamProvider interface {
	Team(ctx context.Context, centreID, teamID string) (model.TeamDetails, error)
}

// Deps are the collaborators a Server routes requests to. Metrics, Clock
// and Logger may be nil.
type Deps struct {
	Teams   TeamProvider
	Engine  *reconcile.Engine
	Codec   *metadata.Codec
	Metrics *metrics.Metrics
	Clock   clock.Clock
	Logger  *zap.Logger
}

// Server serves the calendar feeds plus health and metrics.
type Server struct {
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger
	engine *gin.Engine
}

// NewServer builds the gin engine and registers routes.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
		engine: gin.New(),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(requestID())
	s.engine.Use(accessLog(s.logger))
	if s.basicAuthEnabled() {
		s.logger.Info("HTTP basic auth enabled", zap.String("listen", "http://"+cfg.Listen))
		s.engine.Use(s.basicAuth())
	}
	s.registerRoutes()
	return s
}

// Handler returns the gin engine as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// HTTPServer wraps the handler for cfg.Listen. The caller owns
// ListenAndServe and Shutdown.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	s.engine.GET("/calendar/:centreID/:teamId", s.handleCalendar)
	s.engine.GET("/calendar/:centreID/:teamId/:metadata", s.handleCalendar)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuth guards every route except /health.
func (s *Server) basicAuth() gin.HandlerFunc {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		u, p, ok := c.Request.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			c.Header("WWW-Authenticate", `Basic realm="fixcal", charset="UTF-8"`)
			c.String(http.StatusUnauthorized, "Unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
