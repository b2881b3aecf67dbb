// Package api serves the BOM enrichment session and the part lookup proxy
// over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/bom-enricher/internal/config"
	"github.com/Sternrassler/bom-enricher/pkg/catalog"
	"github.com/Sternrassler/bom-enricher/pkg/fetch"
	"github.com/Sternrassler/bom-enricher/pkg/metrics"
	"github.com/Sternrassler/bom-enricher/pkg/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// proxyTimeout bounds a single /api/lcsc lookup.
const proxyTimeout = 30 * time.Second

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds everything the server needs. Store, Orchestrator and Proxy are
// required.
type Deps struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Store        *store.Store
	Orchestrator *fetch.Orchestrator

	// Proxy answers /api/lcsc. It talks to the upstream catalog directly,
	// usually through the Redis cache.
	Proxy catalog.Source

	// Cache is pinged by /ready. Nil means caching is disabled.
	Cache Pinger

	// RunContext is the parent context of background enrichment runs.
	// Defaults to context.Background().
	RunContext context.Context
}

// Server is the HTTP front end of a single in-memory BOM session.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger
	router *gin.Engine

	rows   *store.Store
	orch   *fetch.Orchestrator
	proxy  catalog.Source
	cache  Pinger
	runCtx context.Context

	now func() time.Time
}

// NewServer builds the router.
func NewServer(d Deps) (*Server, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("row store is required")
	}
	if d.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if d.Proxy == nil {
		return nil, fmt.Errorf("proxy source is required")
	}
	if d.Config == nil {
		d.Config = config.Default()
	}
	if d.RunContext == nil {
		d.RunContext = context.Background()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(d.Logger))

	s := &Server{
		cfg:    d.Config,
		logger: d.Logger.With().Str("component", "api").Logger(),
		router: r,
		rows:   d.Store,
		orch:   d.Orchestrator,
		proxy:  d.Proxy,
		cache:  d.Cache,
		runCtx: d.RunContext,
		now:    time.Now,
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ready", s.handleReady)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := s.router.Group("/api")

	api.GET("/lcsc", s.handleLookup)

	api.POST("/bom", s.handleUpload)
	api.GET("/bom", s.handleGetBOM)
	api.DELETE("/bom", s.handleClearBOM)
	api.PATCH("/bom/rows/:id", s.handleUpdateRow)
	api.DELETE("/bom/rows/:id", s.handleDeleteRow)

	api.POST("/fetch/start", s.handleFetchStart)
	api.POST("/fetch/stop", s.handleFetchStop)
	api.POST("/fetch/retry", s.handleFetchRetry)
	api.GET("/fetch/progress", s.handleFetchProgress)

	api.GET("/export", s.handleExport)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleReady(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "cache": "disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.cache.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Readiness check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "cache": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "cache": "ok"})
}

// respondError writes the error body shape that catalog.Remote understands.
func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, catalog.ErrorBody{Error: msg})
}
