// Package api serves the REST surface of membank: token-authenticated
// memory, context, and relation management, keyword and semantic search,
// knowledge operations, and the operational health and metrics endpoints.
// Wire errors carry the same stable numeric codes as the MCP surface.
package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/membank-io/membank/internal/auth"
	"github.com/membank-io/membank/internal/config"
	"github.com/membank-io/membank/internal/engine"
	"github.com/membank-io/membank/internal/logging"
	"github.com/membank-io/membank/pkg/version"
)

// shutdownTimeout bounds the drain of in-flight requests on stop.
const shutdownTimeout = 10 * time.Second

// Server is the REST server. Construct with NewServer, then either serve
// the router directly (tests) or call Run for a managed listener.
type Server struct {
	router *gin.Engine
	engine *engine.Engine
	addr   string
	log    *slog.Logger
}

// NewServer wires the router: request-id, logging, and recovery
// middleware on every route; bearer auth on everything except /health,
// /metrics, and /auth. A nil gatherer falls back to the default
// Prometheus gatherer.
func NewServer(eng *engine.Engine, authSvc *auth.Service, cfg *config.Config, gatherer prometheus.Gatherer, logger *slog.Logger) (*Server, error) {
	if eng == nil {
		return nil, stderrors.New("engine is required")
	}
	if authSvc == nil {
		return nil, stderrors.New("auth service is required")
	}
	if cfg == nil {
		cfg = config.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router: gin.New(),
		engine: eng,
		addr:   cfg.HTTP.Addr,
		log:    logging.Component(logger, "api"),
	}
	s.router.Use(RequestID(), RequestLogger(s.log), Recovery(s.log))

	public := s.router.Group("")
	public.GET("/health", s.health)
	public.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	newAuthAPI(authSvc).registerRoutes(public)

	protected := s.router.Group("", authSvc.Middleware())
	newMemoryAPI(eng).registerRoutes(protected)
	newContextAPI(eng).registerRoutes(protected)
	newRelationAPI(eng).registerRoutes(protected)
	newSearchAPI(eng).registerRoutes(protected)
	newKnowledgeAPI(eng).registerRoutes(protected)
	protected.GET("/stats", s.stats)

	return s, nil
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

// Run serves until the context is canceled, then drains in-flight
// requests before returning.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("REST server listening", slog.String("addr", s.addr))
		err := srv.ListenAndServe()
		if stderrors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errc <- err
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	drain, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drain); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("REST server stopped")
	return <-errc
}

func (s *Server) health(c *gin.Context) {
	h := s.engine.Health(c.Request.Context())
	status, code := "ok", http.StatusOK
	if !h.Healthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"version": version.Version,
		"components": gin.H{
			"db":        componentState(h.Database),
			"cache":     componentState(h.Cache),
			"vector":    componentState(h.Vector),
			"embedding": componentState(h.Embedding),
		},
	})
}

func componentState(up bool) string {
	if up {
		return "up"
	}
	return "down"
}

func (s *Server) stats(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	st, err := s.engine.Stats(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
