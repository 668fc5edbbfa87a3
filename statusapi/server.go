package statusapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kbukum/capsule/config"
	"github.com/kbukum/capsule/logger"
	"github.com/kbukum/capsule/metastore"
	"github.com/kbukum/capsule/observability"
)

// Server is the status HTTP server.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	store      metastore.Store
	service    string
	checks     []observability.HealthCheck
	log        *logger.Logger
}

// New creates a Server answering from store. The routes are registered
// but nothing listens until Start. /healthz always checks the store, then
// the extra checks.
func New(cfg config.StatusConfig, service string, store metastore.Store, log *logger.Logger, checks ...observability.HealthCheck) *Server {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if log.Level() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		engine:  gin.New(),
		store:   store,
		service: service,
		log:     log.WithComponent("statusapi"),
	}
	s.checks = append([]observability.HealthCheck{{
		Name:     "metastore",
		Critical: true,
		Check: func(ctx context.Context) error {
			_, err := store.ListExecutions(ctx)
			return err
		},
	}}, checks...)
	s.engine.Use(recovery(s.log), requestID(), requestLogger(s.log))
	s.routes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.health)
	s.engine.GET("/version", s.version)
	executions := s.engine.Group("/executions")
	executions.GET("", s.listExecutions)
	executions.GET("/:id", s.getExecution)
	executions.GET("/:id/jobs/:uuid", s.getJob)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start binds the address and serves in the background. It returns once
// the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("status api failed to bind %s: %w", s.httpServer.Addr, err)
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("server error", logger.ErrorFields("serve", err))
		}
	}()
	s.log.Info("status api started", logger.Fields("addr", listener.Addr().String()))
	return nil
}

// Stop shuts the server down gracefully with a 5 second deadline.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status api shutdown: %w", err)
	}
	s.log.Info("status api stopped")
	return nil
}
