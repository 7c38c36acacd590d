package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jward/pytrail"
)

// Server holds the state for the REST API server.
type Server struct {
	query  *pytrail.QueryBuilder
	router *gin.Engine
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a Server over a QueryBuilder.
func NewServer(q *pytrail.QueryBuilder, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		query:  q,
		router: gin.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/v1")
	v1.GET("/symbols", s.handleSymbols)
	v1.GET("/symbols/:id", s.handleSymbol)
	v1.GET("/symbols/:id/references", s.handleReferences)
	v1.GET("/symbols/:id/callers", s.handleEdges(s.query.Callers))
	v1.GET("/symbols/:id/callees", s.handleEdges(s.query.Callees))
	v1.GET("/symbols/:id/subclasses", s.handleEdges(s.query.Subclasses))
	v1.GET("/symbols/:id/superclasses", s.handleEdges(s.query.Superclasses))
	v1.GET("/search", s.handleSearch)
	v1.GET("/files", s.handleFiles)
	v1.GET("/files/errors", s.handleFileErrors)
}

// requestLogger logs one line per request at debug level.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
