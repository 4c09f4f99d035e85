package web

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sytexa-julia/docker-kicker/internal/config"
)

// Server is the HTTP surface of the kicker: a status probe and the
// key-addressed kick endpoint
type Server struct {
	port   uint16
	router *gin.Engine
	cfg    *config.Config
	kicker Kicker
	logger *logrus.Logger
	server *http.Server
	mu     sync.RWMutex
}

// NewServer creates a new web server instance
func NewServer(cfg *config.Config, kicker Kicker, logger *logrus.Logger, port uint16) (*Server, error) {
	router := gin.New()

	// With no trusted proxies configured, forwarding headers are ignored
	// and the direct peer address is used
	var trusted []string
	if len(cfg.Proxy.Trusted) > 0 {
		trusted = cfg.Proxy.Trusted
	}
	if err := router.SetTrustedProxies(trusted); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}

	s := &Server{
		port:   port,
		router: router,
		cfg:    cfg,
		kicker: kicker,
		logger: logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// setupMiddleware sets up the middleware
func (s *Server) setupMiddleware() {
	// Add recovery middleware
	s.router.Use(RecoveryHandler(s.logger))

	// Add logging middleware
	s.router.Use(LoggingMiddleware(s.logger))

	// Add response time middleware
	s.router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		c.Header("X-Response-Time", duration.String())
	})
}

// setupRoutes sets up the HTTP routes
func (s *Server) setupRoutes() {
	s.router.GET("/", s.statusHandler)
	s.router.GET("/healthz", s.healthHandler)
	s.router.POST("/:key", s.kickHandler)
}

// Start starts the web server
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := fmt.Sprintf("0.0.0.0:%d", s.port)
	s.logger.Infof("Starting web server on %s", addr)

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	// Start the server in a goroutine
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Failed to start web server: %v", err)
		}
	}()

	return nil
}

// Stop stops the web server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	s.logger.Info("Stopping web server")

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown web server: %w", err)
	}

	s.server = nil
	return nil
}
