// Package monitor serves a small HTTP API for operators: liveness, the live
// connection set, the current status document and Prometheus metrics.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cyberinferno/go-slp/connection"
	"github.com/cyberinferno/go-slp/logger"
)

// ConnectionLister exposes the snapshot of live connections published by the
// scheduler after each pass.
type ConnectionLister interface {
	// Connections returns every live connection.
	Connections() []connection.Info

	// Connection returns one live connection by id.
	Connection(id uint32) (connection.Info, bool)

	// Live returns the number of live connections.
	Live() int

	// Pending returns the number of accepted connections not yet ticked.
	Pending() int
}

// Config configures the monitoring server.
type Config struct {
	Address        string
	AllowedOrigins []string
	Debug          bool
}

// Server is the monitoring HTTP server.
type Server struct {
	cfg        Config
	conns      ConnectionLister
	status     connection.StatusSource
	gatherer   prometheus.Gatherer
	log        logger.Logger
	started    time.Time
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer builds the router.
//
// Parameters:
//   - cfg: Listen address and CORS origins
//   - conns: Source of the live connection snapshot
//   - status: Source of the status document; may be nil
//   - gatherer: Metrics to expose; nil uses prometheus.DefaultGatherer
//   - log: Logger for requests and lifecycle
//
// Returns:
//   - A new *Server
func NewServer(cfg Config, conns ConnectionLister, status connection.StatusSource, gatherer prometheus.Gatherer, log logger.Logger) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:      cfg,
		conns:    conns,
		status:   status,
		gatherer: gatherer,
		log:      log.With(logger.Str("component", "monitor")),
		started:  time.Now(),
	}
	s.router = s.buildRouter()

	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on cfg.Address until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("monitor listen: %w", err)
	}

	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info("monitor server starting", logger.Str("addr", ln.Addr().String()))

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("monitor server error: %w", err)
	}

	return nil
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestLogger(s.log))

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	{
		api.GET("/connections", s.handleConnections)
		api.GET("/connections/:id", s.handleConnection)
		api.GET("/status", s.handleStatus)
	}

	return router
}

// requestLogger logs each request at debug level.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log.Debug("api request",
			logger.Str("method", c.Request.Method),
			logger.Str("path", c.Request.URL.Path),
			logger.Any("status", c.Writer.Status()),
			logger.Any("duration", time.Since(start).String()),
			logger.Str("client_ip", c.ClientIP()),
		)
	}
}
