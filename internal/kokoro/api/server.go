// Package api exposes the companion over HTTP and websockets.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/bdobrica/kokoro/internal/kokoro/companion"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the server.
type Options struct {
	Addr string
	// CORSOrigins lists allowed browser origins. Empty allows any origin
	// without credentials.
	CORSOrigins []string
	Manager     *companion.Manager
	Store       Pinger
	Logger      *slog.Logger
}

// Server serves the REST and websocket API.
type Server struct {
	addr      string
	mgr       *companion.Manager
	store     Pinger
	logger    *slog.Logger
	engine    *gin.Engine
	upgrader  websocket.Upgrader
	startedAt time.Time
	server    *http.Server
}

// New builds the server and its routes without listening.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:      opts.Addr,
		mgr:       opts.Manager,
		store:     opts.Store,
		logger:    logger,
		startedAt: time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.CORSOrigins),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))

	r.GET("/health", s.handleHealth)
	r.GET("/status", s.handleStatus)

	api := r.Group("/api")
	{
		api.POST("/sessions", s.createSession)
		api.GET("/sessions/:id", s.getSession)
		api.DELETE("/sessions/:id", s.endSession)
		api.POST("/sessions/:id/messages", s.postMessage)

		api.GET("/users/:id/report", s.userReport)
		api.GET("/users/:id/insights", s.userInsights)
		api.GET("/users/:id/analytics", s.userAnalytics)

		api.GET("/chat/ws", s.chatSocket)
	}
	s.engine = r
	return s
}

// ServeHTTP lets tests drive the server with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Start listens in the background and shuts down when ctx is cancelled.
// It returns once the listener is open.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", s.addr, err)
	}

	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		s.logger.Info("api server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop shuts the HTTP server down.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("api server shutdown error", "err", err)
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Type"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// requestLogger logs one line per request, skipping health checks.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if path == "/health" {
			return
		}
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if last := c.Errors.Last(); last != nil {
			attrs = append(attrs, "err", last.Error())
		}
		logger.Info("http request", attrs...)
	}
}
