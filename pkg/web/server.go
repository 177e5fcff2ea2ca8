// Package web serves the status dashboard and control API.
//
// The server is a display.Display: every published update is kept in a
// short history and broadcast to /ws/status clients as a "result"
// message. Classifier settings changes are broadcast as "config"
// messages, and pipeline counters as periodic "stats" messages.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-framegate/pkg/classifier"
	"github.com/teslashibe/go-framegate/pkg/display"
	"github.com/teslashibe/go-framegate/pkg/hub"
	"github.com/teslashibe/go-framegate/pkg/pipeline"
	"github.com/teslashibe/go-framegate/pkg/protocol"
)

// Pipeline is the pipeline surface the dashboard reads and controls.
type Pipeline interface {
	Session() string
	Stats() pipeline.Stats
	Settings() *classifier.Settings
}

var _ Pipeline = (*pipeline.Pipeline)(nil)

// Config configures the dashboard server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// History is how many recent updates /api/results returns.
	History int
	// StatsInterval is how often counters are broadcast. Zero disables it.
	StatsInterval time.Duration
}

// DefaultConfig returns the default dashboard configuration.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		History:       50,
		StatsInterval: time.Second,
	}
}

// Server is the web dashboard server
type Server struct {
	app      *fiber.App
	cfg      Config
	pipeline Pipeline
	logger   *slog.Logger

	statusHub *hub.Hub

	mu      sync.RWMutex
	history []display.Update
}

var _ display.Display = (*Server)(nil)

// NewServer creates a dashboard for p. Zero config fields take defaults.
func NewServer(p Pipeline, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.History <= 0 {
		cfg.History = def.History
	}

	s := &Server{
		cfg:       cfg,
		pipeline:  p,
		logger:    logger,
		statusHub: hub.New("status", logger, protocol.TypeConfig, protocol.TypeResult),
		history:   make([]display.Update, 0, cfg.History),
	}

	app := fiber.New(fiber.Config{
		AppName:               "framegate",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/stats", s.handleStats)
	api.Get("/results", s.handleResults)
	api.Get("/config", s.handleGetConfig)
	api.Post("/config", s.handleSetConfig)
	api.Post("/threads/:op", s.handleThreads)

	app.Use("/ws/status", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	p.Settings().OnChange(s.configChanged)
	s.broadcast(protocol.TypeConfig, s.configView())
	return s
}

// App returns the Fiber app so other packages can mount routes on it.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the status hub.
func (s *Server) Hub() *hub.Hub {
	return s.statusHub
}

// Run starts the hub and stats loop and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	if s.cfg.StatsInterval > 0 {
		go s.statsLoop(ctx, s.cfg.StatsInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web dashboard listening", "addr", s.cfg.Addr)
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.app.ShutdownWithTimeout(5 * time.Second)
	}
}

// Publish records u and broadcasts it to status clients.
func (s *Server) Publish(u display.Update) {
	s.mu.Lock()
	if len(s.history) == s.cfg.History {
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
	}
	s.history = append(s.history, u)
	s.mu.Unlock()

	s.broadcast(protocol.TypeResult, u)
}

// Last returns the most recent update.
func (s *Server) Last() (display.Update, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return display.Update{}, false
	}
	return s.history[len(s.history)-1], true
}

// Results returns recent updates, oldest first.
func (s *Server) Results() []display.Update {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]display.Update(nil), s.history...)
}

func (s *Server) configChanged(cfg classifier.Config) {
	s.logger.Info("classifier settings changed", "device", cfg.Device, "threads", cfg.Threads)
	s.broadcast(protocol.TypeConfig, s.configView())
}

func (s *Server) statsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() > 0 {
				s.broadcast(protocol.TypeStats, s.pipeline.Stats())
			}
		}
	}
}

func (s *Server) broadcast(t protocol.MessageType, data interface{}) {
	if err := s.statusHub.Publish(t, data); err != nil {
		s.logger.Warn("failed to encode broadcast", "type", t, "error", err)
	}
}
