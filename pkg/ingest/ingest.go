// Package ingest accepts frames from a remote camera over WebSocket.
//
// A camera connects to /ws/camera/:id, sends a hello announcing its
// geometry and format, then streams frames. Each hello starts a fresh
// pipeline session; disconnecting stops it. NV21 frames go through the
// push-capture adapter with a callback buffer pool, I420 frames through
// the event-driven adapter with a latest-wins reader. Only one camera is
// served at a time.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-framegate/pkg/capture"
	"github.com/teslashibe/go-framegate/pkg/pipeline"
	"github.com/teslashibe/go-framegate/pkg/protocol"
)

// ErrCameraBusy is reported to a camera connecting while another is served.
var ErrCameraBusy = errors.New("ingest: camera already connected")

// Pipeline is the session surface ingest drives.
type Pipeline interface {
	capture.Session
	Session() string
}

var _ Pipeline = (*pipeline.Pipeline)(nil)

// Config configures the ingest server.
type Config struct {
	// PoolBuffers is the number of frame buffers per connection.
	PoolBuffers int
	// StopTimeout bounds session teardown on disconnect.
	StopTimeout time.Duration
}

// DefaultConfig returns the default ingest configuration.
func DefaultConfig() Config {
	return Config{
		PoolBuffers: 3,
		StopTimeout: 5 * time.Second,
	}
}

// Server accepts camera connections.
type Server struct {
	pipeline Pipeline
	cfg      Config
	logger   *slog.Logger

	mu     sync.Mutex
	camera *cameraConn

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	framesAdmitted   atomic.Uint64
	framesRejected   atomic.Uint64
}

// New creates an ingest server feeding p.
func New(p Pipeline, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.PoolBuffers <= 0 {
		cfg.PoolBuffers = def.PoolBuffers
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	return &Server{pipeline: p, cfg: cfg, logger: logger}
}

// RegisterRoutes registers the camera WebSocket routes on a Fiber app.
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/camera", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/camera", websocket.New(s.handleCamera))
	app.Get("/ws/camera/:id", websocket.New(s.handleCamera))
}

// RegisterAPIRoutes registers camera status routes.
func (s *Server) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/camera", func(c *fiber.Ctx) error {
		info, ok := s.Camera()
		return c.JSON(fiber.Map{
			"connected": ok,
			"camera":    info,
			"stats":     s.Stats(),
		})
	})
}

// handleCamera serves one camera connection.
func (s *Server) handleCamera(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}
	cam := &cameraConn{
		ID:        id,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
		logger:    s.logger.With("camera", id),
	}

	if !s.claim(cam) {
		s.logger.Warn("rejecting camera", "camera", id, "error", ErrCameraBusy)
		s.sendError(cam, protocol.CodeBusy, ErrCameraBusy.Error())
		return
	}
	cam.logger.Info("camera connected")

	defer func() {
		s.teardown(cam)
		s.unclaim(cam)
		cam.logger.Info("camera disconnected")
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			cam.logger.Debug("camera read error", "error", err)
			return
		}
		cam.touch()
		s.messagesReceived.Add(1)
		s.handleMessage(cam, data)
	}
}

func (s *Server) claim(cam *cameraConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.camera != nil {
		return false
	}
	s.camera = cam
	return true
}

func (s *Server) unclaim(cam *cameraConn) {
	s.mu.Lock()
	if s.camera == cam {
		s.camera = nil
	}
	s.mu.Unlock()
}

// handleMessage processes one camera message. It runs on the connection's
// read goroutine, which plays the role of the capture thread.
func (s *Server) handleMessage(cam *cameraConn, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		cam.logger.Warn("parse error", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeHello:
		hello, err := msg.GetHelloData()
		if err == nil {
			err = hello.Validate()
		}
		if err != nil {
			s.sendError(cam, protocol.CodeBadHello, err.Error())
			return
		}
		s.startSession(cam, hello)

	case protocol.TypeFrame:
		s.framesReceived.Add(1)
		fd, err := msg.GetFrameData()
		if err != nil {
			s.framesRejected.Add(1)
			s.sendError(cam, protocol.CodeBadFrame, err.Error())
			return
		}
		s.handleFrame(cam, fd)

	case protocol.TypePing:
		s.sendPong(cam, msg.Timestamp)
	}
}

func (s *Server) startSession(cam *cameraConn, hello *protocol.HelloData) {
	s.teardown(cam)

	cfg := pipeline.SessionConfig{ScreenRotation: capture.Rotation(hello.ScreenRotation).Degrees()}
	if err := s.pipeline.StartSession(context.Background(), cfg); err != nil {
		cam.logger.Warn("failed to start session", "error", err)
		s.sendError(cam, protocol.CodeBusy, err.Error())
		return
	}

	f := newFeeder(s.pipeline, hello, s.cfg.PoolBuffers, cam.logger)
	cam.setFeeder(f, hello)

	cam.logger.Info("camera session started",
		"session", s.pipeline.Session(),
		"format", hello.Format,
		"size", f.size.String(),
	)
	msg, err := protocol.NewReadyMessage(s.pipeline.Session(), hello.Width, hello.Height)
	if err == nil {
		s.send(cam, msg)
	}
}

func (s *Server) handleFrame(cam *cameraConn, fd *protocol.FrameData) {
	f := cam.currentFeeder()
	if f == nil {
		s.framesRejected.Add(1)
		s.sendError(cam, protocol.CodeNoHello, "hello required before frames")
		return
	}

	admitted, err := f.deliver(fd)
	if err != nil {
		s.framesRejected.Add(1)
		s.sendError(cam, protocol.CodeBadFrame, err.Error())
		return
	}
	if admitted {
		s.framesAdmitted.Add(1)
	}

	msg, err := protocol.NewAckMessage(fd.FrameID, admitted)
	if err == nil {
		s.send(cam, msg)
	}
}

// teardown stops the connection's session, if it started one.
func (s *Server) teardown(cam *cameraConn) {
	f := cam.takeFeeder()
	if f == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
	defer cancel()
	if err := s.pipeline.StopSession(ctx); err != nil {
		cam.logger.Warn("failed to stop session", "error", err)
	}
	f.close()
}

func (s *Server) send(cam *cameraConn, msg *protocol.Message) {
	s.messagesSent.Add(1)
	if err := cam.Send(msg); err != nil {
		cam.logger.Debug("send error", "type", msg.Type, "error", err)
	}
}

func (s *Server) sendError(cam *cameraConn, code, text string) {
	msg, err := protocol.NewErrorMessage(code, text)
	if err != nil {
		return
	}
	s.send(cam, msg)
}

func (s *Server) sendPong(cam *cameraConn, pingTS int64) {
	msg, err := protocol.NewPongMessage("", pingTS, time.Now().UnixMilli())
	if err != nil {
		return
	}
	s.send(cam, msg)
}

// CameraInfo describes the connected camera.
type CameraInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Format    string    `json:"format,omitempty"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
}

// Camera returns the connected camera, if any.
func (s *Server) Camera() (CameraInfo, bool) {
	s.mu.Lock()
	cam := s.camera
	s.mu.Unlock()
	if cam == nil {
		return CameraInfo{}, false
	}
	return cam.info(), true
}

// Stats contains ingest statistics
type Stats struct {
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	FramesAdmitted   uint64 `json:"frames_admitted"`
	FramesRejected   uint64 `json:"frames_rejected"`
}

// Stats returns ingest statistics.
func (s *Server) Stats() Stats {
	return Stats{
		MessagesReceived: s.messagesReceived.Load(),
		MessagesSent:     s.messagesSent.Load(),
		FramesReceived:   s.framesReceived.Load(),
		FramesAdmitted:   s.framesAdmitted.Load(),
		FramesRejected:   s.framesRejected.Load(),
	}
}
