package ingest

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-framegate/pkg/protocol"
)

// cameraConn represents a connected camera
type cameraConn struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	logger *slog.Logger

	mu     sync.Mutex
	feeder *feeder
	hello  *protocol.HelloData

	writeMu sync.Mutex
}

// Send sends a message to the camera
func (c *cameraConn) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

func (c *cameraConn) touch() {
	c.mu.Lock()
	c.LastSeen = time.Now()
	c.mu.Unlock()
}

func (c *cameraConn) setFeeder(f *feeder, hello *protocol.HelloData) {
	c.mu.Lock()
	c.feeder = f
	c.hello = hello
	c.mu.Unlock()
}

func (c *cameraConn) currentFeeder() *feeder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feeder
}

func (c *cameraConn) takeFeeder() *feeder {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.feeder
	c.feeder = nil
	return f
}

func (c *cameraConn) info() CameraInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := CameraInfo{
		ID:        c.ID,
		Connected: c.Connected,
		LastSeen:  c.LastSeen,
	}
	if c.hello != nil {
		info.Format = c.hello.Format
		info.Width = c.hello.Width
		info.Height = c.hello.Height
	}
	return info
}
