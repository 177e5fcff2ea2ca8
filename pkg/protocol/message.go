// Package protocol defines the WebSocket message types exchanged with
// remote cameras and dashboard clients.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Camera → Server messages
	TypeHello MessageType = "hello" // Session geometry, sent once per connection
	TypeFrame MessageType = "frame" // Raw YUV frame

	// Server → Camera messages
	TypeReady MessageType = "ready" // Session started
	TypeAck   MessageType = "ack"   // Frame admitted or dropped
	TypeError MessageType = "error" // Request rejected

	// Server → Dashboard messages
	TypeResult MessageType = "result" // Recognition update
	TypeConfig MessageType = "config" // Classifier settings
	TypeStats  MessageType = "stats"  // Pipeline counters

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Frame formats a camera may announce.
const (
	FormatNV21 = "nv21" // one semi-planar buffer, pushed
	FormatI420 = "i420" // three planes, latest wins
)

// MaxDimension bounds each side of an announced frame.
const MaxDimension = 8192

// ErrInvalidHello is returned by HelloData.Validate.
var ErrInvalidHello = errors.New("protocol: invalid hello")

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Camera → Server Message Types
// =============================================================================

// HelloData announces a camera's geometry
type HelloData struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"` // "nv21", "i420"

	// Rotation is the sensor rotation in degrees announced with the size.
	// NV21 cameras always announce 90.
	Rotation int `json:"rotation,omitempty"`
	// ScreenRotation is the client's display rotation code, 0..3.
	ScreenRotation int `json:"screen_rotation,omitempty"`
}

// Validate checks the geometry and format.
func (h *HelloData) Validate() error {
	if h.Width <= 0 || h.Height <= 0 || h.Width > MaxDimension || h.Height > MaxDimension {
		return fmt.Errorf("%w: size %dx%d, each side must be 1..%d", ErrInvalidHello, h.Width, h.Height, MaxDimension)
	}
	switch h.Format {
	case FormatNV21, FormatI420:
		return nil
	default:
		return fmt.Errorf("%w: format %q", ErrInvalidHello, h.Format)
	}
}

// FrameData contains one raw frame
type FrameData struct {
	FrameID uint64 `json:"frame_id,omitempty"`
	Data    string `json:"data"` // base64 encoded
}

// =============================================================================
// Server → Camera Message Types
// =============================================================================

// ReadyData confirms a session
type ReadyData struct {
	Session string `json:"session"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// AckData reports whether a frame was admitted
type AckData struct {
	FrameID  uint64 `json:"frame_id"`
	Admitted bool   `json:"admitted"`
}

// ErrorData describes a rejected request
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	CodeBusy     = "busy"
	CodeBadHello = "bad_hello"
	CodeNoHello  = "no_hello"
	CodeBadFrame = "bad_frame"
)

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
