package protocol

import (
	"encoding/base64"
	"fmt"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewHelloMessage creates a hello message
func NewHelloMessage(width, height int, format string, rotation int) (*Message, error) {
	return NewMessage(TypeHello, HelloData{
		Width:    width,
		Height:   height,
		Format:   format,
		Rotation: rotation,
	})
}

// NewFrameMessage creates a frame message from raw YUV data
func NewFrameMessage(raw []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		FrameID: frameID,
		Data:    base64.StdEncoding.EncodeToString(raw),
	})
}

// NewReadyMessage creates a ready message
func NewReadyMessage(session string, width, height int) (*Message, error) {
	return NewMessage(TypeReady, ReadyData{Session: session, Width: width, Height: height})
}

// NewAckMessage creates an ack message
func NewAckMessage(frameID uint64, admitted bool) (*Message, error) {
	return NewMessage(TypeAck, AckData{FrameID: frameID, Admitted: admitted})
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Code: code, Message: message})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: 0, // Will be set by NewMessage
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetHelloData extracts hello data from a message
func (m *Message) GetHelloData() (*HelloData, error) {
	var data HelloData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodedLen returns the exact decoded size of a well-formed padded payload.
func (f *FrameData) DecodedLen() int {
	n := len(f.Data)
	if n == 0 || n%4 != 0 {
		return base64.StdEncoding.DecodedLen(n)
	}
	size := n / 4 * 3
	for i := n - 1; i >= n-2 && f.Data[i] == '='; i-- {
		size--
	}
	return size
}

// DecodeInto decodes the base64 payload into dst and returns the number of
// bytes written. dst must hold at least DecodedLen bytes.
func (f *FrameData) DecodeInto(dst []byte) (int, error) {
	if len(dst) < f.DecodedLen() {
		return 0, fmt.Errorf("frame %d: buffer %d bytes, payload needs %d", f.FrameID, len(dst), f.DecodedLen())
	}
	return base64.StdEncoding.Decode(dst, []byte(f.Data))
}

// DecodeFrameData decodes the base64 frame data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetReadyData extracts ready data from a message
func (m *Message) GetReadyData() (*ReadyData, error) {
	var data ReadyData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAckData extracts ack data from a message
func (m *Message) GetAckData() (*AckData, error) {
	var data AckData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
