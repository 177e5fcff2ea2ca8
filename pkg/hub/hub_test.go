package hub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-framegate/pkg/protocol"
)

// fakeConn blocks reads until closed and records writes.
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	closed chan struct{}
	once   sync.Once
	got    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{}), got: make(chan struct{}, 64)}
}

func (f *fakeConn) SetReadLimit(int64) {}
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(mt int, data []byte) error {
	if mt != websocket.TextMessage {
		return nil
	}
	f.mu.Lock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	f.mu.Unlock()
	f.got <- struct{}{}
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	for i, w := range f.writes {
		out[i] = string(w)
	}
	return out
}

func (f *fakeConn) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d writes", i, n)
		}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func topics(t *testing.T, c *fakeConn) []protocol.MessageType {
	t.Helper()
	var out []protocol.MessageType
	for _, raw := range c.messages() {
		msg, err := protocol.ParseMessage([]byte(raw))
		if err != nil {
			t.Fatalf("ParseMessage(%q): %v", raw, err)
		}
		out = append(out, msg.Type)
	}
	return out
}

func TestBroadcastReachesClients(t *testing.T) {
	h, _ := startHub(t)

	a, b := newFakeConn(), newFakeConn()
	go NewClient(h, a).Run()
	go NewClient(h, b).Run()
	waitClients(t, h, 2)

	if err := h.Publish(protocol.TypeResult, map[string]int{"frame": 1}); err != nil {
		t.Fatal(err)
	}
	a.wait(t, 1)
	b.wait(t, 1)

	for _, c := range []*fakeConn{a, b} {
		msg, err := protocol.ParseMessage([]byte(c.messages()[0]))
		if err != nil {
			t.Fatal(err)
		}
		var data map[string]int
		if err := msg.ParseData(&data); err != nil {
			t.Fatal(err)
		}
		if msg.Type != protocol.TypeResult || data["frame"] != 1 {
			t.Errorf("message = %s %v", msg.Type, data)
		}
	}

	a.Close()
	waitClients(t, h, 1)
}

func TestRetainedTopicsReplayOnJoin(t *testing.T) {
	h := New("test", quietLogger(), protocol.TypeConfig, protocol.TypeResult)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	// Published before Run: replayed in retain order, stats not kept.
	h.Publish(protocol.TypeResult, map[string]int{"frame": 1})
	h.Publish(protocol.TypeResult, map[string]int{"frame": 2})
	h.Publish(protocol.TypeStats, map[string]int{"dropped": 4})
	h.Publish(protocol.TypeConfig, map[string]string{"device": "CPU"})
	go h.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := h.Latest(protocol.TypeConfig); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("config never retained")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := h.Latest(protocol.TypeStats); ok {
		t.Error("stats topic retained")
	}

	c := newFakeConn()
	go NewClient(h, c).Run()
	c.wait(t, 2)
	got := topics(t, c)
	if len(got) != 2 || got[0] != protocol.TypeConfig || got[1] != protocol.TypeResult {
		t.Fatalf("replayed topics = %v, want [config result]", got)
	}

	latest, _ := h.Latest(protocol.TypeResult)
	msg, _ := protocol.ParseMessage(latest.Data)
	var data map[string]int
	if err := msg.ParseData(&data); err != nil || data["frame"] != 2 {
		t.Errorf("latest result = %v, %v; want frame 2", data, err)
	}

	h.Publish(protocol.TypeStats, map[string]int{"dropped": 5})
	c.wait(t, 1)
	if got := topics(t, c); got[2] != protocol.TypeStats {
		t.Errorf("live message after replay = %v", got)
	}
}

func TestPublishEncodeError(t *testing.T) {
	h := New("test", quietLogger())
	if err := h.Publish(protocol.TypeResult, make(chan int)); err == nil {
		t.Error("Publish() accepted an unmarshalable value")
	}
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := New("idle", quietLogger())
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastQueue+10; i++ {
			h.Broadcast(Message{Topic: protocol.TypeStats, Data: []byte{byte(i)}})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked with no Run loop")
	}
	if h.Dropped() != 10 {
		t.Errorf("Dropped = %d, want 10", h.Dropped())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h, cancel := startHub(t)
	c := newFakeConn()
	done := make(chan struct{})
	go func() {
		NewClient(h, c).Run()
		close(done)
	}()
	waitClients(t, h, 1)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop with the hub")
	}
	if h.IsRunning() {
		t.Error("IsRunning() = true after cancel")
	}

	// late clients are turned away
	late := newFakeConn()
	NewClient(h, late).Run()
	select {
	case <-late.closed:
	default:
		t.Error("late client connection left open")
	}
}
