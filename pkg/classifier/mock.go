package classifier

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-framegate/pkg/frame"
)

// Mock implements Classifier for testing.
type Mock struct {
	// ClassifyFunc is called when Classify is invoked.
	ClassifyFunc func(ctx context.Context, in Input) ([]Recognition, error)

	// ReconfigureFunc is called when Reconfigure is invoked.
	ReconfigureFunc func(ctx context.Context, device Device, threads int) error

	// Size is returned by InputSize.
	Size frame.Size

	// DiscardCalls turns off call recording for long-running use.
	DiscardCalls bool

	mu     sync.Mutex
	calls  []MockCall
	closed bool
}

// MockCall records a method invocation.
type MockCall struct {
	Method  string
	Device  Device
	Threads int
	Width   int
	Height  int
	Time    time.Time
}

// NewMock creates a mock returning three fixed results.
func NewMock() *Mock {
	return &Mock{
		ClassifyFunc: func(ctx context.Context, in Input) ([]Recognition, error) {
			return []Recognition{
				{ID: "0", Title: "tabby", Confidence: 0.72},
				{ID: "1", Title: "tiger cat", Confidence: 0.18},
				{ID: "2", Title: "egyptian cat", Confidence: 0.05},
			}, nil
		},
		Size: frame.Size{Width: 224, Height: 224},
	}
}

// Classify calls ClassifyFunc and records the call.
func (m *Mock) Classify(ctx context.Context, in Input) ([]Recognition, error) {
	m.record(MockCall{Method: "Classify", Width: in.Width, Height: in.Height})
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, in)
	}
	return nil, nil
}

// Reconfigure calls ReconfigureFunc and records the call.
func (m *Mock) Reconfigure(ctx context.Context, device Device, threads int) error {
	m.record(MockCall{Method: "Reconfigure", Device: device, Threads: threads})
	if m.ReconfigureFunc != nil {
		return m.ReconfigureFunc(ctx, device, threads)
	}
	return nil
}

// InputSize returns Size.
func (m *Mock) InputSize() frame.Size {
	return m.Size
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mock) record(c MockCall) {
	if m.DiscardCalls {
		return
	}
	c.Time = time.Now()
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of calls to a method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

var _ Classifier = (*Mock)(nil)
