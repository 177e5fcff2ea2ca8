package classifier

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// Thread count bounds.
const (
	MinThreads = 1
	MaxThreads = 9
)

// Config holds the execution parameters the classifier is built from.
type Config struct {
	Device  Device `json:"device"`
	Threads int    `json:"threads"`
}

// DefaultConfig returns CPU with a single thread.
func DefaultConfig() Config {
	return Config{
		Device:  DeviceCPU,
		Threads: MinThreads,
	}
}

// Validate returns a list of validation problems, empty when valid.
func (c Config) Validate() []string {
	var errs []string
	if _, err := ParseDevice(string(c.Device)); err != nil {
		errs = append(errs, fmt.Sprintf("device %q is not one of CPU, GPU, NNAPI", c.Device))
	}
	if c.Threads < MinThreads || c.Threads > MaxThreads {
		errs = append(errs, fmt.Sprintf("threads must be %d-%d, got %d", MinThreads, MaxThreads, c.Threads))
	}
	return errs
}

// Settings holds the current classifier configuration and notifies
// listeners when it changes. Writes of the current value never notify.
// The configuration outlives pipeline sessions.
type Settings struct {
	mu        sync.RWMutex
	config    Config
	listeners []func(Config)
}

// NewSettings creates settings from cfg, clamping the thread count and
// falling back to CPU for an unknown device.
func NewSettings(cfg Config) *Settings {
	if _, err := ParseDevice(string(cfg.Device)); err != nil {
		cfg.Device = DeviceCPU
	}
	cfg.Threads = clampThreads(cfg.Threads)
	return &Settings{config: cfg}
}

// OnChange registers a listener called after every effective change.
// Listeners run on the goroutine that made the change, outside the lock.
func (s *Settings) OnChange(fn func(Config)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Config returns the current configuration.
func (s *Settings) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Device returns the selected device.
func (s *Settings) Device() Device {
	return s.Config().Device
}

// Threads returns the stored thread count. It is kept while a non-CPU
// device is selected so it applies again when CPU is reselected.
func (s *Settings) Threads() int {
	return s.Config().Threads
}

// ThreadsLabel is the thread count as shown to a user: "N/A" unless the
// device is CPU.
func (s *Settings) ThreadsLabel() string {
	cfg := s.Config()
	if cfg.Device != DeviceCPU {
		return "N/A"
	}
	return strconv.Itoa(cfg.Threads)
}

// SetDevice selects a device. Reports whether the value changed; unknown
// devices are ignored.
func (s *Settings) SetDevice(d Device) bool {
	if _, err := ParseDevice(string(d)); err != nil {
		return false
	}
	return s.apply(func(c *Config) { c.Device = d })
}

// SetThreads sets the thread count, clamped to [MinThreads, MaxThreads].
// Reports whether the value changed.
func (s *Settings) SetThreads(n int) bool {
	n = clampThreads(n)
	return s.apply(func(c *Config) { c.Threads = n })
}

// IncrementThreads adds one thread unless already at MaxThreads.
func (s *Settings) IncrementThreads() bool {
	return s.apply(func(c *Config) {
		if c.Threads < MaxThreads {
			c.Threads++
		}
	})
}

// DecrementThreads removes one thread unless already at MinThreads.
func (s *Settings) DecrementThreads() bool {
	return s.apply(func(c *Config) {
		if c.Threads > MinThreads {
			c.Threads--
		}
	})
}

// Update applies "device" and "threads" from a decoded JSON object as a
// single change. Reports whether anything changed.
func (s *Settings) Update(params map[string]interface{}) (bool, error) {
	next := s.Config()

	if v, ok := params["device"]; ok {
		name, ok := v.(string)
		if !ok {
			return false, fmt.Errorf("device must be a string, got %T", v)
		}
		d, err := ParseDevice(name)
		if err != nil {
			return false, err
		}
		next.Device = d
	}
	if v, ok := params["threads"]; ok {
		n, ok := toInt(v)
		if !ok {
			return false, fmt.Errorf("threads must be a number, got %T", v)
		}
		next.Threads = clampThreads(n)
	}

	return s.apply(func(c *Config) { *c = next }), nil
}

// apply mutates a copy of the config and stores and notifies only when
// the result differs.
func (s *Settings) apply(mutate func(*Config)) bool {
	s.mu.Lock()
	next := s.config
	mutate(&next)
	if next == s.config {
		s.mu.Unlock()
		return false
	}
	s.config = next
	listeners := append([]func(Config){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return true
}

func clampThreads(n int) int {
	if n < MinThreads {
		return MinThreads
	}
	if n > MaxThreads {
		return MaxThreads
	}
	return n
}

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	case string:
		i, err := strconv.Atoi(val)
		if err == nil {
			return i, true
		}
	}
	return 0, false
}
