package pipeline

import (
	"sync/atomic"
	"time"
)

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Session  string `json:"session,omitempty"`
	Active   bool   `json:"active"`
	InFlight bool   `json:"in_flight"`

	Admitted      uint64 `json:"admitted"`
	Dropped       uint64 `json:"dropped"`
	Processed     uint64 `json:"processed"`
	Failed        uint64 `json:"failed"`
	Released      uint64 `json:"released"`
	ReleaseErrors uint64 `json:"release_errors"`

	LastLatency time.Duration `json:"last_latency_ns"`
}

// DropRate returns dropped / (admitted + dropped), 0 when nothing arrived.
func (s Stats) DropRate() float64 {
	total := s.Admitted + s.Dropped
	if total == 0 {
		return 0
	}
	return float64(s.Dropped) / float64(total)
}

type counters struct {
	admitted      atomic.Uint64
	dropped       atomic.Uint64
	processed     atomic.Uint64
	failed        atomic.Uint64
	released      atomic.Uint64
	releaseErrors atomic.Uint64
	lastLatency   atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Admitted:      c.admitted.Load(),
		Dropped:       c.dropped.Load(),
		Processed:     c.processed.Load(),
		Failed:        c.failed.Load(),
		Released:      c.released.Load(),
		ReleaseErrors: c.releaseErrors.Load(),
		LastLatency:   time.Duration(c.lastLatency.Load()),
	}
}
