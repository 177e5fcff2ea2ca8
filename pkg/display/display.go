// Package display defines the presentation collaborator that receives
// per-frame value updates from the pipeline.
package display

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-framegate/pkg/classifier"
	"github.com/teslashibe/go-framegate/pkg/frame"
)

// Entry is one formatted recognition line.
type Entry struct {
	Title      string `json:"title"`
	Confidence string `json:"confidence"`
}

// Update is everything published for one processed frame.
type Update struct {
	Session string    `json:"session"`
	Frame   uint64    `json:"frame"`
	Time    time.Time `json:"time"`

	// Results are the ranked raw results.
	Results []classifier.Recognition `json:"results"`
	// Top holds the formatted top-3 entries; empty when fewer than three
	// results came back.
	Top []Entry `json:"top,omitempty"`

	FrameSize        string        `json:"frame_size"`
	CropSize         string        `json:"crop_size"`
	CameraResolution string        `json:"camera_resolution"`
	Rotation         string        `json:"rotation"`
	Inference        string        `json:"inference"`
	Latency          time.Duration `json:"latency_ns"`

	Device  classifier.Device `json:"device"`
	Threads string            `json:"threads"`
}

// Display receives updates. Publish is called from the pipeline's
// background goroutine and must not block for long.
type Display interface {
	Publish(u Update)
}

// Func adapts a plain function to Display.
type Func func(u Update)

// Publish calls f.
func (f Func) Publish(u Update) {
	f(u)
}

// Multi fans an update out to several displays in order.
type Multi []Display

// Publish publishes to every display.
func (m Multi) Publish(u Update) {
	for _, d := range m {
		if d != nil {
			d.Publish(u)
		}
	}
}

// Discard drops every update.
var Discard Display = Func(func(Update) {})

// TopEntries formats the three best results. Fewer than three results
// yield nil.
func TopEntries(results []classifier.Recognition) []Entry {
	if len(results) < 3 {
		return nil
	}
	out := make([]Entry, 3)
	for i := range out {
		out[i] = Entry{
			Title:      results[i].Title,
			Confidence: FormatConfidence(results[i].Confidence),
		}
	}
	return out
}

// FormatConfidence renders a 0..1 confidence as a percentage, "72.00%".
func FormatConfidence(c float32) string {
	return fmt.Sprintf("%.2f%%", 100*c)
}

// FormatSize renders a size as "WxH".
func FormatSize(s frame.Size) string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// FormatLatency renders a duration in whole milliseconds, "12ms".
func FormatLatency(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// Log writes updates to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log display.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Publish logs the update at info level.
func (l *Log) Publish(u Update) {
	args := []any{
		"session", u.Session,
		"frame", u.Frame,
		"frame_size", u.FrameSize,
		"crop", u.CropSize,
		"rotation", u.Rotation,
		"inference", u.Inference,
		"device", u.Device,
		"threads", u.Threads,
	}
	for i, e := range u.Top {
		args = append(args, fmt.Sprintf("top%d", i+1), e.Title+" "+e.Confidence)
	}
	l.logger.Info("recognition", args...)
}
