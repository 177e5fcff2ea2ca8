package display

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-framegate/pkg/classifier"
	"github.com/teslashibe/go-framegate/pkg/frame"
)

func TestTopEntries(t *testing.T) {
	three := []classifier.Recognition{
		{Title: "tabby", Confidence: 0.7234},
		{Title: "tiger cat", Confidence: 0.18},
		{Title: "lynx", Confidence: 0.005},
		{Title: "ignored", Confidence: 0.001},
	}

	got := TopEntries(three)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	want := []Entry{
		{"tabby", "72.34%"},
		{"tiger cat", "18.00%"},
		{"lynx", "0.50%"},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if TopEntries(three[:2]) != nil {
		t.Error("fewer than three results should yield nil")
	}
}

func TestFormatters(t *testing.T) {
	if got := FormatSize(frame.Size{Width: 640, Height: 480}); got != "640x480" {
		t.Errorf("FormatSize = %q", got)
	}
	if got := FormatLatency(12*time.Millisecond + 700*time.Microsecond); got != "12ms" {
		t.Errorf("FormatLatency = %q", got)
	}
}

func TestMulti(t *testing.T) {
	var a, b int
	m := Multi{
		Func(func(Update) { a++ }),
		nil,
		Func(func(Update) { b++ }),
	}
	m.Publish(Update{})
	if a != 1 || b != 1 {
		t.Errorf("fan-out counts a=%d b=%d, want 1 1", a, b)
	}
}

func TestLogPublish(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(slog.New(slog.NewTextHandler(&buf, nil)))
	l.Publish(Update{
		Session: "s1",
		Frame:   3,
		Top:     []Entry{{"tabby", "72.00%"}},
	})
	out := buf.String()
	for _, want := range []string{"recognition", "session=s1", "frame=3", "top1=\"tabby 72.00%\""} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}
