package main

import (
	"context"
	"strings"
	"testing"

	"github.com/teslashibe/go-framegate/pkg/classifier"
	"github.com/teslashibe/go-framegate/pkg/display"
	"github.com/teslashibe/go-framegate/pkg/frame"
	"github.com/teslashibe/go-framegate/pkg/pipeline"
	"github.com/teslashibe/go-framegate/pkg/protocol"
	"github.com/teslashibe/go-framegate/pkg/web"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    frame.Size
		wantErr bool
	}{
		{"640x480", frame.Size{Width: 640, Height: 480}, false},
		{" 1280X720 ", frame.Size{Width: 1280, Height: 720}, false},
		{"640", frame.Size{}, true},
		{"0x480", frame.Size{}, true},
		{"ax480", frame.Size{}, true},
		{"640x-1", frame.Size{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseSize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseLayout(t *testing.T) {
	tests := []struct {
		in   string
		want frame.Layout
		ok   bool
	}{
		{"nv21", frame.LayoutSemiPlanar, true},
		{"NV21", frame.LayoutSemiPlanar, true},
		{"planar", frame.LayoutPlanar, true},
		{"i420", frame.LayoutPlanar, true},
		{"rgb", frame.LayoutUnknown, false},
	}
	for _, tt := range tests {
		got, err := parseLayout(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("parseLayout(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestNewClassifier(t *testing.T) {
	c, err := newClassifier(runOptions{classifier: "mock"})
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	m, ok := c.(*classifier.Mock)
	if !ok {
		t.Fatalf("mock classifier is %T", c)
	}
	for i := 0; i < 5; i++ {
		if _, err := m.Classify(context.Background(), classifier.Input{Width: 2, Height: 2}); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(m.Calls()); n != 0 {
		t.Errorf("run mock recorded %d calls, want none", n)
	}
	if _, err := newClassifier(runOptions{classifier: "tflite"}); err == nil {
		t.Error("unknown classifier accepted")
	}
	if _, err := newClassifier(runOptions{classifier: "dnn", model: "does/not/exist.onnx"}); err == nil {
		t.Error("missing model accepted")
	}
}

func TestDescribe(t *testing.T) {
	result, _ := protocol.NewMessage(protocol.TypeResult, display.Update{
		Frame:     3,
		FrameSize: "640x480",
		Rotation:  "90",
		Inference: "12ms",
		Device:    "CPU",
		Threads:   "2",
		Top:       []display.Entry{{Title: "tabby", Confidence: "72.00%"}},
	})
	config, _ := protocol.NewMessage(protocol.TypeConfig, web.ConfigView{Device: "GPU", Label: "N/A"})
	stats, _ := protocol.NewMessage(protocol.TypeStats, pipeline.Stats{Admitted: 1, Dropped: 3})

	tests := []struct {
		name      string
		msg       *protocol.Message
		showStats bool
		want      string
	}{
		{"result", result, false, "#3 640x480 rot 90 12ms [CPU/2] tabby 72.00%"},
		{"config", config, false, "config: device GPU threads N/A"},
		{"stats hidden", stats, false, ""},
		{"stats shown", stats, true, "75.0% dropped"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describe(tt.msg, tt.showStats)
			if tt.want == "" {
				if got != "" {
					t.Errorf("describe() = %q, want empty", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "bench", "history", "watch", "ctl"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("Find(%q) = %v, %v", name, cmd, err)
		}
	}
}
