package synthetic

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/teslashibe/go-framegate/pkg/classifier"
	"github.com/teslashibe/go-framegate/pkg/frame"
	"github.com/teslashibe/go-framegate/pkg/pipeline"
	"github.com/teslashibe/go-framegate/pkg/yuv"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPlanarLayoutIsGray(t *testing.T) {
	size := frame.Size{Width: 6, Height: 4}
	l := NewPlanarLayout(size)
	if l.YStride != 16 {
		t.Fatalf("YStride = %d, want 16", l.YStride)
	}

	s := New(Config{Size: size, Layout: frame.LayoutPlanar, Luma: 128, Chroma: 128}, quietLogger())
	backing := make([]byte, l.Len())
	s.fillPlanar(l, backing)
	planes := l.Planes(backing)

	out := make([]uint32, size.Pixels())
	yuv.PlanarToARGB(planes[0].Data, planes[1].Data, planes[2].Data,
		size.Width, size.Height, planes[0].RowStride, planes[1].RowStride, planes[1].PixelStride, out)
	for i, px := range out {
		if r, g, b := yuv.RGB(px); r != 130 || g != 130 || b != 130 {
			t.Fatalf("pixel %d = (%d,%d,%d)", i, r, g, b)
		}
	}
}

func TestPlanarLayoutFitsBufferSet(t *testing.T) {
	for _, size := range []frame.Size{{Width: 640, Height: 480}, {Width: 7, Height: 5}} {
		l := NewPlanarLayout(size)
		planes := l.Planes(make([]byte, l.Len()))

		b := frame.NewBufferSet()
		b.Reset(size)
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("%v: StagePlanar panicked: %v", size, r)
				}
			}()
			b.StagePlanar([3]frame.Plane{planes[0], planes[1], planes[2]})
		}()
	}
}

func TestRunFeedsPipeline(t *testing.T) {
	tests := []struct {
		name   string
		layout frame.Layout
	}{
		{"semi-planar", frame.LayoutSemiPlanar},
		{"planar", frame.LayoutPlanar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := classifier.NewMock()
			p, err := pipeline.New(pipeline.Config{Classifier: mock, Logger: quietLogger()})
			if err != nil {
				t.Fatal(err)
			}
			if err := p.StartSession(context.Background(), pipeline.SessionConfig{}); err != nil {
				t.Fatal(err)
			}

			src := New(Config{
				Size:    frame.Size{Width: 64, Height: 48},
				FPS:     200,
				Pattern: PatternBars,
			}, quietLogger(), WithLayout(tt.layout))

			ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
			defer cancel()
			if err := src.Run(ctx, p); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if err := p.StopSession(context.Background()); err != nil {
				t.Fatal(err)
			}

			if src.Stats().Produced == 0 {
				t.Fatal("no frames produced")
			}
			st := p.Stats()
			if st.Processed == 0 {
				t.Errorf("no frames processed: %+v", st)
			}
			if st.Released != st.Admitted {
				t.Errorf("released %d of %d admitted frames", st.Released, st.Admitted)
			}
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	s := New(Config{}, nil)
	def := DefaultConfig()
	if s.cfg.Size != def.Size || s.cfg.FPS != def.FPS || s.cfg.Layout != def.Layout {
		t.Errorf("config = %+v", s.cfg)
	}
	if s.Name() != "synthetic" {
		t.Errorf("Name = %q", s.Name())
	}
}
