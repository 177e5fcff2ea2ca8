package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-framegate/internal/log"
	"github.com/teslashibe/go-framegate/pkg/capture/synthetic"
	"github.com/teslashibe/go-framegate/pkg/classifier"
	"github.com/teslashibe/go-framegate/pkg/frame"
	"github.com/teslashibe/go-framegate/pkg/pipeline"
	"github.com/teslashibe/go-framegate/pkg/yuv"
)

type benchOptions struct {
	size      string
	layout    string
	frames    int
	pipeline  bool
	fps       int
	mockDelay time.Duration
}

func newBenchCmd() *cobra.Command {
	opts := benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure YUV conversion throughput, or pipeline drop rate with --pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := parseSize(opts.size)
			if err != nil {
				return err
			}
			layout, err := parseLayout(opts.layout)
			if err != nil {
				return err
			}
			if opts.frames <= 0 {
				return fmt.Errorf("--frames must be positive")
			}
			if opts.pipeline {
				return benchPipeline(cmd.Context(), size, opts)
			}
			return benchConvert(cmd.Context(), size, layout, opts.frames)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.size, "size", "640x480", "Frame size WxH")
	f.StringVar(&opts.layout, "layout", "nv21", "Frame layout: nv21, planar")
	f.IntVarP(&opts.frames, "frames", "n", 300, "Number of frames")
	f.BoolVar(&opts.pipeline, "pipeline", false, "Feed frames through the pipeline with a mock classifier")
	f.IntVar(&opts.fps, "fps", 30, "Capture rate for --pipeline")
	f.DurationVar(&opts.mockDelay, "mock-delay", 100*time.Millisecond, "Mock inference time for --pipeline")
	return cmd
}

func benchConvert(ctx context.Context, size frame.Size, layout frame.Layout, frames int) error {
	set := frame.NewBufferSet()
	set.Reset(size)

	var stage func()
	switch layout {
	case frame.LayoutPlanar:
		l := synthetic.NewPlanarLayout(size)
		backing := make([]byte, l.Len())
		fill(backing)
		p := l.Planes(backing)
		planes := [3]frame.Plane{p[0], p[1], p[2]}
		stage = func() { set.StagePlanar(planes) }
	default:
		data := make([]byte, yuv.SemiPlanarLen(size.Width, size.Height))
		fill(data)
		stage = func() { set.StageSemiPlanar(data) }
	}

	bar := progressbar.NewOptions(frames,
		progressbar.OptionSetDescription(fmt.Sprintf("Converting %s %s", layout, size)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	start := time.Now()
	done := 0
	for ; done < frames; done++ {
		if ctx.Err() != nil {
			break
		}
		stage()
		set.Pixels()
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	elapsed := time.Since(start)
	if done == 0 {
		return ctx.Err()
	}

	per := elapsed / time.Duration(done)
	mpx := float64(done*size.Pixels()) / elapsed.Seconds() / 1e6
	fmt.Printf("\n%d frames in %s: %s/frame, %.1f fps, %.1f Mpx/s\n",
		done, elapsed.Round(time.Millisecond), per, float64(done)/elapsed.Seconds(), mpx)
	return nil
}

func benchPipeline(ctx context.Context, size frame.Size, opts benchOptions) error {
	m := classifier.NewMock()
	m.DiscardCalls = true
	base := m.ClassifyFunc
	m.ClassifyFunc = func(ctx context.Context, in classifier.Input) ([]classifier.Recognition, error) {
		time.Sleep(opts.mockDelay)
		return base(ctx, in)
	}

	p, err := pipeline.New(pipeline.Config{Classifier: m, Logger: log.Component("pipeline")})
	if err != nil {
		return err
	}
	if err := p.StartSession(ctx, pipeline.SessionConfig{}); err != nil {
		return err
	}
	p.PreviewSizeChosen(size, 90)

	data := make([]byte, yuv.SemiPlanarLen(size.Width, size.Height))
	fill(data)

	bar := progressbar.NewOptions(opts.frames,
		progressbar.OptionSetDescription(fmt.Sprintf("Feeding %s at %d fps", size, opts.fps)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	interval := time.Second / time.Duration(max(opts.fps, 1))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

feed:
	for i := 0; i < opts.frames; i++ {
		select {
		case <-ctx.Done():
			break feed
		case <-ticker.C:
		}
		if adm, ok := p.Admit(); ok {
			adm.StageSemiPlanar(data)
			adm.Dispatch(func() error { return nil })
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.StopSession(stopCtx); err != nil {
		return err
	}

	st := p.Stats()
	fmt.Printf("\nadmitted %d, dropped %d, processed %d (drop rate %.1f%%, last inference %s)\n",
		st.Admitted, st.Dropped, st.Processed, 100*st.DropRate(), st.LastLatency)
	return nil
}

// fill writes a repeating ramp.
func fill(buf []byte) {
	for i := range buf {
		buf[i] = byte(i)
	}
}
