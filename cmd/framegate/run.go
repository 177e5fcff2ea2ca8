package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-framegate/internal/config"
	"github.com/teslashibe/go-framegate/internal/log"
	"github.com/teslashibe/go-framegate/pkg/capture"
	"github.com/teslashibe/go-framegate/pkg/capture/gstreamer"
	"github.com/teslashibe/go-framegate/pkg/capture/synthetic"
	"github.com/teslashibe/go-framegate/pkg/classifier"
	"github.com/teslashibe/go-framegate/pkg/classifier/dnn"
	"github.com/teslashibe/go-framegate/pkg/display"
	"github.com/teslashibe/go-framegate/pkg/ingest"
	"github.com/teslashibe/go-framegate/pkg/pipeline"
	"github.com/teslashibe/go-framegate/pkg/store"
	"github.com/teslashibe/go-framegate/pkg/web"
)

type runOptions struct {
	source     string
	layout     string
	size       string
	fps        int
	v4l2       string
	rotation   int
	screen     int
	classifier string
	mockDelay  time.Duration
	model      string
	labels     string
	computeDev string
	threads    int
	addr       string
	noWeb      bool
	dbURL      string
	duration   time.Duration
	quiet      bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline against a frame source",
		Long: `Run feeds frames from a source into the pipeline, keeping at most one
frame in inference and dropping the rest.

Sources:
  synthetic  generated frames (--layout nv21|planar)
  gstreamer  videotestsrc, or a V4L2 camera with --v4l2 /dev/video0
  ingest     remote cameras streaming over /ws/camera/:id`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.source, "source", "s", "synthetic", "Frame source: synthetic, gstreamer, ingest")
	f.StringVar(&opts.layout, "layout", "nv21", "Synthetic frame layout: nv21, planar")
	f.StringVar(&opts.size, "size", "640x480", "Capture size WxH")
	f.IntVar(&opts.fps, "fps", 30, "Capture frame rate")
	f.StringVar(&opts.v4l2, "v4l2", "", "V4L2 device for the gstreamer source (default: test pattern)")
	f.IntVar(&opts.rotation, "rotation", 90, "Sensor rotation in degrees reported with the chosen size")
	f.IntVar(&opts.screen, "screen-rotation", 0, "Screen rotation code 0-3")
	f.StringVarP(&opts.classifier, "classifier", "c", "mock", "Classifier: mock, dnn")
	f.DurationVar(&opts.mockDelay, "mock-delay", 50*time.Millisecond, "Simulated inference time of the mock classifier")
	f.StringVar(&opts.model, "model", config.ModelPath(), "ONNX model for the dnn classifier")
	f.StringVar(&opts.labels, "labels", config.LabelsPath(), "Label file for the dnn classifier")
	f.StringVar(&opts.computeDev, "device", config.Device(), "Compute device: CPU, GPU, NNAPI")
	f.IntVarP(&opts.threads, "threads", "t", config.Threads(), "Classifier threads (1-9, CPU only)")
	f.StringVar(&opts.addr, "addr", config.Addr(), "Dashboard and ingest listen address")
	f.BoolVar(&opts.noWeb, "no-web", false, "Disable the dashboard (not allowed with --source ingest)")
	f.StringVar(&opts.dbURL, "db-url", config.DatabaseURL(), "PostgreSQL connection string for recording results (empty disables)")
	f.DurationVar(&opts.duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not log every published result")
	return cmd
}

func runPipeline(ctx context.Context, opts runOptions) error {
	logger := log.Component("run")

	if opts.source == "ingest" && opts.noWeb {
		return errors.New("--source ingest needs the web server")
	}
	size, err := parseSize(opts.size)
	if err != nil {
		return err
	}
	device, err := classifier.ParseDevice(opts.computeDev)
	if err != nil {
		return err
	}
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	model, err := newClassifier(opts)
	if err != nil {
		return err
	}

	// sinks is complete before the first session starts.
	var sinks display.Multi
	settings := classifier.NewSettings(classifier.Config{Device: device, Threads: opts.threads})
	p, err := pipeline.New(pipeline.Config{
		Classifier: model,
		Display:    display.Func(func(u display.Update) { sinks.Publish(u) }),
		Settings:   settings,
		Logger:     log.Component("pipeline"),
	})
	if err != nil {
		_ = model.Close()
		return err
	}

	if !opts.quiet {
		sinks = append(sinks, display.NewLog(log.Component("display")))
	}

	var (
		db  *store.Store
		rec *store.Recorder
	)
	if opts.dbURL != "" {
		db, err = store.New(ctx, opts.dbURL)
		if err != nil {
			_ = model.Close()
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		rec = store.NewRecorder(db, 0, log.Component("recorder"))
		sinks = append(sinks, rec)
	}

	var dash *web.Server
	if !opts.noWeb {
		dash = web.NewServer(p, web.Config{Addr: opts.addr, StatsInterval: time.Second}, log.Component("web"))
		sinks = append(sinks, dash)
	}

	var src capture.Source
	switch opts.source {
	case "synthetic":
		layout, lerr := parseLayout(opts.layout)
		if lerr != nil {
			err = lerr
			break
		}
		cfg := synthetic.DefaultConfig()
		cfg.Size = size
		cfg.FPS = opts.fps
		cfg.Rotation = opts.rotation
		src = synthetic.New(cfg, log.Component("synthetic"),
			synthetic.WithLayout(layout),
			synthetic.WithPattern(synthetic.PatternBars),
		)
	case "gstreamer":
		src = gstreamer.New(gstreamer.Config{
			Device:   opts.v4l2,
			Size:     size,
			FPS:      opts.fps,
			Rotation: opts.rotation,
		}, log.Component("gstreamer"))
	case "ingest":
		srv := ingest.New(p, ingest.DefaultConfig(), log.Component("ingest"))
		srv.RegisterRoutes(dash.App())
		srv.RegisterAPIRoutes(dash.App().Group("/api"))
	default:
		err = fmt.Errorf("unknown source %q (synthetic, gstreamer, ingest)", opts.source)
	}
	if err != nil {
		if db != nil {
			_ = db.Close(context.Background())
		}
		_ = model.Close()
		return err
	}

	// Shutdown order: sources and the dashboard stop with ctx, then the
	// pipeline drains, then the recorder flushes what the drain published.
	ctx, cancel := context.WithCancel(ctx)
	recCtx, recCancel := context.WithCancel(context.Background())
	var wg, recWG sync.WaitGroup
	errs := make(chan error, 2)

	if rec != nil {
		recWG.Add(1)
		go func() {
			defer recWG.Done()
			rec.Run(recCtx)
		}()
	}
	if dash != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Run(ctx); err != nil {
				errs <- fmt.Errorf("web server: %w", err)
			}
		}()
	}
	if src != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runSource(ctx, p, src, opts.screen, logger); err != nil {
				errs <- fmt.Errorf("%s source: %w", src.Name(), err)
			}
		}()
	}

	defer func() {
		cancel()
		wg.Wait()

		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := p.Close(stopCtx); err != nil {
			logger.Warn("pipeline close failed", "error", err)
		}
		if err := model.Close(); err != nil {
			logger.Warn("classifier close failed", "error", err)
		}
		st := p.Stats()
		logger.Info("pipeline stopped",
			"admitted", st.Admitted,
			"dropped", st.Dropped,
			"processed", st.Processed,
			"failed", st.Failed,
			"drop_rate", fmt.Sprintf("%.1f%%", 100*st.DropRate()),
		)

		recCancel()
		recWG.Wait()
		if rec != nil {
			rs := rec.Stats()
			logger.Info("recorder stopped", "recorded", rs.Recorded, "dropped", rs.Dropped, "failed", rs.Failed)
			if err := db.Close(context.Background()); err != nil {
				logger.Warn("database close failed", "error", err)
			}
		}
	}()

	logger.Info("framegate running",
		"source", opts.source,
		"classifier", opts.classifier,
		"device", device,
		"threads", settings.ThreadsLabel(),
		"addr", opts.addr,
	)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errs:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}
}

// runSource holds one pipeline session for the lifetime of a local source.
func runSource(ctx context.Context, p *pipeline.Pipeline, src capture.Source, screen int, logger *slog.Logger) error {
	if err := p.StartSession(ctx, pipeline.SessionConfig{ScreenRotation: capture.Rotation(screen).Degrees()}); err != nil {
		return err
	}
	logger.Info("session started", "session", p.Session(), "source", src.Name())

	err := src.Run(ctx, p)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if stopErr := p.StopSession(stopCtx); stopErr != nil && !errors.Is(stopErr, pipeline.ErrNoSession) {
		logger.Warn("failed to stop session", "error", stopErr)
	}
	st := src.Stats()
	logger.Info("source stopped", "source", src.Name(), "produced", st.Produced, "skipped", st.Skipped)
	return err
}

func newClassifier(opts runOptions) (classifier.Classifier, error) {
	switch opts.classifier {
	case "mock":
		m := classifier.NewMock()
		m.DiscardCalls = true
		delay := opts.mockDelay
		base := m.ClassifyFunc
		m.ClassifyFunc = func(ctx context.Context, in classifier.Input) ([]classifier.Recognition, error) {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return base(ctx, in)
		}
		return m, nil
	case "dnn":
		cfg := dnn.DefaultConfig()
		cfg.ModelPath = opts.model
		cfg.LabelsPath = opts.labels
		return dnn.New(cfg)
	default:
		return nil, fmt.Errorf("unknown classifier %q (mock, dnn)", opts.classifier)
	}
}
