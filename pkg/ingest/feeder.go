package ingest

import (
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-framegate/pkg/capture"
	"github.com/teslashibe/go-framegate/pkg/frame"
	"github.com/teslashibe/go-framegate/pkg/protocol"
	"github.com/teslashibe/go-framegate/pkg/yuv"
)

// feeder turns decoded frames into capture callbacks for one session.
type feeder struct {
	size frame.Size
	pool *capture.BufferPool

	// nv21
	camera  *capture.PoolCamera
	preview *capture.PreviewAdapter

	// i420
	layout packedI420
	latest *capture.LatestImage
	image  *capture.ImageAdapter
}

func newFeeder(sink capture.Sink, hello *protocol.HelloData, buffers int, logger *slog.Logger) *feeder {
	size := frame.Size{Width: hello.Width, Height: hello.Height}
	f := &feeder{size: size}

	switch hello.Format {
	case protocol.FormatI420:
		f.layout = newPackedI420(size)
		f.pool = capture.NewBufferPool(buffers, f.layout.Len())
		f.latest = &capture.LatestImage{}
		f.image = capture.NewImageAdapter(sink, logger)
		sink.PreviewSizeChosen(size, hello.Rotation)
	default:
		f.pool = capture.NewBufferPool(buffers, yuv.SemiPlanarLen(size.Width, size.Height))
		f.camera = &capture.PoolCamera{Size: size, Pool: f.pool}
		f.preview = capture.NewPreviewAdapter(sink, logger)
	}
	return f
}

// deliver decodes fd into a pooled buffer and runs the capture callback.
// It reports whether the pipeline admitted the frame. A frame arriving
// while every buffer is out is dropped without error.
func (f *feeder) deliver(fd *protocol.FrameData) (bool, error) {
	want := f.pool.BufferSize()
	if n := fd.DecodedLen(); n != want {
		return false, fmt.Errorf("frame %d: %d bytes, want %d for %s", fd.FrameID, n, want, f.size)
	}

	buf, ok := f.pool.Get()
	if !ok {
		return false, nil
	}
	if _, err := fd.DecodeInto(buf); err != nil {
		f.pool.Put(buf)
		return false, fmt.Errorf("frame %d: %w", fd.FrameID, err)
	}

	if f.preview != nil {
		before := f.preview.Stats().Admitted
		f.preview.OnPreviewFrame(buf, f.camera)
		return f.preview.Stats().Admitted > before, nil
	}

	before := f.image.Stats().Admitted
	f.latest.Put(capture.NewPlanarImage(f.layout.Planes(buf), func() error {
		f.pool.Put(buf)
		return nil
	}))
	f.image.OnImageAvailable(f.latest)
	return f.image.Stats().Admitted > before, nil
}

func (f *feeder) close() {
	if f.latest != nil {
		_ = f.latest.Close()
	}
}

// packedI420 is an unpadded I420 layout: Y, then U, then V.
type packedI420 struct {
	size       frame.Size
	chromaW    int
	chromaSize int
}

func newPackedI420(size frame.Size) packedI420 {
	cw := (size.Width + 1) / 2
	ch := (size.Height + 1) / 2
	return packedI420{size: size, chromaW: cw, chromaSize: cw * ch}
}

func (l packedI420) Len() int {
	return l.size.Pixels() + 2*l.chromaSize
}

func (l packedI420) Planes(buf []byte) []frame.Plane {
	y := l.size.Pixels()
	return []frame.Plane{
		{Data: buf[:y], RowStride: l.size.Width, PixelStride: 1},
		{Data: buf[y : y+l.chromaSize], RowStride: l.chromaW, PixelStride: 1},
		{Data: buf[y+l.chromaSize : l.Len()], RowStride: l.chromaW, PixelStride: 1},
	}
}
