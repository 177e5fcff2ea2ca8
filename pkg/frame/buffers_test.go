package frame

import (
	"testing"

	"github.com/teslashibe/go-framegate/pkg/yuv"
)

func countingTransform(calls *int) Transform {
	return func(planes [3][]byte, size Size, strides Strides, out []uint32) {
		*calls++
		for i := range out {
			out[i] = uint32(*calls)
		}
	}
}

func nv21(size Size, y, chroma byte) []byte {
	buf := make([]byte, yuv.SemiPlanarLen(size.Width, size.Height))
	for i := range buf {
		if i < size.Pixels() {
			buf[i] = y
		} else {
			buf[i] = chroma
		}
	}
	return buf
}

func planarPlanes(size Size, rowPad int) [3]Plane {
	yStride := size.Width + rowPad
	uvStride := size.Width + rowPad
	backing := make([]byte, uvStride*(size.Height/2))
	for i := range backing {
		backing[i] = 128
	}
	return [3]Plane{
		{Data: make([]byte, yStride*size.Height), RowStride: yStride, PixelStride: 1},
		{Data: backing[:len(backing)-1], RowStride: uvStride, PixelStride: 2},
		{Data: backing[1:], RowStride: uvStride, PixelStride: 2},
	}
}

func TestPixelsMemoized(t *testing.T) {
	calls := 0
	size := Size{Width: 4, Height: 2}
	b := NewBufferSet(WithTransform(LayoutSemiPlanar, countingTransform(&calls)))
	b.Reset(size)

	b.StageSemiPlanar(nv21(size, 128, 128))
	if b.Converted() {
		t.Fatal("Converted() true before first read")
	}

	first := b.Pixels()
	second := b.Pixels()
	if calls != 1 {
		t.Fatalf("transform called %d times between frames, want 1", calls)
	}
	if &first[0] != &second[0] {
		t.Error("second read returned a different buffer")
	}

	// next frame resets memoization but reuses the converted buffer
	b.StageSemiPlanar(nv21(size, 64, 128))
	third := b.Pixels()
	if calls != 2 {
		t.Fatalf("transform called %d times after second frame, want 2", calls)
	}
	if &third[0] != &first[0] {
		t.Error("converted buffer reallocated between frames")
	}
}

func TestStageSemiPlanarReferences(t *testing.T) {
	size := Size{Width: 2, Height: 2}
	b := NewBufferSet()
	b.Reset(size)

	data := []byte{16, 235, 128, 81, 128, 128}
	b.StageSemiPlanar(data)
	data[0] = 235 // mutation after staging is visible: no copy was made

	px := b.Pixels()
	if px[0] != yuv.ToARGB(235, 128, 128) {
		t.Errorf("pixel 0 = %#x, want converted from referenced buffer", px[0])
	}
}

func TestStagePlanarCopies(t *testing.T) {
	size := Size{Width: 4, Height: 4}
	b := NewBufferSet()
	b.Reset(size)

	planes := planarPlanes(size, 4)
	for i := range planes[0].Data {
		planes[0].Data[i] = 128
	}
	b.StagePlanar(planes)

	// capture resource reused after release must not affect the staged copy
	for i := range planes[0].Data {
		planes[0].Data[i] = 0
	}
	r, g, bl := yuv.RGB(b.Pixels()[0])
	if r != g || g != bl || r == 0 {
		t.Errorf("pixel 0 = (%d,%d,%d), want staged gray copy", r, g, bl)
	}
	if b.Layout() != LayoutPlanar {
		t.Errorf("Layout() = %v, want planar", b.Layout())
	}
}

func expectGeometryPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected geometry panic")
		}
		if _, ok := r.(*GeometryError); !ok {
			t.Fatalf("panic value %T, want *GeometryError", r)
		}
	}()
	fn()
}

func TestGeometryViolations(t *testing.T) {
	size := Size{Width: 4, Height: 4}

	t.Run("semi-planar undersized first frame", func(t *testing.T) {
		b := NewBufferSet()
		b.Reset(size)
		expectGeometryPanic(t, func() { b.StageSemiPlanar(make([]byte, 10)) })
	})

	t.Run("semi-planar capacity change", func(t *testing.T) {
		b := NewBufferSet()
		b.Reset(size)
		b.StageSemiPlanar(nv21(size, 0, 0))
		expectGeometryPanic(t, func() { b.StageSemiPlanar(make([]byte, 64)) })
	})

	t.Run("planar capacity change", func(t *testing.T) {
		b := NewBufferSet()
		b.Reset(size)
		b.StagePlanar(planarPlanes(size, 0))
		expectGeometryPanic(t, func() { b.StagePlanar(planarPlanes(size, 8)) })
	})

	t.Run("planar luma too small", func(t *testing.T) {
		b := NewBufferSet()
		b.Reset(size)
		planes := planarPlanes(size, 0)
		planes[0].Data = planes[0].Data[:8]
		expectGeometryPanic(t, func() { b.StagePlanar(planes) })
	})
}

func TestResetReestablishes(t *testing.T) {
	b := NewBufferSet()
	b.Reset(Size{Width: 4, Height: 4})
	b.StageSemiPlanar(nv21(Size{Width: 4, Height: 4}, 0, 0))
	b.Pixels()

	b.Reset(Size{Width: 8, Height: 2})
	if b.Converted() {
		t.Error("Converted() true after Reset")
	}
	// a new session may establish a different capacity
	b.StageSemiPlanar(nv21(Size{Width: 8, Height: 2}, 0, 0))
	if got := len(b.Pixels()); got != 16 {
		t.Errorf("len(Pixels()) = %d, want 16", got)
	}
}
