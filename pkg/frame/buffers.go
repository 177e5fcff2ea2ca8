package frame

import "github.com/teslashibe/go-framegate/pkg/yuv"

// Transform writes the packed ARGB rendition of the staged planes into out.
type Transform func(planes [3][]byte, size Size, strides Strides, out []uint32)

// conversion is the memoization state of the staged frame.
type conversion uint8

const (
	notConverted conversion = iota
	converted
)

// BufferSet holds the latest staged frame and the single reusable converted
// pixel buffer. It is owned by the pipeline and is not safe for concurrent
// use; the backpressure gate guarantees only one frame touches it at a time.
type BufferSet struct {
	size    Size
	layout  Layout
	planes  [3][]byte
	strides Strides

	// capacities established by the first frame of the session, 0 until then
	established [3]int

	pixels     []uint32
	state      conversion
	transforms map[Layout]Transform
}

// Option configures a BufferSet.
type Option func(*BufferSet)

// WithTransform overrides the transform used for a layout.
func WithTransform(layout Layout, fn Transform) Option {
	return func(b *BufferSet) {
		b.transforms[layout] = fn
	}
}

// NewBufferSet creates an empty buffer set using the fixed-point YUV transforms.
func NewBufferSet(opts ...Option) *BufferSet {
	b := &BufferSet{
		transforms: map[Layout]Transform{
			LayoutSemiPlanar: semiPlanar,
			LayoutPlanar:     planar,
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func semiPlanar(planes [3][]byte, size Size, _ Strides, out []uint32) {
	yuv.SemiPlanarToARGB(planes[0], size.Width, size.Height, out)
}

func planar(planes [3][]byte, size Size, s Strides, out []uint32) {
	yuv.PlanarToARGB(planes[0], planes[1], planes[2], size.Width, size.Height, s.YRow, s.UVRow, s.UVPixel, out)
}

// Reset prepares the set for a new session geometry. Plane storage is
// dropped so the next frame re-establishes capacities; the converted buffer
// is kept when the pixel count is unchanged.
func (b *BufferSet) Reset(size Size) {
	b.size = size
	b.layout = LayoutUnknown
	b.planes = [3][]byte{}
	b.established = [3]int{}
	b.strides = Strides{}
	b.state = notConverted
	if len(b.pixels) != size.Pixels() {
		b.pixels = nil
	}
}

// Size returns the session geometry.
func (b *BufferSet) Size() Size {
	return b.size
}

// Layout returns the layout of the staged frame.
func (b *BufferSet) Layout() Layout {
	return b.layout
}

// StagePlanar copies three capture-owned planes into pipeline storage. The
// first frame of a session allocates each plane once at the observed
// capacity; a later frame with a different capacity panics with a
// *GeometryError.
func (b *BufferSet) StagePlanar(planes [3]Plane) {
	if b.established[0] == 0 {
		b.checkPlanar(planes)
	}
	for i, p := range planes {
		n := len(p.Data)
		if b.established[i] == 0 {
			b.planes[i] = make([]byte, n)
			b.established[i] = n
		} else if n != b.established[i] || b.layout != LayoutPlanar {
			panic(&GeometryError{Plane: i, Want: b.established[i], Got: n})
		}
		copy(b.planes[i], p.Data)
	}
	b.strides = Strides{
		YRow:    planes[0].RowStride,
		UVRow:   planes[1].RowStride,
		UVPixel: planes[1].PixelStride,
	}
	b.layout = LayoutPlanar
	b.state = notConverted
}

// checkPlanar verifies that first-frame planes can hold the session geometry.
func (b *BufferSet) checkPlanar(planes [3]Plane) {
	w, h := b.size.Width, b.size.Height
	if need := planes[0].RowStride*(h-1) + w; len(planes[0].Data) < need {
		panic(&GeometryError{Plane: 0, Want: need, Got: len(planes[0].Data)})
	}
	for i := 1; i < 3; i++ {
		p := planes[i]
		need := p.RowStride*((h-1)>>1) + ((w-1)>>1)*p.PixelStride + 1
		if len(p.Data) < need {
			panic(&GeometryError{Plane: i, Want: need, Got: len(p.Data)})
		}
	}
}

// StageSemiPlanar references an NV21 buffer directly without copying. The
// caller keeps the buffer alive until the frame is released.
func (b *BufferSet) StageSemiPlanar(data []byte) {
	n := len(data)
	switch {
	case b.established[0] == 0:
		if need := yuv.SemiPlanarLen(b.size.Width, b.size.Height); n < need {
			panic(&GeometryError{Plane: 0, Want: need, Got: n})
		}
		b.established[0] = n
	case n != b.established[0] || b.layout != LayoutSemiPlanar:
		panic(&GeometryError{Plane: 0, Want: b.established[0], Got: n})
	}
	b.planes[0] = data
	b.strides = Strides{YRow: b.size.Width}
	b.layout = LayoutSemiPlanar
	b.state = notConverted
}

// Pixels returns the packed ARGB pixels of the staged frame, converting on
// first use and returning the cached buffer until the next frame is staged.
func (b *BufferSet) Pixels() []uint32 {
	if b.state == converted {
		return b.pixels
	}
	fn, ok := b.transforms[b.layout]
	if !ok {
		return nil
	}
	if b.pixels == nil {
		b.pixels = make([]uint32, b.size.Pixels())
	}
	fn(b.planes, b.size, b.strides, b.pixels)
	b.state = converted
	return b.pixels
}

// Converted reports whether the staged frame has been converted.
func (b *BufferSet) Converted() bool {
	return b.state == converted
}
