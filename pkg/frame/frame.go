// Package frame holds the pipeline-owned copy of the most recent camera frame.
package frame

import "fmt"

// Layout identifies which capture path produced a frame.
type Layout int

const (
	// LayoutUnknown means no frame has been staged yet.
	LayoutUnknown Layout = iota
	// LayoutPlanar is three independent planes with explicit strides (event-driven capture).
	LayoutPlanar
	// LayoutSemiPlanar is one NV21 buffer, Y followed by interleaved V/U (push-callback capture).
	LayoutSemiPlanar
)

// String returns the layout name.
func (l Layout) String() string {
	switch l {
	case LayoutPlanar:
		return "planar"
	case LayoutSemiPlanar:
		return "semi-planar"
	default:
		return "unknown"
	}
}

// Size is a frame geometry in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// String formats the size as "WxH".
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Empty reports whether either dimension is unset.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Pixels returns width*height.
func (s Size) Pixels() int {
	return s.Width * s.Height
}

// Plane is one capture-owned image plane.
type Plane struct {
	Data []byte
	// RowStride is the byte distance between rows.
	RowStride int
	// PixelStride is the byte distance between samples in a row. 1 for luma.
	PixelStride int
}

// Strides records the plane metadata needed by the planar transform.
type Strides struct {
	YRow    int
	UVRow   int
	UVPixel int
}

// GeometryError is the panic value raised when a frame's plane capacity
// disagrees with the geometry established for the session.
type GeometryError struct {
	Plane int
	Want  int
	Got   int
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("frame: plane %d capacity %d, session established %d", e.Plane, e.Got, e.Want)
}
