package gstreamer

import "github.com/teslashibe/go-framegate/pkg/frame"

// I420Layout is GStreamer's default I420 buffer layout: Y, U, V planes
// back to back with 4-byte aligned row strides.
type I420Layout struct {
	Size frame.Size

	YStride  int
	UVStride int
	UOffset  int
	VOffset  int
	UVSize   int
}

func roundUp2(n int) int { return (n + 1) &^ 1 }
func roundUp4(n int) int { return (n + 3) &^ 3 }

// NewI420Layout computes plane offsets for size.
func NewI420Layout(size frame.Size) I420Layout {
	h := roundUp2(size.Height)
	l := I420Layout{
		Size:     size,
		YStride:  roundUp4(size.Width),
		UVStride: roundUp4(roundUp2(size.Width) / 2),
	}
	l.UOffset = l.YStride * h
	l.UVSize = l.UVStride * (h / 2)
	l.VOffset = l.UOffset + l.UVSize
	return l
}

// Len returns the full buffer length.
func (l I420Layout) Len() int {
	return l.VOffset + l.UVSize
}

// Planes slices a mapped buffer into Y, U and V planes.
func (l I420Layout) Planes(data []byte) []frame.Plane {
	return []frame.Plane{
		{Data: data[:l.UOffset], RowStride: l.YStride, PixelStride: 1},
		{Data: data[l.UOffset:l.VOffset], RowStride: l.UVStride, PixelStride: 1},
		{Data: data[l.VOffset:l.Len()], RowStride: l.UVStride, PixelStride: 1},
	}
}
