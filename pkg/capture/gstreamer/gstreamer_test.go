package gstreamer

import (
	"testing"

	"github.com/teslashibe/go-framegate/pkg/frame"
	"github.com/teslashibe/go-framegate/pkg/yuv"
)

func TestI420Layout(t *testing.T) {
	tests := []struct {
		size         frame.Size
		yStride      int
		uvStride     int
		uOffset, len int
	}{
		{frame.Size{Width: 640, Height: 480}, 640, 320, 640 * 480, 640*480 + 2*320*240},
		{frame.Size{Width: 6, Height: 4}, 8, 4, 32, 32 + 2*8},
		{frame.Size{Width: 7, Height: 5}, 8, 4, 48, 48 + 2*12},
	}
	for _, tt := range tests {
		l := NewI420Layout(tt.size)
		if l.YStride != tt.yStride || l.UVStride != tt.uvStride || l.UOffset != tt.uOffset || l.Len() != tt.len {
			t.Errorf("%v: layout = %+v len %d", tt.size, l, l.Len())
		}
	}
}

func TestI420PlanesFitBufferSet(t *testing.T) {
	size := frame.Size{Width: 7, Height: 5}
	l := NewI420Layout(size)
	data := make([]byte, l.Len())
	for i := range data {
		data[i] = 128
	}
	planes := l.Planes(data)

	b := frame.NewBufferSet()
	b.Reset(size)
	b.StagePlanar([3]frame.Plane{planes[0], planes[1], planes[2]})
	for i, px := range b.Pixels() {
		if r, g, bl := yuv.RGB(px); r != 130 || g != 130 || bl != 130 {
			t.Fatalf("pixel %d = (%d,%d,%d)", i, r, g, bl)
		}
	}
}

func TestCaps(t *testing.T) {
	s := New(Config{Size: frame.Size{Width: 320, Height: 240}, FPS: 15}, nil)
	want := "video/x-raw,format=I420,width=320,height=240,framerate=15/1"
	if got := s.Caps(); got != want {
		t.Errorf("Caps = %q, want %q", got, want)
	}
	if s.Name() != "gstreamer" {
		t.Errorf("Name = %q", s.Name())
	}
}
