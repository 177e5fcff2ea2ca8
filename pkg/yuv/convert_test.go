package yuv

import (
	"math"
	"testing"
)

// reference computes the floating-point BT.601 conversion, floored the same
// way the fixed-point packer truncates.
func reference(y, u, v int) (r, g, b int) {
	fy := 1.164 * float64(max(y-16, 0))
	fu := float64(u - 128)
	fv := float64(v - 128)
	clampf := func(c float64) int {
		return int(math.Floor(math.Min(math.Max(c, 0), 255)))
	}
	return clampf(fy + 1.596*fv), clampf(fy - 0.813*fv - 0.391*fu), clampf(fy + 2.018*fu)
}

func within(got uint8, want, tol int) bool {
	d := int(got) - want
	return d >= -tol && d <= tol
}

func TestToARGBKnownValues(t *testing.T) {
	tests := []struct {
		name    string
		y, u, v int
		r, g, b uint8
	}{
		{"black", 16, 128, 128, 0, 0, 0},
		{"below black clamps", 0, 128, 128, 0, 0, 0},
		{"mid gray", 128, 128, 128, 130, 130, 130},
		{"zero chroma is green", 128, 0, 0, 0, 255, 0},
		{"near white", 235, 128, 128, 254, 254, 254},
		{"warm", 128, 90, 200, 245, 86, 53},
		{"saturated clamps", 255, 128, 255, 255, 174, 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ToARGB(tt.y, tt.u, tt.v)
			if p>>24 != 0xff {
				t.Errorf("alpha = %#x, want 0xff", p>>24)
			}
			r, g, b := RGB(p)
			if r != tt.r || g != tt.g || b != tt.b {
				t.Errorf("ToARGB(%d,%d,%d) = (%d,%d,%d), want (%d,%d,%d)",
					tt.y, tt.u, tt.v, r, g, b, tt.r, tt.g, tt.b)
			}
		})
	}
}

func TestSemiPlanar2x2(t *testing.T) {
	tests := []struct {
		name  string
		input []byte // Y00 Y01 Y10 Y11 V U
	}{
		{"neutral chroma", []byte{16, 235, 128, 81, 128, 128}},
		{"warm chroma", []byte{128, 100, 60, 200, 200, 90}},
		{"cool chroma", []byte{50, 90, 170, 210, 60, 220}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.input) != SemiPlanarLen(2, 2) {
				t.Fatalf("fixture length %d, want %d", len(tt.input), SemiPlanarLen(2, 2))
			}
			out := make([]uint32, 4)
			SemiPlanarToARGB(tt.input, 2, 2, out)

			v, u := int(tt.input[4]), int(tt.input[5])
			for i := 0; i < 4; i++ {
				wr, wg, wb := reference(int(tt.input[i]), u, v)
				r, g, b := RGB(out[i])
				if !within(r, wr, 1) || !within(g, wg, 1) || !within(b, wb, 1) {
					t.Errorf("pixel %d = (%d,%d,%d), want ~(%d,%d,%d)", i, r, g, b, wr, wg, wb)
				}
			}
		})
	}
}

func TestSemiPlanarChromaSharing(t *testing.T) {
	// 4x2: two chroma pairs per row, each shared by a 2x2 luma block
	input := []byte{
		128, 128, 128, 128,
		128, 128, 128, 128,
		200, 90, 60, 220, // V0 U0 V1 U1
	}
	out := make([]uint32, 8)
	SemiPlanarToARGB(input, 4, 2, out)

	left := ToARGB(128, 90, 200)
	right := ToARGB(128, 220, 60)
	for _, i := range []int{0, 1, 4, 5} {
		if out[i] != left {
			t.Errorf("pixel %d = %#x, want left block %#x", i, out[i], left)
		}
	}
	for _, i := range []int{2, 3, 6, 7} {
		if out[i] != right {
			t.Errorf("pixel %d = %#x, want right block %#x", i, out[i], right)
		}
	}
}

func TestPlanarStridedMatchesControl(t *testing.T) {
	const (
		width, height = 6, 4
		yRowStride    = 8
		uvRowStride   = 8
		uvPixelStride = 2
		garbage       = 0xEE
	)
	cw, ch := width/2, height/2

	luma := func(i, j int) byte { return byte(16 + (i*37+j*53)%200) }
	chromaU := func(i, j int) byte { return byte(40 + (i*29+j*71)%180) }
	chromaV := func(i, j int) byte { return byte(30 + (i*61+j*17)%190) }

	// control: tightly packed planes
	yPacked := make([]byte, width*height)
	uPacked := make([]byte, cw*ch)
	vPacked := make([]byte, cw*ch)
	for j := 0; j < height; j++ {
		for i := 0; i < width; i++ {
			yPacked[j*width+i] = luma(i, j)
		}
	}
	for j := 0; j < ch; j++ {
		for i := 0; i < cw; i++ {
			uPacked[j*cw+i] = chromaU(i, j)
			vPacked[j*cw+i] = chromaV(i, j)
		}
	}
	want := make([]uint32, width*height)
	PlanarToARGB(yPacked, uPacked, vPacked, width, height, width, cw, 1, want)

	// strided: padded luma rows, interleaved U/V sharing one backing array
	yStrided := make([]byte, yRowStride*height)
	for k := range yStrided {
		yStrided[k] = garbage
	}
	for j := 0; j < height; j++ {
		for i := 0; i < width; i++ {
			yStrided[j*yRowStride+i] = luma(i, j)
		}
	}
	backing := make([]byte, uvRowStride*ch+1)
	for k := range backing {
		backing[k] = garbage
	}
	for j := 0; j < ch; j++ {
		for i := 0; i < cw; i++ {
			backing[j*uvRowStride+i*uvPixelStride] = chromaU(i, j)
			backing[j*uvRowStride+i*uvPixelStride+1] = chromaV(i, j)
		}
	}
	uStrided := backing[:len(backing)-1]
	vStrided := backing[1:]

	got := make([]uint32, width*height)
	PlanarToARGB(yStrided, uStrided, vStrided, width, height, yRowStride, uvRowStride, uvPixelStride, got)

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pixel %d = %#x, want %#x (stride offsets misread)", i, got[i], want[i])
		}
	}
}

func TestSemiPlanarLen(t *testing.T) {
	tests := []struct {
		w, h, want int
	}{
		{2, 2, 6},
		{320, 240, 320 * 240 * 3 / 2},
		{3, 3, 9 + 3 + 4},
		{0, 10, 0},
	}
	for _, tt := range tests {
		if got := SemiPlanarLen(tt.w, tt.h); got != tt.want {
			t.Errorf("SemiPlanarLen(%d,%d) = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}

func BenchmarkSemiPlanarToARGB(b *testing.B) {
	const w, h = 640, 480
	input := make([]byte, SemiPlanarLen(w, h))
	for i := range input {
		input[i] = byte(i)
	}
	out := make([]uint32, w*h)
	b.SetBytes(int64(len(input)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SemiPlanarToARGB(input, w, h, out)
	}
}
