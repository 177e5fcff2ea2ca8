// Package yuv converts 4:2:0 camera frames into packed ARGB pixels.
//
// The conversion uses a fixed-point BT.601 matrix scaled by 1024. Every
// intermediate channel is clamped to 18 bits before being packed into an
// 0xAARRGGBB word, so the output matches what Android camera pipelines
// produce for the same input bytes.
package yuv

// maxChannel is the largest intermediate channel value (2^18 - 1).
const maxChannel = 262143

// ToARGB converts one YUV sample into a packed opaque ARGB pixel.
func ToARGB(y, u, v int) uint32 {
	y -= 16
	if y < 0 {
		y = 0
	}
	u -= 128
	v -= 128

	y1192 := 1192 * y
	r := clamp(y1192 + 1634*v)
	g := clamp(y1192 - 833*v - 400*u)
	b := clamp(y1192 + 2066*u)

	return 0xff000000 |
		uint32((r<<6)&0xff0000) |
		uint32((g>>2)&0xff00) |
		uint32((b>>10)&0xff)
}

func clamp(c int) int {
	if c > maxChannel {
		return maxChannel
	}
	if c < 0 {
		return 0
	}
	return c
}

// RGB unpacks the color channels of an ARGB pixel.
func RGB(p uint32) (r, g, b uint8) {
	return uint8(p >> 16), uint8(p >> 8), uint8(p)
}

// SemiPlanarLen returns the minimum buffer length SemiPlanarToARGB reads
// for the given geometry.
func SemiPlanarLen(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	return width*height + ((height-1)>>1)*width + 2*((width+1)>>1)
}

// SemiPlanarToARGB converts an NV21 buffer (full-resolution Y plane followed
// by interleaved V/U pairs) into out, which must hold width*height pixels.
func SemiPlanarToARGB(input []byte, width, height int, out []uint32) {
	frameSize := width * height
	for j, yp := 0, 0; j < height; j++ {
		uvp := frameSize + (j>>1)*width
		u, v := 0, 0
		for i := 0; i < width; i++ {
			y := int(input[yp])
			if i&1 == 0 {
				v = int(input[uvp])
				u = int(input[uvp+1])
				uvp += 2
			}
			out[yp] = ToARGB(y, u, v)
			yp++
		}
	}
}

// PlanarToARGB converts three separate planes into out, which must hold
// width*height pixels. The chroma planes share uvRowStride and uvPixelStride;
// a pixel stride of 2 means the chroma samples are interleaved with another
// plane's bytes and only every other byte belongs to this plane.
func PlanarToARGB(yData, uData, vData []byte, width, height, yRowStride, uvRowStride, uvPixelStride int, out []uint32) {
	yp := 0
	for j := 0; j < height; j++ {
		pY := yRowStride * j
		pUV := uvRowStride * (j >> 1)
		for i := 0; i < width; i++ {
			uvOffset := pUV + (i>>1)*uvPixelStride
			out[yp] = ToARGB(int(yData[pY+i]), int(uData[uvOffset]), int(vData[uvOffset]))
			yp++
		}
	}
}
