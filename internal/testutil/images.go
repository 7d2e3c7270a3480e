package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// Gradient returns a w x h image whose red channel grows left to right and
// whose green channel grows top to bottom, so any crop or flip is visible.
func Gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / max(1, w-1)),
				G: uint8(y * 255 / max(1, h-1)),
				B: 64,
				A: 255,
			})
		}
	}
	return img
}

// PNG encodes img, panicking on failure.
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
