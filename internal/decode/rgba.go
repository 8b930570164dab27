package decode

import "image"

// tightRGBA copies an image.RGBA into a tightly packed payload, dropping any
// per-row stride padding so upload byte math stays width*4.
func tightRGBA(img *image.RGBA, width, height int) []byte {
	rowBytes := width * 4
	if img.Stride == rowBytes && len(img.Pix) == rowBytes*height {
		out := make([]byte, len(img.Pix))
		copy(out, img.Pix)
		return out
	}
	out := make([]byte, rowBytes*height)
	for y := 0; y < height; y++ {
		src := img.Pix[y*img.Stride:]
		if len(src) > rowBytes {
			src = src[:rowBytes]
		}
		copy(out[y*rowBytes:], src)
	}
	return out
}
