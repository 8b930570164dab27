//go:build !cgo

package decode

import "fmt"

// OpenContainer requires the FFmpeg-backed reisen decoder, which is a cgo
// package. In a CGO_ENABLED=0 build general multimedia containers are an
// unsupported source kind; image, sequence, and HAP paths remain pure Go.
func OpenContainer(path string) (Decoder, error) {
	return nil, fmt.Errorf("container decoding requires a cgo build (FFmpeg via reisen); rebuild with CGO_ENABLED=1")
}
