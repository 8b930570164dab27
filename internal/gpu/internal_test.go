package gpu

import "testing"

func TestSizeClassRoundsToPowerOfTwo(t *testing.T) {
	t.Parallel()
	cases := []struct {
		size int
		want int
	}{
		{1, 4096},
		{4096, 4096},
		{4097, 8192},
		{100_000, 131072},
		{1 << 20, 1 << 20},
	}
	for _, tc := range cases {
		if got := sizeClass(tc.size); got != tc.want {
			t.Errorf("sizeClass(%d) = %d, want %d", tc.size, got, tc.want)
		}
	}
}

func TestYUV420Conversion(t *testing.T) {
	t.Parallel()
	// 2x2 frame, neutral chroma: luma carries straight through to gray.
	data := []byte{
		16, 128, 128, 235, // Y plane
		128, // Cb
		128, // Cr
	}
	out, err := yuv420ToRGBA(data, 2, 2)
	if err != nil {
		t.Fatalf("yuv420ToRGBA: %v", err)
	}
	if len(out) != 16 {
		t.Fatalf("output length = %d, want 16", len(out))
	}
	// Top-left is near black, bottom-right near white, all channels equal.
	if out[0] != out[1] || out[1] != out[2] {
		t.Errorf("neutral chroma produced colored pixel %v", out[0:3])
	}
	if out[0] > 40 {
		t.Errorf("Y=16 mapped to %d, want near 0", out[0])
	}
	if out[12] < 220 {
		t.Errorf("Y=235 mapped to %d, want near 255", out[12])
	}
	if out[3] != 0xFF {
		t.Errorf("alpha = %d, want 255", out[3])
	}

	if _, err := yuv420ToRGBA(data[:4], 2, 2); err == nil {
		t.Errorf("short plane data accepted")
	}
}
