package gpu_test

import (
	"testing"
	"time"

	"github.com/lumen-media/lumen/internal/gpu"
	"github.com/lumen-media/lumen/internal/gpu/gputest"
)

func TestPoolReusesReleasedTexture(t *testing.T) {
	t.Parallel()
	b := gputest.New()
	pool := gpu.NewTexturePool(b, 0, nil)

	first, err := pool.Acquire(640, 480, gpu.FormatBC1)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pool.Release(first)

	second, err := pool.Acquire(640, 480, gpu.FormatBC1)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("got texture %d, want reused %d", second.ID, first.ID)
	}
	if b.Created() != 1 {
		t.Errorf("backend created %d textures, want 1", b.Created())
	}
}

func TestPoolNeverVendsTextureTwice(t *testing.T) {
	t.Parallel()
	b := gputest.New()
	pool := gpu.NewTexturePool(b, 0, nil)

	a, err := pool.Acquire(64, 64, gpu.FormatRGBA8)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	c, err := pool.Acquire(64, 64, gpu.FormatRGBA8)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if a.ID == c.ID {
		t.Fatalf("same texture %d vended twice", a.ID)
	}
}

func TestPoolKeysOnDimensionsAndFormat(t *testing.T) {
	t.Parallel()
	b := gputest.New()
	pool := gpu.NewTexturePool(b, 0, nil)

	a, _ := pool.Acquire(64, 64, gpu.FormatBC1)
	pool.Release(a)

	c, err := pool.Acquire(64, 64, gpu.FormatBC3)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if c.ID == a.ID {
		t.Errorf("BC3 acquire reused BC1 texture %d", a.ID)
	}
}

func TestPoolSweepFreesExpiredIdle(t *testing.T) {
	t.Parallel()
	b := gputest.New()
	pool := gpu.NewTexturePool(b, 30*time.Second, nil)

	tex, _ := pool.Acquire(128, 128, gpu.FormatRGBA8)
	pool.Release(tex)

	if n := pool.Sweep(time.Now().Add(time.Second)); n != 0 {
		t.Fatalf("early sweep freed %d, want 0", n)
	}
	if n := pool.Sweep(time.Now().Add(31 * time.Second)); n != 1 {
		t.Fatalf("late sweep freed %d, want 1", n)
	}
	if b.Live() != 0 {
		t.Errorf("%d live textures after sweep, want 0", b.Live())
	}

	// A fresh acquire must allocate, not resurrect the freed entry.
	again, err := pool.Acquire(128, 128, gpu.FormatRGBA8)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if again.ID == tex.ID {
		t.Errorf("acquire returned swept texture %d", tex.ID)
	}
}

func TestPoolSweepSkipsInUse(t *testing.T) {
	t.Parallel()
	b := gputest.New()
	pool := gpu.NewTexturePool(b, time.Millisecond, nil)

	tex, _ := pool.Acquire(32, 32, gpu.FormatBC3)
	if n := pool.Sweep(time.Now().Add(time.Hour)); n != 0 {
		t.Fatalf("sweep freed %d in-use textures", n)
	}
	if b.Live() != 1 {
		t.Fatalf("in-use texture destroyed by sweep")
	}
	pool.Release(tex)
}

func TestPoolDoubleReleaseIgnored(t *testing.T) {
	t.Parallel()
	b := gputest.New()
	pool := gpu.NewTexturePool(b, 0, nil)

	tex, _ := pool.Acquire(16, 16, gpu.FormatRGBA8)
	pool.Release(tex)
	pool.Release(tex)

	if got := pool.Stats(); got.Idle != 1 {
		t.Errorf("idle = %d after double release, want 1", got.Idle)
	}
}

func TestPoolInvalidateClearsEverything(t *testing.T) {
	t.Parallel()
	b := gputest.New()
	pool := gpu.NewTexturePool(b, 0, nil)

	held, _ := pool.Acquire(64, 64, gpu.FormatBC1)
	idle, _ := pool.Acquire(64, 64, gpu.FormatBC1)
	pool.Release(idle)

	pool.Invalidate()
	if got := pool.Stats(); got.InUse != 0 || got.Idle != 0 {
		t.Fatalf("stats after invalidate = %+v, want empty", got)
	}

	// Stale handle release is a no-op and the pool keeps working.
	pool.Release(held)
	if got := pool.Stats(); got.Idle != 0 {
		t.Errorf("stale release pooled a forgotten texture")
	}
	if _, err := pool.Acquire(64, 64, gpu.FormatBC1); err != nil {
		t.Errorf("Acquire after invalidate: %v", err)
	}
}

func TestPoolCloseDestroysIdle(t *testing.T) {
	t.Parallel()
	b := gputest.New()
	pool := gpu.NewTexturePool(b, 0, nil)

	held, _ := pool.Acquire(8, 8, gpu.FormatRGBA8)
	idle, _ := pool.Acquire(8, 8, gpu.FormatRGBA8)
	pool.Release(idle)

	pool.Close()
	if b.Live() != 1 {
		t.Fatalf("%d live textures after close, want only the held one", b.Live())
	}
	pool.Release(held)
	if b.Live() != 0 {
		t.Errorf("held texture not destroyed on release after close")
	}
}
