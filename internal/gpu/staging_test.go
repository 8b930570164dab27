package gpu_test

import (
	"testing"

	"github.com/lumen-media/lumen/internal/gpu"
	"github.com/lumen-media/lumen/internal/gpu/gputest"
)

func TestStagingReuseWaitsForFence(t *testing.T) {
	t.Parallel()
	b := gputest.New()
	pool := gpu.NewStagingPool(b)

	buf, err := pool.Acquire(10_000)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if buf.Size != 16384 {
		t.Fatalf("size class = %d, want 16384", buf.Size)
	}
	pool.ReleaseAfter(buf, 1)

	// The copy reading from buf has not completed, so the same class must
	// vend a different buffer.
	other, err := pool.Acquire(10_000)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if other.ID == buf.ID {
		t.Fatalf("buffer %d reused while its copy was in flight", buf.ID)
	}

	b.Complete(1)
	reused, err := pool.Acquire(10_000)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if reused.ID != buf.ID {
		t.Errorf("got buffer %d after fence, want reused %d", reused.ID, buf.ID)
	}
}

func TestStagingReclaimStopsAtFirstPending(t *testing.T) {
	t.Parallel()
	b := gputest.New()
	pool := gpu.NewStagingPool(b)

	first, _ := pool.Acquire(100)
	second, _ := pool.Acquire(100)
	pool.ReleaseAfter(first, 1)
	pool.ReleaseAfter(second, 2)

	b.Complete(1)
	got, err := pool.Acquire(100)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("got buffer %d, want %d (only fence 1 completed)", got.ID, first.ID)
	}
	if next, _ := pool.Acquire(100); next.ID == second.ID {
		t.Errorf("buffer %d reclaimed before its fence signaled", second.ID)
	}
}
