package framequeue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumen-media/lumen/media"
)

func frameAt(pts time.Duration) *media.Frame {
	return &media.Frame{PTS: pts, Width: 4, Height: 4, Layout: media.LayoutRGBA8}
}

func mustPush(t *testing.T, q *Queue, pts time.Duration) {
	t.Helper()
	if err := q.Push(context.Background(), frameAt(pts)); err != nil {
		t.Fatalf("Push(%s): %v", pts, err)
	}
}

func TestPopNeverExceedsClock(t *testing.T) {
	t.Parallel()
	q := New(8)

	for i := 1; i <= 6; i++ {
		mustPush(t, q, time.Duration(i)*100*time.Millisecond)
	}

	for _, clock := range []time.Duration{
		0, 50 * time.Millisecond, 150 * time.Millisecond,
		420 * time.Millisecond, time.Second,
	} {
		if f := q.Pop(clock); f != nil && f.PTS > clock {
			t.Errorf("Pop(%s) returned frame at %s", clock, f.PTS)
		}
	}
}

func TestPopReturnsNewestDue(t *testing.T) {
	t.Parallel()
	q := New(8)

	mustPush(t, q, 100*time.Millisecond)
	mustPush(t, q, 200*time.Millisecond)
	mustPush(t, q, 300*time.Millisecond)

	f := q.Pop(250 * time.Millisecond)
	if f == nil || f.PTS != 200*time.Millisecond {
		t.Fatalf("Pop(250ms) = %v, want frame at 200ms", f)
	}
	// The 100ms frame was skipped past and dropped; only 300ms remains.
	if n := q.Len(); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
	if f := q.Pop(250 * time.Millisecond); f != nil {
		t.Errorf("second Pop(250ms) = frame at %s, want nil", f.PTS)
	}
}

func TestPopBeforeFirstFrame(t *testing.T) {
	t.Parallel()
	q := New(4)

	if f := q.Pop(time.Second); f != nil {
		t.Errorf("Pop on empty queue = %v, want nil", f)
	}

	mustPush(t, q, 500*time.Millisecond)
	if f := q.Pop(100 * time.Millisecond); f != nil {
		t.Errorf("Pop before first PTS = frame at %s, want nil", f.PTS)
	}
}

func TestPushRejectsOutOfOrder(t *testing.T) {
	t.Parallel()
	q := New(4)

	mustPush(t, q, 200*time.Millisecond)
	err := q.Push(context.Background(), frameAt(200*time.Millisecond))
	if !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("equal PTS: err = %v, want ErrOutOfOrder", err)
	}
	err = q.Push(context.Background(), frameAt(100*time.Millisecond))
	if !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("earlier PTS: err = %v, want ErrOutOfOrder", err)
	}

	// A rejected push must not consume a slot.
	for i := 2; i <= 4; i++ {
		mustPush(t, q, time.Duration(i)*200*time.Millisecond)
	}
}

func TestFlushResetsBaselineAndDrains(t *testing.T) {
	t.Parallel()
	q := New(4)

	mustPush(t, q, 400*time.Millisecond)
	mustPush(t, q, 500*time.Millisecond)

	if n := q.Flush(); n != 2 {
		t.Errorf("Flush = %d, want 2", n)
	}
	if n := q.Len(); n != 0 {
		t.Errorf("Len after flush = %d, want 0", n)
	}

	// Seek backwards: earlier timestamps are valid again.
	mustPush(t, q, 100*time.Millisecond)
}

func TestPushBlocksWhenFull(t *testing.T) {
	t.Parallel()
	q := New(2)

	mustPush(t, q, 100*time.Millisecond)
	mustPush(t, q, 200*time.Millisecond)

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(context.Background(), frameAt(300*time.Millisecond))
	}()

	select {
	case err := <-pushed:
		t.Fatalf("Push on full queue returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	// Consuming a frame unblocks the producer.
	if f := q.Pop(100 * time.Millisecond); f == nil {
		t.Fatal("Pop returned nil")
	}
	select {
	case err := <-pushed:
		if err != nil {
			t.Fatalf("Push after Pop: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Push did not unblock after Pop")
	}
}

func TestPushCancelled(t *testing.T) {
	t.Parallel()
	q := New(1)
	mustPush(t, q, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(ctx, frameAt(200*time.Millisecond))
	}()
	cancel()

	select {
	case err := <-pushed:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled Push did not return")
	}
}
