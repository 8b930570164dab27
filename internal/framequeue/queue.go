// Package framequeue provides the bounded, timestamp-ordered hand-off
// between a session's decode goroutine and the render timeline. The producer
// blocks when the queue is full (backpressure, never dropping during forward
// playback); the consumer never blocks and always takes the newest frame not
// ahead of its clock.
package framequeue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lumen-media/lumen/media"
)

// ErrOutOfOrder is returned by Push when a frame's timestamp is not strictly
// greater than the previously pushed one. Flush resets the baseline, which is
// how seeks and loop wraps legitimately rewind the timeline.
var ErrOutOfOrder = errors.New("framequeue: non-increasing timestamp")

// Queue is a bounded single-producer/single-consumer frame buffer.
type Queue struct {
	mu      sync.Mutex
	frames  []*media.Frame
	lastPTS time.Duration
	primed  bool

	// space holds one token per free slot. Producers take a token before
	// appending, so a full queue blocks Push until Pop or Flush returns
	// tokens. Invariant at rest: len(space) + len(frames) == cap.
	space chan struct{}
}

// New creates a queue holding at most capacity frames. Capacity defaults to
// media.FrameQueueDepth when non-positive.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = media.FrameQueueDepth
	}
	q := &Queue{
		frames: make([]*media.Frame, 0, capacity),
		space:  make(chan struct{}, capacity),
	}
	for i := 0; i < capacity; i++ {
		q.space <- struct{}{}
	}
	return q
}

// Push appends a frame, blocking while the queue is full. It returns the
// context error if ctx is cancelled while waiting, or ErrOutOfOrder if the
// frame does not advance the timestamp baseline.
func (q *Queue) Push(ctx context.Context, f *media.Frame) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.space:
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.primed && f.PTS <= q.lastPTS {
		// Return the unused slot before rejecting.
		q.space <- struct{}{}
		return ErrOutOfOrder
	}
	q.frames = append(q.frames, f)
	q.lastPTS = f.PTS
	q.primed = true
	return nil
}

// Pop returns the newest queued frame whose timestamp is at or before clock,
// or nil if no frame is due yet. Older frames skipped past are dropped and
// their slots freed; this bounds memory and lets presentation catch up after
// a stall instead of replaying stale frames.
func (q *Queue) Pop(clock time.Duration) *media.Frame {
	q.mu.Lock()
	defer q.mu.Unlock()

	due := -1
	for i, f := range q.frames {
		if f.PTS > clock {
			break
		}
		due = i
	}
	if due < 0 {
		return nil
	}

	f := q.frames[due]
	q.frames = q.frames[due+1:]
	for i := 0; i <= due; i++ {
		q.space <- struct{}{}
	}
	return f
}

// Flush discards all queued frames and resets the timestamp baseline so the
// next Push may carry any timestamp. It returns the number of frames
// discarded.
func (q *Queue) Flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.frames)
	q.frames = q.frames[:0]
	q.primed = false
	for i := 0; i < n; i++ {
		q.space <- struct{}{}
	}
	return n
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
