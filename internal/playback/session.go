// Package playback runs one decode worker and transport state machine per
// open media source. Commands are fire and forget; effects surface through
// State, Position and CurrentFrame.
package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lumen-media/lumen/internal/decode"
	"github.com/lumen-media/lumen/internal/framequeue"
	"github.com/lumen-media/lumen/internal/gpu"
	"github.com/lumen-media/lumen/media"
)

// DefaultFailureThreshold is how many consecutive frame failures promote a
// session to StateError.
const DefaultFailureThreshold = 5

type cmdKind int

const (
	cmdPlay cmdKind = iota
	cmdPause
	cmdStop
	cmdSeek
	cmdSpeed
	cmdLoop
	cmdFlip
)

type command struct {
	kind cmdKind
	t    time.Duration
	f    float64
	loop LoopMode
	flip Flip
}

// Options tune a session. Zero values select defaults.
type Options struct {
	QueueDepth       int
	FailureThreshold int
	Logger           *slog.Logger
}

// Frame is a texture-resident frame plus the presentation transform active
// when it was read. Chroma is non-nil only for dual-plane HAP Q media.
type Frame struct {
	Color  *gpu.Texture
	Chroma *gpu.Texture
	PTS    time.Duration
	Flip   Flip
}

// Session owns one decoder, its worker goroutine and its frame queue. The
// texture pool behind the uploader is shared; everything else is exclusive
// to the session.
type Session struct {
	id       uuid.UUID
	log      *slog.Logger
	dec      decode.Decoder
	info     media.SourceInfo
	queue    *framequeue.Queue
	uploader *gpu.Uploader
	failMax  int

	cmds   chan command
	cancel context.CancelFunc
	done   chan struct{}

	pushMu     sync.Mutex
	pushCancel context.CancelFunc

	mu      sync.Mutex
	state   State
	preSeek State
	loop    LoopMode
	flip    Flip
	speed   float64
	rate    float64
	basePos time.Duration
	baseAt  time.Time
	// Reverse playback presents mirrored timestamps so the queue stays
	// monotonic: stamped = revOrigin - media PTS.
	reversed  bool
	revOrigin time.Duration
	// gen counts queue baseline resets (seek, stop, loop wrap). A frame
	// popped before a reset must not become current after it.
	gen     uint64
	current *gpu.Uploaded
	lastErr error
}

// NewSession wraps an open decoder and starts its worker. The caller keeps
// ownership of nothing passed in except the uploader's shared pool.
func NewSession(dec decode.Decoder, uploader *gpu.Uploader, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	failMax := opts.FailureThreshold
	if failMax <= 0 {
		failMax = DefaultFailureThreshold
	}

	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		log:      log.With("component", "session", "session_id", id.String(), "path", dec.Info().Path),
		dec:      dec,
		info:     dec.Info(),
		queue:    framequeue.New(opts.QueueDepth),
		uploader: uploader,
		failMax:  failMax,
		cmds:     make(chan command, 16),
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    StateIdle,
		speed:    1,
	}
	go s.run(ctx)
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Info returns the source metadata captured at open.
func (s *Session) Info() media.SourceInfo { return s.info }

func (s *Session) send(cmd command) {
	select {
	case s.cmds <- cmd:
		s.interruptPush()
	case <-s.done:
	}
}

// interruptPush unblocks a worker waiting on a full queue so it notices the
// new command.
func (s *Session) interruptPush() {
	s.pushMu.Lock()
	if s.pushCancel != nil {
		s.pushCancel()
	}
	s.pushMu.Unlock()
}

// Play starts or resumes playback.
func (s *Session) Play() { s.send(command{kind: cmdPlay}) }

// Pause freezes the clock, keeping the last delivered frame available.
func (s *Session) Pause() { s.send(command{kind: cmdPause}) }

// Stop ends playback and resets position to the loop start.
func (s *Session) Stop() { s.send(command{kind: cmdStop}) }

// Seek repositions to t, resuming in the pre-seek state.
func (s *Session) Seek(t time.Duration) { s.send(command{kind: cmdSeek, t: t}) }

// SetSpeed changes the playback rate. Zero freezes like Pause without
// leaving Playing; negative plays in reverse.
func (s *Session) SetSpeed(f float64) { s.send(command{kind: cmdSpeed, f: f}) }

// SetLoopMode changes end-of-stream behavior.
func (s *Session) SetLoopMode(m LoopMode) { s.send(command{kind: cmdLoop, loop: m}) }

// SetFlip mirrors presentation horizontally or vertically.
func (s *Session) SetFlip(h, v bool) {
	s.send(command{kind: cmdFlip, flip: Flip{Horizontal: h, Vertical: v}})
}

// State returns the current transport state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session to StateError, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Duration returns the source length; ok is false for unbounded sources.
func (s *Session) Duration() (time.Duration, bool) {
	return s.info.Duration, s.info.Bounded()
}

// Speed returns the requested playback rate.
func (s *Session) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// LoopMode returns the active loop mode.
func (s *Session) LoopMode() LoopMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop
}

// Position returns the presentation clock, clamped to [0, duration] for
// bounded sources.
func (s *Session) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked(time.Now())
}

func (s *Session) positionLocked(now time.Time) time.Duration {
	p := s.basePos
	if s.rate != 0 {
		p += time.Duration(float64(now.Sub(s.baseAt)) * s.rate)
	}
	return s.clamp(p)
}

func (s *Session) clamp(p time.Duration) time.Duration {
	if p < 0 {
		return 0
	}
	if s.info.Bounded() && p > s.info.Duration {
		return s.info.Duration
	}
	return p
}

// setClockLocked re-anchors the presentation clock.
func (s *Session) setClockLocked(pos time.Duration, rate float64, now time.Time) {
	s.basePos = pos
	s.baseAt = now
	s.rate = rate
}

// QueueLen reports how many decoded frames are waiting. Mostly useful for
// observability.
func (s *Session) QueueLen() int { return s.queue.Len() }

// CurrentFrame returns the most recent texture-resident frame due at the
// presentation clock, or nil before the first frame is ready. Skipped-past
// frames are dropped; the previously vended textures return to the pool
// when a newer frame replaces them. Upload failures surface here.
func (s *Session) CurrentFrame() (*Frame, error) {
	s.mu.Lock()
	now := time.Now()
	clock := s.positionLocked(now)
	stamped := clock
	if s.reversed {
		stamped = s.revOrigin - clock
	}
	gen := s.gen
	s.mu.Unlock()

	f := s.queue.Pop(stamped)
	if f == nil {
		return s.snapshot(), nil
	}

	up, err := s.uploader.Upload(f)
	if err != nil {
		s.log.Error("frame upload failed", "pts", f.PTS, "error", err)
		return s.snapshot(), err
	}

	s.mu.Lock()
	if s.gen != gen {
		// A seek or stop landed while this frame was uploading; it belongs
		// to the old timeline.
		s.mu.Unlock()
		s.uploader.Release(up)
		return s.snapshot(), nil
	}
	if s.reversed {
		up.PTS = s.revOrigin - f.PTS
	}
	old := s.current
	s.current = up
	s.mu.Unlock()
	s.uploader.Release(old)
	return s.snapshot(), nil
}

func (s *Session) snapshot() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return &Frame{
		Color:  s.current.Color,
		Chroma: s.current.Chroma,
		PTS:    s.current.PTS,
		Flip:   s.flip,
	}
}

// Close terminates the worker, returns vended textures to the pool, and
// closes the decoder.
func (s *Session) Close() error {
	s.cancel()
	s.interruptPush()
	<-s.done

	s.queue.Flush()
	s.mu.Lock()
	current := s.current
	s.current = nil
	s.mu.Unlock()
	s.uploader.Release(current)
	s.uploader.Close()

	err := s.dec.Close()
	s.log.Info("session closed")
	return err
}
