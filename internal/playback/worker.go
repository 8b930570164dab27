package playback

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/lumen-media/lumen/internal/framequeue"
	"github.com/lumen-media/lumen/media"
)

// workerState is the decode goroutine's private bookkeeping. Only the
// worker touches it, so it needs no locking.
type workerState struct {
	pending *media.Frame
	// prime asks for exactly one frame to be decoded and pushed even
	// though the session is not actively playing, so a paused seek still
	// shows the target frame.
	prime     bool
	lastMedia time.Duration
	reversed  bool
	revOrigin time.Duration
	failures  int
	// eos records that the decoder ran out of frames. The loop decision is
	// deferred until the presentation clock reaches the boundary, so queued
	// frames still play out before a wrap.
	eos        bool
	eosForward bool
	// rollTo is the pending seek target. Decoders that snap seeks to a
	// keyframe land early; decode forward discarding frames until the
	// target is covered. Negative means no roll is pending.
	rollTo time.Duration
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	ws := &workerState{rollTo: -1}

	for {
		drained := false
		for !drained {
			select {
			case cmd := <-s.cmds:
				s.apply(cmd, ws)
			case <-ctx.Done():
				return
			default:
				drained = true
			}
		}

		if ws.eos {
			if !s.endReached(ws) {
				if !s.waitForEnd(ctx, ws) {
					return
				}
				continue
			}
			ws.eos = false
			s.handleEnd(ws, ws.eosForward)
			continue
		}

		if !s.producing(ws) {
			select {
			case cmd := <-s.cmds:
				s.apply(cmd, ws)
			case <-ctx.Done():
				return
			}
			continue
		}

		if ws.pending == nil {
			ws.pending = s.decodeNext(ws)
			if ws.pending == nil {
				continue
			}
		}

		pctx := s.armPush(ctx)
		err := s.queue.Push(pctx, ws.pending)
		s.disarmPush()
		switch {
		case err == nil:
			ws.pending = nil
			ws.prime = false
		case errors.Is(err, framequeue.ErrOutOfOrder):
			s.log.Warn("dropped out-of-order frame", "pts", ws.pending.PTS)
			ws.pending = nil
		case ctx.Err() != nil:
			return
		default:
			// Interrupted by a command; handle it, then retry the push.
		}
	}
}

// armPush derives a context the API side can cancel, so a producer blocked
// on a full queue yields to an arriving command.
func (s *Session) armPush(ctx context.Context) context.Context {
	pctx, cancel := context.WithCancel(ctx)
	s.pushMu.Lock()
	s.pushCancel = cancel
	pendingCmd := len(s.cmds) > 0
	s.pushMu.Unlock()
	if pendingCmd {
		cancel()
	}
	return pctx
}

func (s *Session) disarmPush() {
	s.pushMu.Lock()
	if s.pushCancel != nil {
		s.pushCancel()
		s.pushCancel = nil
	}
	s.pushMu.Unlock()
}

// endReached reports whether the presentation clock has played out to the
// boundary the decoder ran into.
func (s *Session) endReached(ws *workerState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.info.Bounded() {
		return true
	}
	pos := s.positionLocked(time.Now())
	if ws.eosForward {
		return pos >= s.info.Duration
	}
	return pos <= 0
}

// waitForEnd parks the worker until the clock catches up, a command arrives,
// or the session closes. Returns false on shutdown.
func (s *Session) waitForEnd(ctx context.Context, ws *workerState) bool {
	s.mu.Lock()
	frozen := s.rate == 0
	s.mu.Unlock()

	if frozen {
		// The clock is not moving; only a command can change anything.
		select {
		case cmd := <-s.cmds:
			s.apply(cmd, ws)
		case <-ctx.Done():
			return false
		}
		return true
	}
	select {
	case cmd := <-s.cmds:
		s.apply(cmd, ws)
	case <-ctx.Done():
		return false
	case <-time.After(2 * time.Millisecond):
	}
	return true
}

func (s *Session) producing(ws *workerState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StatePlaying:
		return s.speed != 0 || ws.prime
	case StateIdle, StatePaused, StateStopped:
		return ws.prime
	default:
		return false
	}
}

func (s *Session) apply(cmd command, ws *workerState) {
	now := time.Now()
	switch cmd.kind {
	case cmdPlay:
		s.mu.Lock()
		if s.state == StateError || s.state == StatePlaying {
			s.mu.Unlock()
			return
		}
		pos := s.positionLocked(now)
		speed := s.speed
		atEnd := s.state == StateStopped && s.info.Bounded() &&
			((speed >= 0 && pos >= s.info.Duration) || (speed < 0 && pos <= 0))
		dur := s.info.Duration
		s.state = StatePlaying
		s.setClockLocked(pos, speed, now)
		s.mu.Unlock()
		if atEnd {
			// Resuming after playing to the end restarts from the far
			// boundary instead of instantly stopping again.
			start := time.Duration(0)
			if speed < 0 {
				start = dur
			}
			s.seekTo(ws, start, time.Now())
			pos = start
		}
		s.log.Info("playing", "position", pos)

	case cmdPause:
		s.mu.Lock()
		if s.state != StatePlaying {
			s.mu.Unlock()
			return
		}
		s.setClockLocked(s.positionLocked(now), 0, now)
		s.state = StatePaused
		s.mu.Unlock()
		s.log.Info("paused")

	case cmdStop:
		s.mu.Lock()
		if s.state == StateError {
			s.mu.Unlock()
			return
		}
		s.state = StateStopped
		s.setClockLocked(0, 0, now)
		s.reversed = false
		s.mu.Unlock()
		ws.pending = nil
		ws.prime = false
		ws.reversed = false
		ws.lastMedia = 0
		ws.eos = false
		ws.rollTo = -1
		dropped := s.queue.Flush()
		s.mu.Lock()
		s.gen++
		s.mu.Unlock()
		if err := s.dec.Seek(0); err != nil {
			s.noteFailure(ws, err)
		}
		s.log.Info("stopped", "frames_dropped", dropped)

	case cmdSeek:
		s.seekTo(ws, cmd.t, now)

	case cmdSpeed:
		s.mu.Lock()
		if s.state == StateError {
			s.mu.Unlock()
			return
		}
		old := s.speed
		s.speed = cmd.f
		if s.state == StatePlaying {
			s.setClockLocked(s.positionLocked(now), cmd.f, now)
		}
		pos := s.positionLocked(now)
		s.mu.Unlock()
		// A direction change re-anchors the decode cursor in place.
		if cmd.f != 0 && (old < 0) != (cmd.f < 0) {
			s.seekTo(ws, pos, time.Now())
		}
		s.log.Info("speed changed", "speed", cmd.f)

	case cmdLoop:
		s.mu.Lock()
		s.loop = cmd.loop
		s.mu.Unlock()

	case cmdFlip:
		s.mu.Lock()
		s.flip = cmd.flip
		s.mu.Unlock()
	}
}

// seekTo flushes the queue, repositions the decoder, and resumes in the
// pre-seek state. Repeated seeks collapse onto the original pre-seek state.
func (s *Session) seekTo(ws *workerState, t time.Duration, now time.Time) {
	s.mu.Lock()
	if s.state == StateError {
		s.mu.Unlock()
		return
	}
	prev := s.state
	if prev == StateSeeking {
		prev = s.preSeek
	}
	s.preSeek = prev
	s.state = StateSeeking
	t = s.clamp(t)
	speed := s.speed
	s.mu.Unlock()

	dropped := s.queue.Flush()
	ws.pending = nil
	ws.eos = false
	if err := s.dec.Seek(t); err != nil {
		s.noteFailure(ws, err)
	}
	ws.reversed = speed < 0
	ws.revOrigin = t
	ws.lastMedia = t
	ws.rollTo = t
	if ws.reversed {
		// Make the first reverse step decode the frame at t itself;
		// reverse steps already roll forward to their target.
		ws.lastMedia = t + s.frameInterval()
		ws.rollTo = -1
	}

	s.mu.Lock()
	if s.state == StateSeeking {
		s.state = s.preSeek
	}
	s.gen++
	s.reversed = ws.reversed
	s.revOrigin = t
	rate := 0.0
	if s.state == StatePlaying {
		rate = speed
	}
	s.setClockLocked(t, rate, time.Now())
	state := s.state
	s.mu.Unlock()

	ws.prime = state != StateError && !(state == StatePlaying && speed != 0)
	s.log.Info("seek", "target", t, "frames_dropped", dropped, "resume_state", state.String())
}

func (s *Session) frameInterval() time.Duration {
	if iv := s.info.FrameInterval(); iv > 0 {
		return iv
	}
	return 33 * time.Millisecond
}

func (s *Session) decodeNext(ws *workerState) *media.Frame {
	if ws.reversed {
		return s.decodeReverse(ws)
	}
	f, err := s.dec.Decode()
	if err != nil {
		if errors.Is(err, io.EOF) {
			ws.eos = true
			ws.eosForward = true
			return nil
		}
		s.noteFailure(ws, err)
		return nil
	}
	if ws.rollTo >= 0 {
		iv := s.frameInterval()
		for f.PTS+iv <= ws.rollTo {
			nf, err := s.dec.Decode()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				s.noteFailure(ws, err)
				return nil
			}
			f = nf
		}
		ws.rollTo = -1
	}
	ws.failures = 0
	ws.lastMedia = f.PTS
	return f
}

// decodeReverse reconstructs the previous frame with the forward-only
// decode primitive: seek to the target, decode forward, keep the frame
// covering it. Timestamps are mirrored so the queue stays monotonic.
func (s *Session) decodeReverse(ws *workerState) *media.Frame {
	target := ws.lastMedia - s.frameInterval()
	if target < 0 {
		ws.eos = true
		ws.eosForward = false
		return nil
	}
	if err := s.dec.Seek(target); err != nil {
		s.noteFailure(ws, err)
		return nil
	}

	var kept *media.Frame
	for {
		f, err := s.dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.noteFailure(ws, err)
			return nil
		}
		if kept == nil || f.PTS <= target {
			kept = f
		}
		if f.PTS >= target {
			break
		}
	}
	if kept == nil {
		// Past the last frame (e.g. right after wrapping to the far end);
		// step the cursor back and try again.
		ws.lastMedia = target
		return nil
	}
	ws.failures = 0
	ws.lastMedia = kept.PTS
	kept.PTS = ws.revOrigin - kept.PTS
	return kept
}

// handleEnd applies the loop mode when playback reaches a boundary:
// the far end going forward, time zero going backward.
func (s *Session) handleEnd(ws *workerState, forward bool) {
	now := time.Now()
	s.mu.Lock()
	mode := s.loop
	dur := s.info.Duration
	bounded := s.info.Bounded()
	s.mu.Unlock()

	if !bounded {
		// An unbounded source that ends has nowhere to wrap to.
		mode = LoopOnce
	}

	switch mode {
	case LoopOnce:
		s.mu.Lock()
		end := dur
		if !forward {
			end = 0
		}
		if !bounded {
			end = s.positionLocked(now)
		}
		s.setClockLocked(end, 0, now)
		s.state = StateStopped
		s.mu.Unlock()
		ws.prime = false
		s.log.Info("end of stream", "state", StateStopped.String())

	case LoopRepeat:
		start := time.Duration(0)
		if !forward {
			start = dur
		}
		s.wrapTo(ws, start, now)

	case LoopPingPong:
		s.mu.Lock()
		s.speed = -s.speed
		s.mu.Unlock()
		bound := dur
		if !forward {
			bound = 0
		}
		s.wrapTo(ws, bound, now)
	}
}

// wrapTo re-anchors clock and decode cursor at a loop boundary without
// leaving the current state.
func (s *Session) wrapTo(ws *workerState, t time.Duration, now time.Time) {
	s.queue.Flush()
	ws.pending = nil
	ws.eos = false
	ws.rollTo = -1

	s.mu.Lock()
	s.gen++
	speed := s.speed
	ws.reversed = speed < 0
	ws.revOrigin = t
	s.reversed = ws.reversed
	s.revOrigin = t
	rate := 0.0
	if s.state == StatePlaying {
		rate = speed
	}
	s.setClockLocked(t, rate, now)
	s.mu.Unlock()

	ws.lastMedia = t
	if ws.reversed {
		ws.lastMedia = t + s.frameInterval()
	} else if err := s.dec.Seek(t); err != nil {
		s.noteFailure(ws, err)
	}
	s.log.Debug("loop wrap", "position", t, "reversed", ws.reversed)
}

func (s *Session) noteFailure(ws *workerState, err error) {
	ws.failures++
	s.log.Warn("frame failed", "error", err, "consecutive", ws.failures)
	if ws.failures < s.failMax {
		return
	}

	now := time.Now()
	s.mu.Lock()
	s.setClockLocked(s.positionLocked(now), 0, now)
	s.state = StateError
	s.lastErr = err
	s.mu.Unlock()
	s.log.Error("failure threshold reached, session halted", "error", err)
}
