package playback

import "fmt"

// State is a session's transport state.
type State int32

const (
	// StateIdle is a freshly opened session before the first Play.
	StateIdle State = iota
	// StatePlaying advances the presentation clock and produces frames.
	StatePlaying
	// StatePaused holds the clock; the last delivered frame stays visible.
	StatePaused
	// StateSeeking is the transient state while the queue is flushed and
	// the decoder repositions. No frame is emitted during it.
	StateSeeking
	// StateStopped is a terminated worker with position reset to the loop
	// start. Play restarts from there.
	StateStopped
	// StateError is entered after the consecutive failure threshold. The
	// session stays queryable but emits no new frames; only reopening the
	// source recovers.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateSeeking:
		return "seeking"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// LoopMode selects end-of-stream behavior.
type LoopMode int32

const (
	// LoopOnce stops at the end, holding the last frame.
	LoopOnce LoopMode = iota
	// LoopRepeat seeks back to the start and keeps going.
	LoopRepeat
	// LoopPingPong seeks to the boundary it reached and flips the playback
	// direction.
	LoopPingPong
)

func (m LoopMode) String() string {
	switch m {
	case LoopOnce:
		return "once"
	case LoopRepeat:
		return "loop"
	case LoopPingPong:
		return "pingpong"
	default:
		return fmt.Sprintf("loop(%d)", int32(m))
	}
}

// Flip mirrors presentation without touching decode. Read atomically with
// the current frame.
type Flip struct {
	Horizontal bool
	Vertical   bool
}
