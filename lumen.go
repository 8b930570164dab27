// Package lumen is the public surface of the media playback pipeline. It
// decodes video files, HAP section streams, still images, animations, and
// image sequences into GPU textures, with per-source playback control.
//
// The typical flow is: open a GPU backend, build an Engine over it, open one
// session per media source, and poll CurrentFrame from the render loop.
package lumen

import (
	"log/slog"

	"github.com/lumen-media/lumen/internal/config"
	"github.com/lumen-media/lumen/internal/engine"
	"github.com/lumen-media/lumen/internal/gpu"
	"github.com/lumen-media/lumen/internal/playback"
)

// Engine owns the shared texture pool and all open playback sessions.
type Engine = engine.Engine

// Session is the playback handle for one open media source.
type Session = playback.Session

// Frame is an uploaded video frame ready for sampling.
type Frame = playback.Frame

// State is a session's playback state.
type State = playback.State

// Playback states.
const (
	StateIdle    = playback.StateIdle
	StatePlaying = playback.StatePlaying
	StatePaused  = playback.StatePaused
	StateSeeking = playback.StateSeeking
	StateStopped = playback.StateStopped
	StateError   = playback.StateError
)

// LoopMode selects what happens when playback reaches the end of a bounded
// source.
type LoopMode = playback.LoopMode

// Loop modes.
const (
	LoopOnce     = playback.LoopOnce
	LoopRepeat   = playback.LoopRepeat
	LoopPingPong = playback.LoopPingPong
)

// Flip mirrors frame presentation on either axis.
type Flip = playback.Flip

// Texture is a pooled GPU texture holding one uploaded plane.
type Texture = gpu.Texture

// Backend abstracts the GPU device used for uploads.
type Backend = gpu.Backend

// Config carries engine tuning knobs.
type Config = config.Config

// New builds an engine over an initialized GPU backend. If log is nil,
// slog.Default() is used.
func New(backend Backend, cfg Config, log *slog.Logger) *Engine {
	return engine.New(backend, cfg, log)
}

// DefaultConfig returns the built-in configuration defaults.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads a YAML configuration file, expanding ${VAR} references
// and applying defaults for unset fields.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// OpenBackend opens the first usable GPU adapter on the Vulkan backend.
func OpenBackend() (Backend, error) { return gpu.OpenHALBackend() }
