package engine

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lumen-media/lumen/internal/config"
	"github.com/lumen-media/lumen/internal/gpu/gputest"
	"github.com/lumen-media/lumen/internal/playback"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeStill(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 128, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func TestOpenAndCloseSession(t *testing.T) {
	t.Parallel()
	e := New(gputest.New(), config.Default(), testLogger())
	defer e.Close()

	path := writeStill(t, t.TempDir(), "still.png")
	s, err := e.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.State() != playback.StateIdle {
		t.Errorf("new session state = %s, want idle", s.State())
	}

	got, ok := e.Session(s.ID())
	if !ok || got != s {
		t.Fatalf("Session(%s) lookup failed", s.ID())
	}
	if n := len(e.Sessions()); n != 1 {
		t.Fatalf("open sessions = %d, want 1", n)
	}

	if err := e.CloseSession(s.ID()); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if _, ok := e.Session(s.ID()); ok {
		t.Errorf("closed session still registered")
	}
	if err := e.CloseSession(uuid.New()); err == nil {
		t.Errorf("closing unknown session succeeded")
	}
}

func TestOpenMissingSource(t *testing.T) {
	t.Parallel()
	e := New(gputest.New(), config.Default(), testLogger())
	defer e.Close()

	if _, err := e.Open(filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Fatalf("opening missing file succeeded")
	}
}

func TestCloseTerminatesSessions(t *testing.T) {
	t.Parallel()
	e := New(gputest.New(), config.Default(), testLogger())

	path := writeStill(t, t.TempDir(), "still.png")
	s, err := e.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Play()

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := e.Open(path); err == nil {
		t.Errorf("Open after Close succeeded")
	}

	// The pool sweeper must have exited; a second Close is a no-op.
	done := make(chan struct{})
	go func() {
		e.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("second Close hung")
	}
}
