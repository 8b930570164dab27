package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/lumen-media/lumen"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	configPath := flag.String("config", envOr("LUMEN_CONFIG", ""), "path to YAML config file")
	loop := flag.String("loop", "once", "loop mode: once, repeat, pingpong")
	speed := flag.Float64("speed", 1.0, "playback speed multiplier")
	flag.Parse()

	if flag.NArg() == 0 {
		slog.Error("no media sources given", "usage", "lumen [flags] <file-or-dir>...")
		os.Exit(1)
	}

	cfg := lumen.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = lumen.LoadConfig(*configPath)
		if err != nil {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		slog.Info("config loaded", "path", *configPath)
	}

	mode, ok := parseLoopMode(*loop)
	if !ok {
		slog.Error("unknown loop mode", "loop", *loop)
		os.Exit(1)
	}

	slog.Info("opening GPU device")
	backend, err := lumen.OpenBackend()
	if err != nil {
		slog.Error("failed to open GPU device", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	eng := lumen.New(backend, cfg, nil)

	slog.Info("lumen starting", "version", version, "sources", flag.NArg())

	for _, path := range flag.Args() {
		s, err := eng.Open(path)
		if err != nil {
			slog.Error("failed to open source", "path", path, "error", err)
			eng.Close()
			os.Exit(1)
		}
		s.SetLoopMode(mode)
		if *speed != 1.0 {
			s.SetSpeed(*speed)
		}
		info := s.Info()
		slog.Info("source opened",
			"session_id", s.ID().String(),
			"path", path,
			"width", info.Width,
			"height", info.Height,
			"bounded", info.Bounded(),
		)
		s.Play()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runFrameLoop(ctx, eng)
	})

	g.Go(func() error {
		return runStatusLog(ctx, eng)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("runtime error", "error", err)
		eng.Close()
		os.Exit(1)
	}

	if err := eng.Close(); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// runFrameLoop pulls the latest frame from every session at roughly display
// rate. A renderer would sample the returned textures here; the CLI only
// drives the pipeline and surfaces decode errors.
func runFrameLoop(ctx context.Context, eng *lumen.Engine) error {
	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, s := range eng.Sessions() {
				if _, err := s.CurrentFrame(); err != nil {
					slog.Warn("frame error", "session_id", s.ID().String(), "error", err)
				}
				if s.State() == lumen.StateError {
					slog.Error("session failed", "session_id", s.ID().String(), "error", s.Err())
				}
			}
		}
	}
}

func runStatusLog(ctx context.Context, eng *lumen.Engine) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats := eng.Pool().Stats()
			for _, s := range eng.Sessions() {
				slog.Info("session status",
					"session_id", s.ID().String(),
					"state", s.State().String(),
					"position", s.Position(),
					"speed", s.Speed(),
					"queue", s.QueueLen(),
				)
			}
			slog.Debug("texture pool", "in_use", stats.InUse, "idle", stats.Idle)
		}
	}
}

func parseLoopMode(s string) (lumen.LoopMode, bool) {
	switch s {
	case "once":
		return lumen.LoopOnce, true
	case "repeat":
		return lumen.LoopRepeat, true
	case "pingpong":
		return lumen.LoopPingPong, true
	}
	return lumen.LoopOnce, false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
