// Package main is the entry point for the lightbake CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/lightbake/internal/atlasmap"
	"github.com/Faultbox/lightbake/internal/bake"
	"github.com/Faultbox/lightbake/internal/config"
	"github.com/Faultbox/lightbake/internal/export"
	"github.com/Faultbox/lightbake/internal/logger"
	"github.com/Faultbox/lightbake/internal/render"
	"github.com/Faultbox/lightbake/internal/render/glrender"
	"github.com/Faultbox/lightbake/internal/render/soft"
	"github.com/Faultbox/lightbake/internal/scene"
	"github.com/Faultbox/lightbake/internal/window"
	"github.com/Faultbox/lightbake/internal/workqueue"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== lightbake ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	if err := run(cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("bake canceled")
		} else {
			logger.Error("bake failed", zap.Error(err))
		}
		logger.Sync()
		os.Exit(1)
	}
}

type result struct {
	tex *scene.Texture
	err error
}

func run(cfg *config.Config) error {
	if cfg.Scene.Path == "" {
		return errors.New("no scene given (use -scene or scene.path)")
	}
	format, err := export.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	root, err := scene.Load(cfg.Scene.Path)
	if err != nil {
		return fmt.Errorf("loading scene: %w", err)
	}

	rc, frame, closeBackend, err := newBackend(cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := workqueue.New(workqueue.Options{JobsPerFrame: cfg.Render.JobsPerFrame})
	baker := bake.New(rc, bake.Options{Queue: queue, Hooks: debugHooks(cfg.Output.DebugDir)})

	done := make(chan result, 1)
	go func() {
		defer queue.Close()
		tex, err := baker.Bake(ctx, root, cfg.BakeSettings())
		done <- result{tex, err}
	}()

	// Render turns run here, on the thread that owns the GL context. The
	// queue is closed once the bake goroutine has finished its cleanup.
	start := time.Now()
	if err := queue.Serve(context.Background(), 0, func() {
		if frame != nil && frame() {
			stop()
		}
	}); err != nil {
		return err
	}

	res := <-done
	if res.err != nil {
		return res.err
	}

	executed, _ := queue.Stats()
	logger.Info("bake finished",
		zap.Int("width", res.tex.Width),
		zap.Int("height", res.tex.Height),
		zap.Int64("turns", executed),
		zap.Duration("elapsed", time.Since(start)))

	if err := export.WriteFile(cfg.Output.Path, res.tex.Data, res.tex.Width, res.tex.Height, export.Options{
		Format: format,
		SRGB:   cfg.Output.SRGB,
	}); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.Output.Path, err)
	}
	logger.Info("lightmap written", zap.String("path", cfg.Output.Path), zap.String("format", string(format)))
	return nil
}

// newBackend creates the render context. frame is called between turns and
// reports whether the user closed the window.
func newBackend(cfg *config.Config) (rc render.Context, frame func() bool, closeFn func(), err error) {
	wc := cfg.Render.Window
	switch cfg.Render.Backend {
	case "gl":
		win, err := window.New(window.Config{
			Title:   "lightbake",
			Width:   wc.Width,
			Height:  wc.Height,
			Visible: wc.Visible,
			VSync:   wc.VSync,
		}, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		w, h := win.DrawableSize()
		glc, err := glrender.New(w, h, nil)
		if err != nil {
			win.Close()
			return nil, nil, nil, err
		}
		frame = func() bool {
			quit := win.PollEvents()
			if wc.Visible {
				win.SwapBuffers()
			}
			return quit
		}
		return glc, frame, func() {
			glc.Close()
			win.Close()
		}, nil
	default:
		return soft.New(wc.Width, wc.Height), nil, func() {}, nil
	}
}

// debugHooks writes the atlas map and every pass into dir.
func debugHooks(dir string) bake.Hooks {
	if dir == "" {
		return bake.Hooks{}
	}
	d := export.NewDebugWriter(dir, 256, nil)
	return bake.Hooks{
		OnAtlasMapReady: func(m *atlasmap.Map) {
			if err := d.AtlasMap(m); err != nil {
				logger.Warn("failed to write atlas map image", zap.Error(err))
			}
		},
		OnPassComplete: func(pass int, buffer []float32, width, height int) {
			if err := d.Pass(pass, buffer, width, height); err != nil {
				logger.Warn("failed to write pass image", zap.Int("pass", pass), zap.Error(err))
			}
		},
	}
}
