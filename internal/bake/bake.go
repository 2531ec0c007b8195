// Package bake runs the lightmap and ambient occlusion bake: atlas layout,
// atlas map rasterization, scene staging and the hemicube bounce passes.
//
// All work that touches the render context runs as workqueue jobs so the
// context's owner can keep presenting frames between batches.
package bake

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/lightbake/internal/atlas"
	"github.com/Faultbox/lightbake/internal/atlasmap"
	"github.com/Faultbox/lightbake/internal/logger"
	"github.com/Faultbox/lightbake/internal/probe"
	"github.com/Faultbox/lightbake/internal/render"
	"github.com/Faultbox/lightbake/internal/scene"
	"github.com/Faultbox/lightbake/internal/staging"
	"github.com/Faultbox/lightbake/internal/workqueue"
)

// ErrNothingToBake means the scene has no eligible meshes.
var ErrNothingToBake = errors.New("bake: no meshes to bake")

// Hooks receive intermediate results for progress display. They run on the
// baking goroutine and must not keep the slices they are given.
type Hooks struct {
	OnAtlasMapReady func(m *atlasmap.Map)
	OnPassComplete  func(pass int, buffer []float32, width, height int)
}

// Options configures a Baker.
type Options struct {
	// Queue serializes access to the render context. Nil runs render
	// work directly on the calling goroutine.
	Queue  *workqueue.Manager
	Hooks  Hooks
	Logger *zap.Logger
}

// Baker bakes scenes through one render context.
type Baker struct {
	rc    render.Context
	queue *workqueue.Manager
	hooks Hooks
	log   *zap.Logger
}

// New creates a Baker.
func New(rc render.Context, opts Options) *Baker {
	return &Baker{
		rc:    rc,
		queue: opts.Queue,
		hooks: opts.Hooks,
		log:   logger.Or(opts.Logger, "bake"),
	}
}

// Bake bakes root with settings and returns the finished texture, which is
// also assigned to the baked meshes' materials.
func (b *Baker) Bake(ctx context.Context, root *scene.Node, settings Settings) (*scene.Texture, error) {
	wb, err := NewWorkbench(root, settings)
	if err != nil {
		return nil, err
	}
	return b.Run(ctx, wb)
}

// turn runs fn with exclusive use of the render context.
func (b *Baker) turn(ctx context.Context, fn func() error) error {
	if b.queue == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn()
	}
	return b.queue.Do(ctx, fn)
}

// cleanup runs fn even if ctx has ended. If the queue no longer serves
// jobs, fn runs on the calling goroutine.
func (b *Baker) cleanup(ctx context.Context, fn func()) {
	err := b.turn(context.WithoutCancel(ctx), func() error {
		fn()
		return nil
	})
	if errors.Is(err, workqueue.ErrClosed) {
		fn()
	}
}

// yield gives the context owner a frame between stages.
func (b *Baker) yield(ctx context.Context) error {
	if b.queue == nil {
		return ctx.Err()
	}
	return b.queue.Yield(ctx)
}

// Run executes a bake on an idle workbench.
func (b *Baker) Run(ctx context.Context, wb *Workbench) (tex *scene.Texture, err error) {
	if s, _ := wb.State(); s != StateIdle {
		return nil, fmt.Errorf("bake: workbench %s is %s, not idle", wb.ID, s)
	}
	log := b.log.With(zap.String("session", wb.ID.String()))
	start := time.Now()
	defer func() {
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			wb.setState(StateFailed)
			log.Info("bake canceled", zap.Error(err))
		default:
			wb.setState(StateFailed)
			log.Error("bake failed", zap.Error(err))
		}
	}()

	if err := b.layout(ctx, wb, log); err != nil {
		return nil, err
	}
	if err := b.yield(ctx); err != nil {
		return nil, err
	}
	if err := b.rasterize(ctx, wb, log); err != nil {
		return nil, err
	}

	set := wb.Settings
	wb.Texture = scene.NewTexture("lightmap", wb.Layout.Width, wb.Layout.Height)
	wb.Texture.Filter = set.TextureFilter
	wb.Irradiance = make([]float32, len(wb.Texture.Data))

	var stage *staging.Stage
	var sampler *probe.Sampler
	err = b.turn(ctx, func() error {
		var err error
		stage, err = staging.Apply(wb.Root, wb.Items, wb.Texture, staging.Options{
			AOMode:             set.AOMode,
			EmissiveMultiplier: set.EmissiveMultiplier,
			BounceMultiplier:   set.BounceMultiplier,
			Logger:             log,
		})
		if err != nil {
			return err
		}
		sampler, err = probe.New(b.rc, wb.Root, probe.Options{
			Settings:   set.Sampler,
			AOMode:     set.AOMode,
			AODistance: set.AODistance,
			Logger:     log,
		})
		if err != nil {
			stage.Restore()
			stage = nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	defer b.cleanup(ctx, func() {
		sampler.Close()
		stage.Restore()
		if err == nil {
			staging.Assign(wb.Items, wb.Texture, set.AOMode)
		}
	})

	for pass := 1; pass <= Passes; pass++ {
		wb.startPass(pass)
		if err := b.pass(ctx, wb, sampler, pass, log); err != nil {
			return nil, fmt.Errorf("bake: pass %d: %w", pass, err)
		}
	}

	wb.setState(StateDone)
	log.Info("bake finished",
		zap.Int("width", wb.Layout.Width),
		zap.Int("height", wb.Layout.Height),
		zap.Duration("elapsed", time.Since(start)))
	return wb.Texture, nil
}

func (b *Baker) layout(ctx context.Context, wb *Workbench, log *zap.Logger) error {
	wb.setState(StateLayoutPending)
	return b.turn(ctx, func() error {
		wb.Items = atlas.Eligible(wb.Root)
		if len(wb.Items) == 0 {
			return ErrNothingToBake
		}
		if err := staging.Check(wb.Items, wb.Settings.AOMode); err != nil {
			return err
		}
		l, err := atlas.Compute(wb.Items, atlas.Options{
			TexelsPerUnit: wb.Settings.TexelsPerUnit,
			Width:         wb.Settings.LightMapWidth,
			Height:        wb.Settings.LightMapHeight,
			Logger:        log,
		})
		if err != nil {
			return err
		}
		wb.Layout = l
		return nil
	})
}

func (b *Baker) rasterize(ctx context.Context, wb *Workbench, log *zap.Logger) error {
	err := b.turn(ctx, func() error {
		m, err := atlasmap.Rasterize(b.rc, wb.Layout.Width, wb.Layout.Height, wb.Items, log)
		if err != nil {
			return err
		}
		wb.AtlasMap = m
		return nil
	})
	if err != nil {
		return err
	}
	wb.setState(StateMapRasterized)
	log.Info("atlas map ready", zap.Int("texels", wb.AtlasMap.Count()))
	if b.hooks.OnAtlasMapReady != nil {
		b.hooks.OnAtlasMapReady(wb.AtlasMap)
	}
	return nil
}

// pass samples every covered texel once and commits the result.
func (b *Baker) pass(ctx context.Context, wb *Workbench, sampler *probe.Sampler, pass int, log *zap.Logger) error {
	start := time.Now()
	m := wb.AtlasMap
	out := newPassBuffer(m.Width, m.Height)

	next, stop := iter.Pull2(m.Texels())
	defer stop()

	texels := make([]atlasmap.ProbeTexel, 0, probe.BatchSize)
	reqs := make([]probe.Request, 0, probe.BatchSize)
	batches := 0
	for {
		texels, reqs = texels[:0], reqs[:0]
		for len(texels) < probe.BatchSize {
			pt, err, ok := next()
			if !ok {
				break
			}
			if err != nil {
				return err
			}
			pos, normal := pt.Point()
			texels = append(texels, pt)
			reqs = append(reqs, probe.Request{Position: pos, Normal: normal})
		}
		if len(texels) == 0 {
			break
		}

		if err := b.turn(ctx, func() error { return sampler.RenderBatch(reqs) }); err != nil {
			return err
		}
		for i, pt := range texels {
			out.write(pt.Index, sampler.Irradiance(i), m.Filled)
		}
		batches++
	}

	err := b.turn(ctx, func() error {
		wb.commit(out.data)
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("pass complete",
		zap.Int("pass", pass),
		zap.Int("batches", batches),
		zap.Duration("elapsed", time.Since(start)))
	if b.hooks.OnPassComplete != nil {
		b.hooks.OnPassComplete(pass, wb.Irradiance, m.Width, m.Height)
	}
	return nil
}
