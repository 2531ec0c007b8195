// Package probe renders hemicube light probes and reduces them to a single
// weighted irradiance (or occlusion) value per probe.
//
// A hemicube is five 90° views around a surface point: one along the normal
// and four to the sides, of which only the upper half lies above the
// surface. Up to BatchSize probes are tiled into one target and read back
// with a single ReadPixels call.
package probe

import (
	"fmt"
	gomath "math"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/lightbake/internal/logger"
	"github.com/Faultbox/lightbake/internal/render"
	"github.com/Faultbox/lightbake/internal/scene"
	"github.com/Faultbox/lightbake/pkg/math"
)

// BatchSize is the number of probes rendered per read-back.
const BatchSize = 8

// Settings are the hemicube geometry parameters.
type Settings struct {
	TargetSize int     `yaml:"target_size"`
	Offset     float32 `yaml:"offset"`
	Near       float32 `yaml:"near"`
	Far        float32 `yaml:"far"`
}

// DefaultSettings returns a 16 texel hemicube with near 0.05 and far 50.
func DefaultSettings() Settings {
	return Settings{TargetSize: 16, Offset: 0, Near: 0.05, Far: 50}
}

// Validate checks the settings.
func (s Settings) Validate() error {
	if s.TargetSize < 2 || s.TargetSize%2 != 0 {
		return fmt.Errorf("probe: target size must be even and at least 2, got %d", s.TargetSize)
	}
	if s.Near <= 0 || s.Far <= s.Near {
		return fmt.Errorf("probe: need 0 < near < far, got near %g far %g", s.Near, s.Far)
	}
	if s.Offset < 0 {
		return fmt.Errorf("probe: offset must not be negative, got %g", s.Offset)
	}
	return nil
}

// Options configures a Sampler.
type Options struct {
	Settings Settings
	// AOMode renders against a white background with the far plane
	// clamped to AODistance.
	AOMode     bool
	AODistance float32
	Logger     *zap.Logger
}

// Request is one probe: a surface point and its unit normal.
type Request struct {
	Position math.Vec3
	Normal   math.Vec3
}

// Sampler renders probe batches. It owns one batch target for its
// lifetime; call Close to release it.
type Sampler struct {
	rc    render.Context
	scene *scene.Node
	opts  Options
	size  int
	near  float32
	far   float32

	target  render.Target
	weights []float32
	pixels  []float32
	count   int

	log *zap.Logger
}

// tile is a sub-rectangle of a probe's cell in the batch target.
type tile struct {
	x, y int
}

// Cell layout, in units of the view size S: the up view fills the left
// S×S square, the four half-height side views stack in two columns.
var sideTiles = [4]tile{{1, 0}, {1, 1}, {2, 0}, {2, 1}}

// New creates a sampler that renders root through rc.
func New(rc render.Context, root *scene.Node, opts Options) (*Sampler, error) {
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	size := opts.Settings.TargetSize
	far := opts.Settings.Far
	if opts.AOMode && opts.AODistance > 0 {
		far = min(far, opts.AODistance)
	}
	if far <= opts.Settings.Near {
		return nil, fmt.Errorf("probe: far plane %g is not beyond near plane %g", far, opts.Settings.Near)
	}

	target, err := rc.NewTarget(size*3, size*BatchSize)
	if err != nil {
		return nil, fmt.Errorf("probe: create batch target: %w", err)
	}
	return &Sampler{
		rc:      rc,
		scene:   root,
		opts:    opts,
		size:    size,
		near:    opts.Settings.Near,
		far:     far,
		target:  target,
		weights: Weights(size),
		pixels:  make([]float32, size*3*size*BatchSize*4),
		log:     logger.Or(opts.Logger, "probe"),
	}, nil
}

// Close releases the batch target.
func (s *Sampler) Close() {
	if s.target != nil {
		s.target.Release()
		s.target = nil
	}
}

// Weights returns the size×size solid-angle weight table of one view,
// row-major from the bottom row. Pixels far from the view center cover a
// smaller solid angle and weigh less.
func Weights(size int) []float32 {
	w := make([]float32, size*size)
	for y := 0; y < size; y++ {
		dy := (float32(y)+0.5)/float32(size) - 0.5
		for x := 0; x < size; x++ {
			dx := (float32(x)+0.5)/float32(size) - 0.5
			w[y*size+x] = 1 / math.Hypot(math.Hypot(dx*2, dy*2), 1)
		}
	}
	return w
}

// views returns the five cameras of a probe: up first, then the sides.
func (s *Sampler) views(r Request) [5]render.Camera {
	n := r.Normal.Normalize()
	t := n.Perpendicular()
	b := n.Cross(t)
	eye := r.Position.Add(n.Scale(s.opts.Settings.Offset))
	fov := float32(gomath.Pi / 2)

	var cams [5]render.Camera
	cams[0] = render.PerspectiveCamera(eye, n, t, fov, 1, s.near, s.far)
	for i, dir := range [4]math.Vec3{t, t.Negate(), b, b.Negate()} {
		cams[i+1] = render.PerspectiveCamera(eye, dir, n, fov, 1, s.near, s.far)
	}
	return cams
}

// RenderBatch renders up to BatchSize probes and reads them back in one
// call. The render context state is restored before returning.
func (s *Sampler) RenderBatch(reqs []Request) error {
	if len(reqs) > BatchSize {
		return fmt.Errorf("probe: batch of %d exceeds %d", len(reqs), BatchSize)
	}
	s.count = len(reqs)
	if len(reqs) == 0 {
		return nil
	}
	start := time.Now()

	rc := s.rc
	restore := render.Borrow(rc)
	defer restore()

	rc.SetTarget(s.target)
	rc.SetAutoClear(false)
	rc.SetScissorTest(true)
	rc.SetToneMapping(render.ToneMappingLinear)
	rc.SetClearAlpha(1)
	if s.opts.AOMode {
		rc.SetClearColor(math.Vec3{X: 1, Y: 1, Z: 1})
	} else {
		rc.SetClearColor(math.Vec3{})
	}

	size, half := s.size, s.size/2
	for i, r := range reqs {
		cams := s.views(r)
		cellY := i * size

		up := render.Rect{X: 0, Y: cellY, W: size, H: size}
		rc.SetViewport(up)
		rc.SetScissor(up)
		rc.Clear()
		rc.Render(s.scene, cams[0])

		for k, tl := range sideTiles {
			x, y := tl.x*size, cellY+tl.y*half
			// Only the upper half of a side view is above the surface:
			// shift the viewport down so that half lands in the scissor.
			rc.SetViewport(render.Rect{X: x, Y: y - half, W: size, H: size})
			rc.SetScissor(render.Rect{X: x, Y: y, W: size, H: half})
			rc.Clear()
			rc.Render(s.scene, cams[k+1])
		}
	}

	read := render.Rect{W: size * 3, H: size * len(reqs)}
	if err := rc.ReadPixels(read, s.pixels[:read.W*read.H*4]); err != nil {
		return fmt.Errorf("probe: read back batch: %w", err)
	}
	logger.Timed(s.log, "probe batch", start, zap.Int("probes", len(reqs)))
	return nil
}

// Irradiance returns the weighted average RGB of probe i of the last batch.
func (s *Sampler) Irradiance(i int) math.Vec3 {
	if i < 0 || i >= s.count {
		panic(fmt.Sprintf("probe: index %d outside batch of %d", i, s.count))
	}
	size, half := s.size, s.size/2
	stride := size * 3
	cellY := i * size

	var sum math.Vec3
	var total float32
	add := func(tx, ty, wx, wy int) {
		w := s.weights[wy*size+wx]
		p := s.pixels[((cellY+ty)*stride+tx)*4:]
		sum.X += p[0] * w
		sum.Y += p[1] * w
		sum.Z += p[2] * w
		total += w
	}

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			add(x, y, x, y)
		}
	}
	for _, tl := range sideTiles {
		for y := 0; y < half; y++ {
			for x := 0; x < size; x++ {
				// Row y of the tile is row half+y of the full view.
				add(tl.x*size+x, tl.y*half+y, x, half+y)
			}
		}
	}
	return sum.Scale(1 / total)
}

// Pixels returns the raw read-back of the last batch, 3S wide and S rows
// per probe, bottom row first.
func (s *Sampler) Pixels() (data []float32, width, height int) {
	w, h := s.size*3, s.size*s.count
	return s.pixels[:w*h*4], w, h
}
