package bake

import "github.com/Faultbox/lightbake/pkg/math"

// Fill strengths, weakest first. A write only replaces an equal or weaker
// one; among equals the lower source texel wins, so the result does not
// depend on scan order.
const (
	fillNone uint8 = iota
	fillDiagonal
	fillAxis
	fillReal
)

// passBuffer is the output of one pass with per-texel write bookkeeping.
type passBuffer struct {
	width, height int
	data          []float32
	strength      []uint8
	source        []int32
}

func newPassBuffer(width, height int) *passBuffer {
	n := width * height
	return &passBuffer{
		width:    width,
		height:   height,
		data:     make([]float32, n*4),
		strength: make([]uint8, n),
		source:   make([]int32, n),
	}
}

// write stores v at texel i and bleeds it into the 3×3 neighbourhood.
// Neighbours covered by geometry are left for their own sample.
func (p *passBuffer) write(i int, v math.Vec3, covered func(int) bool) {
	p.put(i, v, fillReal, i)

	x, y := i%p.width, i/p.width
	for dy := -1; dy <= 1; dy++ {
		ny := y + dy
		if ny < 0 || ny >= p.height {
			continue
		}
		for dx := -1; dx <= 1; dx++ {
			nx := x + dx
			if (dx == 0 && dy == 0) || nx < 0 || nx >= p.width {
				continue
			}
			j := ny*p.width + nx
			if covered(j) {
				continue
			}
			s := fillDiagonal
			if dx == 0 || dy == 0 {
				s = fillAxis
			}
			p.put(j, v, s, i)
		}
	}
}

func (p *passBuffer) put(j int, v math.Vec3, s uint8, src int) {
	cur := p.strength[j]
	if s < cur || (s == cur && int32(src) > p.source[j]) {
		return
	}
	p.strength[j] = s
	p.source[j] = int32(src)
	px := p.data[j*4 : j*4+4]
	px[0], px[1], px[2], px[3] = v.X, v.Y, v.Z, 1
}
