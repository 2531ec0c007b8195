package atlas

import (
	gomath "math"
	"sort"
)

// rect is a packing unit; x and y are filled in by pack.
type rect struct {
	w, h int
	x, y int
	id   int
}

type space struct {
	x, y, w, h int
}

// pack places rects with a shelf/guillotine packer in the spirit of
// mapbox/potpack: tallest first, each into the most recently created free
// space that fits. width fixes the strip width; 0 picks one for a roughly
// square result. It returns the used extent.
func pack(rects []rect, width int) (usedW, usedH int) {
	if len(rects) == 0 {
		return 0, 0
	}

	area, maxW := 0, 0
	for _, r := range rects {
		area += r.w * r.h
		maxW = max(maxW, r.w)
	}
	if width <= 0 {
		width = max(int(gomath.Ceil(gomath.Sqrt(float64(area)/0.95))), maxW)
	}

	order := make([]int, len(rects))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rects[order[a]].h > rects[order[b]].h
	})

	spaces := []space{{w: width, h: gomath.MaxInt32}}
	for _, idx := range order {
		r := &rects[idx]
		placed := false
		for i := len(spaces) - 1; i >= 0; i-- {
			s := &spaces[i]
			if r.w > s.w || r.h > s.h {
				continue
			}
			r.x, r.y = s.x, s.y
			usedW = max(usedW, r.x+r.w)
			usedH = max(usedH, r.y+r.h)

			switch {
			case r.w == s.w && r.h == s.h:
				last := spaces[len(spaces)-1]
				spaces = spaces[:len(spaces)-1]
				if i < len(spaces) {
					spaces[i] = last
				}
			case r.h == s.h:
				s.x += r.w
				s.w -= r.w
			case r.w == s.w:
				s.y += r.h
				s.h -= r.h
			default:
				spaces = append(spaces, space{x: s.x + r.w, y: s.y, w: s.w - r.w, h: r.h})
				s = &spaces[i]
				s.y += r.h
				s.h -= r.h
			}
			placed = true
			break
		}
		if !placed {
			// Only possible when a rect is wider than a fixed strip.
			r.x, r.y = -1, -1
			usedW = max(usedW, r.w)
		}
	}
	return usedW, usedH
}

// nextPow2 returns the smallest power of two >= n, starting at MinAutoSize.
func nextPow2(n int) int {
	size := MinAutoSize
	for size < n {
		size *= 2
	}
	return size
}
