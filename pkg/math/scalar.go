package math

import "math"

// Hypot returns sqrt(x*x + y*y) in float32.
func Hypot(x, y float32) float32 {
	return float32(math.Hypot(float64(x), float64(y)))
}
