package cube

import "math"

// TraceContour finds the pixel-edge crossings of one iso level. For every
// pair of horizontally or vertically adjacent pixels that straddle the
// level, it emits the linearly interpolated crossing point. The output is
// x,y interleaved, ready for a contour data message. The vertices are
// unordered; clients render them as a point set or join them themselves.
func TraceContour(slice []float32, shape Shape, level float64) []float64 {
	var vertices []float64
	w := int(shape.Width)
	h := int(shape.Height)

	at := func(x, y int) float64 { return float64(slice[y*w+x]) }

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := at(x, y)
			if math.IsNaN(v) {
				continue
			}
			if x+1 < w {
				if t, ok := crossing(v, at(x+1, y), level); ok {
					vertices = append(vertices, float64(x)+t, float64(y))
				}
			}
			if y+1 < h {
				if t, ok := crossing(v, at(x, y+1), level); ok {
					vertices = append(vertices, float64(x), float64(y)+t)
				}
			}
		}
	}
	return vertices
}

// crossing interpolates where the level sits between two neighbor values.
func crossing(a, b, level float64) (float64, bool) {
	if math.IsNaN(b) {
		return 0, false
	}
	if (a < level) == (b < level) {
		return 0, false
	}
	if a == b {
		return 0.5, true
	}
	return (level - a) / (b - a), true
}

// DecimateVertices keeps every factor-th vertex pair, bounding contour
// payload size for dense levels.
func DecimateVertices(vertices []float64, factor int32) []float64 {
	if factor <= 1 {
		return vertices
	}
	out := make([]float64, 0, len(vertices)/int(factor)+2)
	for i := 0; i+1 < len(vertices); i += 2 * int(factor) {
		out = append(out, vertices[i], vertices[i+1])
	}
	return out
}
