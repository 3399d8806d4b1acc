package cube

import (
	"math"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
)

// Mask is a rasterized region footprint over a cube's spatial plane. Bounds
// are clipped to the image; Inside is indexed relative to the bounding box.
type Mask struct {
	X0, Y0 int32 // inclusive
	X1, Y1 int32 // exclusive
	Inside []bool
}

// Empty reports whether the mask covers no pixels.
func (m *Mask) Empty() bool {
	return m.X1 <= m.X0 || m.Y1 <= m.Y0
}

// Contains reports whether image pixel (x, y) is inside the region.
func (m *Mask) Contains(x, y int32) bool {
	if x < m.X0 || x >= m.X1 || y < m.Y0 || y >= m.Y1 {
		return false
	}
	return m.Inside[int(y-m.Y0)*int(m.X1-m.X0)+int(x-m.X0)]
}

// PixelCount returns the number of pixels inside the region.
func (m *Mask) PixelCount() int {
	n := 0
	for _, in := range m.Inside {
		if in {
			n++
		}
	}
	return n
}

// FullImageMask covers every pixel of the spatial plane. Used for the image
// pseudo-region.
func FullImageMask(shape Shape) *Mask {
	inside := make([]bool, shape.PixelsPerChannel())
	for i := range inside {
		inside[i] = true
	}
	return &Mask{X0: 0, Y0: 0, X1: shape.Width, Y1: shape.Height, Inside: inside}
}

// RasterizeRegion converts region geometry into a pixel mask clipped to the
// cube's spatial bounds. Line and polyline regions have no interior and
// produce an error; callers sample them with SampleLine instead.
func RasterizeRegion(info message.RegionInfo, shape Shape) (*Mask, error) {
	switch info.RegionType {
	case message.RegionPoint:
		return rasterizePoint(info, shape)
	case message.RegionRectangle:
		return rasterizeRotatable(info, shape, insideRectangle)
	case message.RegionEllipse:
		return rasterizeRotatable(info, shape, insideEllipse)
	case message.RegionAnnulus:
		return rasterizeRotatable(info, shape, insideAnnulus)
	case message.RegionPolygon:
		return rasterizePolygon(info, shape)
	case message.RegionLine, message.RegionPolyline:
		return nil, errors.WrapInvalid(errors.ErrInvalidGeometry,
			"Mask", "RasterizeRegion", "line region has no interior")
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidGeometry,
			"Mask", "RasterizeRegion", "unknown region type")
	}
}

func rasterizePoint(info message.RegionInfo, shape Shape) (*Mask, error) {
	if len(info.ControlPoints) < 1 {
		return nil, errors.WrapInvalid(errors.ErrInvalidGeometry,
			"Mask", "rasterizePoint", "point region needs one control point")
	}
	x := int32(math.Round(info.ControlPoints[0].X))
	y := int32(math.Round(info.ControlPoints[0].Y))
	if !shape.Contains(x, y) {
		return &Mask{}, nil
	}
	return &Mask{X0: x, Y0: y, X1: x + 1, Y1: y + 1, Inside: []bool{true}}, nil
}

// insideFn tests one point in the region's local frame: dx, dy are offsets
// from the region center after derotation, w and h the region half-axes.
type insideFn func(dx, dy, w, h float64) bool

func insideRectangle(dx, dy, w, h float64) bool {
	return math.Abs(dx) <= w/2 && math.Abs(dy) <= h/2
}

func insideEllipse(dx, dy, w, h float64) bool {
	if w == 0 || h == 0 {
		return false
	}
	nx := dx / w
	ny := dy / h
	return nx*nx+ny*ny <= 1
}

// insideAnnulus treats w as outer and h as inner radius.
func insideAnnulus(dx, dy, w, h float64) bool {
	r := math.Hypot(dx, dy)
	return r <= w && r >= h
}

func rasterizeRotatable(info message.RegionInfo, shape Shape, inside insideFn) (*Mask, error) {
	if len(info.ControlPoints) < 2 {
		return nil, errors.WrapInvalid(errors.ErrInvalidGeometry,
			"Mask", "rasterizeRotatable", "region needs center and size control points")
	}
	cx := info.ControlPoints[0].X
	cy := info.ControlPoints[0].Y
	w := info.ControlPoints[1].X
	h := info.ControlPoints[1].Y
	if w < 0 || h < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidGeometry,
			"Mask", "rasterizeRotatable", "negative region size")
	}

	// Bounding box with rotation slack, then clipped to the image.
	ext := math.Hypot(w, h)
	x0 := clampInt32(int32(math.Floor(cx-ext)), 0, shape.Width)
	x1 := clampInt32(int32(math.Ceil(cx+ext))+1, 0, shape.Width)
	y0 := clampInt32(int32(math.Floor(cy-ext)), 0, shape.Height)
	y1 := clampInt32(int32(math.Ceil(cy+ext))+1, 0, shape.Height)
	if x1 <= x0 || y1 <= y0 {
		return &Mask{}, nil
	}

	sin, cos := math.Sincos(-info.Rotation * math.Pi / 180)
	mask := &Mask{X0: x0, Y0: y0, X1: x1, Y1: y1,
		Inside: make([]bool, int(x1-x0)*int(y1-y0))}

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			dx := float64(x) - cx
			dy := float64(y) - cy
			rx := dx*cos - dy*sin
			ry := dx*sin + dy*cos
			if inside(rx, ry, w, h) {
				mask.Inside[int(y-y0)*int(x1-x0)+int(x-x0)] = true
			}
		}
	}
	return mask, nil
}

func rasterizePolygon(info message.RegionInfo, shape Shape) (*Mask, error) {
	pts := info.ControlPoints
	if len(pts) < 3 {
		return nil, errors.WrapInvalid(errors.ErrInvalidGeometry,
			"Mask", "rasterizePolygon", "polygon needs at least three vertices")
	}

	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	x0 := clampInt32(int32(math.Floor(minX)), 0, shape.Width)
	x1 := clampInt32(int32(math.Ceil(maxX))+1, 0, shape.Width)
	y0 := clampInt32(int32(math.Floor(minY)), 0, shape.Height)
	y1 := clampInt32(int32(math.Ceil(maxY))+1, 0, shape.Height)
	if x1 <= x0 || y1 <= y0 {
		return &Mask{}, nil
	}

	mask := &Mask{X0: x0, Y0: y0, X1: x1, Y1: y1,
		Inside: make([]bool, int(x1-x0)*int(y1-y0))}

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			if pointInPolygon(float64(x), float64(y), pts) {
				mask.Inside[int(y-y0)*int(x1-x0)+int(x-x0)] = true
			}
		}
	}
	return mask, nil
}

// pointInPolygon is the even-odd ray crossing test.
func pointInPolygon(x, y float64, pts []message.Point) bool {
	inside := false
	j := len(pts) - 1
	for i := 0; i < len(pts); i++ {
		xi, yi := pts[i].X, pts[i].Y
		xj, yj := pts[j].X, pts[j].Y
		if (yi > y) != (yj > y) &&
			x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// SampleLine returns evenly spaced sample coordinates along a line region's
// first segment, one sample per pixel of line length.
func SampleLine(info message.RegionInfo) ([]message.Point, error) {
	if info.RegionType != message.RegionLine && info.RegionType != message.RegionPolyline {
		return nil, errors.WrapInvalid(errors.ErrInvalidGeometry,
			"Mask", "SampleLine", "region is not a line")
	}
	if len(info.ControlPoints) < 2 {
		return nil, errors.WrapInvalid(errors.ErrInvalidGeometry,
			"Mask", "SampleLine", "line needs two control points")
	}

	var samples []message.Point
	for i := 0; i+1 < len(info.ControlPoints); i++ {
		a := info.ControlPoints[i]
		b := info.ControlPoints[i+1]
		length := math.Hypot(b.X-a.X, b.Y-a.Y)
		n := int(math.Ceil(length))
		if n < 1 {
			n = 1
		}
		for s := 0; s <= n; s++ {
			if i > 0 && s == 0 {
				continue // segment joints are shared
			}
			t := float64(s) / float64(n)
			samples = append(samples, message.Point{
				X: a.X + t*(b.X-a.X),
				Y: a.Y + t*(b.Y-a.Y),
			})
		}
	}
	return samples, nil
}

func clampInt32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
