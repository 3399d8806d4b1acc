package cube

import (
	"context"
	"math"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
)

// PvImage is a position-velocity cut: position along the line on the x axis
// and spectral channel on the y axis.
type PvImage struct {
	Width  int32 // samples along the line
	Height int32 // channels
	Data   []float32
}

// PvRequestSpec is the resolved input for a PV computation.
type PvRequestSpec struct {
	Stokes     int32
	Line       message.RegionInfo
	Width      int32 // averaging width perpendicular to the line, in pixels
	ChannelMin int32
	ChannelMax int32 // inclusive
	Reverse    bool
	// DownsampleFactor > 1 renders a preview at reduced spatial resolution.
	DownsampleFactor int32
}

// ComputePv builds a position-velocity image along a line region. Each
// output column averages Width pixels perpendicular to the line. Progress
// is reported per channel; cancellation stops at the next channel boundary.
func ComputePv(ctx context.Context, src Source, spec PvRequestSpec, progress ProgressFunc) (*PvImage, error) {
	if spec.Width < 1 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"Pv", "ComputePv", "width must be at least 1")
	}

	samples, err := SampleLine(spec.Line)
	if err != nil {
		return nil, err
	}
	if spec.DownsampleFactor > 1 {
		samples = downsamplePoints(samples, int(spec.DownsampleFactor))
	}
	if len(samples) < 2 {
		return nil, errors.WrapInvalid(errors.ErrInvalidGeometry,
			"Pv", "ComputePv", "line too short")
	}

	// Perpendicular unit vector from the line's overall direction.
	first := samples[0]
	last := samples[len(samples)-1]
	length := math.Hypot(last.X-first.X, last.Y-first.Y)
	if length == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidGeometry,
			"Pv", "ComputePv", "line endpoints coincide")
	}
	px := -(last.Y - first.Y) / length
	py := (last.X - first.X) / length

	shape := src.Shape()
	nChan := spec.ChannelMax - spec.ChannelMin + 1
	nPos := int32(len(samples))
	img := &PvImage{
		Width:  nPos,
		Height: nChan,
		Data:   make([]float32, int(nPos)*int(nChan)),
	}

	for ci := int32(0); ci < nChan; ci++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ch := spec.ChannelMin + ci
		if spec.Reverse {
			ch = spec.ChannelMax - ci
		}
		slice, err := src.ChannelSlice(ctx, ch, spec.Stokes)
		if err != nil {
			return nil, errors.Wrap(err, "Pv", "ComputePv", "read channel")
		}

		row := img.Data[int(ci)*int(nPos) : int(ci+1)*int(nPos)]
		for si, s := range samples {
			row[si] = averageAcross(slice, shape, s, px, py, spec.Width)
		}

		if progress != nil {
			progress(float64(ci+1) / float64(nChan))
		}
	}
	return img, nil
}

// averageAcross samples width pixels perpendicular to the line, centered on
// the sample point, and averages the finite values.
func averageAcross(slice []float32, shape Shape, center message.Point, px, py float64, width int32) float32 {
	var sum float64
	var n int
	half := float64(width-1) / 2
	for w := int32(0); w < width; w++ {
		off := float64(w) - half
		x := int32(math.Round(center.X + off*px))
		y := int32(math.Round(center.Y + off*py))
		v := float64(PixelAt(slice, shape, x, y))
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return float32(math.NaN())
	}
	return float32(sum / float64(n))
}

func downsamplePoints(points []message.Point, factor int) []message.Point {
	if factor <= 1 || len(points) <= 2 {
		return points
	}
	out := make([]message.Point, 0, len(points)/factor+2)
	for i := 0; i < len(points); i += factor {
		out = append(out, points[i])
	}
	if last := points[len(points)-1]; len(out) == 0 || out[len(out)-1] != last {
		out = append(out, last)
	}
	return out
}
