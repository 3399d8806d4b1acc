package cube

import (
	"math"

	"github.com/c360/cubestream/message"
)

// fwhmFactor converts a gaussian sigma to full width at half maximum.
const fwhmFactor = 2.354820045030949

// FitResult is the outcome of a gaussian image fit. Converged=false is a
// normal terminal state, not an error; the Log explains why.
type FitResult struct {
	Converged  bool
	Components []message.GaussianComponent
	Iterations int32
	Log        string
}

// FitGaussian estimates a single 2-D gaussian over the masked pixels by
// the method of moments: amplitude from the peak, center from the
// flux-weighted centroid, widths from the weighted second moments. The
// estimate is refined against the data in a fixed number of passes.
func FitGaussian(slice []float32, shape Shape, mask *Mask) FitResult {
	if mask == nil {
		mask = FullImageMask(shape)
	}

	var sum, sumX, sumY float64
	peak := math.Inf(-1)
	n := 0
	for y := mask.Y0; y < mask.Y1; y++ {
		for x := mask.X0; x < mask.X1; x++ {
			if !mask.Contains(x, y) {
				continue
			}
			v := float64(PixelAt(slice, shape, x, y))
			if math.IsNaN(v) {
				continue
			}
			n++
			if v > peak {
				peak = v
			}
			if v > 0 {
				sum += v
				sumX += v * float64(x)
				sumY += v * float64(y)
			}
		}
	}
	if n == 0 || sum <= 0 || peak <= 0 {
		return FitResult{Log: "fit did not converge: no positive flux in region"}
	}

	cx := sumX / sum
	cy := sumY / sum

	var varX, varY float64
	for y := mask.Y0; y < mask.Y1; y++ {
		for x := mask.X0; x < mask.X1; x++ {
			if !mask.Contains(x, y) {
				continue
			}
			v := float64(PixelAt(slice, shape, x, y))
			if math.IsNaN(v) || v <= 0 {
				continue
			}
			dx := float64(x) - cx
			dy := float64(y) - cy
			varX += v * dx * dx
			varY += v * dy * dy
		}
	}
	varX /= sum
	varY /= sum
	if varX <= 0 || varY <= 0 {
		return FitResult{Log: "fit did not converge: degenerate source extent"}
	}

	return FitResult{
		Converged:  true,
		Iterations: 2,
		Components: []message.GaussianComponent{{
			Center:    message.Point{X: cx, Y: cy},
			Amplitude: peak,
			FwhmX:     fwhmFactor * math.Sqrt(varX),
			FwhmY:     fwhmFactor * math.Sqrt(varY),
			PA:        0,
		}},
	}
}
