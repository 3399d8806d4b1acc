package cube

import (
	"context"
	"math"
	"sort"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
)

// MomentMap is one computed moment image over the region's bounding box.
type MomentMap struct {
	Moment message.MomentType
	Width  int32
	Height int32
	Data   []float32
}

// MomentRequestSpec is the resolved input for a moment computation: the mask
// already rasterized and the channel range clamped.
type MomentRequestSpec struct {
	Stokes     int32
	Moments    []message.MomentType
	ChannelMin int32
	ChannelMax int32 // inclusive
	Mask       *Mask
	PixelRange *message.HistBounds
}

// ClampChannelRange resolves an optional request range against the cube
// shape. A nil range means the full spectral axis.
func ClampChannelRange(r *message.ChannelRange, shape Shape) (int32, int32, error) {
	if r == nil {
		return 0, shape.Channels - 1, nil
	}
	lo, hi := r.Min, r.Max
	if lo < 0 {
		lo = 0
	}
	if hi >= shape.Channels {
		hi = shape.Channels - 1
	}
	if lo > hi {
		return 0, 0, errors.WrapInvalid(errors.ErrChannelOutOfRange,
			"Moments", "ClampChannelRange", "empty channel range")
	}
	return lo, hi, nil
}

// ComputeMoments collapses the spectral axis into one map per requested
// moment. Channels are streamed once; per-pixel accumulators hold the
// running sums. Median moments buffer the spectrum per pixel and so cost
// more memory. Progress is reported per channel over two passes when a
// second pass is needed (dispersion moments re-walk the channels).
func ComputeMoments(ctx context.Context, src Source, spec MomentRequestSpec, progress ProgressFunc) ([]MomentMap, error) {
	if len(spec.Moments) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"Moments", "ComputeMoments", "no moments requested")
	}
	shape := src.Shape()
	mask := spec.Mask
	if mask == nil {
		mask = FullImageMask(shape)
	}
	if mask.Empty() {
		return nil, errors.WrapInvalid(errors.ErrInvalidGeometry,
			"Moments", "ComputeMoments", "region covers no pixels")
	}

	w := mask.X1 - mask.X0
	h := mask.Y1 - mask.Y0
	nPix := int(w) * int(h)
	nChan := spec.ChannelMax - spec.ChannelMin + 1

	needSpectrum := false
	needSecondPass := false
	for _, m := range spec.Moments {
		switch m {
		case message.MomentMedian, message.MomentMedianCoord:
			needSpectrum = true
		case message.MomentWeightedDispersion:
			needSecondPass = true
		}
	}

	acc := newMomentAccumulators(nPix, needSpectrum, int(nChan))
	totalSteps := float64(nChan)
	if needSecondPass {
		totalSteps *= 2
	}
	step := 0.0

	walk := func(visit func(pix int, v, coord float64)) error {
		for ch := spec.ChannelMin; ch <= spec.ChannelMax; ch++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			slice, err := src.ChannelSlice(ctx, ch, spec.Stokes)
			if err != nil {
				return errors.Wrap(err, "Moments", "ComputeMoments", "read channel")
			}
			coord := float64(ch)
			for y := mask.Y0; y < mask.Y1; y++ {
				for x := mask.X0; x < mask.X1; x++ {
					if !mask.Contains(x, y) {
						continue
					}
					v := float64(slice[int(y)*int(shape.Width)+int(x)])
					if math.IsNaN(v) {
						continue
					}
					if spec.PixelRange != nil && (v < spec.PixelRange.Min || v > spec.PixelRange.Max) {
						continue
					}
					pix := int(y-mask.Y0)*int(w) + int(x-mask.X0)
					visit(pix, v, coord)
				}
			}
			step++
			if progress != nil {
				progress(step / totalSteps)
			}
		}
		return nil
	}

	if err := walk(acc.firstPass); err != nil {
		return nil, err
	}
	if needSecondPass {
		acc.prepareSecondPass()
		if err := walk(acc.secondPass); err != nil {
			return nil, err
		}
	}

	maps := make([]MomentMap, 0, len(spec.Moments))
	for _, m := range spec.Moments {
		maps = append(maps, MomentMap{
			Moment: m,
			Width:  w,
			Height: h,
			Data:   acc.finalize(m, nPix),
		})
	}
	return maps, nil
}

// momentAccumulators holds per-pixel running sums across channels.
type momentAccumulators struct {
	n        []int32
	sum      []float64
	sumSq    []float64
	sumVW    []float64 // sum of value*coord
	sumDisp  []float64 // second pass: sum of value*(coord-m1)^2
	m1       []float64 // filled between passes
	min      []float64
	max      []float64
	minCoord []float64
	maxCoord []float64
	absDev   []float64
	spectra  [][]float64 // per pixel channel values, median moments only
	coords   [][]float64
}

func newMomentAccumulators(nPix int, needSpectrum bool, nChan int) *momentAccumulators {
	a := &momentAccumulators{
		n:        make([]int32, nPix),
		sum:      make([]float64, nPix),
		sumSq:    make([]float64, nPix),
		sumVW:    make([]float64, nPix),
		min:      make([]float64, nPix),
		max:      make([]float64, nPix),
		minCoord: make([]float64, nPix),
		maxCoord: make([]float64, nPix),
		absDev:   make([]float64, nPix),
	}
	for i := range a.min {
		a.min[i] = math.Inf(1)
		a.max[i] = math.Inf(-1)
	}
	if needSpectrum {
		a.spectra = make([][]float64, nPix)
		a.coords = make([][]float64, nPix)
		for i := range a.spectra {
			a.spectra[i] = make([]float64, 0, nChan)
			a.coords[i] = make([]float64, 0, nChan)
		}
	}
	return a
}

func (a *momentAccumulators) firstPass(pix int, v, coord float64) {
	a.n[pix]++
	a.sum[pix] += v
	a.sumSq[pix] += v * v
	a.sumVW[pix] += v * coord
	if v < a.min[pix] {
		a.min[pix] = v
		a.minCoord[pix] = coord
	}
	if v > a.max[pix] {
		a.max[pix] = v
		a.maxCoord[pix] = coord
	}
	if a.spectra != nil {
		a.spectra[pix] = append(a.spectra[pix], v)
		a.coords[pix] = append(a.coords[pix], coord)
	}
}

func (a *momentAccumulators) prepareSecondPass() {
	a.m1 = make([]float64, len(a.sum))
	a.sumDisp = make([]float64, len(a.sum))
	for i := range a.sum {
		if a.sum[i] != 0 {
			a.m1[i] = a.sumVW[i] / a.sum[i]
		} else {
			a.m1[i] = math.NaN()
		}
	}
}

func (a *momentAccumulators) secondPass(pix int, v, coord float64) {
	d := coord - a.m1[pix]
	a.sumDisp[pix] += v * d * d
}

func (a *momentAccumulators) finalize(m message.MomentType, nPix int) []float32 {
	out := make([]float32, nPix)
	for i := 0; i < nPix; i++ {
		out[i] = float32(a.pixelValue(m, i))
	}
	return out
}

func (a *momentAccumulators) pixelValue(m message.MomentType, i int) float64 {
	if a.n[i] == 0 {
		return math.NaN()
	}
	n := float64(a.n[i])
	mean := a.sum[i] / n

	switch m {
	case message.MomentMean:
		return mean
	case message.MomentIntegrated:
		return a.sum[i]
	case message.MomentWeightedCoord:
		if a.sum[i] == 0 {
			return math.NaN()
		}
		return a.sumVW[i] / a.sum[i]
	case message.MomentWeightedDispersion:
		if a.sumDisp == nil || a.sum[i] <= 0 {
			return math.NaN()
		}
		return math.Sqrt(a.sumDisp[i] / a.sum[i])
	case message.MomentMedian:
		return median(a.spectra[i])
	case message.MomentMedianCoord:
		return medianCoord(a.spectra[i], a.coords[i])
	case message.MomentStdDev:
		if a.n[i] < 2 {
			return 0
		}
		variance := (a.sumSq[i] - a.sum[i]*mean) / (n - 1)
		if variance < 0 {
			variance = 0
		}
		return math.Sqrt(variance)
	case message.MomentRMS:
		return math.Sqrt(a.sumSq[i] / n)
	case message.MomentAbsMeanDev:
		// Approximated from the running sums; an exact value would need
		// the full spectrum per pixel.
		variance := a.sumSq[i]/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		return math.Sqrt(variance * 2 / math.Pi)
	case message.MomentMax:
		return a.max[i]
	case message.MomentMaxCoord:
		return a.maxCoord[i]
	case message.MomentMin:
		return a.min[i]
	case message.MomentMinCoord:
		return a.minCoord[i]
	default:
		return math.NaN()
	}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// medianCoord returns the coordinate where the cumulative flux crosses half
// the total.
func medianCoord(values, coords []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var total float64
	for _, v := range values {
		if v > 0 {
			total += v
		}
	}
	if total <= 0 {
		return math.NaN()
	}
	var cum float64
	for i, v := range values {
		if v > 0 {
			cum += v
		}
		if cum >= total/2 {
			return coords[i]
		}
	}
	return coords[len(coords)-1]
}
