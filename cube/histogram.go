package cube

import (
	"context"
	"math"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
)

// Histogram is the result of binning one channel (or a whole cube) within a
// region.
type Histogram struct {
	NumBins        int32
	BinWidth       float64
	FirstBinCenter float64
	Bins           []int32
	Mean           float64
	StdDev         float64
}

// AutoBins picks a bin count from the region pixel count, the square root
// rule the viewer uses for automatic binning.
func AutoBins(pixelCount int) int32 {
	n := int32(math.Sqrt(float64(pixelCount)))
	if n < 2 {
		n = 2
	}
	return n
}

// ComputeHistogram bins the masked pixels of one channel slice. A nil bounds
// uses the data range; numBins <= 0 selects automatic binning.
func ComputeHistogram(slice []float32, shape Shape, mask *Mask, numBins int32, bounds *message.HistBounds) (*Histogram, error) {
	values := collectMasked(slice, shape, mask)
	return histogramOf(values, numBins, bounds)
}

// ProgressFunc receives fractional completion in [0, 1]. Implementations
// must be safe to call from the computing goroutine.
type ProgressFunc func(progress float64)

// ComputeCubeHistogram bins masked pixels across every channel of one
// polarization, reporting progress after each channel. Cancellation via ctx
// stops at the next channel boundary.
func ComputeCubeHistogram(ctx context.Context, src Source, stokes int32, mask *Mask, numBins int32, bounds *message.HistBounds, progress ProgressFunc) (*Histogram, error) {
	shape := src.Shape()
	var values []float32

	for ch := int32(0); ch < shape.Channels; ch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slice, err := src.ChannelSlice(ctx, ch, stokes)
		if err != nil {
			return nil, errors.Wrap(err, "Histogram", "ComputeCubeHistogram", "read channel")
		}
		values = append(values, collectMasked(slice, shape, mask)...)
		if progress != nil {
			progress(float64(ch+1) / float64(shape.Channels))
		}
	}

	return histogramOf(values, numBins, bounds)
}

func histogramOf(values []float32, numBins int32, bounds *message.HistBounds) (*Histogram, error) {
	if numBins <= 0 {
		numBins = AutoBins(len(values))
	}

	var lo, hi float64
	if bounds != nil {
		lo, hi = bounds.Min, bounds.Max
	} else {
		lo, hi = dataRange(values)
	}
	if hi < lo {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"Histogram", "histogramOf", "histogram bounds inverted")
	}
	if hi == lo {
		hi = lo + 1 // degenerate range still yields one populated bin
	}

	binWidth := (hi - lo) / float64(numBins)
	h := &Histogram{
		NumBins:        numBins,
		BinWidth:       binWidth,
		FirstBinCenter: lo + binWidth/2,
		Bins:           make([]int32, numBins),
	}

	var sum, sumSq float64
	var n int
	for _, v := range values {
		f := float64(v)
		if math.IsNaN(f) {
			continue
		}
		sum += f
		sumSq += f * f
		n++

		bin := int((f - lo) / binWidth)
		if bin < 0 || bin >= int(numBins) {
			continue // out of fixed bounds
		}
		h.Bins[bin]++
	}

	if n > 0 {
		h.Mean = sum / float64(n)
		variance := sumSq/float64(n) - h.Mean*h.Mean
		if variance > 0 {
			h.StdDev = math.Sqrt(variance)
		}
	}
	return h, nil
}

func collectMasked(slice []float32, shape Shape, mask *Mask) []float32 {
	if mask == nil {
		return slice
	}
	values := make([]float32, 0, mask.PixelCount())
	for y := mask.Y0; y < mask.Y1; y++ {
		for x := mask.X0; x < mask.X1; x++ {
			if mask.Contains(x, y) {
				values = append(values, slice[int(y)*int(shape.Width)+int(x)])
			}
		}
	}
	return values
}

func dataRange(values []float32) (lo, hi float64) {
	lo = math.Inf(1)
	hi = math.Inf(-1)
	for _, v := range values {
		f := float64(v)
		if math.IsNaN(f) {
			continue
		}
		if f < lo {
			lo = f
		}
		if f > hi {
			hi = f
		}
	}
	if lo > hi {
		return 0, 0 // all NaN
	}
	return lo, hi
}
