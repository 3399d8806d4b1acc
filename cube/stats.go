package cube

import (
	"context"
	"math"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
)

// statAccumulator collects running sums over masked pixels.
type statAccumulator struct {
	n     int
	sum   float64
	sumSq float64
	min   float64
	max   float64
}

func newStatAccumulator() *statAccumulator {
	return &statAccumulator{min: math.Inf(1), max: math.Inf(-1)}
}

func (a *statAccumulator) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	a.n++
	a.sum += v
	a.sumSq += v * v
	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
}

func (a *statAccumulator) value(st message.StatsType) float64 {
	if a.n == 0 {
		return math.NaN()
	}
	mean := a.sum / float64(a.n)
	switch st {
	case message.StatsNumPixels:
		return float64(a.n)
	case message.StatsSum:
		return a.sum
	case message.StatsMean:
		return mean
	case message.StatsRMS:
		return math.Sqrt(a.sumSq / float64(a.n))
	case message.StatsSigma:
		if a.n < 2 {
			return 0
		}
		variance := (a.sumSq - a.sum*mean) / float64(a.n-1)
		if variance < 0 {
			variance = 0
		}
		return math.Sqrt(variance)
	case message.StatsSumSq:
		return a.sumSq
	case message.StatsMin:
		return a.min
	case message.StatsMax:
		return a.max
	case message.StatsExtrema:
		if math.Abs(a.max) >= math.Abs(a.min) {
			return a.max
		}
		return a.min
	default:
		return math.NaN()
	}
}

// statName maps a StatsType to its wire label in RegionStatsData.
func statName(st message.StatsType) string {
	switch st {
	case message.StatsNumPixels:
		return "NumPixels"
	case message.StatsSum:
		return "Sum"
	case message.StatsMean:
		return "Mean"
	case message.StatsRMS:
		return "RMS"
	case message.StatsSigma:
		return "Sigma"
	case message.StatsSumSq:
		return "SumSq"
	case message.StatsMin:
		return "Min"
	case message.StatsMax:
		return "Max"
	case message.StatsExtrema:
		return "Extrema"
	default:
		return "Unknown"
	}
}

// ComputeRegionStats evaluates the requested statistics over the masked
// pixels of one channel slice.
func ComputeRegionStats(slice []float32, shape Shape, mask *Mask, statsTypes []message.StatsType) map[string]float64 {
	acc := newStatAccumulator()
	if mask == nil {
		for _, v := range slice {
			acc.add(float64(v))
		}
	} else {
		for y := mask.Y0; y < mask.Y1; y++ {
			for x := mask.X0; x < mask.X1; x++ {
				if mask.Contains(x, y) {
					acc.add(float64(slice[int(y)*int(shape.Width)+int(x)]))
				}
			}
		}
	}

	out := make(map[string]float64, len(statsTypes))
	for _, st := range statsTypes {
		out[statName(st)] = acc.value(st)
	}
	return out
}

// ComputeSpatialProfiles cuts the channel slice along x and y through the
// cursor position, honoring each spec's start/end bounds.
func ComputeSpatialProfiles(slice []float32, shape Shape, x, y int32, specs []message.SpatialProfileSpec) ([]message.SpatialProfile, error) {
	if !shape.Contains(x, y) {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"Profiles", "ComputeSpatialProfiles", "cursor outside image")
	}

	profiles := make([]message.SpatialProfile, 0, len(specs))
	for _, spec := range specs {
		var limit int32
		switch spec.Coordinate {
		case "x":
			limit = shape.Width
		case "y":
			limit = shape.Height
		default:
			return nil, errors.WrapInvalid(errors.ErrInvalidData,
				"Profiles", "ComputeSpatialProfiles", "coordinate must be x or y")
		}

		start := spec.Start
		end := spec.End
		if end <= 0 || end > limit {
			end = limit
		}
		if start < 0 {
			start = 0
		}
		if start >= end {
			return nil, errors.WrapInvalid(errors.ErrInvalidData,
				"Profiles", "ComputeSpatialProfiles", "profile bounds inverted")
		}

		values := make([]float64, 0, end-start)
		for i := start; i < end; i++ {
			if spec.Coordinate == "x" {
				values = append(values, float64(PixelAt(slice, shape, i, y)))
			} else {
				values = append(values, float64(PixelAt(slice, shape, x, i)))
			}
		}
		profiles = append(profiles, message.SpatialProfile{
			Coordinate: spec.Coordinate,
			Start:      start,
			End:        end,
			Values:     values,
		})
	}
	return profiles, nil
}

// ComputeSpectralProfile evaluates one statistic per channel over the masked
// region, reporting progress after each channel.
func ComputeSpectralProfile(ctx context.Context, src Source, stokes int32, mask *Mask, statsType message.StatsType, progress ProgressFunc) ([]float64, error) {
	shape := src.Shape()
	values := make([]float64, shape.Channels)

	for ch := int32(0); ch < shape.Channels; ch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slice, err := src.ChannelSlice(ctx, ch, stokes)
		if err != nil {
			return nil, errors.Wrap(err, "Profiles", "ComputeSpectralProfile", "read channel")
		}

		acc := newStatAccumulator()
		if mask == nil {
			for _, v := range slice {
				acc.add(float64(v))
			}
		} else {
			for y := mask.Y0; y < mask.Y1; y++ {
				for x := mask.X0; x < mask.X1; x++ {
					if mask.Contains(x, y) {
						acc.add(float64(slice[int(y)*int(shape.Width)+int(x)]))
					}
				}
			}
		}
		values[ch] = acc.value(statsType)

		if progress != nil {
			progress(float64(ch+1) / float64(shape.Channels))
		}
	}
	return values, nil
}
