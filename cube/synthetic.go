package cube

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/pkg/cache"
)

// Synthetic is a deterministic in-memory cube source. Pixel values are a
// function of the cube name and coordinates, so two sources with the same
// name and shape produce identical data. Channel slices are generated on
// first access and kept in an LRU cache.
type Synthetic struct {
	name  string
	shape Shape
	seed  uint64
	cache cache.Cache[[]float32]
}

// defaultSliceCacheSize bounds the number of generated channel slices held
// in memory per source.
const defaultSliceCacheSize = 64

// NewSynthetic creates a synthetic cube source with the given name and shape.
func NewSynthetic(name string, shape Shape) (*Synthetic, error) {
	if shape.Width <= 0 || shape.Height <= 0 || shape.Channels <= 0 || shape.Stokes <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"Synthetic", "NewSynthetic", "non-positive cube dimension")
	}

	sliceCache, err := cache.NewLRU[[]float32](defaultSliceCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "Synthetic", "NewSynthetic", "create slice cache")
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(name))

	return &Synthetic{
		name:  name,
		shape: shape,
		seed:  h.Sum64(),
		cache: sliceCache,
	}, nil
}

// Name returns the cube name.
func (s *Synthetic) Name() string { return s.name }

// Shape returns the cube dimensions.
func (s *Synthetic) Shape() Shape { return s.shape }

// ChannelSlice returns the pixel plane for (channel, stokes).
func (s *Synthetic) ChannelSlice(ctx context.Context, channel, stokes int32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.shape.ValidChannel(channel) {
		return nil, errors.WrapInvalid(errors.ErrChannelOutOfRange,
			"Synthetic", "ChannelSlice", fmt.Sprintf("channel %d of %d", channel, s.shape.Channels))
	}
	if !s.shape.ValidStokes(stokes) {
		return nil, errors.WrapInvalid(errors.ErrChannelOutOfRange,
			"Synthetic", "ChannelSlice", fmt.Sprintf("stokes %d of %d", stokes, s.shape.Stokes))
	}

	key := fmt.Sprintf("%d:%d", channel, stokes)
	if slice, ok := s.cache.Get(key); ok {
		return slice, nil
	}

	slice := s.generate(channel, stokes)
	_, _ = s.cache.Set(key, slice)
	return slice, nil
}

// Close releases the slice cache.
func (s *Synthetic) Close() error {
	return s.cache.Close()
}

// generate fills one channel plane: a gaussian blob whose center drifts with
// the channel index, over a deterministic noise floor. The blob keeps region
// statistics and moment maps non-trivial while staying reproducible.
func (s *Synthetic) generate(channel, stokes int32) []float32 {
	w := int(s.shape.Width)
	h := int(s.shape.Height)
	slice := make([]float32, w*h)

	cx := float64(w)/2 + float64(w)/8*math.Sin(float64(channel)*0.2)
	cy := float64(h)/2 + float64(h)/8*math.Cos(float64(channel)*0.2)
	sigma := float64(minInt(w, h)) / 10
	amp := 1.0 / (1.0 + 0.1*float64(stokes))

	state := s.seed ^ uint64(channel)<<32 ^ uint64(stokes)<<16
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := float64(x) - cx
			dy := float64(y) - cy
			v := amp * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))

			state = splitmix64(state)
			noise := (float64(state>>11)/float64(1<<53) - 0.5) * 0.02
			slice[y*w+x] = float32(v + noise)
		}
	}
	return slice
}

// splitmix64 advances a 64-bit mixing state. Used instead of math/rand so a
// pixel value depends only on its coordinates and the cube name.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	z := x
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
