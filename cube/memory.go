package cube

import (
	"context"
	"fmt"

	"github.com/c360/cubestream/errors"
)

// Memory is a fully materialized cube source. It backs server-synthesized
// products such as position-velocity images and moment maps, whose data
// exists only in memory.
type Memory struct {
	name   string
	shape  Shape
	planes [][]float32 // indexed stokes*Channels + channel
}

// NewMemory wraps precomputed channel planes as a source. One plane of
// Width*Height pixels is required per (channel, stokes) pair.
func NewMemory(name string, shape Shape, planes [][]float32) (*Memory, error) {
	if shape.Width <= 0 || shape.Height <= 0 || shape.Channels <= 0 || shape.Stokes <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"Memory", "NewMemory", "non-positive cube dimension")
	}
	want := int(shape.Channels) * int(shape.Stokes)
	if len(planes) != want {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"Memory", "NewMemory", fmt.Sprintf("%d planes for %d channel/stokes pairs", len(planes), want))
	}
	pixels := int(shape.PixelsPerChannel())
	for i, p := range planes {
		if len(p) != pixels {
			return nil, errors.WrapInvalid(errors.ErrInvalidData,
				"Memory", "NewMemory", fmt.Sprintf("plane %d has %d pixels, want %d", i, len(p), pixels))
		}
	}
	return &Memory{name: name, shape: shape, planes: planes}, nil
}

// NewMemoryImage wraps a single 2-D image as a one-channel source.
func NewMemoryImage(name string, width, height int32, data []float32) (*Memory, error) {
	return NewMemory(name,
		Shape{Width: width, Height: height, Channels: 1, Stokes: 1},
		[][]float32{data})
}

// Name returns the cube name.
func (m *Memory) Name() string { return m.name }

// Shape returns the cube dimensions.
func (m *Memory) Shape() Shape { return m.shape }

// ChannelSlice returns the stored plane for (channel, stokes).
func (m *Memory) ChannelSlice(ctx context.Context, channel, stokes int32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !m.shape.ValidChannel(channel) || !m.shape.ValidStokes(stokes) {
		return nil, errors.WrapInvalid(errors.ErrChannelOutOfRange,
			"Memory", "ChannelSlice",
			fmt.Sprintf("channel %d stokes %d of %dx%d", channel, stokes, m.shape.Channels, m.shape.Stokes))
	}
	return m.planes[int(stokes)*int(m.shape.Channels)+int(channel)], nil
}
