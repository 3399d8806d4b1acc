package cube

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/cubestream/message"
)

func uniformSource(shape Shape, value float32) *memSource {
	src := newMemSource("uniform", shape)
	for ch := int32(0); ch < shape.Channels; ch++ {
		src.fill(ch, 0, value)
	}
	return src
}

func TestComputeMoments_UniformCube(t *testing.T) {
	shape := Shape{Width: 4, Height: 4, Channels: 4, Stokes: 1}
	src := uniformSource(shape, 2.0)

	maps, err := ComputeMoments(context.Background(), src, MomentRequestSpec{
		Moments:    []message.MomentType{message.MomentIntegrated, message.MomentMean, message.MomentWeightedCoord},
		ChannelMin: 0,
		ChannelMax: 3,
	}, nil)
	require.NoError(t, err)
	require.Len(t, maps, 3)

	integrated := maps[0]
	assert.Equal(t, message.MomentIntegrated, integrated.Moment)
	assert.Equal(t, int32(4), integrated.Width)
	assert.Equal(t, int32(4), integrated.Height)
	// Sum over 4 channels of value 2.
	assert.InDelta(t, 8.0, float64(integrated.Data[0]), 1e-6)

	mean := maps[1]
	assert.InDelta(t, 2.0, float64(mean.Data[5]), 1e-6)

	// Flux-weighted channel coordinate of a flat spectrum is the midpoint.
	weighted := maps[2]
	assert.InDelta(t, 1.5, float64(weighted.Data[0]), 1e-6)
}

func TestComputeMoments_MaxAndCoord(t *testing.T) {
	shape := Shape{Width: 2, Height: 2, Channels: 3, Stokes: 1}
	src := newMemSource("peaked", shape)
	src.fill(0, 0, 1.0)
	src.fill(1, 0, 5.0)
	src.fill(2, 0, 2.0)

	maps, err := ComputeMoments(context.Background(), src, MomentRequestSpec{
		Moments:    []message.MomentType{message.MomentMax, message.MomentMaxCoord, message.MomentMedian},
		ChannelMin: 0,
		ChannelMax: 2,
	}, nil)
	require.NoError(t, err)

	assert.InDelta(t, 5.0, float64(maps[0].Data[0]), 1e-6)
	assert.InDelta(t, 1.0, float64(maps[1].Data[0]), 1e-6, "peak is in channel 1")
	assert.InDelta(t, 2.0, float64(maps[2].Data[0]), 1e-6, "median of 1, 5, 2")
}

func TestComputeMoments_ChannelRangeLimits(t *testing.T) {
	shape := Shape{Width: 2, Height: 2, Channels: 4, Stokes: 1}
	src := newMemSource("ranged", shape)
	src.fill(0, 0, 100.0)
	src.fill(1, 0, 1.0)
	src.fill(2, 0, 1.0)
	src.fill(3, 0, 100.0)

	maps, err := ComputeMoments(context.Background(), src, MomentRequestSpec{
		Moments:    []message.MomentType{message.MomentIntegrated},
		ChannelMin: 1,
		ChannelMax: 2,
	}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, float64(maps[0].Data[0]), 1e-6, "channels outside the range are excluded")
}

func TestComputeMoments_RegionMask(t *testing.T) {
	shape := Shape{Width: 8, Height: 8, Channels: 2, Stokes: 1}
	src := uniformSource(shape, 1.0)

	mask, err := RasterizeRegion(message.RegionInfo{
		RegionType:    message.RegionRectangle,
		ControlPoints: []message.Point{{X: 2, Y: 2}, {X: 2, Y: 2}},
	}, shape)
	require.NoError(t, err)

	maps, err := ComputeMoments(context.Background(), src, MomentRequestSpec{
		Moments:    []message.MomentType{message.MomentIntegrated},
		ChannelMin: 0,
		ChannelMax: 1,
		Mask:       mask,
	}, nil)
	require.NoError(t, err)

	// Output is the mask bounding box, not the full image.
	assert.Equal(t, mask.X1-mask.X0, maps[0].Width)
	assert.Equal(t, mask.Y1-mask.Y0, maps[0].Height)
}

func TestComputeMoments_ProgressAndCancel(t *testing.T) {
	shape := Shape{Width: 2, Height: 2, Channels: 5, Stokes: 1}
	src := uniformSource(shape, 1.0)

	var reports []float64
	_, err := ComputeMoments(context.Background(), src, MomentRequestSpec{
		Moments:    []message.MomentType{message.MomentMean},
		ChannelMin: 0,
		ChannelMax: 4,
	}, func(p float64) { reports = append(reports, p) })
	require.NoError(t, err)
	require.Len(t, reports, 5)
	assert.InDelta(t, 1.0, reports[4], 1e-9)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ComputeMoments(ctx, src, MomentRequestSpec{
		Moments:    []message.MomentType{message.MomentMean},
		ChannelMin: 0,
		ChannelMax: 4,
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeMoments_NoMomentsRejected(t *testing.T) {
	shape := Shape{Width: 2, Height: 2, Channels: 2, Stokes: 1}
	src := uniformSource(shape, 1.0)

	_, err := ComputeMoments(context.Background(), src, MomentRequestSpec{
		ChannelMin: 0,
		ChannelMax: 1,
	}, nil)
	assert.Error(t, err)
}

func TestClampChannelRange(t *testing.T) {
	shape := Shape{Width: 1, Height: 1, Channels: 10, Stokes: 1}

	lo, hi, err := ClampChannelRange(nil, shape)
	require.NoError(t, err)
	assert.Equal(t, int32(0), lo)
	assert.Equal(t, int32(9), hi)

	lo, hi, err = ClampChannelRange(&message.ChannelRange{Min: -5, Max: 100}, shape)
	require.NoError(t, err)
	assert.Equal(t, int32(0), lo)
	assert.Equal(t, int32(9), hi)

	_, _, err = ClampChannelRange(&message.ChannelRange{Min: 8, Max: 2}, shape)
	assert.Error(t, err)
}
