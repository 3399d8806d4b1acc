package cube

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/cubestream/message"
)

func TestComputeRegionStats(t *testing.T) {
	shape := Shape{Width: 2, Height: 2, Channels: 1, Stokes: 1}
	slice := []float32{1, 2, 3, 4}

	stats := ComputeRegionStats(slice, shape, nil, []message.StatsType{
		message.StatsNumPixels,
		message.StatsSum,
		message.StatsMean,
		message.StatsMin,
		message.StatsMax,
		message.StatsSumSq,
	})

	assert.InDelta(t, 4.0, stats["NumPixels"], 1e-9)
	assert.InDelta(t, 10.0, stats["Sum"], 1e-9)
	assert.InDelta(t, 2.5, stats["Mean"], 1e-9)
	assert.InDelta(t, 1.0, stats["Min"], 1e-9)
	assert.InDelta(t, 4.0, stats["Max"], 1e-9)
	assert.InDelta(t, 30.0, stats["SumSq"], 1e-9)
}

func TestComputeRegionStats_SkipsNaN(t *testing.T) {
	shape := Shape{Width: 2, Height: 2, Channels: 1, Stokes: 1}
	slice := []float32{2, nan32(), 2, nan32()}

	stats := ComputeRegionStats(slice, shape, nil, []message.StatsType{
		message.StatsNumPixels, message.StatsMean,
	})
	assert.InDelta(t, 2.0, stats["NumPixels"], 1e-9)
	assert.InDelta(t, 2.0, stats["Mean"], 1e-9)
}

func TestComputeRegionStats_EmptyRegionIsNaN(t *testing.T) {
	shape := Shape{Width: 2, Height: 2, Channels: 1, Stokes: 1}
	slice := []float32{nan32(), nan32(), nan32(), nan32()}

	stats := ComputeRegionStats(slice, shape, nil, []message.StatsType{message.StatsMean})
	assert.True(t, math.IsNaN(stats["Mean"]))
}

func TestComputeRegionStats_Extrema(t *testing.T) {
	shape := Shape{Width: 2, Height: 1, Channels: 1, Stokes: 1}

	stats := ComputeRegionStats([]float32{-7, 3}, shape, nil, []message.StatsType{message.StatsExtrema})
	assert.InDelta(t, -7.0, stats["Extrema"], 1e-9, "largest magnitude wins")

	stats = ComputeRegionStats([]float32{-2, 9}, shape, nil, []message.StatsType{message.StatsExtrema})
	assert.InDelta(t, 9.0, stats["Extrema"], 1e-9)
}

func TestComputeSpatialProfiles(t *testing.T) {
	shape := Shape{Width: 3, Height: 2, Channels: 1, Stokes: 1}
	// Row 0: 0 1 2, row 1: 10 11 12
	slice := []float32{0, 1, 2, 10, 11, 12}

	profiles, err := ComputeSpatialProfiles(slice, shape, 1, 1, []message.SpatialProfileSpec{
		{Coordinate: "x"},
		{Coordinate: "y"},
	})
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	assert.Equal(t, []float64{10, 11, 12}, profiles[0].Values)
	assert.Equal(t, []float64{1, 11}, profiles[1].Values)
}

func TestComputeSpatialProfiles_Bounded(t *testing.T) {
	shape := Shape{Width: 4, Height: 1, Channels: 1, Stokes: 1}
	slice := []float32{0, 1, 2, 3}

	profiles, err := ComputeSpatialProfiles(slice, shape, 0, 0, []message.SpatialProfileSpec{
		{Coordinate: "x", Start: 1, End: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, profiles[0].Values)
}

func TestComputeSpatialProfiles_InvalidInputs(t *testing.T) {
	shape := Shape{Width: 4, Height: 4, Channels: 1, Stokes: 1}
	slice := make([]float32, 16)

	_, err := ComputeSpatialProfiles(slice, shape, 10, 0, []message.SpatialProfileSpec{{Coordinate: "x"}})
	assert.Error(t, err, "cursor outside image")

	_, err = ComputeSpatialProfiles(slice, shape, 0, 0, []message.SpatialProfileSpec{{Coordinate: "z"}})
	assert.Error(t, err, "unknown coordinate")
}

func TestComputeSpectralProfile(t *testing.T) {
	shape := Shape{Width: 2, Height: 2, Channels: 3, Stokes: 1}
	src := newMemSource("spectral", shape)
	src.fill(0, 0, 1.0)
	src.fill(1, 0, 2.0)
	src.fill(2, 0, 3.0)

	var reports []float64
	values, err := ComputeSpectralProfile(context.Background(), src, 0, nil, message.StatsMean,
		func(p float64) { reports = append(reports, p) })
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 2, 3}, values)
	require.Len(t, reports, 3)
	assert.InDelta(t, 1.0, reports[2], 1e-9)
}

func TestComputeSpectralProfile_Cancelled(t *testing.T) {
	shape := Shape{Width: 2, Height: 2, Channels: 3, Stokes: 1}
	src := uniformSource(shape, 1.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ComputeSpectralProfile(ctx, src, 0, nil, message.StatsMean, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
