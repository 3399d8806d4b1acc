package cube

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemory(t *testing.T) {
	shape := Shape{Width: 2, Height: 2, Channels: 2, Stokes: 1}
	planes := [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}

	src, err := NewMemory("mem", shape, planes)
	require.NoError(t, err)
	assert.Equal(t, "mem", src.Name())

	plane, err := src.ChannelSlice(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, planes[1], plane)

	_, err = src.ChannelSlice(context.Background(), 2, 0)
	assert.Error(t, err)
}

func TestNewMemory_PlaneCountMismatch(t *testing.T) {
	shape := Shape{Width: 2, Height: 2, Channels: 2, Stokes: 1}
	_, err := NewMemory("mem", shape, [][]float32{{1, 2, 3, 4}})
	assert.Error(t, err)

	_, err = NewMemory("mem", shape, [][]float32{{1, 2}, {3, 4}})
	assert.Error(t, err, "plane pixel count mismatch")
}

func TestNewMemoryImage(t *testing.T) {
	src, err := NewMemoryImage("img", 3, 2, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, Shape{Width: 3, Height: 2, Channels: 1, Stokes: 1}, src.Shape())
}

func TestExtractTile_FullResolution(t *testing.T) {
	shape := Shape{Width: 4, Height: 4, Channels: 1, Stokes: 1}
	slice := make([]float32, 16)
	for i := range slice {
		slice[i] = float32(i)
	}

	tile, err := ExtractTile(slice, shape, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(4), tile.Width)
	assert.Equal(t, int32(4), tile.Height)
	assert.Equal(t, slice, tile.Data)
}

func TestExtractTile_Downsampled(t *testing.T) {
	shape := Shape{Width: 4, Height: 4, Channels: 1, Stokes: 1}
	slice := make([]float32, 16)
	for i := range slice {
		slice[i] = 2.0
	}

	tile, err := ExtractTile(slice, shape, 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), tile.Width)
	assert.Equal(t, int32(2), tile.Height)
	for _, v := range tile.Data {
		assert.InDelta(t, 2.0, float64(v), 1e-6)
	}
}

func TestExtractTile_OutsideImage(t *testing.T) {
	shape := Shape{Width: 4, Height: 4, Channels: 1, Stokes: 1}
	_, err := ExtractTile(make([]float32, 16), shape, 0, 5, 0)
	assert.Error(t, err)
}

func TestTraceContour(t *testing.T) {
	// A step from 0 to 1 between columns 1 and 2.
	shape := Shape{Width: 4, Height: 2, Channels: 1, Stokes: 1}
	slice := []float32{0, 0, 1, 1, 0, 0, 1, 1}

	vertices := TraceContour(slice, shape, 0.5)
	require.NotEmpty(t, vertices)
	require.Zero(t, len(vertices)%2)

	// All crossings sit between x=1 and x=2.
	for i := 0; i < len(vertices); i += 2 {
		assert.InDelta(t, 1.5, vertices[i], 1e-9)
	}
}

func TestTraceContour_NoCrossings(t *testing.T) {
	shape := Shape{Width: 3, Height: 3, Channels: 1, Stokes: 1}
	slice := make([]float32, 9)
	assert.Empty(t, TraceContour(slice, shape, 5.0))
}

func TestFitGaussian(t *testing.T) {
	shape := Shape{Width: 31, Height: 31, Channels: 1, Stokes: 1}
	slice := make([]float32, 31*31)
	cx, cy, sigma := 15.0, 12.0, 3.0
	for y := 0; y < 31; y++ {
		for x := 0; x < 31; x++ {
			dx := float64(x) - cx
			dy := float64(y) - cy
			slice[y*31+x] = float32(2.0 * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma)))
		}
	}

	res := FitGaussian(slice, shape, nil)
	require.True(t, res.Converged)
	require.Len(t, res.Components, 1)

	comp := res.Components[0]
	assert.InDelta(t, cx, comp.Center.X, 0.5)
	assert.InDelta(t, cy, comp.Center.Y, 0.5)
	assert.InDelta(t, 2.0, comp.Amplitude, 0.1)
	assert.InDelta(t, fwhmFactor*sigma, comp.FwhmX, 0.6)
}

func TestFitGaussian_NoFlux(t *testing.T) {
	shape := Shape{Width: 8, Height: 8, Channels: 1, Stokes: 1}
	res := FitGaussian(make([]float32, 64), shape, nil)
	assert.False(t, res.Converged)
	assert.NotEmpty(t, res.Log)
}
