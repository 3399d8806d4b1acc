package cube

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/cubestream/message"
)

func TestComputeHistogram_FixedBounds(t *testing.T) {
	shape := Shape{Width: 2, Height: 2, Channels: 1, Stokes: 1}
	slice := []float32{0, 1, 2, 3}

	h, err := ComputeHistogram(slice, shape, nil, 4, &message.HistBounds{Min: 0, Max: 4})
	require.NoError(t, err)

	assert.Equal(t, int32(4), h.NumBins)
	assert.InDelta(t, 1.0, h.BinWidth, 1e-9)
	assert.InDelta(t, 0.5, h.FirstBinCenter, 1e-9)
	assert.Equal(t, []int32{1, 1, 1, 1}, h.Bins)
	assert.InDelta(t, 1.5, h.Mean, 1e-9)
}

func TestComputeHistogram_SkipsNaN(t *testing.T) {
	shape := Shape{Width: 2, Height: 2, Channels: 1, Stokes: 1}
	slice := []float32{1, nan32(), 1, nan32()}

	h, err := ComputeHistogram(slice, shape, nil, 2, &message.HistBounds{Min: 0, Max: 2})
	require.NoError(t, err)

	var total int32
	for _, b := range h.Bins {
		total += b
	}
	assert.Equal(t, int32(2), total, "NaN pixels must not be binned")
	assert.InDelta(t, 1.0, h.Mean, 1e-9)
}

func TestComputeHistogram_AutoBinning(t *testing.T) {
	shape := Shape{Width: 10, Height: 10, Channels: 1, Stokes: 1}
	slice := make([]float32, 100)
	for i := range slice {
		slice[i] = float32(i)
	}

	h, err := ComputeHistogram(slice, shape, nil, -1, nil)
	require.NoError(t, err)

	// sqrt(100) = 10 bins over the data range
	assert.Equal(t, int32(10), h.NumBins)
}

func TestComputeHistogram_InvertedBoundsRejected(t *testing.T) {
	shape := Shape{Width: 1, Height: 1, Channels: 1, Stokes: 1}
	_, err := ComputeHistogram([]float32{1}, shape, nil, 2, &message.HistBounds{Min: 5, Max: 1})
	assert.Error(t, err)
}

func TestComputeHistogram_WithMask(t *testing.T) {
	shape := Shape{Width: 4, Height: 4, Channels: 1, Stokes: 1}
	slice := make([]float32, 16)
	for i := range slice {
		slice[i] = float32(i)
	}

	// Point mask at (1, 1) selects only pixel value 5.
	mask, err := RasterizeRegion(message.RegionInfo{
		RegionType:    message.RegionPoint,
		ControlPoints: []message.Point{{X: 1, Y: 1}},
	}, shape)
	require.NoError(t, err)

	h, err := ComputeHistogram(slice, shape, mask, 1, &message.HistBounds{Min: 0, Max: 16})
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, h.Bins)
	assert.InDelta(t, 5.0, h.Mean, 1e-9)
}

func TestComputeCubeHistogram_ProgressPerChannel(t *testing.T) {
	shape := Shape{Width: 2, Height: 2, Channels: 4, Stokes: 1}
	src := newMemSource("cube", shape)
	for ch := int32(0); ch < 4; ch++ {
		src.fill(ch, 0, 1.0)
	}

	var mu sync.Mutex
	var reports []float64
	h, err := ComputeCubeHistogram(context.Background(), src, 0, nil, 2, nil, func(p float64) {
		mu.Lock()
		reports = append(reports, p)
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NotNil(t, h)

	require.Len(t, reports, 4)
	for i := 1; i < len(reports); i++ {
		assert.Greater(t, reports[i], reports[i-1], "progress must be strictly increasing")
	}
	assert.InDelta(t, 1.0, reports[len(reports)-1], 1e-9, "final progress must reach 1.0")
}

func TestComputeCubeHistogram_Cancelled(t *testing.T) {
	shape := Shape{Width: 2, Height: 2, Channels: 4, Stokes: 1}
	src := newMemSource("cube", shape)
	for ch := int32(0); ch < 4; ch++ {
		src.fill(ch, 0, 1.0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ComputeCubeHistogram(ctx, src, 0, nil, 2, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAutoBins_Minimum(t *testing.T) {
	assert.Equal(t, int32(2), AutoBins(0))
	assert.Equal(t, int32(2), AutoBins(1))
	assert.Equal(t, int32(4), AutoBins(16))
}
