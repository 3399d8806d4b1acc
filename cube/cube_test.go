package cube

import (
	"context"
	"fmt"
	"math"

	"github.com/c360/cubestream/errors"
)

// memSource is a fixed-data cube source for tests.
type memSource struct {
	name   string
	shape  Shape
	planes map[string][]float32
}

func newMemSource(name string, shape Shape) *memSource {
	return &memSource{name: name, shape: shape, planes: make(map[string][]float32)}
}

// fill sets every pixel of one plane to the same value.
func (m *memSource) fill(channel, stokes int32, value float32) {
	plane := make([]float32, m.shape.PixelsPerChannel())
	for i := range plane {
		plane[i] = value
	}
	m.planes[planeKey(channel, stokes)] = plane
}

func (m *memSource) set(channel, stokes int32, plane []float32) {
	m.planes[planeKey(channel, stokes)] = plane
}

func (m *memSource) Name() string { return m.name }
func (m *memSource) Shape() Shape { return m.shape }

func (m *memSource) ChannelSlice(ctx context.Context, channel, stokes int32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	plane, ok := m.planes[planeKey(channel, stokes)]
	if !ok {
		return nil, errors.ErrChannelOutOfRange
	}
	return plane, nil
}

func planeKey(channel, stokes int32) string {
	return fmt.Sprintf("%d:%d", channel, stokes)
}

func nan32() float32 {
	return float32(math.NaN())
}
