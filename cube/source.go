package cube

import (
	"context"
	"math"
)

// Shape describes cube dimensions: spatial width and height, spectral
// channel count, and polarization count.
type Shape struct {
	Width    int32
	Height   int32
	Channels int32
	Stokes   int32
}

// PixelsPerChannel returns the number of pixels in one channel slice.
func (s Shape) PixelsPerChannel() int {
	return int(s.Width) * int(s.Height)
}

// Contains reports whether (x, y) lies inside the spatial bounds.
func (s Shape) Contains(x, y int32) bool {
	return x >= 0 && x < s.Width && y >= 0 && y < s.Height
}

// ValidChannel reports whether the channel index is in range.
func (s Shape) ValidChannel(channel int32) bool {
	return channel >= 0 && channel < s.Channels
}

// ValidStokes reports whether the polarization index is in range.
func (s Shape) ValidStokes(stokes int32) bool {
	return stokes >= 0 && stokes < s.Stokes
}

// Source is read access to one image cube. ChannelSlice returns pixel values
// for a single (channel, stokes) plane in row-major order, y*width+x.
// Implementations must be safe for concurrent readers.
type Source interface {
	Name() string
	Shape() Shape
	ChannelSlice(ctx context.Context, channel, stokes int32) ([]float32, error)
}

// PixelAt reads one pixel from a channel slice. Returns NaN for
// out-of-bounds coordinates.
func PixelAt(slice []float32, shape Shape, x, y int32) float32 {
	if !shape.Contains(x, y) {
		return float32(math.NaN())
	}
	return slice[int(y)*int(shape.Width)+int(x)]
}
