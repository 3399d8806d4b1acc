package cube

import (
	"fmt"
	"math"

	"github.com/c360/cubestream/errors"
)

// TileSize is the edge length of a raster tile in downsampled pixels.
const TileSize = 256

// Tile is one extracted raster block.
type Tile struct {
	Layer  int32
	X      int32
	Y      int32
	Width  int32
	Height int32
	Data   []float32
}

// ExtractTile cuts the tile (layer, tx, ty) out of a channel slice. Layer
// L views the image downsampled by 2^L; each downsampled pixel is the
// mean of the finite pixels in its 2^L x 2^L block. Edge tiles are
// smaller than TileSize.
func ExtractTile(slice []float32, shape Shape, layer, tx, ty int32) (*Tile, error) {
	if layer < 0 || layer > 30 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"Tile", "ExtractTile", fmt.Sprintf("layer %d out of range", layer))
	}
	mip := int32(1) << layer
	dsWidth := (shape.Width + mip - 1) / mip
	dsHeight := (shape.Height + mip - 1) / mip

	x0 := tx * TileSize
	y0 := ty * TileSize
	if x0 >= dsWidth || y0 >= dsHeight || tx < 0 || ty < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"Tile", "ExtractTile",
			fmt.Sprintf("tile (%d,%d) outside %dx%d at layer %d", tx, ty, dsWidth, dsHeight, layer))
	}

	w := dsWidth - x0
	if w > TileSize {
		w = TileSize
	}
	h := dsHeight - y0
	if h > TileSize {
		h = TileSize
	}

	tile := &Tile{Layer: layer, X: tx, Y: ty, Width: w, Height: h,
		Data: make([]float32, int(w)*int(h))}

	for dy := int32(0); dy < h; dy++ {
		for dx := int32(0); dx < w; dx++ {
			tile.Data[int(dy)*int(w)+int(dx)] = blockMean(slice, shape,
				(x0+dx)*mip, (y0+dy)*mip, mip)
		}
	}
	return tile, nil
}

// blockMean averages the finite pixels of a mip x mip block.
func blockMean(slice []float32, shape Shape, x0, y0, mip int32) float32 {
	if mip == 1 {
		return PixelAt(slice, shape, x0, y0)
	}
	var sum float64
	var n int
	for y := y0; y < y0+mip && y < shape.Height; y++ {
		for x := x0; x < x0+mip && x < shape.Width; x++ {
			v := float64(slice[int(y)*int(shape.Width)+int(x)])
			if math.IsNaN(v) {
				continue
			}
			sum += v
			n++
		}
	}
	if n == 0 {
		return float32(math.NaN())
	}
	return float32(sum / float64(n))
}
