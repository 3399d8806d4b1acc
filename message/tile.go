package message

// Tile coordinates are packed into one int32: 8 bits of zoom layer and 12
// bits each of x and y.
//
//	bit 31..24: layer
//	bit 23..12: y
//	bit 11..0:  x
const (
	tileCoordBits  = 12
	tileCoordMask  = (1 << tileCoordBits) - 1
	tileLayerShift = 2 * tileCoordBits
	tileLayerMask  = 0xFF

	// MaxTileCoord is the largest representable x or y tile index.
	MaxTileCoord = tileCoordMask
	// MaxTileLayer is the largest representable zoom layer.
	MaxTileLayer = tileLayerMask
)

// EncodeTile packs (layer, x, y) into a single tile coordinate.
// Out-of-range components are truncated to their field width.
func EncodeTile(layer, x, y int32) int32 {
	return (layer&tileLayerMask)<<tileLayerShift |
		(y&tileCoordMask)<<tileCoordBits |
		x&tileCoordMask
}

// DecodeTile unpacks a tile coordinate into (layer, x, y).
func DecodeTile(encoded int32) (layer, x, y int32) {
	layer = (encoded >> tileLayerShift) & tileLayerMask
	y = (encoded >> tileCoordBits) & tileCoordMask
	x = encoded & tileCoordMask
	return layer, x, y
}
