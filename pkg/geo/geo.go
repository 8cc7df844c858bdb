// Package geo holds the small amount of geodesy the layer catalog needs:
// fixed-point WGS84 bounding boxes and slippy-map tile conversions.
package geo

import "math"

const (
	// E7 is the scale factor for fixed-point WGS84 coordinates.
	E7 = 1e7

	MaxLon = 180.0
	// MaxCompatLat is the largest latitude representable in the web
	// mercator projection.
	MaxCompatLat = 85.0511287798

	earthRadius   = 6378137.0
	mercHalfWorld = math.Pi * earthRadius // 20037508.342789244
)

func radians(a float64) float64 {
	return a / 180 * math.Pi
}

func deg(a float64) float64 {
	return a / math.Pi * 180
}

// TileToLon returns the WGS84 longitude of the left edge of tile column x.
func TileToLon(x, zoom int) float64 {
	return float64(x)/float64(int(1)<<zoom)*360 - 180
}

// TileToLat returns the WGS84 latitude of the top edge of tile row y.
func TileToLat(y, zoom int) float64 {
	n := math.Pi * (1 - 2*float64(y)/float64(int(1)<<zoom))
	return deg(math.Atan(math.Sinh(n)))
}

// TileToMercX returns the EPSG:3857 easting of the left edge of tile column x.
func TileToMercX(x, zoom int) float64 {
	return float64(x)/float64(int(1)<<zoom)*2*mercHalfWorld - mercHalfWorld
}

// TileToMercY returns the EPSG:3857 northing of the bottom edge of TMS tile
// row y, counting rows from the south.
func TileToMercY(y, zoom int) float64 {
	return float64(y)/float64(int(1)<<zoom)*2*mercHalfWorld - mercHalfWorld
}

// FlipY converts between XYZ and TMS row numbering.
func FlipY(y, zoom int) int {
	return 1<<zoom - y - 1
}

// LonLatToTile returns the tile coordinates containing the given location.
func LonLatToTile(lon, lat float64, zoom int) (int, int) {
	n := float64(int(1) << zoom)
	x := int((lon + 180) / 360 * n)
	y := int((1 - math.Log(math.Tan(radians(lat))+1/math.Cos(radians(lat)))/math.Pi) / 2 * n)
	return x, y
}
