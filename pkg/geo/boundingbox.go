package geo

// BoundingBox is a WGS84 rectangle in 1e7 scaled fixed-point coordinates,
// the precision used for all geographic comparisons in the catalog.
type BoundingBox struct {
	Left   int32
	Bottom int32
	Right  int32
	Top    int32
}

// NewBoundingBox builds a BoundingBox from WGS84 degree values.
func NewBoundingBox(left, bottom, right, top float64) BoundingBox {
	return BoundingBox{
		Left:   int32(left * E7),
		Bottom: int32(bottom * E7),
		Right:  int32(right * E7),
		Top:    int32(top * E7),
	}
}

// MaxExtent returns a box covering everything representable in web mercator.
func MaxExtent() BoundingBox {
	return NewBoundingBox(-MaxLon, -MaxCompatLat, MaxLon, MaxCompatLat)
}

// Intersects reports whether the two boxes overlap or touch.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.Left <= o.Right && o.Left <= b.Right && b.Bottom <= o.Top && o.Bottom <= b.Top
}

// Contains reports whether the E7 scaled coordinate lies within the box.
func (b BoundingBox) Contains(lonE7, latE7 int32) bool {
	return lonE7 >= b.Left && lonE7 <= b.Right && latE7 >= b.Bottom && latE7 <= b.Top
}

// Width returns the longitude extent in E7 units.
func (b BoundingBox) Width() int64 {
	return int64(b.Right) - int64(b.Left)
}

// Height returns the latitude extent in E7 units.
func (b BoundingBox) Height() int64 {
	return int64(b.Top) - int64(b.Bottom)
}

// Union returns the smallest box containing both boxes.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		Left:   min(b.Left, o.Left),
		Bottom: min(b.Bottom, o.Bottom),
		Right:  max(b.Right, o.Right),
		Top:    max(b.Top, o.Top),
	}
}
