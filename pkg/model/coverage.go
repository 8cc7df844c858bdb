package model

import (
	"github.com/osmedit/tilesource/pkg/geo"
)

// CoverageArea is a zoom range plus an optional bounding box. A nil box
// means the area covers all longitudes and latitudes. Immutable after
// construction.
type CoverageArea struct {
	zoomMin int
	zoomMax int
	box     *geo.BoundingBox
}

// NewCoverageArea builds a CoverageArea. box may be nil for world coverage.
func NewCoverageArea(zoomMin, zoomMax int, box *geo.BoundingBox) CoverageArea {
	return CoverageArea{zoomMin: zoomMin, zoomMax: zoomMax, box: box}
}

// Covers reports whether the zoom level and area are inside this coverage.
func (c CoverageArea) Covers(zoom int, area geo.BoundingBox) bool {
	return zoom >= c.zoomMin && zoom <= c.zoomMax && (c.box == nil || c.box.Intersects(area))
}

// CoversBox reports whether the area intersects this coverage, ignoring zoom.
func (c CoverageArea) CoversBox(area geo.BoundingBox) bool {
	return c.box == nil || c.box.Intersects(area)
}

// CoversPoint reports whether the WGS84 location is inside this coverage.
func (c CoverageArea) CoversPoint(lon, lat float64) bool {
	return c.box == nil || c.box.Contains(int32(lon*geo.E7), int32(lat*geo.E7))
}

func (c CoverageArea) MinZoom() int { return c.zoomMin }

func (c CoverageArea) MaxZoom() int { return c.zoomMax }

// Box returns the bounding box or nil if the area covers the whole world.
func (c CoverageArea) Box() *geo.BoundingBox { return c.box }

// Provider is attribution metadata plus the coverage areas it applies to.
// An empty coverage list means the provider covers everything at every zoom.
type Provider struct {
	attribution    string
	attributionURL string
	areas          []CoverageArea
}

// NewProvider builds a Provider without coverage areas.
func NewProvider(attribution, attributionURL string) *Provider {
	return &Provider{attribution: attribution, attributionURL: attributionURL}
}

// AddCoverageArea appends a coverage area.
func (p *Provider) AddCoverageArea(ca CoverageArea) {
	p.areas = append(p.areas, ca)
}

func (p *Provider) Attribution() string { return p.attribution }

func (p *Provider) AttributionURL() string { return p.attributionURL }

func (p *Provider) CoverageAreas() []CoverageArea { return p.areas }

// Covers reports whether the provider covers the zoom level and area.
func (p *Provider) Covers(zoom int, area geo.BoundingBox) bool {
	if len(p.areas) == 0 {
		return true
	}
	for _, a := range p.areas {
		if a.Covers(zoom, area) {
			return true
		}
	}
	return false
}

// CoversBox reports whether the provider covers the area at any zoom.
func (p *Provider) CoversBox(area geo.BoundingBox) bool {
	if len(p.areas) == 0 {
		return true
	}
	for _, a := range p.areas {
		if a.CoversBox(area) {
			return true
		}
	}
	return false
}

// MaxZoom returns the largest max zoom over the coverage areas that cover
// the area. An empty coverage list yields -1, a non-empty list where nothing
// covers yields 0.
func (p *Provider) MaxZoom(area geo.BoundingBox) int {
	if len(p.areas) == 0 {
		return -1
	}
	maxZoom := 0
	for _, a := range p.areas {
		if a.CoversBox(area) && a.zoomMax > maxZoom {
			maxZoom = a.zoomMax
		}
	}
	return maxZoom
}

// CoverageAreaAt returns the covering area with the highest max zoom for the
// location, or nil. The first area found wins on a tie.
func (p *Provider) CoverageAreaAt(lon, lat float64) *CoverageArea {
	var result *CoverageArea
	for i := range p.areas {
		a := &p.areas[i]
		if a.CoversPoint(lon, lat) && (result == nil || a.zoomMax > result.zoomMax) {
			result = a
		}
	}
	return result
}
