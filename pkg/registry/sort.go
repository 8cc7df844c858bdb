package registry

import (
	"sort"
	"strings"

	"github.com/osmedit/tilesource/pkg/geo"
	"github.com/osmedit/tilesource/pkg/model"
)

// filteredSorted returns the sources of one map, internal layers always
// excluded, optionally filtered by category, tile type and coverage, sorted
// by preference, default flag, coverage size, end date and name. The two
// "none" sentinel layers are always first. Called with the registry lock
// held.
func filteredSorted(sources map[string]*model.TileSource, category model.Category, tileType model.TileType, box *geo.BoundingBox, filtered bool) []*model.TileSource {
	var noneLayer *model.TileSource
	list := make([]*model.TileSource, 0, len(sources))
	for _, s := range sources {
		if s.Category() == model.CategoryInternal {
			// never return internal configs
			continue
		}
		if filtered {
			if category != "" && category != s.Category() {
				continue
			}
			if tileType != "" && tileType != s.TileType() {
				continue
			}
			if box != nil {
				covered, err := s.Covers(*box)
				if err != nil || !covered {
					continue
				}
			}
		}
		// added back at index 0 after sorting
		if s.ID() == model.LayerNone || s.ID() == model.LayerNoOverlay {
			noneLayer = s
			continue
		}
		list = append(list, s)
	}

	sort.SliceStable(list, func(i, j int) bool {
		t1, t2 := list[i], list[j]
		if t1.Preference() != t2.Preference() {
			return t1.Preference() > t2.Preference()
		}
		if t1.IsDefaultLayer() != t2.IsDefaultLayer() {
			return t1.IsDefaultLayer()
		}
		s1 := coverageSize(t1.CoverageAreas())
		s2 := coverageSize(t2.CoverageAreas())
		if s1 != s2 {
			return s1 < s2
		}
		if t1.EndDate() != t2.EndDate() {
			// no end date == ongoing, ranks first
			return t1.EndDate() > t2.EndDate()
		}
		if n1, n2 := strings.ToLower(t1.Name()), strings.ToLower(t2.Name()); n1 != n2 {
			return n1 < n2
		}
		// full tie, keep the order independent of map iteration
		return t1.ID() < t2.ID()
	})

	if noneLayer != nil {
		list = append([]*model.TileSource{noneLayer}, list...)
	}
	return list
}

// coverageSize approximates the covered area in WGS84 degrees squared. With
// several coverage areas only the last one with a box counts; changing that
// would reorder established layer lists. No box at all counts as the
// maximal area so world wide layers sort last.
func coverageSize(areas []model.CoverageArea) float64 {
	result := 0.0
	for _, area := range areas {
		if b := area.Box(); b != nil {
			result = float64(b.Width()) / geo.E7 * float64(b.Height()) / geo.E7
		}
	}
	if result == 0 {
		return geo.MaxLon * geo.MaxCompatLat * 4
	}
	return result
}
