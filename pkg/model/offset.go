package model

// Offset is a geodetic correction for a layer at one zoom level, in WGS84
// degrees.
type Offset struct {
	DeltaLon float64
	DeltaLat float64
}

// OffsetStore holds per zoom level offsets for a layer, one slot per zoom
// level between the layer's min and max zoom. Mutation is not synchronized,
// it is confined to the offset editing workflow.
type OffsetStore struct {
	zoomMin int
	slots   []*Offset
}

// NewOffsetStore allocates empty slots for the inclusive zoom range.
func NewOffsetStore(zoomMin, zoomMax int) *OffsetStore {
	if zoomMax < zoomMin {
		zoomMax = zoomMin
	}
	return &OffsetStore{
		zoomMin: zoomMin,
		slots:   make([]*Offset, zoomMax-zoomMin+1),
	}
}

func (s *OffsetStore) maxZoom() int {
	return s.zoomMin + len(s.slots) - 1
}

// Get returns the offset for the zoom level, or nil if none was ever set.
// Zooms above the max clamp to the max zoom slot, zooms below the min have
// no offset.
func (s *OffsetStore) Get(zoom int) *Offset {
	if zoom < s.zoomMin {
		return nil
	}
	if zoom > s.maxZoom() {
		zoom = s.maxZoom()
	}
	return s.slots[zoom-s.zoomMin]
}

// Set stores the offset for one zoom level, clamping the level into the
// store's range.
func (s *OffsetStore) Set(zoom int, deltaLon, deltaLat float64) {
	if zoom < s.zoomMin {
		zoom = s.zoomMin
	}
	if zoom > s.maxZoom() {
		zoom = s.maxZoom()
	}
	i := zoom - s.zoomMin
	if s.slots[i] == nil {
		s.slots[i] = &Offset{}
	}
	s.slots[i].DeltaLon = deltaLon
	s.slots[i].DeltaLat = deltaLat
}

// SetRange applies Set for every zoom level in the inclusive range.
func (s *OffsetStore) SetRange(zoomStart, zoomEnd int, deltaLon, deltaLat float64) {
	for z := zoomStart; z <= zoomEnd; z++ {
		s.Set(z, deltaLon, deltaLat)
	}
}

// SetAll applies the offset to every allocated slot.
func (s *OffsetStore) SetAll(deltaLon, deltaLat float64) {
	for i := range s.slots {
		if s.slots[i] == nil {
			s.slots[i] = &Offset{}
		}
		s.slots[i].DeltaLon = deltaLon
		s.slots[i].DeltaLat = deltaLat
	}
}

// Resize grows the store so it can hold offsets up to newMaxZoom, keeping
// existing slots. The store never shrinks.
func (s *OffsetStore) Resize(newMaxZoom int) {
	n := newMaxZoom - s.zoomMin + 1
	if n <= len(s.slots) {
		return
	}
	slots := make([]*Offset, n)
	copy(slots, s.slots)
	s.slots = slots
}

// Slots returns the backing slice, nil entries included.
func (s *OffsetStore) Slots() []*Offset {
	return s.slots
}
