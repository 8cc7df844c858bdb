// Package registry holds the process wide catalog of tile sources, split
// into background and overlay maps.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/osmedit/tilesource/pkg/geo"
	"github.com/osmedit/tilesource/pkg/model"
)

// Store is the persistence collaborator the registry loads sources from.
type Store interface {
	// LoadAll returns the background and overlay maps. With populate
	// false only the three guaranteed layers are loaded.
	LoadAll(populate bool) (background, overlay map[string]*model.TileSource, err error)
	// LoadByID returns the source or nil if it is not persisted.
	LoadByID(id string) (*model.TileSource, error)
}

// Registry is the in memory catalog. One mutex guards both maps and the
// initialized flag; instances live for the process duration and are reset
// only by an explicit re-populate.
type Registry struct {
	mu          sync.Mutex
	store       Store
	logger      *slog.Logger
	background  map[string]*model.TileSource
	overlay     map[string]*model.TileSource
	initialized bool
	blacklist   []string
}

// New builds an uninitialized registry over the store.
func New(store Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:      store,
		logger:     logger,
		background: map[string]*model.TileSource{},
		overlay:    map[string]*model.TileSource{},
	}
}

// SetBlacklist installs url template patterns that are applied during
// initialization. May be called before the first Initialize.
func (r *Registry) SetBlacklist(patterns []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blacklist = patterns
}

// Initialize loads the persisted sources on first call, subsequent calls
// are no-ops. With populate false only the guaranteed NONE, NOOVERLAY and
// MAPNIK layers are loaded.
func (r *Registry) Initialize(populate bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil
	}
	background, overlay, err := r.store.LoadAll(populate)
	if err != nil {
		return fmt.Errorf("loading layers: %w", err)
	}
	r.background = background
	r.overlay = overlay
	if len(r.blacklist) > 0 {
		r.applyBlacklist(r.blacklist)
	}
	r.initialized = true
	return nil
}

// Reset drops the maps so the next Initialize re-populates them.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.background = map[string]*model.TileSource{}
	r.overlay = map[string]*model.TileSource{}
	r.initialized = false
}

// Resolve returns the source for the id. An empty id resolves to the
// guaranteed no-background layer. A source missing from both maps is looked
// up in the store, cached into the appropriate map and returned; a miss
// there too returns nil, which callers must treat as a normal outcome.
func (r *Registry) Resolve(id string) *model.TileSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == "" {
		return r.background[model.LayerNone]
	}
	if s, ok := r.overlay[id]; ok {
		return s
	}
	if s, ok := r.background[id]; ok {
		return s
	}
	r.logger.Debug("layer not cached, checking store", "layer", id)
	s, err := r.store.LoadByID(id)
	if err != nil {
		if !errors.Is(err, model.ErrMissingAPIKey) {
			r.logger.Error("layer load failed", "layer", id, slog.Any("error", err))
		}
		return nil
	}
	if s == nil {
		return nil
	}
	if s.IsOverlay() {
		r.overlay[id] = s
	} else {
		r.background[id] = s
	}
	return s
}

// ApplyBlacklist removes every source whose lowercased url template matches
// any of the patterns from both maps.
func (r *Registry) ApplyBlacklist(patterns []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyBlacklist(patterns)
}

func (r *Registry) applyBlacklist(patterns []string) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			r.logger.Error("bad blacklist pattern", "pattern", p, slog.Any("error", err))
			continue
		}
		compiled = append(compiled, re)
	}
	for _, re := range compiled {
		for id, s := range r.background {
			if re.MatchString(strings.ToLower(s.TileURL())) {
				delete(r.background, id)
				r.logger.Debug("removed background layer", "layer", id)
			}
		}
		for id, s := range r.overlay {
			if re.MatchString(strings.ToLower(s.TileURL())) {
				delete(r.overlay, id)
				r.logger.Debug("removed overlay layer", "layer", id)
			}
		}
	}
}

// BackgroundIDs returns background layer ids, filtered and sorted. A nil
// box, empty category or empty tile type matches everything.
func (r *Registry) BackgroundIDs(box *geo.BoundingBox, filtered bool, category model.Category, tileType model.TileType) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ids(filteredSorted(r.background, category, tileType, box, filtered))
}

// OverlayIDs returns overlay layer ids, filtered and sorted.
func (r *Registry) OverlayIDs(box *geo.BoundingBox, filtered bool, category model.Category, tileType model.TileType) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ids(filteredSorted(r.overlay, category, tileType, box, filtered))
}

// BackgroundSorted returns the background layers themselves, filtered and
// sorted the same way as BackgroundIDs.
func (r *Registry) BackgroundSorted(box *geo.BoundingBox, filtered bool, category model.Category, tileType model.TileType) []*model.TileSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filteredSorted(r.background, category, tileType, box, filtered)
}

// OverlaySorted returns the overlay layers, filtered and sorted.
func (r *Registry) OverlaySorted(box *geo.BoundingBox, filtered bool, category model.Category, tileType model.TileType) []*model.TileSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filteredSorted(r.overlay, category, tileType, box, filtered)
}

// Names returns display names for the ids, in order. WMS layers get a
// " [wms]" marker.
func (r *Registry) Names(layerIDs []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(layerIDs))
	for _, id := range layerIDs {
		s, ok := r.overlay[id]
		if !ok {
			s, ok = r.background[id]
		}
		if !ok {
			continue
		}
		name := s.Name()
		if s.Kind() == model.KindWMS {
			name += " [wms]"
		}
		names = append(names, name)
	}
	return names
}

func ids(sources []*model.TileSource) []string {
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.ID())
	}
	return out
}
