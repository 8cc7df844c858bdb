package storage

import (
	"errors"
	"log/slog"

	"github.com/osmedit/tilesource/pkg/model"
)

// Catalog adapts the database to the registry's Store interface,
// constructing live TileSources from persisted definitions. One malformed
// or key-less entry never prevents the rest of the catalog from loading.
type Catalog struct {
	db  *Database
	cfg model.Config
}

// NewCatalog builds a catalog. cfg.Keys defaults to the database's own keys
// table.
func NewCatalog(db *Database, cfg model.Config) *Catalog {
	if cfg.Keys == nil {
		cfg.Keys = db
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Catalog{db: db, cfg: cfg}
}

// LoadAll returns the background and overlay maps. With populate false only
// the three guaranteed layers are loaded.
func (c *Catalog) LoadAll(populate bool) (map[string]*model.TileSource, map[string]*model.TileSource, error) {
	background := map[string]*model.TileSource{}
	overlay := map[string]*model.TileSource{}

	if !populate {
		// these three layers have to exist or else we are borked
		for _, id := range []string{model.LayerNone, model.LayerNoOverlay, model.LayerMapnik} {
			s, err := c.LoadByID(id)
			if err != nil || s == nil {
				c.cfg.Logger.Error("guaranteed layer missing", "layer", id, slog.Any("error", err))
				continue
			}
			if s.IsOverlay() {
				overlay[id] = s
			} else {
				background[id] = s
			}
		}
		return background, overlay, nil
	}

	for _, isOverlay := range []bool{false, true} {
		defs, err := c.db.LoadDefs(isOverlay)
		if err != nil {
			return nil, nil, err
		}
		target := background
		if isOverlay {
			target = overlay
		}
		for _, def := range defs {
			s, err := model.New(c.cfg, def)
			if err != nil {
				if !errors.Is(err, model.ErrMissingAPIKey) {
					c.cfg.Logger.Error("layer config unusable", "layer", def.ID, slog.Any("error", err))
				}
				continue
			}
			target[s.ID()] = s
		}
	}
	return background, overlay, nil
}

// LoadByID constructs the layer from its persisted definition, nil if the
// id is unknown.
func (c *Catalog) LoadByID(id string) (*model.TileSource, error) {
	def, err := c.db.LoadDef(id)
	if err != nil || def == nil {
		return nil, err
	}
	return model.New(c.cfg, def)
}

// Database exposes the underlying database for import and key management.
func (c *Catalog) Database() *Database {
	return c.db
}
