// Package storage persists tile source definitions and api keys in a
// sqlite database.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/osmedit/tilesource/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	tag     TEXT PRIMARY KEY,
	updated INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS layers (
	id                 TEXT PRIMARY KEY,
	source             TEXT NOT NULL,
	name               TEXT NOT NULL,
	url                TEXT NOT NULL,
	kind               TEXT,
	category           TEXT,
	overlay            INTEGER NOT NULL DEFAULT 0,
	default_layer      INTEGER NOT NULL DEFAULT 0,
	min_zoom           INTEGER NOT NULL DEFAULT 0,
	max_zoom           INTEGER NOT NULL DEFAULT 0,
	max_over_zoom      INTEGER NOT NULL DEFAULT 0,
	tile_width         INTEGER NOT NULL DEFAULT 0,
	tile_height        INTEGER NOT NULL DEFAULT 0,
	proj               TEXT,
	preference         INTEGER NOT NULL DEFAULT 0,
	start_date         INTEGER NOT NULL DEFAULT 0,
	end_date           INTEGER NOT NULL DEFAULT 0,
	attribution        TEXT,
	attribution_url    TEXT,
	icon               TEXT,
	logo_url           TEXT,
	logo               BLOB,
	no_tile_header     TEXT,
	no_tile_values     TEXT,
	tou_url            TEXT,
	description        TEXT,
	privacy_policy_url TEXT
);
CREATE TABLE IF NOT EXISTS coverages (
	layer_id TEXT NOT NULL,
	min_zoom INTEGER NOT NULL DEFAULT 0,
	max_zoom INTEGER NOT NULL DEFAULT 0,
	lon_min  REAL,
	lat_min  REAL,
	lon_max  REAL,
	lat_max  REAL,
	has_box  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS coverages_layer ON coverages(layer_id);
CREATE TABLE IF NOT EXISTS keys (
	id  TEXT PRIMARY KEY,
	key TEXT NOT NULL
);
`

// Database wraps the layer configuration database.
type Database struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database. Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Database{db: db, logger: logger}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// AddSource registers a provenance tag.
func (d *Database) AddSource(tag string) error {
	_, err := d.db.Exec("INSERT OR IGNORE INTO sources(tag, updated) VALUES(?, 0)", tag)
	return err
}

// DeleteSource removes the tag and every layer imported under it.
func (d *Database) DeleteSource(tag string) error {
	if _, err := d.db.Exec(
		"DELETE FROM coverages WHERE layer_id IN (SELECT id FROM layers WHERE source=?)", tag); err != nil {
		return err
	}
	if _, err := d.db.Exec("DELETE FROM layers WHERE source=?", tag); err != nil {
		return err
	}
	_, err := d.db.Exec("DELETE FROM sources WHERE tag=?", tag)
	return err
}

// SourceUpdated returns the last import timestamp for the tag in ms since
// the epoch, 0 if never imported.
func (d *Database) SourceUpdated(tag string) (int64, error) {
	var updated int64
	err := d.db.QueryRow("SELECT updated FROM sources WHERE tag=?", tag).Scan(&updated)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return updated, err
}

// TouchSource stamps the tag with the current time.
func (d *Database) TouchSource(tag string) error {
	_, err := d.db.Exec("INSERT INTO sources(tag, updated) VALUES(?, ?) ON CONFLICT(tag) DO UPDATE SET updated=excluded.updated",
		tag, time.Now().UnixMilli())
	return err
}

// AddLayer inserts or replaces a layer definition under the source tag.
func (d *Database) AddLayer(tag string, def *model.SourceDef) error {
	id := def.ID
	if id == "" {
		id = model.NameToID(def.Name)
	}
	attribution, attributionURL := "", ""
	var coverages []model.CoverageDef
	if len(def.Providers) > 0 {
		attribution = def.Providers[0].Attribution
		attributionURL = def.Providers[0].AttributionURL
		coverages = def.Providers[0].Coverages
	}
	noTileValues, err := json.Marshal(def.NoTileValues)
	if err != nil {
		return err
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO layers
		(id, source, name, url, kind, category, overlay, default_layer,
		 min_zoom, max_zoom, max_over_zoom, tile_width, tile_height, proj,
		 preference, start_date, end_date, attribution, attribution_url,
		 icon, logo_url, logo, no_tile_header, no_tile_values, tou_url,
		 description, privacy_policy_url)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, tag, def.Name, def.URL, string(def.Kind), string(def.Category),
		def.Overlay, def.DefaultLayer, def.MinZoom, def.MaxZoom,
		def.MaxOverZoom, def.TileWidth, def.TileHeight, def.Proj,
		def.Preference, def.StartDate, def.EndDate, attribution,
		attributionURL, def.Icon, def.LogoURL, def.LogoBytes,
		def.NoTileHeader, string(noTileValues), def.TermsOfUseURL,
		def.Description, def.PrivacyPolicyURL); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM coverages WHERE layer_id=?", id); err != nil {
		return err
	}
	for _, c := range coverages {
		var lonMin, latMin, lonMax, latMax float64
		hasBox := c.BBox != nil
		if hasBox {
			lonMin, latMin, lonMax, latMax = c.BBox[0], c.BBox[1], c.BBox[2], c.BBox[3]
		}
		if _, err := tx.Exec(`INSERT INTO coverages
			(layer_id, min_zoom, max_zoom, lon_min, lat_min, lon_max, lat_max, has_box)
			VALUES(?,?,?,?,?,?,?,?)`,
			id, c.MinZoom, c.MaxZoom, lonMin, latMin, lonMax, latMax, hasBox); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdateLayer rewrites a layer definition, keeping its source tag.
func (d *Database) UpdateLayer(def *model.SourceDef) error {
	tag := def.Source
	if tag == "" {
		var err error
		if tag, err = d.layerSource(def.ID); err != nil {
			return err
		}
	}
	return d.AddLayer(tag, def)
}

func (d *Database) layerSource(id string) (string, error) {
	var tag string
	err := d.db.QueryRow("SELECT source FROM layers WHERE id=?", id).Scan(&tag)
	if err == sql.ErrNoRows {
		return model.SourceManual, nil
	}
	return tag, err
}

const layerColumns = `id, source, name, url, kind, category, overlay,
	default_layer, min_zoom, max_zoom, max_over_zoom, tile_width,
	tile_height, proj, preference, start_date, end_date, attribution,
	attribution_url, icon, logo_url, logo, no_tile_header, no_tile_values,
	tou_url, description, privacy_policy_url`

// LoadDef returns the persisted definition for the id, nil if absent.
func (d *Database) LoadDef(id string) (*model.SourceDef, error) {
	row := d.db.QueryRow("SELECT "+layerColumns+" FROM layers WHERE id=?", id)
	def, err := scanDef(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := d.loadCoverages(def); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadDefs returns all persisted definitions for one half of the catalog.
func (d *Database) LoadDefs(overlay bool) ([]*model.SourceDef, error) {
	rows, err := d.db.Query("SELECT "+layerColumns+" FROM layers WHERE overlay=?", overlay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*model.SourceDef
	for rows.Next() {
		def, err := scanDef(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, def := range defs {
		if err := d.loadCoverages(def); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDef(row scanner) (*model.SourceDef, error) {
	var (
		def            model.SourceDef
		kind, category string
		attribution    sql.NullString
		attributionURL sql.NullString
		proj           sql.NullString
		icon           sql.NullString
		logoURL        sql.NullString
		noTileHeader   sql.NullString
		noTileValues   sql.NullString
		touURL         sql.NullString
		description    sql.NullString
		privacyPolicy  sql.NullString
	)
	if err := row.Scan(&def.ID, &def.Source, &def.Name, &def.URL, &kind,
		&category, &def.Overlay, &def.DefaultLayer, &def.MinZoom,
		&def.MaxZoom, &def.MaxOverZoom, &def.TileWidth, &def.TileHeight,
		&proj, &def.Preference, &def.StartDate, &def.EndDate,
		&attribution, &attributionURL, &icon, &logoURL, &def.LogoBytes,
		&noTileHeader, &noTileValues, &touURL, &description,
		&privacyPolicy); err != nil {
		return nil, err
	}
	def.Kind = model.Kind(kind)
	def.Category = model.Category(category)
	def.Proj = proj.String
	def.Icon = icon.String
	def.LogoURL = logoURL.String
	def.NoTileHeader = noTileHeader.String
	def.TermsOfUseURL = touURL.String
	def.Description = description.String
	def.PrivacyPolicyURL = privacyPolicy.String
	if noTileValues.String != "" {
		if err := json.Unmarshal([]byte(noTileValues.String), &def.NoTileValues); err != nil {
			return nil, fmt.Errorf("layer %s no_tile_values: %w", def.ID, err)
		}
	}
	if attribution.String != "" || attributionURL.String != "" {
		def.Providers = []model.ProviderDef{{
			Attribution:    attribution.String,
			AttributionURL: attributionURL.String,
		}}
	}
	return &def, nil
}

func (d *Database) loadCoverages(def *model.SourceDef) error {
	rows, err := d.db.Query(
		"SELECT min_zoom, max_zoom, lon_min, lat_min, lon_max, lat_max, has_box FROM coverages WHERE layer_id=?",
		def.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var coverages []model.CoverageDef
	for rows.Next() {
		var (
			c      model.CoverageDef
			box    [4]float64
			hasBox bool
		)
		if err := rows.Scan(&c.MinZoom, &c.MaxZoom, &box[0], &box[1], &box[2], &box[3], &hasBox); err != nil {
			return err
		}
		if hasBox {
			c.BBox = &box
		}
		coverages = append(coverages, c)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(coverages) == 0 {
		return nil
	}
	if len(def.Providers) == 0 {
		def.Providers = []model.ProviderDef{{}}
	}
	def.Providers[0].Coverages = coverages
	return nil
}

// APIKey implements the credential collaborator over the keys table.
func (d *Database) APIKey(layerID string) (string, bool) {
	var key string
	err := d.db.QueryRow("SELECT key FROM keys WHERE id=?", layerID).Scan(&key)
	if err != nil {
		if err != sql.ErrNoRows {
			d.logger.Error("key lookup failed", "layer", layerID, slog.Any("error", err))
		}
		return "", false
	}
	return key, key != ""
}

// SetAPIKey stores or replaces a key for the layer.
func (d *Database) SetAPIKey(layerID, key string) error {
	_, err := d.db.Exec("INSERT INTO keys(id, key) VALUES(?, ?) ON CONFLICT(id) DO UPDATE SET key=excluded.key",
		layerID, key)
	return err
}
