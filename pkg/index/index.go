// Package index imports imagery layer catalogs: remote geojson imagery
// indexes (ELI / JOSM format) and local custom layer yaml files.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"

	"github.com/osmedit/tilesource/pkg/model"
	"github.com/osmedit/tilesource/pkg/storage"
)

// Update downloads an imagery index document and imports it under the tag,
// replacing whatever was imported under that tag before. The document is
// parsed before anything is deleted, so a broken download leaves the
// existing layers untouched.
func Update(ctx context.Context, fetcher model.Fetcher, db *storage.Database, url, tag string, logger *slog.Logger) error {
	body, err := fetcher.Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("fetching imagery index: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return fmt.Errorf("parsing imagery index: %w", err)
	}
	if err := db.DeleteSource(tag); err != nil {
		return err
	}
	if err := db.AddSource(tag); err != nil {
		return err
	}
	return importFeatures(db, tag, fc, logger)
}

// Import parses a geojson feature collection of imagery configs and adds
// each usable one to the database. A feature that cannot be translated is
// logged and skipped, it never aborts the rest of the import.
func Import(db *storage.Database, tag string, data []byte, logger *slog.Logger) error {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("parsing imagery index: %w", err)
	}
	return importFeatures(db, tag, fc, logger)
}

func importFeatures(db *storage.Database, tag string, fc *geojson.FeatureCollection, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	imported := 0
	for _, f := range fc.Features {
		def, err := FeatureToDef(f)
		if err != nil {
			logger.Warn("imagery config skipped", slog.Any("error", err))
			continue
		}
		if err := db.AddLayer(tag, def); err != nil {
			return err
		}
		imported++
	}
	logger.Info("imagery index imported", "source", tag, "layers", imported)
	return db.TouchSource(tag)
}

// FeatureToDef translates one imagery index feature into a layer
// definition.
func FeatureToDef(f *geojson.Feature) (*model.SourceDef, error) {
	props := f.Properties
	name := props.MustString("name", "")
	url := props.MustString("url", "")
	if name == "" || url == "" {
		return nil, fmt.Errorf("feature without name or url (id %q)", props.MustString("id", ""))
	}

	def := &model.SourceDef{
		ID:               props.MustString("id", ""),
		Name:             name,
		URL:              url,
		Kind:             model.Kind(props.MustString("type", string(model.KindTMS))),
		Category:         model.Category(props.MustString("category", "")),
		Overlay:          props.MustBool("overlay", false),
		DefaultLayer:     props.MustBool("default", false),
		MinZoom:          props.MustInt("min_zoom", 0),
		MaxZoom:          props.MustInt("max_zoom", 0),
		Icon:             props.MustString("icon", ""),
		Description:      props.MustString("description", ""),
		PrivacyPolicyURL: props.MustString("privacy_policy_url", ""),
		TermsOfUseURL:    props.MustString("license_url", ""),
	}
	if props.MustBool("best", false) {
		def.Preference = model.PreferenceBest
	}

	if s := props.MustString("start_date", ""); s != "" {
		if t, err := ParseDate(s, false); err == nil {
			def.StartDate = t
		}
	}
	if s := props.MustString("end_date", ""); s != "" {
		if t, err := ParseDate(s, true); err == nil {
			def.EndDate = t
		}
	}

	provider := providerDef(props)
	coverages := coverageDefs(f.Geometry, def.MinZoom, def.MaxZoom)
	if provider != nil || len(coverages) > 0 {
		if provider == nil {
			provider = &model.ProviderDef{}
		}
		provider.Coverages = coverages
		def.Providers = []model.ProviderDef{*provider}
	}

	if header, ok := props["no_tile_header"].(map[string]any); ok {
		for k, v := range header {
			def.NoTileHeader = k
			if values, ok := v.([]any); ok {
				for _, vv := range values {
					if s, ok := vv.(string); ok {
						def.NoTileValues = append(def.NoTileValues, s)
					}
				}
			}
			break // a single header is supported
		}
	}
	return def, nil
}

func providerDef(props geojson.Properties) *model.ProviderDef {
	attribution, ok := props["attribution"].(map[string]any)
	if !ok {
		return nil
	}
	p := &model.ProviderDef{}
	if text, ok := attribution["text"].(string); ok {
		p.Attribution = text
	}
	if u, ok := attribution["url"].(string); ok {
		p.AttributionURL = u
	}
	if p.Attribution == "" && p.AttributionURL == "" {
		return nil
	}
	return p
}

// coverageDefs derives one coverage area per polygon of the feature
// geometry. The zoom range of the layer applies to every area.
func coverageDefs(g orb.Geometry, minZoom, maxZoom int) []model.CoverageDef {
	if g == nil {
		return nil
	}
	if maxZoom == 0 {
		maxZoom = model.DefaultMaxZoom
	}
	var bounds []orb.Bound
	switch geom := g.(type) {
	case orb.Polygon:
		bounds = append(bounds, geom.Bound())
	case orb.MultiPolygon:
		for _, p := range geom {
			bounds = append(bounds, p.Bound())
		}
	default:
		bounds = append(bounds, g.Bound())
	}
	defs := make([]model.CoverageDef, 0, len(bounds))
	for _, b := range bounds {
		box := [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
		defs = append(defs, model.CoverageDef{
			MinZoom: minZoom,
			MaxZoom: maxZoom,
			BBox:    &box,
		})
	}
	return defs
}

// SyncCustomFile re-imports the custom layer yaml file if it changed since
// the last import. A missing file is not an error.
func SyncCustomFile(db *storage.Database, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	st, err := os.Stat(path)
	if err != nil {
		logger.Info("no custom layer file", "path", path)
		return nil
	}
	last, err := db.SourceUpdated(model.SourceCustom)
	if err != nil {
		return err
	}
	if last != 0 && st.ModTime().UnixMilli() <= last {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var defs []*model.SourceDef
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := db.DeleteSource(model.SourceCustom); err != nil {
		return err
	}
	if err := db.AddSource(model.SourceCustom); err != nil {
		return err
	}
	for _, def := range defs {
		if err := db.AddLayer(model.SourceCustom, def); err != nil {
			return err
		}
	}
	logger.Info("custom layers imported", "path", path, "layers", len(defs))
	return db.TouchSource(model.SourceCustom)
}
