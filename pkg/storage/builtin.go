package storage

import "github.com/osmedit/tilesource/pkg/model"

const builtinTag = "builtin"

// builtinDefs are the layers that must exist for the registry to work: the
// two "none" sentinels and the default openstreetmap layer.
var builtinDefs = []model.SourceDef{
	{
		ID:      model.LayerNone,
		Name:    "None",
		URL:     "",
		Kind:    model.KindTMS,
		MaxZoom: model.DefaultMaxZoom,
	},
	{
		ID:      model.LayerNoOverlay,
		Name:    "None",
		URL:     "",
		Kind:    model.KindTMS,
		Overlay: true,
		MaxZoom: model.DefaultMaxZoom,
	},
	{
		ID:           model.LayerMapnik,
		Name:         "OpenStreetMap (Standard)",
		URL:          "https://{switch:a,b,c}.tile.openstreetmap.org/{zoom}/{x}/{y}.png",
		Kind:         model.KindTMS,
		Category:     model.CategoryOSMBasedMap,
		DefaultLayer: true,
		MaxZoom:      19,
		Preference:   model.PreferenceDefault,
		Providers: []model.ProviderDef{{
			Attribution:    "© OpenStreetMap contributors",
			AttributionURL: "https://www.openstreetmap.org/copyright",
		}},
	},
}

// EnsureBuiltins seeds the guaranteed layers, keeping any existing entries.
func (d *Database) EnsureBuiltins() error {
	if err := d.AddSource(builtinTag); err != nil {
		return err
	}
	for i := range builtinDefs {
		def := builtinDefs[i]
		existing, err := d.LoadDef(def.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := d.AddLayer(builtinTag, &def); err != nil {
			return err
		}
	}
	return nil
}
