package storage

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/osmedit/tilesource/pkg/model"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEnsureBuiltins(t *testing.T) {
	db := testDB(t)
	if err := db.EnsureBuiltins(); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}

	for _, id := range []string{model.LayerNone, model.LayerNoOverlay, model.LayerMapnik} {
		def, err := db.LoadDef(id)
		if err != nil {
			t.Fatalf("LoadDef(%s): %v", id, err)
		}
		if def == nil {
			t.Fatalf("LoadDef(%s) = nil, want a builtin", id)
		}
	}

	// a user edit survives re-seeding
	def, err := db.LoadDef(model.LayerMapnik)
	if err != nil {
		t.Fatalf("LoadDef: %v", err)
	}
	def.Name = "edited"
	if err := db.UpdateLayer(def); err != nil {
		t.Fatalf("UpdateLayer: %v", err)
	}
	if err := db.EnsureBuiltins(); err != nil {
		t.Fatalf("second EnsureBuiltins: %v", err)
	}
	def, err = db.LoadDef(model.LayerMapnik)
	if err != nil {
		t.Fatalf("LoadDef: %v", err)
	}
	if def.Name != "edited" {
		t.Errorf("Name = %q, builtin seeding overwrote the edit", def.Name)
	}
}

func TestAddLayerRoundTrip(t *testing.T) {
	db := testDB(t)

	in := &model.SourceDef{
		ID:           "AERIAL",
		Name:         "Aerial Photos",
		URL:          "https://img.example.com/{zoom}/{x}/{y}.jpg",
		Kind:         model.KindTMS,
		Category:     model.CategoryPhoto,
		MinZoom:      2,
		MaxZoom:      20,
		MaxOverZoom:  2,
		TileWidth:    512,
		TileHeight:   512,
		Preference:   model.PreferenceBest,
		StartDate:    1262304000000,
		EndDate:      1672531199999,
		NoTileHeader: "X-No-Tile",
		NoTileValues: []string{"true", "1"},
		Description:  "test layer",
		Providers: []model.ProviderDef{{
			Attribution:    "© Photo Corp",
			AttributionURL: "https://photo.example.com",
			Coverages: []model.CoverageDef{
				{MinZoom: 2, MaxZoom: 20, BBox: &[4]float64{5, 45, 15, 55}},
				{MinZoom: 0, MaxZoom: 10},
			},
		}},
	}
	if err := db.AddLayer(model.SourceJOSMImagery, in); err != nil {
		t.Fatalf("AddLayer: %v", err)
	}

	out, err := db.LoadDef("AERIAL")
	if err != nil {
		t.Fatalf("LoadDef: %v", err)
	}
	if out == nil {
		t.Fatal("LoadDef = nil")
	}

	want := *in
	want.Source = model.SourceJOSMImagery
	if diff := cmp.Diff(&want, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestAddLayerReplace(t *testing.T) {
	db := testDB(t)

	def := &model.SourceDef{ID: "L", Name: "v1", URL: "https://a/{z}/{x}/{y}.png"}
	if err := db.AddLayer(model.SourceELI, def); err != nil {
		t.Fatalf("AddLayer: %v", err)
	}
	def.Name = "v2"
	if err := db.AddLayer(model.SourceELI, def); err != nil {
		t.Fatalf("AddLayer replace: %v", err)
	}

	out, err := db.LoadDef("L")
	if err != nil {
		t.Fatalf("LoadDef: %v", err)
	}
	if out.Name != "v2" {
		t.Errorf("Name = %q, want v2", out.Name)
	}

	defs, err := db.LoadDefs(false)
	if err != nil {
		t.Fatalf("LoadDefs: %v", err)
	}
	if len(defs) != 1 {
		t.Errorf("LoadDefs = %d entries, want 1", len(defs))
	}
}

func TestDeleteSource(t *testing.T) {
	db := testDB(t)

	eli := &model.SourceDef{
		ID: "E", Name: "eli layer", URL: "https://e/{z}/{x}/{y}.png",
		Providers: []model.ProviderDef{{
			Coverages: []model.CoverageDef{{MaxZoom: 18, BBox: &[4]float64{0, 0, 1, 1}}},
		}},
	}
	manual := &model.SourceDef{ID: "M", Name: "manual layer", URL: "https://m/{z}/{x}/{y}.png"}
	if err := db.AddLayer(model.SourceELI, eli); err != nil {
		t.Fatalf("AddLayer: %v", err)
	}
	if err := db.AddLayer(model.SourceManual, manual); err != nil {
		t.Fatalf("AddLayer: %v", err)
	}

	if err := db.DeleteSource(model.SourceELI); err != nil {
		t.Fatalf("DeleteSource: %v", err)
	}

	if def, _ := db.LoadDef("E"); def != nil {
		t.Error("eli layer survived DeleteSource")
	}
	if def, _ := db.LoadDef("M"); def == nil {
		t.Error("manual layer removed by DeleteSource of another tag")
	}
}

func TestSourceTimestamps(t *testing.T) {
	db := testDB(t)

	ts, err := db.SourceUpdated("nosuch")
	if err != nil {
		t.Fatalf("SourceUpdated: %v", err)
	}
	if ts != 0 {
		t.Errorf("SourceUpdated(nosuch) = %d, want 0", ts)
	}

	if err := db.TouchSource(model.SourceELI); err != nil {
		t.Fatalf("TouchSource: %v", err)
	}
	ts, err = db.SourceUpdated(model.SourceELI)
	if err != nil {
		t.Fatalf("SourceUpdated: %v", err)
	}
	if ts == 0 {
		t.Error("SourceUpdated = 0 after TouchSource")
	}
}

func TestAPIKeys(t *testing.T) {
	db := testDB(t)

	if _, ok := db.APIKey("L"); ok {
		t.Error("APIKey on empty table reported a key")
	}
	if err := db.SetAPIKey("L", "sekrit"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}
	key, ok := db.APIKey("L")
	if !ok || key != "sekrit" {
		t.Errorf("APIKey = %q, %v", key, ok)
	}
	if err := db.SetAPIKey("L", "rotated"); err != nil {
		t.Fatalf("SetAPIKey update: %v", err)
	}
	if key, _ := db.APIKey("L"); key != "rotated" {
		t.Errorf("APIKey after rotation = %q", key)
	}
}

func TestCatalogLoadAll(t *testing.T) {
	db := testDB(t)
	if err := db.EnsureBuiltins(); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}
	if err := db.AddLayer(model.SourceManual, &model.SourceDef{
		ID: "EXTRA", Name: "extra", URL: "https://x/{z}/{x}/{y}.png",
	}); err != nil {
		t.Fatalf("AddLayer: %v", err)
	}
	if err := db.AddLayer(model.SourceManual, &model.SourceDef{
		ID: "OV", Name: "ov", URL: "https://o/{z}/{x}/{y}.png", Overlay: true,
	}); err != nil {
		t.Fatalf("AddLayer: %v", err)
	}

	cat := NewCatalog(db, model.Config{})

	background, overlay, err := cat.LoadAll(false)
	if err != nil {
		t.Fatalf("LoadAll(false): %v", err)
	}
	if len(background) != 2 || background[model.LayerNone] == nil || background[model.LayerMapnik] == nil {
		t.Errorf("light background = %v, want NONE and MAPNIK", keysOf(background))
	}
	if len(overlay) != 1 || overlay[model.LayerNoOverlay] == nil {
		t.Errorf("light overlay = %v, want NOOVERLAY", keysOf(overlay))
	}

	background, overlay, err = cat.LoadAll(true)
	if err != nil {
		t.Fatalf("LoadAll(true): %v", err)
	}
	if len(background) != 3 {
		t.Errorf("full background = %v, want 3 layers", keysOf(background))
	}
	if len(overlay) != 2 {
		t.Errorf("full overlay = %v, want 2 layers", keysOf(overlay))
	}
}

func TestCatalogSkipsKeylessLayers(t *testing.T) {
	db := testDB(t)
	if err := db.AddLayer(model.SourceManual, &model.SourceDef{
		ID: "KEYED", Name: "keyed", URL: "https://x/{z}/{x}/{y}.png?key={apikey}",
	}); err != nil {
		t.Fatalf("AddLayer: %v", err)
	}
	if err := db.AddLayer(model.SourceManual, &model.SourceDef{
		ID: "OPEN", Name: "open", URL: "https://o/{z}/{x}/{y}.png",
	}); err != nil {
		t.Fatalf("AddLayer: %v", err)
	}

	cat := NewCatalog(db, model.Config{})
	background, _, err := cat.LoadAll(true)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if background["KEYED"] != nil {
		t.Error("layer without an api key made it into the catalog")
	}
	if background["OPEN"] == nil {
		t.Error("open layer missing from the catalog")
	}

	// the definition stays in the database for when a key shows up
	if def, _ := db.LoadDef("KEYED"); def == nil {
		t.Error("keyed definition dropped from the database")
	}
	if err := db.SetAPIKey("KEYED", "now-present"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}
	s, err := cat.LoadByID("KEYED")
	if err != nil {
		t.Fatalf("LoadByID after key: %v", err)
	}
	if s == nil {
		t.Fatal("LoadByID = nil after the key was stored")
	}
}

func keysOf(m map[string]*model.TileSource) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
