package registry

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/osmedit/tilesource/pkg/geo"
	"github.com/osmedit/tilesource/pkg/model"
)

// fakeStore serves copies of its maps so the registry can mutate them freely.
type fakeStore struct {
	background map[string]*model.TileSource
	overlay    map[string]*model.TileSource
	extra      map[string]*model.TileSource
	loadByID   int
}

func (f *fakeStore) LoadAll(populate bool) (map[string]*model.TileSource, map[string]*model.TileSource, error) {
	bg := map[string]*model.TileSource{}
	ov := map[string]*model.TileSource{}
	for k, v := range f.background {
		bg[k] = v
	}
	for k, v := range f.overlay {
		ov[k] = v
	}
	return bg, ov, nil
}

func (f *fakeStore) LoadByID(id string) (*model.TileSource, error) {
	f.loadByID++
	return f.extra[id], nil
}

func src(t *testing.T, def model.SourceDef) *model.TileSource {
	t.Helper()
	s, err := model.New(model.Config{}, &def)
	if err != nil {
		t.Fatalf("New(%s): %v", def.Name, err)
	}
	return s
}

func noneDef() model.SourceDef {
	return model.SourceDef{
		ID:       model.LayerNone,
		Name:     "None",
		URL:      "",
		Category: model.CategoryOther,
	}
}

func coverageProviders(bbox [4]float64) []model.ProviderDef {
	return []model.ProviderDef{{
		Coverages: []model.CoverageDef{{MinZoom: 0, MaxZoom: 20, BBox: &bbox}},
	}}
}

func newTestRegistry(t *testing.T, store *fakeStore) *Registry {
	t.Helper()
	r := New(store, nil)
	if err := r.Initialize(true); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return r
}

func TestResolveEmptyID(t *testing.T) {
	none := src(t, noneDef())
	r := newTestRegistry(t, &fakeStore{
		background: map[string]*model.TileSource{model.LayerNone: none},
	})

	if got := r.Resolve(""); got != none {
		t.Errorf("Resolve(\"\") = %v, want the NONE layer", got)
	}
}

func TestResolveStoreFallback(t *testing.T) {
	extra := src(t, model.SourceDef{Name: "extra", URL: "https://x/{z}/{x}/{y}.png"})
	store := &fakeStore{
		background: map[string]*model.TileSource{},
		extra:      map[string]*model.TileSource{"EXTRA": extra},
	}
	r := newTestRegistry(t, store)

	if got := r.Resolve("EXTRA"); got != extra {
		t.Fatalf("Resolve(EXTRA) = %v, want the store layer", got)
	}
	// second resolve must come from the cache
	if got := r.Resolve("EXTRA"); got != extra {
		t.Fatalf("second Resolve(EXTRA) = %v", got)
	}
	if store.loadByID != 1 {
		t.Errorf("store queried %d times, want 1", store.loadByID)
	}

	if got := r.Resolve("NOSUCH"); got != nil {
		t.Errorf("Resolve(NOSUCH) = %v, want nil", got)
	}
}

func TestResolveOverlayCached(t *testing.T) {
	ov := src(t, model.SourceDef{Name: "hike", URL: "https://o/{z}/{x}/{y}.png", Overlay: true})
	store := &fakeStore{
		background: map[string]*model.TileSource{},
		extra:      map[string]*model.TileSource{"HIKE": ov},
	}
	r := newTestRegistry(t, store)

	if got := r.Resolve("HIKE"); got != ov {
		t.Fatalf("Resolve(HIKE) = %v", got)
	}
	if got := r.OverlayIDs(nil, false, "", ""); len(got) != 1 || got[0] != "HIKE" {
		t.Errorf("OverlayIDs = %v, want [HIKE]", got)
	}
}

func TestInitializeIdempotent(t *testing.T) {
	a := src(t, model.SourceDef{Name: "a", URL: "https://a/{z}/{x}/{y}.png"})
	store := &fakeStore{background: map[string]*model.TileSource{"A": a}}
	r := newTestRegistry(t, store)

	// mutate the store, a second Initialize must not pick it up
	store.background["B"] = src(t, model.SourceDef{Name: "b", URL: "https://b/{z}/{x}/{y}.png"})
	if err := r.Initialize(true); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := r.BackgroundIDs(nil, false, "", ""); len(got) != 1 {
		t.Errorf("BackgroundIDs = %v, want just A", got)
	}

	r.Reset()
	if err := r.Initialize(true); err != nil {
		t.Fatalf("Initialize after Reset: %v", err)
	}
	if got := r.BackgroundIDs(nil, false, "", ""); len(got) != 2 {
		t.Errorf("BackgroundIDs after reset = %v, want A and B", got)
	}
}

func TestSortOrder(t *testing.T) {
	a := src(t, model.SourceDef{Name: "a", URL: "https://a/{z}/{x}/{y}.png", Preference: model.PreferenceBest})
	b := src(t, model.SourceDef{Name: "b", URL: "https://b/{z}/{x}/{y}.png", Preference: 5, DefaultLayer: true})
	c := src(t, model.SourceDef{Name: "c", URL: "https://c/{z}/{x}/{y}.png", Preference: 5})
	none := src(t, noneDef())

	r := newTestRegistry(t, &fakeStore{background: map[string]*model.TileSource{
		"C": c, model.LayerNone: none, "B": b, "A": a,
	}})

	got := r.BackgroundIDs(nil, false, "", "")
	want := []string{model.LayerNone, "A", "B", "C"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BackgroundIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestSortSmallerCoverageFirst(t *testing.T) {
	city := src(t, model.SourceDef{
		Name: "city", URL: "https://city/{z}/{x}/{y}.png",
		Providers: coverageProviders([4]float64{16, 48, 17, 49}),
	})
	country := src(t, model.SourceDef{
		Name: "country", URL: "https://country/{z}/{x}/{y}.png",
		Providers: coverageProviders([4]float64{-10, 35, 30, 60}),
	})
	world := src(t, model.SourceDef{Name: "world", URL: "https://world/{z}/{x}/{y}.png"})

	r := newTestRegistry(t, &fakeStore{background: map[string]*model.TileSource{
		"WORLD": world, "COUNTRY": country, "CITY": city,
	}})

	got := r.BackgroundIDs(nil, false, "", "")
	want := []string{"CITY", "COUNTRY", "WORLD"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BackgroundIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestSortNameTieBreak(t *testing.T) {
	zulu := src(t, model.SourceDef{Name: "Zulu", URL: "https://z/{z}/{x}/{y}.png"})
	alpha := src(t, model.SourceDef{Name: "alpha", URL: "https://a/{z}/{x}/{y}.png"})

	r := newTestRegistry(t, &fakeStore{background: map[string]*model.TileSource{
		"ZULU": zulu, "ALPHA": alpha,
	}})

	got := r.BackgroundIDs(nil, false, "", "")
	want := []string{"ALPHA", "ZULU"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BackgroundIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestSortFullTieOrdersByID(t *testing.T) {
	defs := map[string]*model.TileSource{}
	for _, id := range []string{"DUPC", "DUPA", "DUPB"} {
		defs[id] = src(t, model.SourceDef{
			ID: id, Name: "duplicate", URL: "https://d/{z}/{x}/{y}.png",
		})
	}
	r := newTestRegistry(t, &fakeStore{background: defs})

	want := []string{"DUPA", "DUPB", "DUPC"}
	for i := 0; i < 10; i++ {
		got := r.BackgroundIDs(nil, false, "", "")
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("BackgroundIDs mismatch on run %d (-want +got):\n%s", i, diff)
		}
	}
}

func TestFilterByBox(t *testing.T) {
	vienna := geo.NewBoundingBox(16.3, 48.1, 16.4, 48.2)

	local := src(t, model.SourceDef{
		Name: "local", URL: "https://l/{z}/{x}/{y}.png",
		Providers: coverageProviders([4]float64{16, 48, 17, 49}),
	})
	elsewhere := src(t, model.SourceDef{
		Name: "elsewhere", URL: "https://e/{z}/{x}/{y}.png",
		Providers: coverageProviders([4]float64{100, 0, 110, 10}),
	})
	world := src(t, model.SourceDef{Name: "world", URL: "https://w/{z}/{x}/{y}.png"})

	r := newTestRegistry(t, &fakeStore{background: map[string]*model.TileSource{
		"LOCAL": local, "ELSEWHERE": elsewhere, "WORLD": world,
	}})

	got := r.BackgroundIDs(&vienna, true, "", "")
	want := []string{"LOCAL", "WORLD"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("filtered BackgroundIDs mismatch (-want +got):\n%s", diff)
	}

	// unfiltered ignores the box
	if got := r.BackgroundIDs(&vienna, false, "", ""); len(got) != 3 {
		t.Errorf("unfiltered BackgroundIDs = %v, want all three", got)
	}
}

func TestFilterDeterministic(t *testing.T) {
	vienna := geo.NewBoundingBox(16.3, 48.1, 16.4, 48.2)

	background := map[string]*model.TileSource{}
	for _, name := range []string{"delta", "alpha", "echo", "bravo", "charlie"} {
		s := src(t, model.SourceDef{Name: name, URL: "https://" + name + "/{z}/{x}/{y}.png"})
		background[s.ID()] = s
	}
	r := newTestRegistry(t, &fakeStore{background: background})

	first := r.BackgroundIDs(&vienna, true, "", "")
	for i := 0; i < 10; i++ {
		if diff := cmp.Diff(first, r.BackgroundIDs(&vienna, true, "", "")); diff != "" {
			t.Fatalf("enumeration not deterministic (-first +now):\n%s", diff)
		}
	}
}

func TestFilterByCategoryAndType(t *testing.T) {
	photo := src(t, model.SourceDef{Name: "photo", URL: "https://p/{z}/{x}/{y}.jpg", Category: model.CategoryPhoto})
	osm := src(t, model.SourceDef{Name: "osm", URL: "https://o/{z}/{x}/{y}.png", Category: model.CategoryOSMBasedMap})
	vector := src(t, model.SourceDef{Name: "vector", URL: "https://v/{z}/{x}/{y}.mvt", Category: model.CategoryOSMBasedMap})

	r := newTestRegistry(t, &fakeStore{background: map[string]*model.TileSource{
		"PHOTO": photo, "OSM": osm, "VECTOR": vector,
	}})

	if got := r.BackgroundIDs(nil, true, model.CategoryPhoto, ""); len(got) != 1 || got[0] != "PHOTO" {
		t.Errorf("category filter = %v, want [PHOTO]", got)
	}
	if got := r.BackgroundIDs(nil, true, "", model.TileMVT); len(got) != 1 || got[0] != "VECTOR" {
		t.Errorf("tile type filter = %v, want [VECTOR]", got)
	}
	if got := r.BackgroundIDs(nil, true, model.CategoryOSMBasedMap, model.TileMVT); len(got) != 1 || got[0] != "VECTOR" {
		t.Errorf("combined filter = %v, want [VECTOR]", got)
	}
}

func TestInternalNeverListed(t *testing.T) {
	internal := src(t, model.SourceDef{Name: "secret", URL: "https://s/{z}/{x}/{y}.png", Category: model.CategoryInternal})
	public := src(t, model.SourceDef{Name: "public", URL: "https://p/{z}/{x}/{y}.png"})

	r := newTestRegistry(t, &fakeStore{background: map[string]*model.TileSource{
		"SECRET": internal, "PUBLIC": public,
	}})

	if got := r.BackgroundIDs(nil, false, "", ""); len(got) != 1 || got[0] != "PUBLIC" {
		t.Errorf("BackgroundIDs = %v, internal layer leaked", got)
	}
	// but direct resolution still works
	if got := r.Resolve("SECRET"); got != internal {
		t.Errorf("Resolve(SECRET) = %v, want the internal layer", got)
	}
}

func TestBlacklist(t *testing.T) {
	blocked := src(t, model.SourceDef{Name: "blocked", URL: "https://blocked.example.com/{z}/{x}/{y}.png"})
	fine := src(t, model.SourceDef{Name: "fine", URL: "https://tiles.example.org/{z}/{x}/{y}.png"})
	badOverlay := src(t, model.SourceDef{Name: "badov", URL: "https://blocked.example.com/ov/{z}/{x}/{y}.png", Overlay: true})

	store := &fakeStore{
		background: map[string]*model.TileSource{"BLOCKED": blocked, "FINE": fine},
		overlay:    map[string]*model.TileSource{"BADOV": badOverlay},
	}
	r := New(store, nil)
	r.SetBlacklist([]string{`blocked\.example\.com`})
	if err := r.Initialize(true); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if got := r.BackgroundIDs(nil, false, "", ""); len(got) != 1 || got[0] != "FINE" {
		t.Errorf("BackgroundIDs = %v, want [FINE]", got)
	}
	if got := r.OverlayIDs(nil, false, "", ""); len(got) != 0 {
		t.Errorf("OverlayIDs = %v, want empty", got)
	}

	// a bad pattern is skipped, the rest still applies
	r.ApplyBlacklist([]string{`[invalid`, `tiles\.example\.org`})
	if got := r.BackgroundIDs(nil, false, "", ""); len(got) != 0 {
		t.Errorf("BackgroundIDs after second blacklist = %v, want empty", got)
	}
}

func TestNames(t *testing.T) {
	tms := src(t, model.SourceDef{Name: "Street Map", URL: "https://t/{z}/{x}/{y}.png"})
	wms := src(t, model.SourceDef{Name: "Ortho", Kind: model.KindWMS, URL: "https://w/?BBOX={bbox}", Proj: model.EPSG3857})

	r := newTestRegistry(t, &fakeStore{background: map[string]*model.TileSource{
		"STREETMAP": tms, "ORTHO": wms,
	}})

	got := r.Names([]string{"STREETMAP", "ORTHO", "MISSING"})
	want := []string{"Street Map", "Ortho [wms]"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}
