package model

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/osmedit/tilesource/pkg/geo"
)

// Fetcher retrieves a document over http, with the client's own timeout
// configuration. Used for provider metadata, logos and imagery indexes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// KeyStore resolves api keys for layers that carry an {apikey} placeholder.
type KeyStore interface {
	APIKey(layerID string) (string, bool)
}

// Config carries the collaborators a TileSource needs during construction
// and for deferred metadata and logo fetches.
type Config struct {
	Fetcher Fetcher
	Keys    KeyStore
	Logger  *slog.Logger
	// Async defers the bing metadata fetch to a goroutine. Until it
	// completes the source answers all zoom and geometry queries with
	// ErrMetadataNotLoaded.
	Async bool
	// Culture replaces the {culture} placeholder in metadata urls.
	Culture string
}

const (
	switchStart   = "{switch:"
	wmsAxisXY     = "XY"
	wmsAxisYX     = "YX"
	iconPNGPrefix = "data:image/png;base64"
)

var (
	nonWordRe = regexp.MustCompile(`[\W_]`)
	apikeyRe  = regexp.MustCompile(`(?i)\{apikey\}`)
)

// TileSource describes one map or imagery layer: identity, url template,
// zoom bounds, coverage providers, validity window and per zoom offsets.
// Instances are built once from a SourceDef and cached in the registry for
// the process lifetime.
type TileSource struct {
	fetcher Fetcher
	keys    KeyStore
	logger  *slog.Logger
	culture string

	metadataLoaded atomic.Bool

	id           string
	name         string
	kind         Kind
	category     Category
	source       string
	tileURL      string
	originalURL  string
	imageExt     string
	touURI       string
	overlay      bool
	defaultLayer bool
	readOnly     bool

	zoomMin     int
	zoomMax     int
	maxOverZoom int
	tileWidth   int
	tileHeight  int

	proj         string
	wmsAxisOrder string

	preference int
	startDate  int64
	endDate    int64

	logoURL   string
	logoBytes []byte
	logoMu    sync.Mutex
	logo      []byte

	noTileHeader string
	noTileValues []string
	noTileTile   []byte

	description      string
	privacyPolicyURL string
	imageryOffsetID  string

	providers []*Provider
	tileType  TileType
	offsets   *OffsetStore

	// mu guards the url scanner scratch buffers, the subdomain cursor
	// and the mutable zoom ceiling. BuildURL serializes on it, so the
	// scratch buffers are reused without reallocation.
	mu         sync.Mutex
	subdomains []string
	subIdx     int
	buf        []byte
	param      []byte
	quadKey    []byte
	boxBuf     []byte
}

// New builds a TileSource from a persisted definition. Construction never
// fails on a malformed url template, the template is kept best effort. The
// only hard failure is a required api key that cannot be resolved, which
// keeps the layer out of the live registry.
func New(cfg Config, def *SourceDef) (*TileSource, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	culture := cfg.Culture
	if culture == "" {
		culture = "en-us"
	}

	name := def.Name
	if name == "" {
		// parse error or other fatal issue in the config
		name = "INVALID"
	}
	id := def.ID
	if id == "" {
		id = NameToID(name)
	}

	kind := def.Kind
	if kind == "" {
		kind = KindTMS
	}
	category := def.Category
	if category == "" {
		category = CategoryOther
	}

	zoomMin := def.MinZoom
	zoomMax := def.MaxZoom
	if zoomMax == 0 {
		if kind == KindWMS {
			zoomMax = DefaultWMSMaxZoom
		} else {
			zoomMax = DefaultMaxZoom
		}
	}
	if zoomMax < zoomMin {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidZoomRange, zoomMin, zoomMax)
	}

	maxOverZoom := def.MaxOverZoom
	if maxOverZoom == 0 {
		maxOverZoom = DefaultMaxOverZoom
	}
	tileWidth := def.TileWidth
	if tileWidth == 0 {
		tileWidth = DefaultTileSize
	}
	tileHeight := def.TileHeight
	if tileHeight == 0 {
		tileHeight = DefaultTileSize
	}

	endDate := def.EndDate
	if endDate == 0 {
		endDate = int64(^uint64(0) >> 1) // open ended
	}

	s := &TileSource{
		fetcher:          cfg.Fetcher,
		keys:             cfg.Keys,
		logger:           logger.With("layer", id),
		culture:          culture,
		id:               strings.ToUpper(id),
		name:             name,
		kind:             kind,
		category:         category,
		source:           def.Source,
		tileURL:          def.URL,
		originalURL:      def.URL,
		touURI:           def.TermsOfUseURL,
		overlay:          def.Overlay,
		defaultLayer:     def.DefaultLayer,
		zoomMin:          zoomMin,
		zoomMax:          zoomMax,
		maxOverZoom:      maxOverZoom,
		tileWidth:        tileWidth,
		tileHeight:       tileHeight,
		proj:             def.Proj,
		preference:       def.Preference,
		startDate:        def.StartDate,
		endDate:          endDate,
		noTileHeader:     def.NoTileHeader,
		noTileValues:     def.NoTileValues,
		description:      def.Description,
		privacyPolicyURL: def.PrivacyPolicyURL,
		offsets:          NewOffsetStore(zoomMin, zoomMax),
		buf:              make([]byte, 0, 128),
	}
	s.metadataLoaded.Store(true)

	for i := range def.Providers {
		s.providers = append(s.providers, providerFromDef(&def.Providers[i]))
	}

	if strings.HasPrefix(s.originalURL, "file://") {
		// local mbtiles, nothing to resolve
		s.readOnly = true
	}

	// extract switch values before any other url parsing, the ":" and
	// "," inside the braces would trip it up
	s.extractSwitchValues()

	var urlPath string
	if parsed, err := url.Parse(s.tileURL); err == nil {
		urlPath = parsed.Path
		if ext := pathExtension(urlPath); ext != "" && s.imageExt == "" {
			s.imageExt = ext
		}
	} else {
		s.logger.Error("url parsing failed", "url", s.tileURL, slog.Any("error", err))
	}
	s.tileType = TileBitmap
	if strings.HasSuffix(urlPath, ".mvt") || strings.HasSuffix(urlPath, ".pbf") {
		s.tileType = TileMVT
	}

	if s.proj != "" && strings.Contains(s.tileURL, "image/jpeg") { // wms heuristic
		s.imageExt = "jpg"
	}

	s.adoptLogo(def)

	if err := s.replaceAPIKey(); err != nil {
		return nil, err
	}

	switch kind {
	case KindBing:
		s.initBing(cfg.Async)
	case KindScanex:
		s.initScanex()
	}

	return s, nil
}

// NameToID munges a layer name into an id by stripping everything that is
// not a word character and uppercasing.
func NameToID(name string) string {
	return strings.ToUpper(nonWordRe.ReplaceAllString(name, ""))
}

func providerFromDef(def *ProviderDef) *Provider {
	p := NewProvider(def.Attribution, def.AttributionURL)
	for _, c := range def.Coverages {
		var box *geo.BoundingBox
		if c.BBox != nil {
			b := geo.NewBoundingBox(c.BBox[0], c.BBox[1], c.BBox[2], c.BBox[3])
			box = &b
		}
		p.AddCoverageArea(NewCoverageArea(c.MinZoom, c.MaxZoom, box))
	}
	return p
}

func (s *TileSource) extractSwitchValues() {
	start := strings.Index(s.tileURL, switchStart)
	if start < 0 {
		return
	}
	end := strings.IndexByte(s.tileURL[start:], '}')
	if end < 0 {
		return
	}
	end += start
	s.subdomains = append(s.subdomains, strings.Split(s.tileURL[start+len(switchStart):end], ",")...)
	s.tileURL = s.tileURL[:start] + "{subdomain}" + s.tileURL[end+1:]
}

func pathExtension(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return strings.TrimPrefix(p[i:], ".")
	}
	return ""
}

func (s *TileSource) adoptLogo(def *SourceDef) {
	if def.Icon != "" {
		// format "data:image/png;base64,iV..."
		parts := strings.SplitN(def.Icon, ",", 2)
		if len(parts) == 2 && parts[0] == iconPNGPrefix {
			data, err := base64.StdEncoding.DecodeString(parts[1])
			if err != nil {
				s.logger.Debug("icon decode failed", slog.Any("error", err))
				return
			}
			s.logoBytes = data
		} else if strings.HasPrefix(def.Icon, "http") {
			s.logoURL = def.Icon
		}
		return
	}
	if def.LogoURL != "" {
		s.logoURL = def.LogoURL
	} else if def.LogoBytes != nil {
		s.logoBytes = def.LogoBytes
	}
}

// replaceAPIKey substitutes an {apikey} placeholder from the key store.
// A required key that cannot be found makes the layer unusable; the entry
// stays in the database but is kept out of the in memory registry.
func (s *TileSource) replaceAPIKey() error {
	if !apikeyRe.MatchString(s.tileURL) {
		return nil
	}
	if s.keys != nil {
		if key, ok := s.keys.APIKey(s.id); ok && key != "" {
			s.tileURL = apikeyRe.ReplaceAllLiteralString(s.tileURL, key)
			return nil
		}
	}
	return fmt.Errorf("%w %s", ErrMissingAPIKey, s.id)
}

func (s *TileSource) initBing(async bool) {
	s.metadataLoaded.Store(false)
	metaURL := s.tileURL
	if async {
		go s.loadMeta(context.Background(), metaURL)
	} else {
		s.loadMeta(context.Background(), metaURL)
	}
}

// initScanex rewrites the template to the fixed gis-lab endpoint, the layer
// definition only carries the layer name.
func (s *TileSource) initScanex() {
	s.tileURL = "http://irs.gis-lab.info/?layers=" + strings.ToLower(s.tileURL) +
		"&request=GetTile&z={zoom}&x={x}&y={y}"
	s.imageExt = "jpg"
}

func (s *TileSource) checkMetadata() error {
	if !s.metadataLoaded.Load() {
		return fmt.Errorf("%w: %s", ErrMetadataNotLoaded, s.id)
	}
	return nil
}

// MetadataLoaded reports whether the layer is ready for zoom and geometry
// queries.
func (s *TileSource) MetadataLoaded() bool {
	return s.metadataLoaded.Load()
}

func (s *TileSource) ID() string { return s.id }

func (s *TileSource) Name() string { return s.name }

func (s *TileSource) Kind() Kind { return s.kind }

func (s *TileSource) Category() Category { return s.category }

func (s *TileSource) TileType() TileType { return s.tileType }

func (s *TileSource) IsOverlay() bool { return s.overlay }

func (s *TileSource) IsDefaultLayer() bool { return s.defaultLayer }

// IsReadOnly reports whether the layer is backed by a local file.
func (s *TileSource) IsReadOnly() bool { return s.readOnly }

func (s *TileSource) Preference() int { return s.preference }

func (s *TileSource) StartDate() int64 { return s.startDate }

func (s *TileSource) EndDate() int64 { return s.endDate }

func (s *TileSource) Source() string { return s.source }

func (s *TileSource) Proj() string { return s.proj }

func (s *TileSource) TermsOfUseURL() string { return s.touURI }

func (s *TileSource) Description() string { return s.description }

func (s *TileSource) PrivacyPolicyURL() string { return s.privacyPolicyURL }

func (s *TileSource) NoTileHeader() string { return s.noTileHeader }

func (s *TileSource) NoTileValues() []string { return s.noTileValues }

func (s *TileSource) NoTileTile() []byte { return s.noTileTile }

// SetNoTileTile installs the literal fallback tile image.
func (s *TileSource) SetNoTileTile(data []byte) { s.noTileTile = data }

func (s *TileSource) MaxOverZoom() int { return s.maxOverZoom }

// TileURL returns the processed template, switch domains expanded and api
// key substituted.
func (s *TileSource) TileURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tileURL
}

// OriginalURL returns the template as configured, used for re-deriving
// projection and axis order heuristics.
func (s *TileSource) OriginalURL() string { return s.originalURL }

func (s *TileSource) ImageExtension() string { return s.imageExt }

func (s *TileSource) Providers() []*Provider { return s.providers }

// SetProviders replaces the provider list, used by the bing metadata loader.
func (s *TileSource) SetProviders(providers []*Provider) { s.providers = providers }

func (s *TileSource) MinZoom() int { return s.zoomMin }

func (s *TileSource) MaxZoom() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoomMax
}

// SetMaxZoom raises or lowers the zoom ceiling, growing the offset store if
// needed so existing offsets keep their slots.
func (s *TileSource) SetMaxZoom(zoomMax int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets.Resize(zoomMax)
	s.zoomMax = zoomMax
}

func (s *TileSource) SetMinZoom(zoomMin int) { s.zoomMin = zoomMin }

func (s *TileSource) TileWidth() (int, error) {
	if err := s.checkMetadata(); err != nil {
		return 0, err
	}
	return s.tileWidth, nil
}

func (s *TileSource) TileHeight() (int, error) {
	if err := s.checkMetadata(); err != nil {
		return 0, err
	}
	return s.tileHeight, nil
}

// Covers reports whether the bounding box is covered by this source. No
// attached providers means no coverage information, which counts as covered.
func (s *TileSource) Covers(box geo.BoundingBox) (bool, error) {
	if err := s.checkMetadata(); err != nil {
		return false, err
	}
	if len(s.providers) == 0 {
		return true, nil
	}
	for _, p := range s.providers {
		if p.CoversBox(box) {
			return true, nil
		}
	}
	return false, nil
}

// MaxZoomAt returns the location dependent max zoom, -1 if the source has no
// providers.
func (s *TileSource) MaxZoomAt(box geo.BoundingBox) (int, error) {
	if err := s.checkMetadata(); err != nil {
		return 0, err
	}
	if len(s.providers) == 0 {
		return -1, nil
	}
	maxZoom := 0
	for _, p := range s.providers {
		if m := p.MaxZoom(box); m > maxZoom {
			maxZoom = m
		}
	}
	return maxZoom, nil
}

// Attributions returns the attribution strings of the providers covering
// the area. The zoom is clamped to the configured max first, overzoom
// display levels never change attribution.
func (s *TileSource) Attributions(zoom int, box geo.BoundingBox) ([]string, error) {
	if err := s.checkMetadata(); err != nil {
		return nil, err
	}
	zoom = min(zoom, s.MaxZoom())
	var ret []string
	for _, p := range s.providers {
		if p.Attribution() != "" && p.Covers(zoom, box) {
			ret = append(ret, p.Attribution())
		}
	}
	return ret, nil
}

// Attribution returns the attribution of the first provider, the common
// single provider case.
func (s *TileSource) Attribution() string {
	if len(s.providers) > 0 {
		return s.providers[0].Attribution()
	}
	return ""
}

// AttributionURL returns the attribution url of the first provider, falling
// back to the terms of use url.
func (s *TileSource) AttributionURL() string {
	if len(s.providers) > 0 {
		if u := s.providers[0].AttributionURL(); u != "" {
			return u
		}
	}
	return s.touURI
}

// OverallCoverage returns a box covering all coverage areas of all
// providers, or the maximal mercator extent if there is no coverage
// information.
func (s *TileSource) OverallCoverage() geo.BoundingBox {
	var box *geo.BoundingBox
	for _, p := range s.providers {
		for _, a := range p.CoverageAreas() {
			if a.Box() == nil {
				continue
			}
			if box == nil {
				b := *a.Box()
				box = &b
			} else {
				b := box.Union(*a.Box())
				box = &b
			}
		}
	}
	if box == nil {
		return geo.MaxExtent()
	}
	return *box
}

// CoverageAreas returns the coverage areas of the first provider, the common
// single provider case.
func (s *TileSource) CoverageAreas() []CoverageArea {
	if len(s.providers) > 0 {
		return s.providers[0].CoverageAreas()
	}
	return nil
}

// Offset returns the geodetic correction for the zoom level, nil if none.
func (s *TileSource) Offset(zoom int) *Offset {
	return s.offsets.Get(zoom)
}

// SetOffset stores the correction for one zoom level.
func (s *TileSource) SetOffset(zoom int, deltaLon, deltaLat float64) {
	s.offsets.Set(zoom, deltaLon, deltaLat)
}

// SetOffsetRange stores the correction for an inclusive zoom range.
func (s *TileSource) SetOffsetRange(zoomStart, zoomEnd int, deltaLon, deltaLat float64) {
	s.offsets.SetRange(zoomStart, zoomEnd, deltaLon, deltaLat)
}

// SetAllOffsets stores the correction for every zoom level of the layer.
func (s *TileSource) SetAllOffsets(deltaLon, deltaLat float64) {
	s.offsets.SetAll(deltaLon, deltaLat)
}

func (s *TileSource) Offsets() *OffsetStore { return s.offsets }

// Subdomains returns a copy of the rotation queue in its current order.
func (s *TileSource) Subdomains() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subdomains))
	for i := range s.subdomains {
		out = append(out, s.subdomains[(s.subIdx+i)%len(s.subdomains)])
	}
	return out
}

// ImageryOffsetID derives the id used to query the JOSM imagery offset
// database, matching the id generator that database expects.
func (s *TileSource) ImageryOffsetID() string {
	if s.imageryOffsetID != "" {
		return s.imageryOffsetID
	}
	u := s.originalURL
	if u == "" {
		return ""
	}
	if s.id == LayerBing {
		return string(KindBing)
	}
	if strings.Contains(u, "irs.gis-lab.info") {
		return "scanex_irs"
	}
	if strings.EqualFold(s.id, "mapbox") {
		return "mapbox"
	}

	i := strings.Index(u, "://")
	if i < 0 {
		return "invalid_URL"
	}
	u = u[i+3:]

	query := ""
	if i = strings.IndexByte(u, '?'); i > 0 {
		query = u[i:]
		u = u[:i]
	}

	params := map[string]string{}
	if len(query) > 1 {
		for _, p := range strings.Split(query[1:], "&") {
			kv := strings.SplitN(p, "=", 2)
			k := strings.ToLower(kv[0])
			v := ""
			if len(kv) > 1 {
				v = kv[1]
			}
			// skip parameters with variable values and access tokens
			if (strings.IndexByte(v, '{') >= 0 && strings.IndexByte(v, '}') > 0) || k == "access_token" {
				continue
			}
			params[k] = v
		}
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		if sb.Len() > 0 {
			sb.WriteByte('&')
		} else if query != "" {
			sb.WriteByte('?')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}

	u = zoomPathRe.ReplaceAllString(u, "")
	u = placeholderRe.ReplaceAllString(u, "")
	for strings.Contains(u, "..") {
		u = strings.ReplaceAll(u, "..", ".")
	}
	u = strings.TrimPrefix(u, ".")
	s.imageryOffsetID = u + sb.String()
	return s.imageryOffsetID
}

var (
	zoomPathRe    = regexp.MustCompile(`/\{[^}]+\}(?:\.\w+)?`)
	placeholderRe = regexp.MustCompile(`\{[^}]+\}`)
)

func (s *TileSource) String() string {
	return fmt.Sprintf("id: %s name: %s maxZoom: %d url: %s", s.id, s.name, s.MaxZoom(), s.TileURL())
}
