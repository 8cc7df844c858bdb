package model

// CoverageDef describes one coverage area in a layer definition. BBox is
// left, bottom, right, top in WGS84 degrees, nil for world coverage.
type CoverageDef struct {
	MinZoom int         `yaml:"minZoom" json:"min_zoom"`
	MaxZoom int         `yaml:"maxZoom" json:"max_zoom"`
	BBox    *[4]float64 `yaml:"bbox,omitempty" json:"bbox,omitempty"`
}

// ProviderDef describes one attribution provider in a layer definition.
type ProviderDef struct {
	Attribution    string        `yaml:"attribution,omitempty" json:"attribution,omitempty"`
	AttributionURL string        `yaml:"attributionUrl,omitempty" json:"attribution_url,omitempty"`
	Coverages      []CoverageDef `yaml:"coverages,omitempty" json:"coverages,omitempty"`
}

// SourceDef is the persisted description of a tile source, as stored in the
// layer database and in custom layer yaml files.
type SourceDef struct {
	ID           string   `yaml:"id,omitempty"`
	Name         string   `yaml:"name"`
	URL          string   `yaml:"url"`
	Kind         Kind     `yaml:"type,omitempty"`
	Category     Category `yaml:"category,omitempty"`
	Overlay      bool     `yaml:"overlay,omitempty"`
	DefaultLayer bool     `yaml:"default,omitempty"`

	Providers []ProviderDef `yaml:"providers,omitempty"`

	MinZoom     int `yaml:"minZoom,omitempty"`
	MaxZoom     int `yaml:"maxZoom,omitempty"`
	MaxOverZoom int `yaml:"maxOverZoom,omitempty"`
	TileWidth   int `yaml:"tileWidth,omitempty"`
	TileHeight  int `yaml:"tileHeight,omitempty"`

	Proj       string `yaml:"proj,omitempty"`
	Preference int    `yaml:"preference,omitempty"`

	// Validity window in ms since the epoch. A zero EndDate means the
	// layer is ongoing.
	StartDate int64 `yaml:"startDate,omitempty"`
	EndDate   int64 `yaml:"endDate,omitempty"`

	// Icon is either a data url with inline png data or a http(s) url.
	Icon      string `yaml:"icon,omitempty"`
	LogoURL   string `yaml:"logoUrl,omitempty"`
	LogoBytes []byte `yaml:"-"`

	NoTileHeader string   `yaml:"noTileHeader,omitempty"`
	NoTileValues []string `yaml:"noTileValues,omitempty"`

	TermsOfUseURL    string `yaml:"touUrl,omitempty"`
	Description      string `yaml:"description,omitempty"`
	PrivacyPolicyURL string `yaml:"privacyPolicyUrl,omitempty"`

	// Source is the provenance tag, eli, josm-imagery, custom or manual.
	Source string `yaml:"-"`
}
