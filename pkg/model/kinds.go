package model

// Kind is the addressing scheme of a layer. It is fixed at construction and
// selects kind specific initialization (bing metadata fetch, scanex url
// rewrite).
type Kind string

const (
	KindTMS         Kind = "tms"
	KindWMS         Kind = "wms"
	KindWMSEndpoint Kind = "wms_endpoint"
	KindBing        Kind = "bing"
	KindScanex      Kind = "scanex"
)

// TileType distinguishes raster tiles from vector tiles, inferred from the
// url template's file extension.
type TileType string

const (
	TileBitmap TileType = "bitmap"
	TileMVT    TileType = "mvt"
)

// Category classifies a layer for filtering in layer selection UIs.
type Category string

const (
	CategoryPhoto         Category = "photo"
	CategoryMap           Category = "map"
	CategoryHistoricMap   Category = "historicmap"
	CategoryOSMBasedMap   Category = "osmbasedmap"
	CategoryHistoricPhoto Category = "historicphoto"
	CategoryQA            Category = "qa"
	CategoryElevation     Category = "elevation"
	CategoryOther         Category = "other"
	// CategoryInternal marks layers that are never shown to users.
	CategoryInternal Category = "internal"
)

// Well known layer ids that are guaranteed to exist after the registry has
// been initialized.
const (
	LayerNone      = "NONE"
	LayerNoOverlay = "NOOVERLAY"
	LayerMapnik    = "MAPNIK"
	LayerBing      = "BING"
)

// Source provenance tags, see the storage package.
const (
	SourceELI         = "eli"
	SourceJOSMImagery = "josm-imagery"
	SourceCustom      = "custom"
	SourceManual      = "manual"
)

const (
	PreferenceDefault = 0
	PreferenceBest    = 10

	DefaultMinZoom     = 0
	DefaultMaxZoom     = 18
	DefaultWMSMaxZoom  = 22
	DefaultMaxOverZoom = 4

	DefaultTileSize = 256
	WMSTileSize     = 512
)

const (
	EPSG3857   = "EPSG:3857"
	EPSG900913 = "EPSG:900913"
	EPSG4326   = "EPSG:4326"
)
