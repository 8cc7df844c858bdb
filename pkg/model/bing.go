package model

import (
	"context"
	"encoding/xml"
	"log/slog"
	"strings"

	"github.com/osmedit/tilesource/pkg/geo"
)

// Bing style imagery metadata document. The same format is used by a small
// number of other providers.
type bingMetadata struct {
	BrandLogoURI string         `xml:"BrandLogoUri"`
	Imagery      []bingImagery  `xml:"ResourceSets>ResourceSet>Resources>ImageryMetadata"`
}

type bingImagery struct {
	ImageURL    string         `xml:"ImageUrl"`
	ImageWidth  int            `xml:"ImageWidth"`
	ImageHeight int            `xml:"ImageHeight"`
	Subdomains  []string       `xml:"ImageUrlSubdomains>string"`
	ZoomMin     int            `xml:"ZoomMin"`
	ZoomMax     int            `xml:"ZoomMax"`
	Providers   []bingProvider `xml:"ImageryProviders>ImageryProvider"`
}

type bingProvider struct {
	Attribution string         `xml:"Attribution"`
	Coverages   []bingCoverage `xml:"CoverageArea"`
}

type bingCoverage struct {
	ZoomMin int `xml:"ZoomMin"`
	ZoomMax int `xml:"ZoomMax"`
	BBox    struct {
		South float64 `xml:"SouthLatitude"`
		West  float64 `xml:"WestLongitude"`
		North float64 `xml:"NorthLatitude"`
		East  float64 `xml:"EastLongitude"`
	} `xml:"BoundingBox"`
}

// loadMeta fetches and applies the imagery metadata document. Completion
// always marks the metadata as loaded: a failed fetch is logged and leaves
// the layer usable with the defaults it had before.
func (s *TileSource) loadMeta(ctx context.Context, metaURL string) {
	defer s.metadataLoaded.Store(true)

	metaURL = strings.ReplaceAll(metaURL, "{culture}", s.culture)
	if s.fetcher == nil {
		s.logger.Error("no fetcher for metadata", "url", metaURL)
		return
	}
	body, err := s.fetcher.Fetch(ctx, metaURL)
	if err != nil {
		s.logger.Error("metadata fetch failed", "url", metaURL, slog.Any("error", err))
		return
	}
	var meta bingMetadata
	if err := xml.Unmarshal(body, &meta); err != nil {
		s.logger.Error("metadata parse failed", "url", metaURL, slog.Any("error", err))
		return
	}
	if len(meta.Imagery) == 0 {
		s.logger.Error("metadata document has no imagery", "url", metaURL)
		return
	}
	s.applyMeta(&meta)
	s.logger.Info("metadata loaded")
}

func (s *TileSource) applyMeta(meta *bingMetadata) {
	img := &meta.Imagery[0]

	providers := make([]*Provider, 0, len(img.Providers))
	for _, bp := range img.Providers {
		p := NewProvider(bp.Attribution, "")
		for _, c := range bp.Coverages {
			box := geo.NewBoundingBox(c.BBox.West, c.BBox.South, c.BBox.East, c.BBox.North)
			p.AddCoverageArea(NewCoverageArea(c.ZoomMin, c.ZoomMax, &box))
		}
		providers = append(providers, p)
	}

	s.mu.Lock()
	if img.ImageURL != "" {
		s.tileURL = strings.ReplaceAll(img.ImageURL, "{culture}", s.culture)
	}
	if len(img.Subdomains) > 0 {
		s.subdomains = append(s.subdomains[:0], img.Subdomains...)
		s.subIdx = 0
	}
	if img.ImageWidth > 0 {
		s.tileWidth = img.ImageWidth
	}
	if img.ImageHeight > 0 {
		s.tileHeight = img.ImageHeight
	}
	if img.ZoomMax > 0 {
		s.offsets.Resize(img.ZoomMax)
		s.zoomMax = img.ZoomMax
	}
	s.mu.Unlock()

	if img.ZoomMin > 0 {
		s.zoomMin = img.ZoomMin
	}
	if len(providers) > 0 {
		s.providers = providers
	}
	if meta.BrandLogoURI != "" && s.logoURL == "" && s.logoBytes == nil {
		s.logoURL = meta.BrandLogoURI
	}
}
