package model

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/osmedit/tilesource/pkg/geo"
)

// The template scanner runs once per visible tile, potentially hundreds of
// times per redraw, so it makes a single pass over the template and reuses
// the per instance scratch buffers. BuildURL serializes concurrent callers
// on the source's mutex.

const (
	baseState = iota
	paramState
)

var (
	wmsVersionRe = regexp.MustCompile(`(?i)[?&]version=([0-9.]+)`)
	wmsProjRe    = regexp.MustCompile(`(?i)[?&][sc]rs=(EPSG:[0-9]+)`)
)

// BuildURL interprets the url template for one tile address and returns the
// concrete request url. Unknown placeholders are logged and substituted with
// nothing, best effort construction never fails on template content.
func (s *TileSource) BuildURL(x, y, zoom int) (string, error) {
	if err := s.checkMetadata(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = s.buf[:0]
	state := baseState
	template := s.tileURL
	for i := 0; i < len(template); i++ {
		c := template[i]
		if state == baseState {
			if c == '{' {
				state = paramState
				s.param = s.param[:0]
			} else {
				s.buf = append(s.buf, c)
			}
			continue
		}
		if c != '}' {
			s.param = append(s.param, c)
			continue
		}
		state = baseState
		switch string(s.param) {
		case "x":
			s.buf = strconv.AppendInt(s.buf, int64(x), 10)
		case "y":
			s.buf = strconv.AppendInt(s.buf, int64(y), 10)
		case "z", "zoom":
			s.buf = strconv.AppendInt(s.buf, int64(zoom), 10)
		case "ty", "-y":
			s.buf = strconv.AppendInt(s.buf, int64(geo.FlipY(y, zoom)), 10)
		case "quadkey":
			s.buf = s.appendQuadKey(s.buf, x, y, zoom)
		case "subdomain":
			// rotate through the sub-domains
			if len(s.subdomains) > 0 {
				s.buf = append(s.buf, s.subdomains[s.subIdx]...)
				s.subIdx = (s.subIdx + 1) % len(s.subdomains)
			}
		case "proj": // WMS support from here on
			s.buf = append(s.buf, s.proj...)
		case "width":
			s.buf = strconv.AppendInt(s.buf, int64(s.tileWidth), 10)
		case "height":
			s.buf = strconv.AppendInt(s.buf, int64(s.tileHeight), 10)
		case "bbox":
			s.buf = append(s.buf, s.wmsBox(x, y, zoom)...)
		default:
			s.logger.Error("unknown placeholder", "name", string(s.param))
		}
	}
	return string(s.buf), nil
}

// appendQuadKey converts the tile address to a Microsoft quadtree key, one
// base-4 digit per zoom level, most significant first.
func (s *TileSource) appendQuadKey(dst []byte, x, y, zoom int) []byte {
	s.quadKey = s.quadKey[:0]
	for i := zoom; i > 0; i-- {
		digit := byte('0')
		mask := 1 << (i - 1)
		if x&mask != 0 {
			digit++
		}
		if y&mask != 0 {
			digit += 2
		}
		s.quadKey = append(s.quadKey, digit)
	}
	return append(dst, s.quadKey...)
}

// wmsBox converts the tile address to a WMS bounding box string for
// EPSG:3857/900913 and EPSG:4326. As side effects it extracts the
// projection from the original url if not already set and determines the
// axis order for 4326. Called with s.mu held.
func (s *TileSource) wmsBox(x, y, zoom int) []byte {
	s.boxBuf = s.boxBuf[:0]
	if s.proj == "" {
		// recover the projection from a srs= or crs= query parameter
		if m := wmsProjRe.FindStringSubmatch(s.originalURL); m != nil {
			s.proj = strings.ToUpper(m[1])
			s.logger.Info("extracted projection from url", "proj", s.proj)
			return s.wmsBox(x, y, zoom)
		}
		s.logger.Error("no projection for layer")
		return s.boxBuf
	}

	switch s.proj {
	case EPSG3857, EPSG900913:
		yf := geo.FlipY(y, zoom)
		s.boxBuf = appendFloat(s.boxBuf, geo.TileToMercX(x, zoom))
		s.boxBuf = append(s.boxBuf, ',')
		s.boxBuf = appendFloat(s.boxBuf, geo.TileToMercY(yf, zoom))
		s.boxBuf = append(s.boxBuf, ',')
		s.boxBuf = appendFloat(s.boxBuf, geo.TileToMercX(x+1, zoom))
		s.boxBuf = append(s.boxBuf, ',')
		s.boxBuf = appendFloat(s.boxBuf, geo.TileToMercY(yf+1, zoom))
	case EPSG4326:
		if s.wmsAxisOrder == "" {
			s.wmsAxisOrder = axisOrderFromURL(s.originalURL)
		}
		// WMS servers >= 1.3.0 use the axis ordering of the EPSG
		// definition, which for 4326 is latitude first
		if s.wmsAxisOrder == wmsAxisXY {
			s.boxBuf = appendFloat(s.boxBuf, geo.TileToLon(x, zoom))
			s.boxBuf = append(s.boxBuf, ',')
			s.boxBuf = appendFloat(s.boxBuf, geo.TileToLat(y+1, zoom))
			s.boxBuf = append(s.boxBuf, ',')
			s.boxBuf = appendFloat(s.boxBuf, geo.TileToLon(x+1, zoom))
			s.boxBuf = append(s.boxBuf, ',')
			s.boxBuf = appendFloat(s.boxBuf, geo.TileToLat(y, zoom))
		} else {
			s.boxBuf = appendFloat(s.boxBuf, geo.TileToLat(y+1, zoom))
			s.boxBuf = append(s.boxBuf, ',')
			s.boxBuf = appendFloat(s.boxBuf, geo.TileToLon(x, zoom))
			s.boxBuf = append(s.boxBuf, ',')
			s.boxBuf = appendFloat(s.boxBuf, geo.TileToLat(y, zoom))
			s.boxBuf = append(s.boxBuf, ',')
			s.boxBuf = appendFloat(s.boxBuf, geo.TileToLon(x+1, zoom))
		}
	default:
		s.logger.Error("unsupported projection", "proj", s.proj)
	}
	return s.boxBuf
}

func appendFloat(dst []byte, v float64) []byte {
	return strconv.AppendFloat(dst, v, 'f', -1, 64)
}

// axisOrderFromURL decides the 4326 axis order from the version= query
// parameter of the original, pre-substitution url. Unknown versions keep
// lon,lat ordering.
func axisOrderFromURL(u string) string {
	if m := wmsVersionRe.FindStringSubmatch(u); m != nil {
		if wmsVersionAtLeast(m[1], 1, 3, 0) {
			return wmsAxisYX
		}
	}
	return wmsAxisXY
}

func wmsVersionAtLeast(version string, parts ...int) bool {
	fields := strings.Split(version, ".")
	for i, want := range parts {
		got := 0
		if i < len(fields) {
			got, _ = strconv.Atoi(fields[i])
		}
		if got != want {
			return got > want
		}
	}
	return true
}
