package model

import (
	"context"
	"log/slog"
	"sync"
)

// Process wide logo cache keyed by logo url. noLogo marks urls that failed
// so they are not fetched again.
var (
	logoCacheMu sync.Mutex
	logoCache   = map[string][]byte{}
	noLogo      = []byte{}
)

// Logo returns the layer's branding image bytes, or nil if none is resolved
// yet. A layer with only a logo url triggers an asynchronous fetch; the
// result shows up on a later call.
func (s *TileSource) Logo() []byte {
	s.logoMu.Lock()
	defer s.logoMu.Unlock()
	if s.logo != nil {
		return s.logo
	}
	if s.logoBytes != nil {
		s.logo = s.logoBytes
		return s.logo
	}
	if s.logoURL == "" || s.fetcher == nil {
		return nil
	}
	go s.fetchLogo(s.logoURL)
	return nil
}

func (s *TileSource) fetchLogo(url string) {
	s.logoMu.Lock()
	defer s.logoMu.Unlock()
	if s.logo != nil || s.logoURL == "" {
		return
	}

	logoCacheMu.Lock()
	cached, ok := logoCache[url]
	logoCacheMu.Unlock()
	if ok {
		if len(cached) > 0 {
			s.logo = cached
		}
		s.logoURL = ""
		return
	}

	data, err := s.fetcher.Fetch(context.Background(), url)
	logoCacheMu.Lock()
	if err != nil || len(data) == 0 {
		logoCache[url] = noLogo
	} else {
		logoCache[url] = data
		s.logo = data
	}
	logoCacheMu.Unlock()
	if err != nil {
		s.logger.Error("logo fetch failed", "url", url, slog.Any("error", err))
	}
	s.logoURL = ""
}

// ClearLogo drops the resolved logo so it is fetched again, used when the
// display density changes.
func (s *TileSource) ClearLogo() {
	s.logoMu.Lock()
	defer s.logoMu.Unlock()
	s.logo = nil
}

func (s *TileSource) LogoURL() string { return s.logoURL }
