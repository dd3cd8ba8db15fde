package native

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register makes b available to Open and Lookup. Registering a second
// backend under the same name replaces the first.
func Register(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	backends[b.Name()] = b
}

// Lookup returns the backend registered under name.
func Lookup(name string) (Backend, error) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, name)
	}
	return b, nil
}

// Backends returns every registered backend ordered by priority then name.
func Backends() []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() < out[j].Priority()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// ForPath picks the available backend with the lowest priority among those
// claiming the extension of path.
func ForPath(path string) (Backend, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, b := range Backends() {
		if !claims(b, ext) {
			continue
		}
		if !b.Available() {
			log.Debug().Str("backend", b.Name()).Msg("Skipping unavailable backend")
			continue
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

func claims(b Backend, ext string) bool {
	for _, e := range b.Extensions() {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// Open loads path with the backend ForPath selects. Errors from the
// backend are returned as is.
func Open(path string) (Peer, error) {
	b, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("backend", b.Name()).Str("path", path).Msg("Opening model")
	return b.Open(path)
}
