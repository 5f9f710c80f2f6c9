package persistence

import (
	"context"
	"net/url"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Constructor builds a Persistence from a URL. Each backend provides its
// own Constructor.
type Constructor func(context.Context, *url.URL) (Persistence, error)

var (
	constructors   = make(map[string]Constructor)
	constructorsMu sync.RWMutex
)

// RegisterProviders registers Constructors of URL schemes.
// This should be called during initialization to register available backends.
func RegisterProviders(providers map[string]Constructor) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()

	for scheme, constructor := range providers {
		constructors[scheme] = constructor
	}
}

// GetProviders returns a copy of the currently registered Constructors.
// This is useful for tests that need to preserve and restore providers.
func GetProviders() map[string]Constructor {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()

	var copy = make(map[string]Constructor, len(constructors))
	for scheme, constructor := range constructors {
		copy[scheme] = constructor
	}
	return copy
}

// SetProviders replaces all registered Constructors with |providers|.
func SetProviders(providers map[string]Constructor) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()

	constructors = make(map[string]Constructor, len(providers))
	for scheme, constructor := range providers {
		constructors[scheme] = constructor
	}
}

// Open parses |rawURL| and builds a Persistence using the Constructor
// registered for its scheme. The returned Persistence is Instrumented.
func Open(ctx context.Context, rawURL string) (*Instrumented, error) {
	var ep, err = url.Parse(rawURL)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing persistence URL %q", rawURL)
	}

	constructorsMu.RLock()
	var constructor, ok = constructors[ep.Scheme]
	constructorsMu.RUnlock()

	if !ok {
		return nil, errors.Errorf("unsupported persistence scheme: %q", ep.Scheme)
	}
	p, err := constructor(ctx, ep)
	if err != nil {
		return nil, errors.WithMessagef(err, "opening %s persistence", ep.Scheme)
	}

	log.WithFields(log.Fields{
		"scheme": ep.Scheme,
		"fresh":  p.IsFresh(),
	}).Info("opened persistence")

	return Instrument(redactURL(ep), p), nil
}

// redactURL removes credentials of the URL, for use as a metric label.
func redactURL(ep *url.URL) string {
	var u = *ep
	u.User = nil
	u.RawQuery = ""
	return u.String()
}
