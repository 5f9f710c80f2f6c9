package sqlite

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"go.gazette.dev/docstore/persistence"
)

// revisionCache caches committed revisions by their RevisionKey. Revisions
// are immutable except under ConflictStrategyOverwrite, which invalidates
// the keys it writes. A generation counter guards against a reader adding
// a revision it loaded before a concurrent overwrite committed.
type revisionCache struct {
	mu  sync.Mutex
	gen uint64
	lru *lru.Cache // Nil if disabled.
}

func newRevisionCache(size int) (*revisionCache, error) {
	if size <= 0 {
		return &revisionCache{}, nil
	}
	var c, err = lru.New(size)
	if err != nil {
		return nil, errors.WithMessage(err, "building revision cache")
	}
	return &revisionCache{lru: c}, nil
}

// generation returns the current generation, to be passed to add.
func (c *revisionCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *revisionCache) get(key persistence.RevisionKey) (persistence.DocumentLogEntry, bool) {
	if c.lru == nil {
		return persistence.DocumentLogEntry{}, false
	}
	if v, ok := c.lru.Get(key); ok {
		return v.(persistence.DocumentLogEntry).Clone(), true
	}
	return persistence.DocumentLogEntry{}, false
}

// add |entry| if no invalidation has happened since generation |gen|.
func (c *revisionCache) add(gen uint64, entry persistence.DocumentLogEntry) {
	if c.lru == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen == c.gen {
		c.lru.Add(persistence.RevisionKey{ID: entry.ID, Ts: entry.Ts}, entry.Clone())
	}
}

func (c *revisionCache) invalidate(documents []persistence.DocumentLogEntry) {
	if c.lru == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	for _, doc := range documents {
		c.lru.Remove(persistence.RevisionKey{ID: doc.ID, Ts: doc.Ts})
	}
}
