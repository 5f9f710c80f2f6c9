// Package memory implements an in-memory persistence.Persistence, for use in
// tests and ephemeral deployments. Logs are held in copy-on-write B-trees
// (github.com/google/btree), so that each stream reads an O(1) snapshot.
// Tree keys use the order-preserving encodings of
// github.com/jgraettinger/cockroach-encoding.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/btree"
	"github.com/jgraettinger/cockroach-encoding/encoding"
	"go.gazette.dev/docstore/persistence"
)

// Store is an in-memory persistence.Persistence.
type Store struct {
	mu sync.Mutex
	// docs is keyed on (ts, tablet, id).
	docs *btree.BTreeG[item]
	// chains is keyed on (tablet, id, ts).
	chains *btree.BTreeG[item]
	// indexes is keyed on (index, prefix, suffix, sha256, descending ts).
	indexes *btree.BTreeG[item]
	globals map[persistence.GlobalKey]json.RawMessage
	maxTs   persistence.Timestamp
	hasMax  bool
	closed  bool
}

var _ persistence.Persistence = (*Store)(nil)

type item struct {
	key   []byte
	doc   *persistence.DocumentLogEntry
	index *persistence.IndexEntry
}

func lessItem(a, b item) bool { return bytes.Compare(a.key, b.key) < 0 }

const degree = 32

// New returns an empty Store.
func New() *Store {
	return &Store{
		docs:    btree.NewG(degree, lessItem),
		chains:  btree.NewG(degree, lessItem),
		indexes: btree.NewG(degree, lessItem),
		globals: make(map[persistence.GlobalKey]json.RawMessage),
	}
}

// Constructor builds a Store from a memory:// URL.
func Constructor(_ context.Context, _ *url.URL) (persistence.Persistence, error) {
	return New(), nil
}

// Write atomically applies |documents| and |indexes|. All checks happen
// before the first mutation, so a failed Write has no effect.
func (s *Store) Write(_ context.Context, documents []persistence.DocumentLogEntry, indexes []persistence.IndexEntry, strategy persistence.ConflictStrategy) error {
	var external, err = persistence.ValidateWrite(documents, indexes, strategy)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return persistence.ErrClosed
	}
	for _, key := range external {
		if !s.chains.Has(item{key: chainKey(key.ID, key.Ts)}) {
			return persistence.MissingPrevTsError(key)
		}
	}
	if strategy == persistence.ConflictStrategyError {
		if err = s.checkConflicts(documents, indexes); err != nil {
			return err
		}
	}

	for _, doc := range documents {
		var entry = doc.Clone()
		s.docs.ReplaceOrInsert(item{key: docKey(doc.Ts, doc.ID), doc: &entry})
		s.chains.ReplaceOrInsert(item{key: chainKey(doc.ID, doc.Ts), doc: &entry})
		s.observeTs(doc.Ts)
	}
	for _, idx := range indexes {
		var entry = idx.Clone()
		if len(entry.KeySuffix) == 0 {
			entry.KeySuffix = nil
		}
		s.indexes.ReplaceOrInsert(item{key: indexKey(entry), index: &entry})
		s.observeTs(idx.Ts)
	}
	return nil
}

func (s *Store) checkConflicts(documents []persistence.DocumentLogEntry, indexes []persistence.IndexEntry) error {
	var seen = make(map[string]struct{}, len(documents)+len(indexes))

	for _, doc := range documents {
		var key = docKey(doc.Ts, doc.ID)
		var _, dup = seen[string(key)]

		if dup || s.docs.Has(item{key: key}) {
			var id = doc.ID
			return &persistence.ConflictError{Document: &id, Ts: doc.Ts}
		}
		seen[string(key)] = struct{}{}
	}
	for _, idx := range indexes {
		var key = indexKey(idx)
		var _, dup = seen[string(key)]

		if dup || s.indexes.Has(item{key: key}) {
			var index = idx.IndexID
			return &persistence.ConflictError{Index: &index, Key: idx.Key(), Ts: idx.Ts}
		}
		seen[string(key)] = struct{}{}
	}
	return nil
}

func (s *Store) observeTs(ts persistence.Timestamp) {
	if !s.hasMax || ts > s.maxTs {
		s.maxTs, s.hasMax = ts, true
	}
}

// Reader returns a Reader of the Store.
func (s *Store) Reader() persistence.Reader { return &reader{store: s} }

// Checkpoint is a no-op, as the Store has no log. It reports -1 pages.
func (s *Store) Checkpoint(_ context.Context, mode persistence.CheckpointMode) (persistence.CheckpointResult, error) {
	if mode < persistence.CheckpointPassive || mode > persistence.CheckpointTruncate {
		return persistence.CheckpointResult{}, &persistence.ValidationError{Field: "CheckpointMode",
			Reason: fmt.Sprintf("unknown mode %s", mode)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return persistence.CheckpointResult{}, persistence.ErrClosed
	}
	return persistence.CheckpointResult{LogPages: -1, CheckpointedPages: -1}, nil
}

// WriteGlobal sets the value of global |key|.
func (s *Store) WriteGlobal(_ context.Context, key persistence.GlobalKey, value json.RawMessage) error {
	if key == "" {
		return &persistence.ValidationError{Field: "GlobalKey", Reason: "expected a non-empty key"}
	} else if !json.Valid(value) {
		return &persistence.ValidationError{Field: "global value", Reason: "not valid JSON"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return persistence.ErrClosed
	}
	s.globals[key] = append(json.RawMessage(nil), value...)
	return nil
}

// GetGlobal returns the value of global |key|, or nil if it isn't set.
func (s *Store) GetGlobal(_ context.Context, key persistence.GlobalKey) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, persistence.ErrClosed
	}
	if v, ok := s.globals[key]; ok {
		return append(json.RawMessage(nil), v...), nil
	}
	return nil, nil
}

// IsFresh is always true.
func (s *Store) IsFresh() bool { return true }

// Close the Store. Open streams continue to read their snapshots.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type snapshot struct {
	docs, chains, indexes *btree.BTreeG[item]
}

// snapshot clones the Store's trees. Clones share structure with the Store
// until either is modified.
func (s *Store) snapshot() (snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return snapshot{}, persistence.ErrClosed
	}
	return snapshot{
		docs:    s.docs.Clone(),
		chains:  s.chains.Clone(),
		indexes: s.indexes.Clone(),
	}, nil
}

func docKey(ts persistence.Timestamp, id persistence.DocumentID) []byte {
	var b = encoding.EncodeUint64Ascending(nil, uint64(ts))
	b = encoding.EncodeBytesAscending(b, id.Tablet[:])
	return encoding.EncodeBytesAscending(b, id.Internal[:])
}

func chainPrefix(id persistence.DocumentID) []byte {
	var b = encoding.EncodeBytesAscending(nil, id.Tablet[:])
	return encoding.EncodeBytesAscending(b, id.Internal[:])
}

func chainKey(id persistence.DocumentID, ts persistence.Timestamp) []byte {
	return encoding.EncodeUint64Ascending(chainPrefix(id), uint64(ts))
}

func indexPrefix(index persistence.IndexID) []byte {
	return encoding.EncodeBytesAscending(nil, index[:])
}

// indexIdentity encodes the key of |e| without its Ts.
func indexIdentity(e persistence.IndexEntry) []byte {
	var b = encoding.EncodeBytesAscending(indexPrefix(e.IndexID), e.KeyPrefix)
	b = encoding.EncodeBytesAscending(b, e.KeySuffix)
	return encoding.EncodeBytesAscending(b, e.KeySHA256)
}

// indexKey orders versions of an identity from newest to oldest.
func indexKey(e persistence.IndexEntry) []byte {
	return encoding.EncodeUint64Descending(indexIdentity(e), uint64(e.Ts))
}

// tsLen is the encoded length of a Ts suffix of an index key.
const tsLen = 8
