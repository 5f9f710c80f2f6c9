package memory

import (
	"bytes"
	"context"

	"github.com/google/btree"
	"github.com/jgraettinger/cockroach-encoding/encoding"
	"go.gazette.dev/docstore/persistence"
)

type reader struct {
	store *Store
}

func (r *reader) LoadDocuments(ctx context.Context, tsRange persistence.TimestampRange, order persistence.Order, pageSize int, retention persistence.RetentionValidator) *persistence.DocumentStream {
	if err := tsRange.Validate(); err != nil {
		return persistence.ErrorStream[persistence.DocumentLogEntry](err)
	}
	var snap, err = r.store.snapshot()
	if err != nil {
		return persistence.ErrorStream[persistence.DocumentLogEntry](err)
	}

	var filter = persistence.DocumentFilter(tsRange, retention)
	var pivot = encoding.EncodeUint64Ascending(nil, uint64(tsRange.Min))
	if order == persistence.Descending {
		// Greater than every key of Ts <= Max, and less than any key of Max+1.
		pivot = encoding.EncodeUint64Ascending(nil, uint64(tsRange.Max)+1)
	}
	var exclusive = false

	return persistence.NewStream(pageSize, func(limit int) ([]persistence.DocumentLogEntry, bool, error) {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		var out []persistence.DocumentLogEntry
		var n int
		var done = true

		walk(snap.docs, pivot, exclusive, order, func(it item) bool {
			if !tsRange.Contains(it.doc.Ts) {
				return false // Walked beyond the range.
			} else if n == limit {
				done = false
				return false
			}
			n++
			pivot, exclusive = it.key, true

			if filter(*it.doc) {
				out = append(out, it.doc.Clone())
			}
			return true
		})
		return out, done, nil
	}, nil)
}

func (r *reader) IndexScan(ctx context.Context, index persistence.IndexID, tablet persistence.TabletID, readTs persistence.Timestamp, interval persistence.Interval, order persistence.Order, pageSize int, retention persistence.RetentionValidator) *persistence.IndexStream {
	if err := readTs.Validate(); err != nil {
		return persistence.ErrorStream[persistence.IndexEntry](err)
	}
	var snap, err = r.store.snapshot()
	if err != nil {
		return persistence.ErrorStream[persistence.IndexEntry](err)
	}

	var (
		prefix       = indexPrefix(index)
		lower, upper = interval.PrefixBounds()
		pivot        = prefix
		empty        = interval.IsEmpty()
		filter       = &persistence.IndexVersionFilter{
			Tablet:    tablet,
			ReadTs:    readTs,
			Interval:  interval,
			Retention: retention,
		}
	)
	if order == persistence.Ascending && lower != nil {
		pivot = encoding.EncodeBytesAscending(append([]byte(nil), prefix...), lower)
	} else if order == persistence.Descending {
		if upper != nil {
			pivot = encoding.EncodeBytesAscending(append([]byte(nil), prefix...), upper)
		}
		// Encoded key components begin with a marker byte less than 0xff,
		// so this pivot follows every key having |pivot| as a prefix.
		pivot = append(append([]byte(nil), pivot...), 0xff)
	}

	return persistence.NewStream(pageSize, func(limit int) ([]persistence.IndexEntry, bool, error) {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		} else if empty {
			return nil, true, nil
		}
		var out []persistence.IndexEntry

		// Each iteration resolves one distinct key of the index.
		for n := 0; n != limit; n++ {
			var next, ok = first(snap.indexes, pivot, order)
			if !ok || !bytes.HasPrefix(next.key, prefix) {
				return out, true, nil
			} else if order == persistence.Ascending && upper != nil && bytes.Compare(next.index.KeyPrefix, upper) > 0 {
				return out, true, nil
			} else if order == persistence.Descending && lower != nil && bytes.Compare(next.index.KeyPrefix, lower) < 0 {
				return out, true, nil
			}

			var identity = next.key[:len(next.key)-tsLen]
			if order == persistence.Ascending {
				// Follows every version of |identity|, and precedes the next key.
				pivot = append(append([]byte(nil), identity...), bytes.Repeat([]byte{0xff}, tsLen+1)...)
			} else {
				// Precedes every version of |identity|, and follows the prior key.
				pivot = identity
			}

			if entry, ok := latestVersion(snap.indexes, identity, readTs, tablet); ok && filter.Admit(entry) {
				out = append(out, entry.Clone())
			}
		}
		return out, false, nil
	}, nil)
}

// latestVersion returns the newest version of |identity| at or before
// |readTs| which doesn't reference a tablet other than |tablet|.
func latestVersion(tree *btree.BTreeG[item], identity []byte, readTs persistence.Timestamp, tablet persistence.TabletID) (persistence.IndexEntry, bool) {
	var out persistence.IndexEntry
	var found bool

	tree.AscendGreaterOrEqual(item{key: encoding.EncodeUint64Descending(append([]byte(nil), identity...), uint64(readTs))},
		func(it item) bool {
			if len(it.key) != len(identity)+tsLen || !bytes.HasPrefix(it.key, identity) {
				return false
			} else if it.index.Value != nil && it.index.Value.Tablet != tablet {
				return true
			}
			out, found = *it.index, true
			return false
		})
	return out, found
}

func (r *reader) PreviousRevisions(ctx context.Context, queries []persistence.RevisionQuery) (map[persistence.RevisionQuery]persistence.DocumentLogEntry, error) {
	var snap, err = r.store.snapshot()
	if err != nil {
		return nil, err
	}
	var out = make(map[persistence.RevisionQuery]persistence.DocumentLogEntry, len(queries))

	for _, q := range queries {
		if q.Ts == persistence.MinTimestamp {
			continue
		}
		var prefix = chainPrefix(q.ID)
		snap.chains.DescendLessOrEqual(item{key: chainKey(q.ID, q.Ts-1)}, func(it item) bool {
			if bytes.HasPrefix(it.key, prefix) {
				out[q] = it.doc.Clone()
			}
			return false
		})
	}
	return out, ctx.Err()
}

func (r *reader) LoadRevisions(ctx context.Context, keys []persistence.RevisionKey) (map[persistence.RevisionKey]persistence.DocumentLogEntry, error) {
	var snap, err = r.store.snapshot()
	if err != nil {
		return nil, err
	}
	var out = make(map[persistence.RevisionKey]persistence.DocumentLogEntry, len(keys))

	for _, key := range keys {
		if it, ok := snap.chains.Get(item{key: chainKey(key.ID, key.Ts)}); ok {
			out[key] = it.doc.Clone()
		}
	}
	return out, ctx.Err()
}

func (r *reader) MaxTimestamp(context.Context) (persistence.Timestamp, bool, error) {
	var s = r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, false, persistence.ErrClosed
	}
	return s.maxTs, s.hasMax, nil
}

// walk visits items of |tree| in |order|, beginning at |pivot| and skipping
// an item equal to |pivot| if |exclusive|, until |fn| returns false.
func walk(tree *btree.BTreeG[item], pivot []byte, exclusive bool, order persistence.Order, fn func(item) bool) {
	var visit = func(it item) bool {
		if exclusive && bytes.Equal(it.key, pivot) {
			return true
		}
		return fn(it)
	}
	if order == persistence.Descending {
		tree.DescendLessOrEqual(item{key: pivot}, visit)
	} else {
		tree.AscendGreaterOrEqual(item{key: pivot}, visit)
	}
}

// first returns the first item of |tree| in |order| from |pivot|, inclusive.
func first(tree *btree.BTreeG[item], pivot []byte, order persistence.Order) (item, bool) {
	var out item
	var found bool
	walk(tree, pivot, false, order, func(it item) bool {
		out, found = it, true
		return false
	})
	return out, found
}
