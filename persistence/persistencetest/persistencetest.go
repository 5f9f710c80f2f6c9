// Package persistencetest is a conformance suite of persistence.Persistence
// implementations. Each backend's tests invoke Run with a Harness.
package persistencetest

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"go.gazette.dev/docstore/persistence"
)

// Harness builds instances of a backend under test.
type Harness struct {
	// New returns a new, empty Persistence. It's closed by the suite.
	New func(t *testing.T) persistence.Persistence
	// ReadersBlockWriters is set if an open stream prevents a concurrent
	// Write from committing, which is the case for SQLite's rollback journal.
	// Tests which interleave streams and writes are then skipped.
	ReadersBlockWriters bool
}

// Run the conformance suite against the Harness.
func Run(t *testing.T, h Harness) {
	var cases = []struct {
		name string
		fn   func(*testing.T, persistence.Persistence)
	}{
		{"WriteAndReadAtMinTimestamp", testWriteAndReadAtMinTimestamp},
		{"LoadDocumentsOrderAndPaging", testLoadDocumentsOrderAndPaging},
		{"LoadDocumentsRangeAndRetention", testLoadDocumentsRangeAndRetention},
		{"IndexScanOfFiveDocuments", testIndexScanOfFiveDocuments},
		{"IndexScanVersions", testIndexScanVersions},
		{"IndexScanIntervalAndOrder", testIndexScanIntervalAndOrder},
		{"IndexScanLongKeys", testIndexScanLongKeys},
		{"IndexScanOfOtherTablet", testIndexScanOfOtherTablet},
		{"ConflictStrategies", testConflictStrategies},
		{"WriteIsAtomic", testWriteIsAtomic},
		{"WriteValidation", testWriteValidation},
		{"Revisions", testRevisions},
		{"MaxTimestamp", testMaxTimestamp},
		{"Globals", testGlobals},
		{"StreamLifecycle", testStreamLifecycle},
		{"Checkpoint", testCheckpoint},
		{"Closed", testClosed},
	}
	if !h.ReadersBlockWriters {
		cases = append(cases, struct {
			name string
			fn   func(*testing.T, persistence.Persistence)
		}{"SnapshotIsolation", testSnapshotIsolation})
	}

	for _, tc := range cases {
		var tc = tc
		t.Run(tc.name, func(t *testing.T) {
			var p = h.New(t)
			defer p.Close()
			tc.fn(t, p)
		})
	}
}

// ID returns an InternalID having every byte set to |b|.
func ID(b byte) persistence.InternalID {
	var id persistence.InternalID
	for i := range id {
		id[i] = b
	}
	return id
}

// Document returns a live DocumentLogEntry of |id| at |ts| with value |v|.
func Document(t *testing.T, id persistence.DocumentID, ts persistence.Timestamp, v interface{}) persistence.DocumentLogEntry {
	var doc, err = persistence.NewResolvedDocument(id.Tablet, v)
	require.NoError(t, err)
	return persistence.DocumentLogEntry{Ts: ts, ID: id, Value: doc}
}

// Tombstone returns a deletion DocumentLogEntry of |id| at |ts|.
func Tombstone(id persistence.DocumentID, ts, prevTs persistence.Timestamp) persistence.DocumentLogEntry {
	return persistence.DocumentLogEntry{Ts: ts, ID: id, PrevTs: &prevTs}
}

// Index returns a live IndexEntry of |key| referencing |id| at |ts|.
func Index(index persistence.IndexID, key string, ts persistence.Timestamp, id persistence.DocumentID) persistence.IndexEntry {
	return persistence.NewIndexEntry(index, []byte(key), ts, &id, false)
}

// Collect all items of |s|, requiring that it completes without error.
func Collect[T any](t *testing.T, s *persistence.Stream[T]) []T {
	var out, err = s.Collect()
	require.NoError(t, err)
	return out
}

// LoadAll returns all documents of |p| in ascending order.
func LoadAll(t *testing.T, p persistence.Persistence) []persistence.DocumentLogEntry {
	return Collect(t, p.Reader().LoadDocuments(context.Background(),
		persistence.AllTimestamps(), persistence.Ascending, 0, nil))
}

func scanKeys(t *testing.T, p persistence.Persistence, index persistence.IndexID, tablet persistence.TabletID,
	readTs persistence.Timestamp, iv persistence.Interval, order persistence.Order, pageSize int) []string {

	var out []string
	for _, e := range Collect(t, p.Reader().IndexScan(context.Background(),
		index, tablet, readTs, iv, order, pageSize, nil)) {
		out = append(out, string(e.Key()))
	}
	return out
}

func testWriteAndReadAtMinTimestamp(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var tablet = persistence.MinTabletID
	var first = persistence.NewDocumentID(tablet, persistence.MinInternalID)
	var second = persistence.NewDocumentID(tablet, ID(1))

	require.NoError(t, p.Write(ctx, []persistence.DocumentLogEntry{
		Document(t, first, persistence.MinTimestamp, map[string]int{"version": 1}),
	}, nil, persistence.ConflictStrategyError))

	var docs = LoadAll(t, p)
	require.Len(t, docs, 1)
	require.Equal(t, persistence.MinTimestamp, docs[0].Ts)
	require.Equal(t, first, docs[0].ID)
	require.JSONEq(t, `{"version":1}`, string(docs[0].Value.Value))
	require.Equal(t, tablet, docs[0].Value.Tablet)
	require.Nil(t, docs[0].PrevTs)

	require.NoError(t, p.Write(ctx, []persistence.DocumentLogEntry{
		Document(t, second, persistence.MinTimestamp, map[string]int{"version": 2}),
	}, nil, persistence.ConflictStrategyError))

	docs = LoadAll(t, p)
	require.Len(t, docs, 2)
	require.Equal(t, first, docs[0].ID)
	require.Equal(t, second, docs[1].ID)
}

func testLoadDocumentsOrderAndPaging(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var tablet = persistence.NewTabletID()
	var docs []persistence.DocumentLogEntry

	// 25 documents over 5 timestamps, written out of order.
	for ts := 5; ts != 0; ts-- {
		for i := 0; i != 5; i++ {
			var id = persistence.NewDocumentID(tablet, ID(byte(i)))
			docs = append(docs, Document(t, id, persistence.Timestamp(ts*10), map[string]int{"ts": ts, "i": i}))
		}
	}
	require.NoError(t, p.Write(ctx, docs, nil, persistence.ConflictStrategyError))

	for _, pageSize := range []int{0, 1, 3, 7, 25, 100} {
		var asc = Collect(t, p.Reader().LoadDocuments(ctx, persistence.AllTimestamps(), persistence.Ascending, pageSize, nil))
		var desc = Collect(t, p.Reader().LoadDocuments(ctx, persistence.AllTimestamps(), persistence.Descending, pageSize, nil))
		require.Len(t, asc, 25)
		require.Len(t, desc, 25)

		for i := range asc {
			require.Equal(t, asc[i].ID, desc[len(desc)-1-i].ID)
			require.Equal(t, asc[i].Ts, desc[len(desc)-1-i].Ts)

			if i != 0 {
				var prev, cur = asc[i-1], asc[i]
				require.True(t, prev.Ts < cur.Ts || (prev.Ts == cur.Ts && prev.ID.Compare(cur.ID) < 0),
					"page size %d: %v not before %v", pageSize, prev, cur)
			}
		}
	}
}

func testLoadDocumentsRangeAndRetention(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var tablet = persistence.NewTabletID()
	var docs []persistence.DocumentLogEntry

	for ts := 1; ts <= 10; ts++ {
		docs = append(docs, Document(t, persistence.NewDocumentID(tablet, ID(byte(ts))),
			persistence.Timestamp(ts), map[string]int{"n": ts}))
	}
	require.NoError(t, p.Write(ctx, docs, nil, persistence.ConflictStrategyError))

	var tsOf = func(entries []persistence.DocumentLogEntry) (out []persistence.Timestamp) {
		for _, e := range entries {
			out = append(out, e.Ts)
		}
		return
	}
	var r, err = persistence.NewTimestampRange(3, 6)
	require.NoError(t, err)

	require.Equal(t, []persistence.Timestamp{3, 4, 5, 6}, tsOf(Collect(t,
		p.Reader().LoadDocuments(ctx, r, persistence.Ascending, 2, nil))))
	require.Equal(t, []persistence.Timestamp{6, 5, 4, 3}, tsOf(Collect(t,
		p.Reader().LoadDocuments(ctx, r, persistence.Descending, 2, nil))))

	// Retention filters entries, without truncating the stream.
	require.Equal(t, []persistence.Timestamp{8, 9, 10}, tsOf(Collect(t,
		p.Reader().LoadDocuments(ctx, persistence.AllTimestamps(), persistence.Ascending, 2, persistence.RetentionFloor(8)))))
	require.Equal(t, []persistence.Timestamp{2, 4, 6, 8, 10}, tsOf(Collect(t,
		p.Reader().LoadDocuments(ctx, persistence.AllTimestamps(), persistence.Ascending, 3,
			persistence.RetentionFunc(func(ts persistence.Timestamp) bool { return ts%2 == 0 })))))

	// An invalid range fails the stream.
	var _, errStream = p.Reader().LoadDocuments(ctx, persistence.TimestampRange{Min: 5, Max: 4},
		persistence.Ascending, 0, nil).Collect()
	require.True(t, persistence.IsValidation(errStream), "%v", errStream)
}

func testIndexScanOfFiveDocuments(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var tablet = persistence.MinTabletID
	var index = persistence.MinIndexID
	var docs []persistence.DocumentLogEntry
	var indexes []persistence.IndexEntry

	for i := byte(0); i != 5; i++ {
		var id = persistence.NewDocumentID(tablet, ID(i))
		var ts = persistence.Timestamp(i)
		docs = append(docs, Document(t, id, ts, map[string]byte{"id": i}))
		indexes = append(indexes, persistence.NewIndexEntry(index, []byte{i}, ts, &id, false))
	}
	require.NoError(t, p.Write(ctx, docs, indexes, persistence.ConflictStrategyError))

	var entries = Collect(t, p.Reader().IndexScan(ctx, index, tablet, persistence.MaxTimestamp,
		persistence.AllInterval(), persistence.Ascending, 100, nil))
	require.Len(t, entries, 5)

	for i, e := range entries {
		require.Equal(t, []byte{byte(i)}, e.Key())
		require.Equal(t, persistence.NewDocumentID(tablet, ID(byte(i))), *e.Value)
		require.Equal(t, persistence.Timestamp(i), e.Ts)
		require.False(t, e.Deleted)
	}
}

func testIndexScanVersions(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var tablet = persistence.NewTabletID()
	var index = persistence.NewIndexID()
	var a = persistence.NewDocumentID(tablet, ID(0xa))
	var b = persistence.NewDocumentID(tablet, ID(0xb))

	// "k" is written at 5 and deleted at 8. "j" is written at 3 and
	// rewritten to reference another document at 7.
	require.NoError(t, p.Write(ctx, []persistence.DocumentLogEntry{
		Document(t, a, 3, map[string]string{"v": "a"}),
		Document(t, b, 5, map[string]string{"v": "b"}),
	}, []persistence.IndexEntry{
		Index(index, "j", 3, a),
		Index(index, "k", 5, b),
	}, persistence.ConflictStrategyError))

	require.NoError(t, p.Write(ctx, nil, []persistence.IndexEntry{
		Index(index, "j", 7, b),
		persistence.NewIndexEntry(index, []byte("k"), 8, nil, true),
	}, persistence.ConflictStrategyError))

	var scan = func(readTs persistence.Timestamp) map[string]persistence.IndexEntry {
		var out = make(map[string]persistence.IndexEntry)
		for _, e := range Collect(t, p.Reader().IndexScan(ctx, index, tablet, readTs,
			persistence.AllInterval(), persistence.Ascending, 1, nil)) {
			out[string(e.Key())] = e
		}
		return out
	}

	require.Empty(t, scan(2))
	require.Len(t, scan(4), 1)
	require.Equal(t, a, *scan(4)["j"].Value)

	var at6 = scan(6)
	require.Len(t, at6, 2)
	require.Equal(t, persistence.Timestamp(5), at6["k"].Ts)
	require.Equal(t, b, *at6["k"].Value)

	var at9 = scan(9)
	require.Len(t, at9, 1)
	require.Equal(t, b, *at9["j"].Value)
	require.Equal(t, persistence.Timestamp(7), at9["j"].Ts)

	// Retention applies to the latest version only, with no fallback to
	// older retained versions.
	var retained = Collect(t, p.Reader().IndexScan(ctx, index, tablet, 9,
		persistence.AllInterval(), persistence.Ascending, 0,
		persistence.RetentionFunc(func(ts persistence.Timestamp) bool { return ts != 7 })))
	require.Empty(t, retained)
}

func testIndexScanIntervalAndOrder(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var tablet = persistence.NewTabletID()
	var index = persistence.NewIndexID()
	var keys = []string{"apple", "apricot", "banana", "blueberry", "cherry", "date"}
	var indexes []persistence.IndexEntry
	var docs []persistence.DocumentLogEntry

	for i, k := range keys {
		var id = persistence.NewDocumentID(tablet, ID(byte(i+1)))
		docs = append(docs, Document(t, id, 10, map[string]string{"fruit": k}))
		indexes = append(indexes, Index(index, k, 10, id))
	}
	// An entry of another index is never scanned.
	indexes = append(indexes, Index(persistence.NewIndexID(), "avocado", 10, docs[0].ID))
	require.NoError(t, p.Write(ctx, docs, indexes, persistence.ConflictStrategyError))

	for _, pageSize := range []int{1, 2, 100} {
		require.Equal(t, keys, scanKeys(t, p, index, tablet, 10, persistence.AllInterval(), persistence.Ascending, pageSize))
		require.Equal(t, []string{"date", "cherry", "blueberry", "banana", "apricot", "apple"},
			scanKeys(t, p, index, tablet, 10, persistence.AllInterval(), persistence.Descending, pageSize))

		require.Equal(t, []string{"apple", "apricot"},
			scanKeys(t, p, index, tablet, 10, persistence.PrefixInterval([]byte("ap")), persistence.Ascending, pageSize))
		require.Equal(t, []string{"blueberry", "banana"},
			scanKeys(t, p, index, tablet, 10, persistence.PrefixInterval([]byte("b")), persistence.Descending, pageSize))

		require.Equal(t, []string{"apricot", "banana", "blueberry"},
			scanKeys(t, p, index, tablet, 10, persistence.Interval{
				Start: persistence.Bound{Kind: persistence.Excluded, Key: []byte("apple")},
				End:   persistence.Bound{Kind: persistence.Excluded, Key: []byte("cherry")},
			}, persistence.Ascending, pageSize))
		require.Equal(t, []string{"cherry", "date"},
			scanKeys(t, p, index, tablet, 10, persistence.Interval{
				Start: persistence.Bound{Kind: persistence.Included, Key: []byte("cherry")},
			}, persistence.Ascending, pageSize))
	}
	// Empty intervals yield nothing.
	require.Empty(t, scanKeys(t, p, index, tablet, 10, persistence.Interval{
		Start: persistence.Bound{Kind: persistence.Included, Key: []byte("z")},
		End:   persistence.Bound{Kind: persistence.Excluded, Key: []byte("a")},
	}, persistence.Ascending, 0))
}

func testIndexScanLongKeys(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var tablet = persistence.NewTabletID()
	var index = persistence.NewIndexID()
	var id = persistence.NewDocumentID(tablet, ID(1))

	// Keys which share a full-length prefix, and differ only in their suffix.
	var base = bytes.Repeat([]byte("x"), persistence.MaxIndexKeyPrefixLen)
	var long1 = append(append([]byte(nil), base...), "1"...)
	var long2 = append(append([]byte(nil), base...), "2"...)

	require.NoError(t, p.Write(ctx, []persistence.DocumentLogEntry{
		Document(t, id, 1, map[string]bool{"long": true}),
	}, []persistence.IndexEntry{
		persistence.NewIndexEntry(index, long2, 1, &id, false),
		persistence.NewIndexEntry(index, base, 1, &id, false),
		persistence.NewIndexEntry(index, long1, 1, &id, false),
	}, persistence.ConflictStrategyError))

	var entries = Collect(t, p.Reader().IndexScan(ctx, index, tablet, 1,
		persistence.AllInterval(), persistence.Ascending, 1, nil))
	require.Len(t, entries, 3)
	require.Equal(t, base, entries[0].Key())
	require.Equal(t, long1, entries[1].Key())
	require.Equal(t, long2, entries[2].Key())
	require.Len(t, entries[1].KeyPrefix, persistence.MaxIndexKeyPrefixLen)
	require.Equal(t, []byte("1"), entries[1].KeySuffix)

	// Intervals bounding within the suffix are exact.
	var bounded = Collect(t, p.Reader().IndexScan(ctx, index, tablet, 1,
		persistence.Interval{Start: persistence.Bound{Kind: persistence.Excluded, Key: long1}},
		persistence.Ascending, 0, nil))
	require.Len(t, bounded, 1)
	require.Equal(t, long2, bounded[0].Key())
}

func testIndexScanOfOtherTablet(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var index = persistence.NewIndexID()
	var mine, other = persistence.NewTabletID(), persistence.NewTabletID()
	var a = persistence.NewDocumentID(mine, ID(1))
	var b = persistence.NewDocumentID(other, ID(2))

	require.NoError(t, p.Write(ctx, []persistence.DocumentLogEntry{
		Document(t, a, 1, map[string]int{"a": 1}),
		Document(t, b, 1, map[string]int{"b": 1}),
	}, []persistence.IndexEntry{
		Index(index, "a", 1, a),
		Index(index, "b", 1, b),
	}, persistence.ConflictStrategyError))

	require.Equal(t, []string{"a"}, scanKeys(t, p, index, mine, 1, persistence.AllInterval(), persistence.Ascending, 0))
	require.Equal(t, []string{"b"}, scanKeys(t, p, index, other, 1, persistence.AllInterval(), persistence.Ascending, 0))
}

func testConflictStrategies(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var tablet = persistence.NewTabletID()
	var index = persistence.NewIndexID()
	var id = persistence.NewDocumentID(tablet, ID(1))

	require.NoError(t, p.Write(ctx, []persistence.DocumentLogEntry{
		Document(t, id, 10, map[string]int{"v": 1}),
	}, []persistence.IndexEntry{Index(index, "k", 10, id)}, persistence.ConflictStrategyError))

	// Colliding document entry.
	var err = p.Write(ctx, []persistence.DocumentLogEntry{
		Document(t, id, 10, map[string]int{"v": 2}),
	}, nil, persistence.ConflictStrategyError)
	require.True(t, persistence.IsConflict(err), "%v", err)

	var conflict *persistence.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, id, *conflict.Document)
	require.Equal(t, persistence.Timestamp(10), conflict.Ts)

	// Colliding index entry.
	err = p.Write(ctx, nil, []persistence.IndexEntry{Index(index, "k", 10, id)}, persistence.ConflictStrategyError)
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, index, *conflict.Index)
	require.Equal(t, []byte("k"), conflict.Key)

	// Collisions within a single batch.
	var other = persistence.NewDocumentID(tablet, ID(2))
	err = p.Write(ctx, []persistence.DocumentLogEntry{
		Document(t, other, 11, map[string]int{"v": 1}),
		Document(t, other, 11, map[string]int{"v": 2}),
	}, nil, persistence.ConflictStrategyError)
	require.True(t, persistence.IsConflict(err), "%v", err)

	// Overwrite replaces both entries.
	require.NoError(t, p.Write(ctx, []persistence.DocumentLogEntry{
		Document(t, id, 10, map[string]int{"v": 3}),
	}, []persistence.IndexEntry{
		persistence.NewIndexEntry(index, []byte("k"), 10, nil, true),
	}, persistence.ConflictStrategyOverwrite))

	var docs = LoadAll(t, p)
	require.Len(t, docs, 1)
	require.JSONEq(t, `{"v":3}`, string(docs[0].Value.Value))

	var revs, err2 = p.Reader().LoadRevisions(ctx, []persistence.RevisionKey{{ID: id, Ts: 10}})
	require.NoError(t, err2)
	require.JSONEq(t, `{"v":3}`, string(revs[persistence.RevisionKey{ID: id, Ts: 10}].Value.Value))

	require.Empty(t, scanKeys(t, p, index, tablet, 10, persistence.AllInterval(), persistence.Ascending, 0))
}

func testWriteIsAtomic(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var tablet = persistence.NewTabletID()
	var index = persistence.NewIndexID()
	var a = persistence.NewDocumentID(tablet, ID(1))
	var b = persistence.NewDocumentID(tablet, ID(2))

	require.NoError(t, p.Write(ctx, []persistence.DocumentLogEntry{
		Document(t, a, 5, map[string]int{"a": 1}),
	}, nil, persistence.ConflictStrategyError))

	// The batch's final entry conflicts, so none of it commits.
	var err = p.Write(ctx, []persistence.DocumentLogEntry{
		Document(t, b, 6, map[string]int{"b": 1}),
		Document(t, a, 5, map[string]int{"a": 2}),
	}, []persistence.IndexEntry{Index(index, "b", 6, b)}, persistence.ConflictStrategyError)
	require.True(t, persistence.IsConflict(err), "%v", err)

	var docs = LoadAll(t, p)
	require.Len(t, docs, 1)
	require.JSONEq(t, `{"a":1}`, string(docs[0].Value.Value))
	require.Empty(t, scanKeys(t, p, index, tablet, persistence.MaxTimestamp, persistence.AllInterval(), persistence.Ascending, 0))

	var maxTs, ok, err2 = p.Reader().MaxTimestamp(ctx)
	require.NoError(t, err2)
	require.True(t, ok)
	require.Equal(t, persistence.Timestamp(5), maxTs)
}

func testWriteValidation(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var tablet = persistence.NewTabletID()
	var id = persistence.NewDocumentID(tablet, ID(1))
	var index = persistence.NewIndexID()

	var mismatched = Document(t, id, 1, map[string]int{"v": 1})
	mismatched.Value.Tablet = persistence.NewTabletID()

	var prev = persistence.Timestamp(1)
	var chained = Document(t, id, 2, map[string]int{"v": 2})
	chained.PrevTs = &prev

	var backwards = Document(t, id, 2, map[string]int{"v": 2})
	var later = persistence.Timestamp(3)
	backwards.PrevTs = &later

	var live = persistence.NewIndexEntry(index, []byte("k"), 1, nil, false)
	var long = persistence.NewIndexEntry(index, []byte("k"), 1, &id, false)
	long.KeyPrefix = bytes.Repeat([]byte("k"), persistence.MaxIndexKeyPrefixLen+1)

	for _, tc := range []struct {
		docs     []persistence.DocumentLogEntry
		indexes  []persistence.IndexEntry
		strategy persistence.ConflictStrategy
	}{
		{docs: []persistence.DocumentLogEntry{mismatched}},
		{docs: []persistence.DocumentLogEntry{chained}}, // No entry at PrevTs.
		{docs: []persistence.DocumentLogEntry{backwards}},
		{indexes: []persistence.IndexEntry{live}},
		{indexes: []persistence.IndexEntry{long}},
		{strategy: persistence.ConflictStrategy(42)},
	} {
		var err = p.Write(ctx, tc.docs, tc.indexes, tc.strategy)
		require.True(t, persistence.IsValidation(err), "%v", err)
	}
	require.Empty(t, LoadAll(t, p))

	// A PrevTs may be satisfied earlier within the same batch.
	require.NoError(t, p.Write(ctx, []persistence.DocumentLogEntry{
		Document(t, id, 1, map[string]int{"v": 1}),
		chained,
	}, nil, persistence.ConflictStrategyError))

	// Or by a committed entry.
	require.NoError(t, p.Write(ctx, []persistence.DocumentLogEntry{
		Tombstone(id, 3, 2),
	}, nil, persistence.ConflictStrategyError))

	var docs = LoadAll(t, p)
	require.Len(t, docs, 3)
	require.True(t, docs[2].IsTombstone())
	require.Equal(t, persistence.Timestamp(2), *docs[2].PrevTs)
}

func testRevisions(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var tablet = persistence.NewTabletID()
	var id = persistence.NewDocumentID(tablet, ID(1))
	var other = persistence.NewDocumentID(tablet, ID(2))

	var v1 = Document(t, id, 10, map[string]int{"v": 1})
	var v2 = Document(t, id, 20, map[string]int{"v": 2})
	v2.PrevTs = &v1.Ts
	var v3 = Tombstone(id, 30, 20)

	require.NoError(t, p.Write(ctx, []persistence.DocumentLogEntry{v1, v2, v3}, nil, persistence.ConflictStrategyError))

	var prev, err = p.Reader().PreviousRevisions(ctx, []persistence.RevisionQuery{
		{ID: id, Ts: 10},
		{ID: id, Ts: 11},
		{ID: id, Ts: 30},
		{ID: id, Ts: 100},
		{ID: other, Ts: 100},
	})
	require.NoError(t, err)
	require.Len(t, prev, 3)
	require.Equal(t, persistence.Timestamp(10), prev[persistence.RevisionQuery{ID: id, Ts: 11}].Ts)
	require.JSONEq(t, `{"v":2}`, string(prev[persistence.RevisionQuery{ID: id, Ts: 30}].Value.Value))
	require.True(t, prev[persistence.RevisionQuery{ID: id, Ts: 100}].IsTombstone())

	// LoadRevisions is served repeatedly, and returns owned copies.
	for i := 0; i != 2; i++ {
		var revs, err = p.Reader().LoadRevisions(ctx, []persistence.RevisionKey{
			{ID: id, Ts: 10},
			{ID: id, Ts: 20},
			{ID: id, Ts: 25},
			{ID: other, Ts: 10},
		})
		require.NoError(t, err)
		require.Len(t, revs, 2)

		var rev = revs[persistence.RevisionKey{ID: id, Ts: 20}]
		require.JSONEq(t, `{"v":2}`, string(rev.Value.Value))
		require.Equal(t, persistence.Timestamp(10), *rev.PrevTs)
		rev.Value.Value[0] = ' '
	}
}

func testMaxTimestamp(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var _, ok, err = p.Reader().MaxTimestamp(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	var tablet = persistence.NewTabletID()
	var id = persistence.NewDocumentID(tablet, ID(1))

	require.NoError(t, p.Write(ctx, []persistence.DocumentLogEntry{
		Document(t, id, 7, map[string]int{"v": 1}),
	}, []persistence.IndexEntry{
		Index(persistence.NewIndexID(), "k", 12, id),
	}, persistence.ConflictStrategyError))

	maxTs, ok, err := p.Reader().MaxTimestamp(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, persistence.Timestamp(12), maxTs)
}

func testGlobals(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var key = persistence.GlobalMaxRepeatableTimestamp

	var value, err = p.GetGlobal(ctx, key)
	require.NoError(t, err)
	require.Nil(t, value)

	require.NoError(t, p.WriteGlobal(ctx, key, []byte(`1234`)))
	require.NoError(t, p.WriteGlobal(ctx, persistence.GlobalRetentionMinSnapshotTimestamp, []byte(`{"ts":5}`)))
	require.NoError(t, p.WriteGlobal(ctx, key, []byte(`5678`)))

	value, err = p.GetGlobal(ctx, key)
	require.NoError(t, err)
	require.JSONEq(t, `5678`, string(value))

	value, err = p.GetGlobal(ctx, persistence.GlobalRetentionMinSnapshotTimestamp)
	require.NoError(t, err)
	require.JSONEq(t, `{"ts":5}`, string(value))

	err = p.WriteGlobal(ctx, key, []byte(`{not json`))
	require.True(t, persistence.IsValidation(err), "%v", err)
}

func testStreamLifecycle(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var tablet = persistence.NewTabletID()
	var docs []persistence.DocumentLogEntry

	for i := byte(0); i != 10; i++ {
		docs = append(docs, Document(t, persistence.NewDocumentID(tablet, ID(i)),
			persistence.Timestamp(i), map[string]byte{"i": i}))
	}
	require.NoError(t, p.Write(ctx, docs, nil, persistence.ConflictStrategyError))

	// A stream may be closed before it's exhausted, and repeatedly.
	var s = p.Reader().LoadDocuments(ctx, persistence.AllTimestamps(), persistence.Ascending, 3, nil)
	var first, err = s.Next()
	require.NoError(t, err)
	require.Equal(t, persistence.Timestamp(0), first.Ts)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Next()
	require.Equal(t, persistence.ErrClosed, err)

	// An exhausted stream repeatedly returns io.EOF.
	s = p.Reader().LoadDocuments(ctx, persistence.AllTimestamps(), persistence.Ascending, 4, nil)
	for i := 0; i != 10; i++ {
		_, err = s.Next()
		require.NoError(t, err)
	}
	_, err = s.Next()
	require.Equal(t, io.EOF, err)
	_, err = s.Next()
	require.Equal(t, io.EOF, err)
	require.NoError(t, s.Close())

	// Many streams may be open at once.
	var streams []*persistence.DocumentStream
	for i := 0; i != 5; i++ {
		streams = append(streams, p.Reader().LoadDocuments(ctx, persistence.AllTimestamps(), persistence.Ascending, 2, nil))
	}
	for _, s := range streams {
		require.Len(t, Collect(t, s), 10)
	}
}

func testCheckpoint(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var tablet = persistence.MinTabletID

	for i := byte(0); i != 10; i++ {
		require.NoError(t, p.Write(ctx, []persistence.DocumentLogEntry{
			Document(t, persistence.NewDocumentID(tablet, ID(i)), persistence.Timestamp(i), map[string]byte{"data": i}),
		}, nil, persistence.ConflictStrategyError))
	}
	for _, mode := range []persistence.CheckpointMode{
		persistence.CheckpointPassive,
		persistence.CheckpointFull,
		persistence.CheckpointRestart,
		persistence.CheckpointTruncate,
	} {
		var result, err = p.Checkpoint(ctx, mode)
		require.NoError(t, err)
		require.False(t, result.Busy)
		require.Equal(t, int64(0), result.PagesRemaining())
	}
	require.Len(t, LoadAll(t, p), 10)

	var _, err = p.Checkpoint(ctx, persistence.CheckpointMode(42))
	require.True(t, persistence.IsValidation(err), "%v", err)
}

func testClosed(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	var id = persistence.NewDocumentID(persistence.NewTabletID(), ID(1))
	var err = p.Write(ctx, []persistence.DocumentLogEntry{
		Document(t, id, 1, map[string]int{"v": 1}),
	}, nil, persistence.ConflictStrategyError)
	require.Equal(t, persistence.ErrClosed, err)

	_, err = p.Reader().LoadDocuments(ctx, persistence.AllTimestamps(), persistence.Ascending, 0, nil).Collect()
	require.Equal(t, persistence.ErrClosed, err)
	_, err = p.Checkpoint(ctx, persistence.CheckpointPassive)
	require.Equal(t, persistence.ErrClosed, err)
	_, err = p.GetGlobal(ctx, persistence.GlobalMaxRepeatableTimestamp)
	require.Equal(t, persistence.ErrClosed, err)
}

func testSnapshotIsolation(t *testing.T, p persistence.Persistence) {
	var ctx = context.Background()
	var tablet = persistence.NewTabletID()
	var index = persistence.NewIndexID()
	var docs []persistence.DocumentLogEntry
	var indexes []persistence.IndexEntry

	for i := byte(0); i != 6; i++ {
		var id = persistence.NewDocumentID(tablet, ID(i))
		docs = append(docs, Document(t, id, 1, map[string]byte{"i": i}))
		indexes = append(indexes, Index(index, string(rune('a'+i)), 1, id))
	}
	require.NoError(t, p.Write(ctx, docs, indexes, persistence.ConflictStrategyError))

	// Streams are created, and read partially, before further writes commit.
	var docStream = p.Reader().LoadDocuments(ctx, persistence.AllTimestamps(), persistence.Ascending, 2, nil)
	var idxStream = p.Reader().IndexScan(ctx, index, tablet, persistence.MaxTimestamp,
		persistence.AllInterval(), persistence.Ascending, 2, nil)
	var untouched = p.Reader().LoadDocuments(ctx, persistence.AllTimestamps(), persistence.Ascending, 2, nil)

	var _, err = docStream.Next()
	require.NoError(t, err)
	_, err = idxStream.Next()
	require.NoError(t, err)

	var id = persistence.NewDocumentID(tablet, ID(0xff))
	require.NoError(t, p.Write(ctx, []persistence.DocumentLogEntry{
		Document(t, id, 2, map[string]int{"new": 1}),
		Document(t, persistence.NewDocumentID(tablet, ID(0x80)), 0, map[string]int{"new": 2}),
	}, []persistence.IndexEntry{
		Index(index, "aa", 2, id),
		persistence.NewIndexEntry(index, []byte("f"), 2, nil, true),
	}, persistence.ConflictStrategyError))

	require.Len(t, Collect(t, docStream), 5)
	require.Len(t, Collect(t, idxStream), 5)
	require.Len(t, Collect(t, untouched), 6)

	// New streams observe the write.
	require.Len(t, LoadAll(t, p), 8)
	require.Equal(t, []string{"a", "aa", "b", "c", "d", "e"},
		scanKeys(t, p, index, tablet, persistence.MaxTimestamp, persistence.AllInterval(), persistence.Ascending, 2))
}
