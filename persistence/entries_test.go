package persistence

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIndexEntrySplitsLongKeys(t *testing.T) {
	var index = NewIndexID()
	var id = NewDocumentID(NewTabletID(), NewInternalID())

	var short = NewIndexEntry(index, []byte("short"), 3, &id, false)
	require.Equal(t, []byte("short"), short.KeyPrefix)
	require.Empty(t, short.KeySuffix)
	require.Equal(t, []byte("short"), short.Key())
	require.NoError(t, short.Validate())

	var key = append(bytes.Repeat([]byte{'a'}, MaxIndexKeyPrefixLen), "tail"...)
	var long = NewIndexEntry(index, key, 3, &id, false)
	require.Len(t, long.KeyPrefix, MaxIndexKeyPrefixLen)
	require.Equal(t, []byte("tail"), long.KeySuffix)
	require.Equal(t, key, long.Key())
	require.NoError(t, long.Validate())

	var sum = sha256.Sum256(key)
	require.Equal(t, sum[:], long.KeySHA256)
}

func TestIndexEntryKeyComparison(t *testing.T) {
	var index = NewIndexID()
	var a1 = NewIndexEntry(index, []byte("a"), 1, nil, true)
	var a2 = NewIndexEntry(index, []byte("a"), 2, nil, true)
	var b1 = NewIndexEntry(index, []byte("b"), 1, nil, true)

	require.True(t, a1.SameKey(a2))
	require.False(t, a1.SameKey(b1))
	require.Equal(t, 0, a1.CompareKey(a2))
	require.Equal(t, -1, a2.CompareKey(b1))

	var other = a1
	other.IndexID = NewIndexID()
	require.False(t, a1.SameKey(other))
}

func TestEntryValidation(t *testing.T) {
	var tablet = NewTabletID()
	var id = NewDocumentID(tablet, NewInternalID())
	var doc, _ = NewResolvedDocument(tablet, map[string]int{"a": 1})
	var prev = Timestamp(5)

	require.NoError(t, DocumentLogEntry{Ts: 6, ID: id, Value: doc, PrevTs: &prev}.Validate())
	require.NoError(t, DocumentLogEntry{Ts: 6, ID: id}.Validate())

	for _, entry := range []DocumentLogEntry{
		{Ts: 5, ID: id, PrevTs: &prev},
		{Ts: 6, ID: NewDocumentID(NewTabletID(), id.Internal), Value: doc},
		{Ts: 6, ID: id, Value: &ResolvedDocument{Tablet: tablet}},
		{Ts: MaxTimestamp + 1, ID: id},
	} {
		require.True(t, IsValidation(entry.Validate()), "%#v", entry)
	}

	var index = NewIndexID()
	require.NoError(t, NewIndexEntry(index, []byte("k"), 1, nil, true).Validate())

	var live = NewIndexEntry(index, []byte("k"), 1, nil, false)
	require.EqualError(t, live.Validate(), "invalid IndexEntry.Value: live index entry must reference a document")

	var bad = NewIndexEntry(index, []byte("k"), 1, &id, false)
	bad.KeySuffix = []byte("x")
	require.True(t, IsValidation(bad.Validate()))

	bad = NewIndexEntry(index, []byte("k"), 1, &id, false)
	bad.KeySHA256 = nil
	require.True(t, IsValidation(bad.Validate()))
}

func TestEntryClonesAreDeep(t *testing.T) {
	var tablet = NewTabletID()
	var id = NewDocumentID(tablet, NewInternalID())
	var doc, _ = NewResolvedDocument(tablet, map[string]int{"a": 1})
	var prev = Timestamp(1)

	var entry = DocumentLogEntry{Ts: 2, ID: id, Value: doc, PrevTs: &prev}
	var clone = entry.Clone()
	*clone.PrevTs = 0
	clone.Value.Value[1] = 'X'

	require.Equal(t, Timestamp(1), *entry.PrevTs)
	require.Equal(t, `{"a":1}`, string(entry.Value.Value))
	require.False(t, entry.IsTombstone())
	require.True(t, DocumentLogEntry{}.IsTombstone())

	var idx = NewIndexEntry(NewIndexID(), []byte("k"), 1, &id, false)
	var idxClone = idx.Clone()
	idxClone.KeyPrefix[0] = 'z'
	idxClone.Value.Internal[0] ^= 0xff
	require.Equal(t, []byte("k"), idx.KeyPrefix)
	require.Equal(t, id, *idx.Value)
}
