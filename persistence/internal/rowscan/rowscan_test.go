package rowscan

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"go.gazette.dev/docstore/persistence"
	"go.gazette.dev/docstore/persistence/codecs"
)

func TestDocumentDecodesRows(t *testing.T) {
	var db = openDB(t)
	var tablet, id = persistence.NewTabletID(), persistence.NewInternalID()

	var value, err = codecs.Snappy.Encode([]byte(`{"a":1}`))
	require.NoError(t, err)

	rows, err := db.Query(`SELECT ?, ?, 7, 0, ?, ?, 3 UNION ALL SELECT ?, ?, 9, 1, 0, NULL, 7`,
		tablet[:], id[:], int(codecs.Snappy), value, tablet[:], id[:])
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	live, err := Document(rows)
	require.NoError(t, err)
	require.Equal(t, persistence.NewDocumentID(tablet, id), live.ID)
	require.Equal(t, persistence.Timestamp(7), live.Ts)
	require.Equal(t, persistence.Timestamp(3), *live.PrevTs)
	require.Equal(t, tablet, live.Value.Tablet)
	require.JSONEq(t, `{"a":1}`, string(live.Value.Value))

	require.True(t, rows.Next())
	tombstone, err := Document(rows)
	require.NoError(t, err)
	require.True(t, tombstone.IsTombstone())
	require.Equal(t, persistence.Timestamp(7), *tombstone.PrevTs)
}

func TestMalformedDocumentIsAStorageError(t *testing.T) {
	var db = openDB(t)

	var rows, err = db.Query(`SELECT x'0102', x'00', 1, 0, 0, '{}', NULL`)
	require.NoError(t, err)

	_, ok, err := OneDocument(rows)
	require.False(t, ok)
	require.True(t, persistence.IsStorage(err), "%v", err)
	require.EqualError(t, err, "malformed row: document tablet_id: invalid TabletID: expected 16 bytes (got 2)")

	var id = persistence.NewInternalID()
	rows, err = db.Query(`SELECT ?, ?, -5, 1, 0, NULL, NULL`, id[:], id[:])
	require.NoError(t, err)

	_, _, err = OneDocument(rows)
	require.True(t, persistence.IsStorage(err), "%v", err)
	require.EqualError(t, err, "malformed row: document ts: negative timestamp -5")
}

func TestOneDocumentOfNoRows(t *testing.T) {
	var db = openDB(t)

	var rows, err = db.Query(`SELECT 1 WHERE 0`)
	require.NoError(t, err)

	_, ok, err := OneDocument(rows)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIndexEntryDecodesRows(t *testing.T) {
	var db = openDB(t)
	var index = persistence.NewIndexID()
	var doc = persistence.NewDocumentID(persistence.NewTabletID(), persistence.NewInternalID())
	var entry = persistence.NewIndexEntry(index, []byte("key"), 4, &doc, false)

	var rows, err = db.Query(`SELECT ?, ?, x'', ?, 4, 0, ?, ? UNION ALL SELECT ?, ?, x'', ?, 5, 1, NULL, NULL`,
		index[:], entry.KeyPrefix, entry.KeySHA256, doc.Tablet[:], doc.Internal[:],
		index[:], entry.KeyPrefix, entry.KeySHA256)
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	live, err := IndexEntry(rows)
	require.NoError(t, err)
	require.Equal(t, entry, live)

	require.True(t, rows.Next())
	deleted, err := IndexEntry(rows)
	require.NoError(t, err)
	require.True(t, deleted.Deleted)
	require.Nil(t, deleted.Value)
	require.Nil(t, deleted.KeySuffix)
	require.True(t, live.SameKey(deleted))
}

func TestMaxTimestamp(t *testing.T) {
	var ts, ok, err = MaxTimestamp(sql.NullInt64{})
	require.NoError(t, err)
	require.False(t, ok)

	ts, ok, err = MaxTimestamp(sql.NullInt64{Int64: 42, Valid: true})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, persistence.Timestamp(42), ts)

	_, _, err = MaxTimestamp(sql.NullInt64{Int64: -1, Valid: true})
	require.True(t, persistence.IsStorage(err))
}

func TestReleaseOfFinishedTransaction(t *testing.T) {
	var db = openDB(t)

	var txn, err = db.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.Rollback())
	require.NoError(t, Release(txn))
}

func TestNonNil(t *testing.T) {
	require.Equal(t, []byte{}, NonNil(nil))
	require.Equal(t, []byte("x"), NonNil([]byte("x")))
}

func openDB(t *testing.T) *sql.DB {
	var db, err = sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}
