// Package rowscan decodes rows of the documents and indexes tables which are
// shared by SQL-backed persistence implementations.
package rowscan

import (
	"database/sql"

	"github.com/pkg/errors"
	"go.gazette.dev/docstore/persistence"
	"go.gazette.dev/docstore/persistence/codecs"
)

const (
	// DocumentColumns are the selected columns of a documents row.
	DocumentColumns = `tablet_id, id, ts, deleted, codec, value, prev_ts`
	// IndexColumns are the selected columns of an indexes row.
	IndexColumns = `index_id, key_prefix, key_suffix, key_sha256, ts, deleted, tablet_id, document_id`
)

// Document scans a row of DocumentColumns.
func Document(rows *sql.Rows) (persistence.DocumentLogEntry, error) {
	var (
		tablet, id []byte
		ts         int64
		deleted    bool
		codec      int
		value      []byte
		prevTs     sql.NullInt64
		out        persistence.DocumentLogEntry
	)
	if err := rows.Scan(&tablet, &id, &ts, &deleted, &codec, &value, &prevTs); err != nil {
		return out, persistence.NewStorageError("scanning document", err)
	}
	var err error
	if out.ID.Tablet, err = persistence.TabletIDFromBytes(tablet); err != nil {
		return out, malformed("document tablet_id", err)
	} else if out.ID.Internal, err = persistence.InternalIDFromBytes(id); err != nil {
		return out, malformed("document id", err)
	} else if out.Ts, err = Timestamp(ts); err != nil {
		return out, malformed("document ts", err)
	}
	if prevTs.Valid {
		var p persistence.Timestamp
		if p, err = Timestamp(prevTs.Int64); err != nil {
			return out, malformed("document prev_ts", err)
		}
		out.PrevTs = &p
	}
	if !deleted {
		if value, err = codecs.Codec(codec).Decode(value); err != nil {
			return out, malformed("document value", err)
		}
		out.Value = &persistence.ResolvedDocument{Tablet: out.ID.Tablet, Value: value}
	}
	return out, nil
}

// OneDocument scans the first row of |rows|, if there is one, and closes it.
func OneDocument(rows *sql.Rows) (persistence.DocumentLogEntry, bool, error) {
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return persistence.DocumentLogEntry{}, false, persistence.NewStorageError("loading document", err)
		}
		return persistence.DocumentLogEntry{}, false, nil
	}
	var entry, err = Document(rows)
	return entry, err == nil, err
}

// IndexEntry scans a row of IndexColumns.
func IndexEntry(rows *sql.Rows) (persistence.IndexEntry, error) {
	var (
		index, tablet, id []byte
		ts                int64
		out               persistence.IndexEntry
	)
	if err := rows.Scan(&index, &out.KeyPrefix, &out.KeySuffix, &out.KeySHA256, &ts, &out.Deleted, &tablet, &id); err != nil {
		return out, persistence.NewStorageError("scanning index entry", err)
	}
	var err error
	if out.IndexID, err = persistence.IndexIDFromBytes(index); err != nil {
		return out, malformed("index_id", err)
	} else if out.Ts, err = Timestamp(ts); err != nil {
		return out, malformed("index ts", err)
	}
	if len(out.KeySuffix) == 0 {
		out.KeySuffix = nil
	}
	if tablet != nil {
		var doc persistence.DocumentID
		if doc.Tablet, err = persistence.TabletIDFromBytes(tablet); err != nil {
			return out, malformed("index tablet_id", err)
		} else if doc.Internal, err = persistence.InternalIDFromBytes(id); err != nil {
			return out, malformed("index document_id", err)
		}
		out.Value = &doc
	}
	return out, nil
}

// Timestamp validates a stored BIGINT timestamp.
func Timestamp(v int64) (persistence.Timestamp, error) {
	if v < 0 {
		return 0, errors.Errorf("negative timestamp %d", v)
	}
	return persistence.NewTimestamp(uint64(v))
}

// MaxTimestamp maps the result of a MAX(ts) query.
func MaxTimestamp(ts sql.NullInt64) (persistence.Timestamp, bool, error) {
	if !ts.Valid {
		return 0, false, nil
	}
	var out, err = Timestamp(ts.Int64)
	if err != nil {
		return 0, false, malformed("max timestamp", err)
	}
	return out, true, nil
}

// Release a read transaction. A transaction which was already rolled back
// due to a cancelled context is not an error.
func Release(txn *sql.Tx) error {
	if err := txn.Rollback(); err != nil && err != sql.ErrTxDone {
		return persistence.NewStorageError("releasing read", err)
	}
	return nil
}

// NonNil maps a nil slice to an empty one, which binds as an empty BLOB
// rather than NULL.
func NonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// malformed is always a *StorageError, even where |err| is a *ValidationError
// of the decoded value.
func malformed(what string, err error) error {
	return &persistence.StorageError{Op: "malformed row", Err: errors.WithMessage(err, what)}
}
