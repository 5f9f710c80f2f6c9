package sqlite

import (
	"context"
	"database/sql"

	"github.com/mattn/go-sqlite3"
	"go.gazette.dev/docstore/persistence"
	"go.gazette.dev/docstore/persistence/internal/rowscan"
)

// Write atomically commits |documents| and |indexes| within one transaction.
func (s *Store) Write(ctx context.Context, documents []persistence.DocumentLogEntry, indexes []persistence.IndexEntry, strategy persistence.ConflictStrategy) error {
	var external, err = persistence.ValidateWrite(documents, indexes, strategy)
	if err != nil {
		return err
	}
	// Encode values before taking the write slot.
	var values = make([][]byte, len(documents))
	for i, doc := range documents {
		if doc.Value == nil {
			continue
		} else if values[i], err = s.opts.Codec.Encode(doc.Value.Value); err != nil {
			return persistence.NewStorageError("encoding document value", err)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return persistence.ErrClosed
	}
	txn, err := s.writeConn.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewStorageError("beginning write", err)
	}
	if err = s.write(ctx, txn, documents, values, indexes, external, strategy); err != nil {
		_ = txn.Rollback()
		return err
	} else if err = txn.Commit(); err != nil {
		return persistence.NewStorageError("committing write", err)
	}

	if strategy == persistence.ConflictStrategyOverwrite {
		s.cache.invalidate(documents)
	}
	return nil
}

func (s *Store) write(
	ctx context.Context,
	txn *sql.Tx,
	documents []persistence.DocumentLogEntry,
	values [][]byte,
	indexes []persistence.IndexEntry,
	external []persistence.RevisionKey,
	strategy persistence.ConflictStrategy,
) error {
	for _, key := range external {
		var n int
		if err := txn.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE tablet_id = ? AND id = ? AND ts = ?`,
			key.ID.Tablet[:], key.ID.Internal[:], int64(key.Ts)).Scan(&n); err != nil {
			return persistence.NewStorageError("checking prev_ts", err)
		} else if n == 0 {
			return persistence.MissingPrevTsError(key)
		}
	}

	var verb = "INSERT"
	if strategy == persistence.ConflictStrategyOverwrite {
		verb = "INSERT OR REPLACE"
	} else if err := checkConflicts(ctx, txn, documents, indexes); err != nil {
		return err
	}

	docStmt, err := txn.PrepareContext(ctx,
		verb+` INTO documents (`+rowscan.DocumentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return persistence.NewStorageError("preparing document insert", err)
	}
	defer docStmt.Close()

	for i, doc := range documents {
		var prevTs interface{}
		if doc.PrevTs != nil {
			prevTs = int64(*doc.PrevTs)
		}
		var value interface{}
		if doc.Value != nil {
			value = values[i]
		}
		if _, err = docStmt.ExecContext(ctx,
			doc.ID.Tablet[:],
			doc.ID.Internal[:],
			int64(doc.Ts),
			doc.Value == nil,
			int(s.opts.Codec),
			value,
			prevTs,
		); err != nil {
			var id = doc.ID
			return constraintOr(err, &persistence.ConflictError{Document: &id, Ts: doc.Ts}, "inserting document")
		}
	}

	idxStmt, err := txn.PrepareContext(ctx,
		verb+` INTO indexes (`+rowscan.IndexColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return persistence.NewStorageError("preparing index insert", err)
	}
	defer idxStmt.Close()

	for _, idx := range indexes {
		var tablet, id interface{}
		if idx.Value != nil {
			tablet, id = idx.Value.Tablet[:], idx.Value.Internal[:]
		}
		if _, err = idxStmt.ExecContext(ctx,
			idx.IndexID[:],
			rowscan.NonNil(idx.KeyPrefix),
			rowscan.NonNil(idx.KeySuffix),
			idx.KeySHA256,
			int64(idx.Ts),
			idx.Deleted,
			tablet,
			id,
		); err != nil {
			var index = idx.IndexID
			return constraintOr(err, &persistence.ConflictError{Index: &index, Key: idx.Key(), Ts: idx.Ts}, "inserting index entry")
		}
	}
	return nil
}

// checkConflicts returns a *ConflictError if an entry collides with another
// of the batch, or with a committed entry.
func checkConflicts(ctx context.Context, txn *sql.Tx, documents []persistence.DocumentLogEntry, indexes []persistence.IndexEntry) error {
	var seenDocs = make(map[persistence.RevisionKey]struct{}, len(documents))

	for _, doc := range documents {
		var key = persistence.RevisionKey{ID: doc.ID, Ts: doc.Ts}
		var id = doc.ID

		if _, ok := seenDocs[key]; ok {
			return &persistence.ConflictError{Document: &id, Ts: doc.Ts}
		}
		seenDocs[key] = struct{}{}

		var n int
		if err := txn.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE tablet_id = ? AND id = ? AND ts = ?`,
			doc.ID.Tablet[:], doc.ID.Internal[:], int64(doc.Ts)).Scan(&n); err != nil {
			return persistence.NewStorageError("checking document conflict", err)
		} else if n != 0 {
			return &persistence.ConflictError{Document: &id, Ts: doc.Ts}
		}
	}

	type indexKey struct {
		index persistence.IndexID
		sha   string
		ts    persistence.Timestamp
	}
	var seenIdx = make(map[indexKey]struct{}, len(indexes))

	for _, idx := range indexes {
		var key = indexKey{idx.IndexID, string(idx.KeySHA256), idx.Ts}
		var index = idx.IndexID

		if _, ok := seenIdx[key]; ok {
			return &persistence.ConflictError{Index: &index, Key: idx.Key(), Ts: idx.Ts}
		}
		seenIdx[key] = struct{}{}

		var n int
		if err := txn.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM indexes
			WHERE index_id = ? AND key_prefix = ? AND key_suffix = ? AND key_sha256 = ? AND ts = ?`,
			idx.IndexID[:], rowscan.NonNil(idx.KeyPrefix), rowscan.NonNil(idx.KeySuffix), idx.KeySHA256, int64(idx.Ts),
		).Scan(&n); err != nil {
			return persistence.NewStorageError("checking index conflict", err)
		} else if n != 0 {
			return &persistence.ConflictError{Index: &index, Key: idx.Key(), Ts: idx.Ts}
		}
	}
	return nil
}

// constraintOr returns |conflict| if |err| is a uniqueness violation,
// and otherwise a *StorageError of |op|.
func constraintOr(err error, conflict *persistence.ConflictError, op string) error {
	if se, ok := err.(sqlite3.Error); ok && se.Code == sqlite3.ErrConstraint &&
		(se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique) {
		return conflict
	}
	return persistence.NewStorageError(op, err)
}
