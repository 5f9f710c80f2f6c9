package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.gazette.dev/docstore/persistence"
	"go.gazette.dev/docstore/persistence/internal/rowscan"
)

// Write atomically commits |documents| and |indexes| within one transaction.
func (s *Store) Write(ctx context.Context, documents []persistence.DocumentLogEntry, indexes []persistence.IndexEntry, strategy persistence.ConflictStrategy) error {
	var external, err = persistence.ValidateWrite(documents, indexes, strategy)
	if err != nil {
		return err
	}
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
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewStorageError("beginning write", err)
	}
	if err = s.write(ctx, txn, documents, values, indexes, external, strategy); err != nil {
		_ = txn.Rollback()
		return err
	} else if err = txn.Commit(); err != nil {
		return persistence.NewStorageError("committing write", err)
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
		var exists bool
		if err := txn.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+s.tables.documents+`
			WHERE tablet_id = $1 AND id = $2 AND ts = $3)`,
			key.ID.Tablet[:], key.ID.Internal[:], int64(key.Ts)).Scan(&exists); err != nil {
			return persistence.NewStorageError("checking prev_ts", err)
		} else if !exists {
			return persistence.MissingPrevTsError(key)
		}
	}

	var docSQL = `INSERT INTO ` + s.tables.documents + ` (tablet_id, id, ts, deleted, codec, value, prev_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	var idxSQL = `INSERT INTO ` + s.tables.indexes + ` (index_id, key_prefix, key_suffix, key_sha256, ts, deleted, tablet_id, document_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if strategy == persistence.ConflictStrategyOverwrite {
		docSQL += ` ON CONFLICT (ts, tablet_id, id) DO UPDATE SET
			deleted = excluded.deleted, codec = excluded.codec, value = excluded.value, prev_ts = excluded.prev_ts`
		idxSQL += ` ON CONFLICT (index_id, key_prefix, key_suffix, key_sha256, ts) DO UPDATE SET
			deleted = excluded.deleted, tablet_id = excluded.tablet_id, document_id = excluded.document_id`
	} else if err := checkBatchConflicts(documents, indexes); err != nil {
		return err
	}

	for i, doc := range documents {
		var prevTs, value interface{}
		if doc.PrevTs != nil {
			prevTs = int64(*doc.PrevTs)
		}
		if doc.Value != nil {
			value = values[i]
		}
		if _, err := txn.ExecContext(ctx, docSQL,
			doc.ID.Tablet[:],
			doc.ID.Internal[:],
			int64(doc.Ts),
			doc.Value == nil,
			int(s.opts.Codec),
			value,
			prevTs,
		); err != nil {
			var id = doc.ID
			return wrapConflict(err, &persistence.ConflictError{Document: &id, Ts: doc.Ts}, "inserting document")
		}
	}
	for _, idx := range indexes {
		var tablet, id interface{}
		if idx.Value != nil {
			tablet, id = idx.Value.Tablet[:], idx.Value.Internal[:]
		}
		if _, err := txn.ExecContext(ctx, idxSQL,
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
			return wrapConflict(err, &persistence.ConflictError{Index: &index, Key: idx.Key(), Ts: idx.Ts}, "inserting index entry")
		}
	}
	return nil
}

// checkBatchConflicts returns a *ConflictError if entries of the batch
// collide with one another. Collisions with committed rows are instead
// detected as unique violations.
func checkBatchConflicts(documents []persistence.DocumentLogEntry, indexes []persistence.IndexEntry) error {
	var docs = make(map[persistence.RevisionKey]struct{}, len(documents))
	for _, doc := range documents {
		var key = persistence.RevisionKey{ID: doc.ID, Ts: doc.Ts}
		if _, ok := docs[key]; ok {
			var id = doc.ID
			return &persistence.ConflictError{Document: &id, Ts: doc.Ts}
		}
		docs[key] = struct{}{}
	}

	type indexKey struct {
		index persistence.IndexID
		key   string
		ts    persistence.Timestamp
	}
	var idxs = make(map[indexKey]struct{}, len(indexes))
	for _, idx := range indexes {
		var key = indexKey{idx.IndexID, string(idx.Key()), idx.Ts}
		if _, ok := idxs[key]; ok {
			var index = idx.IndexID
			return &persistence.ConflictError{Index: &index, Key: idx.Key(), Ts: idx.Ts}
		}
		idxs[key] = struct{}{}
	}
	return nil
}

// WriteGlobal durably sets the value of global |key|.
func (s *Store) WriteGlobal(ctx context.Context, key persistence.GlobalKey, value json.RawMessage) error {
	if key == "" {
		return &persistence.ValidationError{Field: "GlobalKey", Reason: "expected a non-empty key"}
	} else if !json.Valid(value) {
		return &persistence.ValidationError{Field: "global value", Reason: "not valid JSON"}
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return persistence.ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO `+s.tables.globals+` (key, json_value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET json_value = excluded.json_value`,
		string(key), string(value),
	); err != nil {
		return persistence.NewStorageError("writing global", err)
	}
	return nil
}

// GetGlobal returns the value of global |key|, or nil if it isn't set.
func (s *Store) GetGlobal(ctx context.Context, key persistence.GlobalKey) (json.RawMessage, error) {
	if s.closed.Load() {
		return nil, persistence.ErrClosed
	}
	var value []byte
	var err = s.db.QueryRowContext(ctx, `SELECT json_value FROM `+s.tables.globals+` WHERE key = $1`,
		string(key)).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, persistence.NewStorageError("reading global", err)
	}
	return json.RawMessage(value), nil
}
