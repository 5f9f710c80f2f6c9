package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"go.gazette.dev/docstore/persistence"
	"go.gazette.dev/docstore/persistence/internal/rowscan"
)

type reader struct {
	store *Store
}

// snapshot begins a read transaction of the Store, and immediately reads
// from it so that its snapshot is established now rather than at its first
// page. The transaction must be released by the caller.
func (s *Store) snapshot(ctx context.Context) (*sql.Tx, error) {
	if s.closed.Load() {
		return nil, persistence.ErrClosed
	}
	var txn, err = s.readDB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, persistence.NewStorageError("beginning read", err)
	}
	var n int
	if err = txn.QueryRowContext(ctx, `SELECT COUNT(*) FROM (SELECT 1 FROM documents LIMIT 1)`).Scan(&n); err != nil {
		_ = txn.Rollback()
		return nil, persistence.NewStorageError("establishing snapshot", err)
	}
	return txn, nil
}

func (r *reader) LoadDocuments(ctx context.Context, tsRange persistence.TimestampRange, order persistence.Order, pageSize int, retention persistence.RetentionValidator) *persistence.DocumentStream {
	if err := tsRange.Validate(); err != nil {
		return persistence.ErrorStream[persistence.DocumentLogEntry](err)
	}
	var txn, err = r.store.snapshot(ctx)
	if err != nil {
		return persistence.ErrorStream[persistence.DocumentLogEntry](err)
	}

	var cmp, dir = ">", "ASC"
	if order == persistence.Descending {
		cmp, dir = "<", "DESC"
	}
	var (
		first = fmt.Sprintf(`SELECT %s FROM documents WHERE ts >= ? AND ts <= ?
			ORDER BY ts %[2]s, tablet_id %[2]s, id %[2]s LIMIT ?`, rowscan.DocumentColumns, dir)
		next = fmt.Sprintf(`SELECT %s FROM documents WHERE ts >= ? AND ts <= ?
			AND (ts, tablet_id, id) %s (?, ?, ?)
			ORDER BY ts %[3]s, tablet_id %[3]s, id %[3]s LIMIT ?`, rowscan.DocumentColumns, cmp, dir)
		filter = persistence.DocumentFilter(tsRange, retention)
		cursor *persistence.DocumentLogEntry
	)

	return persistence.NewStream(pageSize, func(limit int) ([]persistence.DocumentLogEntry, bool, error) {
		var rows *sql.Rows
		var err error

		if cursor == nil {
			rows, err = txn.QueryContext(ctx, first, int64(tsRange.Min), int64(tsRange.Max), limit)
		} else {
			rows, err = txn.QueryContext(ctx, next, int64(tsRange.Min), int64(tsRange.Max),
				int64(cursor.Ts), cursor.ID.Tablet[:], cursor.ID.Internal[:], limit)
		}
		if err != nil {
			return nil, false, persistence.NewStorageError("loading documents", err)
		}
		defer rows.Close()

		var out []persistence.DocumentLogEntry
		var n int
		for ; rows.Next(); n++ {
			var entry, err = rowscan.Document(rows)
			if err != nil {
				return nil, false, err
			}
			cursor = &entry
			if filter(entry) {
				out = append(out, entry)
			}
		}
		if err = rows.Err(); err != nil {
			return nil, false, persistence.NewStorageError("loading documents", err)
		}
		return out, n < limit, nil
	}, func() error { return rowscan.Release(txn) })
}

func (r *reader) IndexScan(ctx context.Context, index persistence.IndexID, tablet persistence.TabletID, readTs persistence.Timestamp, interval persistence.Interval, order persistence.Order, pageSize int, retention persistence.RetentionValidator) *persistence.IndexStream {
	if err := readTs.Validate(); err != nil {
		return persistence.ErrorStream[persistence.IndexEntry](err)
	} else if interval.IsEmpty() {
		return persistence.NewStream(pageSize, func(int) ([]persistence.IndexEntry, bool, error) {
			return nil, true, nil
		}, nil)
	}
	var txn, err = r.store.snapshot(ctx)
	if err != nil {
		return persistence.ErrorStream[persistence.IndexEntry](err)
	}

	var cmp, dir = ">", "ASC"
	if order == persistence.Descending {
		cmp, dir = "<", "DESC"
	}
	// Rows are ordered by key, and then by descending ts so that the first
	// row of each key is its latest version. Only the first row of each key
	// is used, so a following page resumes after the key of the last row.
	var where = `index_id = ? AND ts <= ? AND (tablet_id IS NULL OR tablet_id = ?)`
	var args = []interface{}{index[:], int64(readTs), tablet[:]}

	var lower, upper = interval.PrefixBounds()
	if lower != nil {
		where += ` AND key_prefix >= ?`
		args = append(args, lower)
	}
	if upper != nil {
		where += ` AND key_prefix <= ?`
		args = append(args, upper)
	}
	var orderBy = fmt.Sprintf(`ORDER BY key_prefix %[1]s, key_suffix %[1]s, key_sha256 %[1]s, ts DESC LIMIT ?`, dir)
	var (
		first  = fmt.Sprintf(`SELECT %s FROM indexes WHERE %s %s`, rowscan.IndexColumns, where, orderBy)
		next   = fmt.Sprintf(`SELECT %s FROM indexes WHERE %s AND (key_prefix, key_suffix, key_sha256) %s (?, ?, ?) %s`, rowscan.IndexColumns, where, cmp, orderBy)
		filter = &persistence.IndexVersionFilter{
			Tablet:    tablet,
			ReadTs:    readTs,
			Interval:  interval,
			Retention: retention,
		}
		cursor *persistence.IndexEntry
	)

	return persistence.NewStream(pageSize, func(limit int) ([]persistence.IndexEntry, bool, error) {
		var rows *sql.Rows
		var err error

		if cursor == nil {
			rows, err = txn.QueryContext(ctx, first, append(args, limit)...)
		} else {
			rows, err = txn.QueryContext(ctx, next, append(args,
				rowscan.NonNil(cursor.KeyPrefix), rowscan.NonNil(cursor.KeySuffix), cursor.KeySHA256, limit)...)
		}
		if err != nil {
			return nil, false, persistence.NewStorageError("scanning index", err)
		}
		defer rows.Close()

		var out []persistence.IndexEntry
		var n int
		for ; rows.Next(); n++ {
			var entry, err = rowscan.IndexEntry(rows)
			if err != nil {
				return nil, false, err
			}
			cursor = &entry
			if filter.Admit(entry) {
				out = append(out, entry)
			}
		}
		if err = rows.Err(); err != nil {
			return nil, false, persistence.NewStorageError("scanning index", err)
		}
		return out, n < limit, nil
	}, func() error { return rowscan.Release(txn) })
}

func (r *reader) PreviousRevisions(ctx context.Context, queries []persistence.RevisionQuery) (map[persistence.RevisionQuery]persistence.DocumentLogEntry, error) {
	var txn, err = r.store.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer rowscan.Release(txn)

	var out = make(map[persistence.RevisionQuery]persistence.DocumentLogEntry, len(queries))
	for _, q := range queries {
		var rows, err = txn.QueryContext(ctx, `SELECT `+rowscan.DocumentColumns+` FROM documents
			WHERE tablet_id = ? AND id = ? AND ts < ? ORDER BY ts DESC LIMIT 1`,
			q.ID.Tablet[:], q.ID.Internal[:], int64(q.Ts))
		if err != nil {
			return nil, persistence.NewStorageError("loading previous revision", err)
		}
		if entry, ok, err := rowscan.OneDocument(rows); err != nil {
			return nil, err
		} else if ok {
			out[q] = entry
		}
	}
	return out, nil
}

func (r *reader) LoadRevisions(ctx context.Context, keys []persistence.RevisionKey) (map[persistence.RevisionKey]persistence.DocumentLogEntry, error) {
	var out = make(map[persistence.RevisionKey]persistence.DocumentLogEntry, len(keys))
	var cache = r.store.cache
	var gen = cache.generation()
	var missing []persistence.RevisionKey

	for _, key := range keys {
		if entry, ok := cache.get(key); ok {
			out[key] = entry
		} else {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	var txn, err = r.store.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer rowscan.Release(txn)

	for _, key := range missing {
		var rows, err = txn.QueryContext(ctx, `SELECT `+rowscan.DocumentColumns+` FROM documents
			WHERE tablet_id = ? AND id = ? AND ts = ?`,
			key.ID.Tablet[:], key.ID.Internal[:], int64(key.Ts))
		if err != nil {
			return nil, persistence.NewStorageError("loading revision", err)
		}
		if entry, ok, err := rowscan.OneDocument(rows); err != nil {
			return nil, err
		} else if ok {
			out[key] = entry
			cache.add(gen, entry)
		}
	}
	return out, nil
}

func (r *reader) MaxTimestamp(ctx context.Context) (persistence.Timestamp, bool, error) {
	if r.store.closed.Load() {
		return 0, false, persistence.ErrClosed
	}
	var ts sql.NullInt64
	if err := r.store.readDB.QueryRowContext(ctx, `SELECT MAX(ts) FROM (
			SELECT MAX(ts) AS ts FROM documents UNION ALL SELECT MAX(ts) AS ts FROM indexes)`,
	).Scan(&ts); err != nil {
		return 0, false, persistence.NewStorageError("querying max timestamp", err)
	}
	return rowscan.MaxTimestamp(ts)
}
