package postgres

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

// snapshot begins a REPEATABLE READ transaction, and takes its snapshot
// with an initial query.
func (s *Store) snapshot(ctx context.Context) (*sql.Tx, error) {
	if s.closed.Load() {
		return nil, persistence.ErrClosed
	}
	var txn, err = s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, persistence.NewStorageError("beginning read", err)
	}
	var n int
	if err = txn.QueryRowContext(ctx, `SELECT COUNT(*) FROM (SELECT 1 FROM `+s.tables.documents+` LIMIT 1) AS t`).Scan(&n); err != nil {
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
	var filter = persistence.DocumentFilter(tsRange, retention)
	var cursor *persistence.DocumentLogEntry

	return persistence.NewStream(pageSize, func(limit int) ([]persistence.DocumentLogEntry, bool, error) {
		var args placeholders
		var q = fmt.Sprintf(`SELECT %s FROM %s WHERE ts >= %s AND ts <= %s`, rowscan.DocumentColumns,
			r.store.tables.documents, args.add(int64(tsRange.Min)), args.add(int64(tsRange.Max)))

		if cursor != nil {
			q += fmt.Sprintf(` AND (ts, tablet_id, id) %s (%s, %s, %s)`, cmp,
				args.add(int64(cursor.Ts)), args.add(cursor.ID.Tablet[:]), args.add(cursor.ID.Internal[:]))
		}
		q += fmt.Sprintf(` ORDER BY ts %[1]s, tablet_id %[1]s, id %[1]s LIMIT %[2]s`, dir, args.add(limit))

		var rows, err = txn.QueryContext(ctx, q, args...)
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
	var lower, upper = interval.PrefixBounds()
	var filter = &persistence.IndexVersionFilter{
		Tablet:    tablet,
		ReadTs:    readTs,
		Interval:  interval,
		Retention: retention,
	}
	var cursor *persistence.IndexEntry

	return persistence.NewStream(pageSize, func(limit int) ([]persistence.IndexEntry, bool, error) {
		var args placeholders
		var q = fmt.Sprintf(`SELECT %s FROM %s WHERE index_id = %s AND ts <= %s AND (tablet_id IS NULL OR tablet_id = %s)`,
			rowscan.IndexColumns, r.store.tables.indexes, args.add(index[:]), args.add(int64(readTs)), args.add(tablet[:]))

		if lower != nil {
			q += ` AND key_prefix >= ` + args.add(lower)
		}
		if upper != nil {
			q += ` AND key_prefix <= ` + args.add(upper)
		}
		if cursor != nil {
			q += fmt.Sprintf(` AND (key_prefix, key_suffix, key_sha256) %s (%s, %s, %s)`, cmp,
				args.add(rowscan.NonNil(cursor.KeyPrefix)), args.add(rowscan.NonNil(cursor.KeySuffix)), args.add(cursor.KeySHA256))
		}
		q += fmt.Sprintf(` ORDER BY key_prefix %[1]s, key_suffix %[1]s, key_sha256 %[1]s, ts DESC LIMIT %[2]s`, dir, args.add(limit))

		var rows, err = txn.QueryContext(ctx, q, args...)
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
		var rows, err = txn.QueryContext(ctx, `SELECT `+rowscan.DocumentColumns+` FROM `+r.store.tables.documents+`
			WHERE tablet_id = $1 AND id = $2 AND ts < $3 ORDER BY ts DESC LIMIT 1`,
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
	var txn, err = r.store.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer rowscan.Release(txn)

	var out = make(map[persistence.RevisionKey]persistence.DocumentLogEntry, len(keys))
	for _, key := range keys {
		var rows, err = txn.QueryContext(ctx, `SELECT `+rowscan.DocumentColumns+` FROM `+r.store.tables.documents+`
			WHERE tablet_id = $1 AND id = $2 AND ts = $3`,
			key.ID.Tablet[:], key.ID.Internal[:], int64(key.Ts))
		if err != nil {
			return nil, persistence.NewStorageError("loading revision", err)
		}
		if entry, ok, err := rowscan.OneDocument(rows); err != nil {
			return nil, err
		} else if ok {
			out[key] = entry
		}
	}
	return out, nil
}

func (r *reader) MaxTimestamp(ctx context.Context) (persistence.Timestamp, bool, error) {
	if r.store.closed.Load() {
		return 0, false, persistence.ErrClosed
	}
	var ts sql.NullInt64
	if err := r.store.db.QueryRowContext(ctx, `SELECT GREATEST(
		(SELECT MAX(ts) FROM `+r.store.tables.documents+`),
		(SELECT MAX(ts) FROM `+r.store.tables.indexes+`))`).Scan(&ts); err != nil {
		return 0, false, persistence.NewStorageError("querying max timestamp", err)
	}
	return rowscan.MaxTimestamp(ts)
}
