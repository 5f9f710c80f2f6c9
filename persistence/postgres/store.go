// Package postgres implements persistence.Persistence over a PostgreSQL
// database, via github.com/lib/pq. Its tables mirror those of the sqlite
// package, within a configurable schema.
//
// Streams read within REPEATABLE READ transactions, which provide a stable
// snapshot for the stream's lifetime. PostgreSQL manages its own write-ahead
// log, so Checkpoint only verifies connectivity and reports no log pages.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/docstore/persistence"
	"go.gazette.dev/docstore/persistence/codecs"
)

// Options configure a Store.
type Options struct {
	// Schema which holds the Store's tables. It's created if it doesn't exist.
	// Empty selects "public".
	Schema string
	// Codec compresses document values written by the Store.
	Codec codecs.Codec
	// MaxOpenConns bounds connections to the database. Zero is unbounded.
	MaxOpenConns int
}

// Store is a persistence.Persistence backed by PostgreSQL.
type Store struct {
	db     *sql.DB
	opts   Options
	fresh  bool
	tables tables

	writeMu sync.Mutex
	closed  atomic.Bool
}

var _ persistence.Persistence = (*Store)(nil)

// tables are schema-qualified and quoted table names.
type tables struct {
	documents, indexes, globals string
}

// Open a Store over the database of lib/pq connection string |dsn|.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if err := opts.Codec.Validate(); err != nil {
		return nil, &persistence.ValidationError{Field: "Options.Codec", Reason: err.Error()}
	}
	if opts.Schema == "" {
		opts.Schema = "public"
	}
	var db, err = sql.Open("postgres", dsn)
	if err != nil {
		return nil, persistence.NewStorageError("opening database", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)

	var schema = pq.QuoteIdentifier(opts.Schema)
	var s = &Store{
		db:   db,
		opts: opts,
		tables: tables{
			documents: schema + ".documents",
			indexes:   schema + ".indexes",
			globals:   schema + ".persistence_globals",
		},
	}
	if err = s.bootstrap(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"schema": opts.Schema,
		"codec":  opts.Codec,
		"fresh":  s.fresh,
	}).Debug("opened postgres store")

	return s, nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	var missing bool
	if err := s.db.QueryRowContext(ctx, `SELECT to_regclass($1::text) IS NULL`,
		s.tables.documents).Scan(&missing); err != nil {
		return persistence.NewStorageError("inspecting schema", err)
	}
	s.fresh = missing

	for _, stmt := range []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pq.QuoteIdentifier(s.opts.Schema),
		`CREATE TABLE IF NOT EXISTS ` + s.tables.documents + ` (
			tablet_id BYTEA    NOT NULL,
			id        BYTEA    NOT NULL,
			ts        BIGINT   NOT NULL,
			deleted   BOOLEAN  NOT NULL,
			codec     SMALLINT NOT NULL,
			value     BYTEA,
			prev_ts   BIGINT,
			PRIMARY KEY (ts, tablet_id, id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS documents_by_id ON ` + s.tables.documents + ` (tablet_id, id, ts)`,
		`CREATE TABLE IF NOT EXISTS ` + s.tables.indexes + ` (
			index_id    BYTEA   NOT NULL,
			key_prefix  BYTEA   NOT NULL,
			key_suffix  BYTEA   NOT NULL,
			key_sha256  BYTEA   NOT NULL,
			ts          BIGINT  NOT NULL,
			deleted     BOOLEAN NOT NULL,
			tablet_id   BYTEA,
			document_id BYTEA,
			PRIMARY KEY (index_id, key_prefix, key_suffix, key_sha256, ts)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + s.tables.globals + ` (
			key        TEXT  PRIMARY KEY,
			json_value JSONB NOT NULL
		)`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return persistence.NewStorageError("bootstrapping schema", err)
		}
	}
	return nil
}

// Reader returns a Reader of the Store.
func (s *Store) Reader() persistence.Reader { return &reader{store: s} }

// IsFresh returns whether the Store's tables were created by Open.
func (s *Store) IsFresh() bool { return s.fresh }

// Checkpoint verifies the database is reachable. PostgreSQL checkpoints its
// log itself, and the result reports -1 pages.
func (s *Store) Checkpoint(ctx context.Context, mode persistence.CheckpointMode) (persistence.CheckpointResult, error) {
	if mode < persistence.CheckpointPassive || mode > persistence.CheckpointTruncate {
		return persistence.CheckpointResult{}, &persistence.ValidationError{Field: "CheckpointMode",
			Reason: fmt.Sprintf("unknown mode %s", mode)}
	} else if s.closed.Load() {
		return persistence.CheckpointResult{}, persistence.ErrClosed
	} else if err := s.db.PingContext(ctx); err != nil {
		return persistence.CheckpointResult{}, persistence.NewStorageError("checkpointing", err)
	}
	return persistence.CheckpointResult{LogPages: -1, CheckpointedPages: -1}, nil
}

// Close the Store.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return persistence.NewStorageError("closing store", err)
	}
	return nil
}

// Constructor builds a Store from a postgres:// URL. The "schema" and "codec"
// query parameters configure the Store, and all others are passed to lib/pq.
func Constructor(ctx context.Context, ep *url.URL) (persistence.Persistence, error) {
	var u = *ep
	var q = u.Query()
	var opts = Options{Schema: q.Get("schema")}
	var err error

	if opts.Codec, err = codecs.ParseCodec(q.Get("codec")); err != nil {
		return nil, err
	}
	if v := q.Get("max_conns"); v != "" {
		if opts.MaxOpenConns, err = strconv.Atoi(v); err != nil {
			return nil, errors.WithMessage(err, "parsing max_conns")
		}
	}
	q.Del("schema")
	q.Del("codec")
	q.Del("max_conns")
	u.RawQuery = q.Encode()

	return Open(ctx, u.String(), opts)
}

// wrapConflict returns |conflict| if |err| is a unique violation,
// and otherwise a *StorageError of |op|.
func wrapConflict(err error, conflict *persistence.ConflictError, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return conflict
	}
	return persistence.NewStorageError(op, err)
}

// placeholders accumulates positional query arguments.
type placeholders []interface{}

func (p *placeholders) add(v interface{}) string {
	*p = append(*p, v)
	return "$" + strconv.Itoa(len(*p))
}
