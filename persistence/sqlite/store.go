package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/docstore/persistence"
	"go.gazette.dev/docstore/persistence/codecs"

	_ "github.com/mattn/go-sqlite3" // Import for registration side-effect.
)

// Options configure a Store.
type Options struct {
	// WAL selects write-ahead log mode. Otherwise, the rollback journal is used.
	WAL bool
	// Codec compresses document values written by the Store. Rows record
	// their codec, so values written under any Codec remain readable.
	Codec codecs.Codec
	// BusyTimeout bounds how long an operation waits on a lock held by
	// another connection. Zero selects DefaultBusyTimeout.
	BusyTimeout time.Duration
	// CheckpointBusyTimeout bounds how long a FULL, RESTART or TRUNCATE
	// Checkpoint waits on open readers while it holds the write slot.
	// Zero selects DefaultCheckpointBusyTimeout, and it's capped at BusyTimeout.
	CheckpointBusyTimeout time.Duration
	// AutoCheckpointPages is the log size in pages at which SQLite checkpoints
	// automatically upon commit. Zero selects DefaultAutoCheckpointPages,
	// and a negative value disables automatic checkpoints.
	AutoCheckpointPages int
	// RevisionCacheSize is the number of revisions cached for LoadRevisions.
	// Zero selects DefaultRevisionCacheSize, and a negative value disables it.
	RevisionCacheSize int
	// Exclusive takes an advisory lock over a "-lock" file beside the
	// database, and fails Open if another process holds it.
	Exclusive bool
}

const (
	// DefaultBusyTimeout is the default Options.BusyTimeout.
	DefaultBusyTimeout = 5 * time.Second
	// DefaultCheckpointBusyTimeout is the default Options.CheckpointBusyTimeout.
	DefaultCheckpointBusyTimeout = 100 * time.Millisecond
	// DefaultAutoCheckpointPages is the default Options.AutoCheckpointPages.
	DefaultAutoCheckpointPages = 1000
	// DefaultRevisionCacheSize is the default Options.RevisionCacheSize.
	DefaultRevisionCacheSize = 4096
)

// Pragmas are durability settings reported by the engine.
type Pragmas struct {
	// JournalMode is "wal" or "delete".
	JournalMode string
	// Synchronous is 1 (NORMAL) or 2 (FULL).
	Synchronous int
}

// Store is a persistence.Persistence backed by a SQLite database file.
type Store struct {
	path  string
	opts  Options
	fresh bool

	// writeDB is limited to one connection, which |writeConn| pins for the
	// Store's lifetime. |writeMu| is the write slot which serializes its use.
	writeDB   *sql.DB
	writeConn *sql.Conn
	writeMu   sync.Mutex
	// readDB is a pool of query-only connections.
	readDB *sql.DB

	cache  *revisionCache
	lock   *processLock // Nil unless Options.Exclusive.
	closed atomic.Bool  // Set under |writeMu|.
}

var _ persistence.Persistence = (*Store)(nil)

// New opens the Store at |path| with default Options, in WAL mode if |wal|.
func New(path string, wal bool) (*Store, error) {
	return Open(path, Options{WAL: wal})
}

// Open the Store at |path|, creating it if it doesn't exist.
func Open(path string, opts Options) (*Store, error) {
	if err := opts.Codec.Validate(); err != nil {
		return nil, &persistence.ValidationError{Field: "Options.Codec", Reason: err.Error()}
	}
	opts = opts.withDefaults()

	var fresh = true
	if info, err := os.Stat(path); err == nil && info.Size() != 0 {
		fresh = false
	}

	var ctx = context.Background()
	var s = &Store{path: path, opts: opts, fresh: fresh}
	var err error

	if opts.Exclusive {
		if s.lock, err = acquireLock(path + "-lock"); err != nil {
			return nil, err
		}
	}
	if s.writeDB, err = sql.Open("sqlite3", s.dsn(true)); err != nil {
		s.releaseLock()
		return nil, persistence.NewStorageError("opening write database", err)
	}
	s.writeDB.SetMaxOpenConns(1)
	s.writeDB.SetMaxIdleConns(1)
	s.writeDB.SetConnMaxLifetime(0)

	if s.writeConn, err = s.writeDB.Conn(ctx); err != nil {
		_ = s.writeDB.Close()
		s.releaseLock()
		return nil, persistence.NewStorageError("connecting to database", err)
	}
	if err = s.configure(ctx); err != nil {
		_ = s.writeConn.Close()
		_ = s.writeDB.Close()
		s.releaseLock()
		return nil, err
	}
	if s.readDB, err = sql.Open("sqlite3", s.dsn(false)); err != nil {
		_ = s.writeConn.Close()
		_ = s.writeDB.Close()
		s.releaseLock()
		return nil, persistence.NewStorageError("opening read database", err)
	}
	if s.cache, err = newRevisionCache(opts.RevisionCacheSize); err != nil {
		_ = s.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"path":      path,
		"wal":       opts.WAL,
		"codec":     opts.Codec,
		"fresh":     fresh,
		"exclusive": opts.Exclusive,
	}).Debug("opened sqlite store")

	return s, nil
}

func (s *Store) releaseLock() {
	if s.lock != nil {
		_ = s.lock.release()
	}
}

func (o Options) withDefaults() Options {
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = DefaultBusyTimeout
	}
	if o.CheckpointBusyTimeout <= 0 {
		o.CheckpointBusyTimeout = DefaultCheckpointBusyTimeout
	}
	if o.CheckpointBusyTimeout > o.BusyTimeout {
		o.CheckpointBusyTimeout = o.BusyTimeout
	}
	if o.AutoCheckpointPages == 0 {
		o.AutoCheckpointPages = DefaultAutoCheckpointPages
	} else if o.AutoCheckpointPages < 0 {
		o.AutoCheckpointPages = 0
	}
	if o.RevisionCacheSize == 0 {
		o.RevisionCacheSize = DefaultRevisionCacheSize
	}
	return o
}

// wantPragmas returns the Pragmas which |opts| requires.
func (o Options) wantPragmas() Pragmas {
	if o.WAL {
		return Pragmas{JournalMode: "wal", Synchronous: 1}
	}
	return Pragmas{JournalMode: "delete", Synchronous: 2}
}

// dsn returns the go-sqlite3 data source name of the write or read database.
// Connection settings are applied by the driver as each connection opens.
func (s *Store) dsn(write bool) string {
	var want = s.opts.wantPragmas()
	var v = url.Values{}
	v.Set("_busy_timeout", strconv.FormatInt(s.opts.BusyTimeout.Milliseconds(), 10))
	v.Set("_synchronous", strconv.Itoa(want.Synchronous))

	if write {
		v.Set("_journal_mode", strings.ToUpper(want.JournalMode))
		v.Set("_txlock", "immediate")
	} else {
		v.Set("_query_only", "true")
	}
	return "file:" + s.path + "?" + v.Encode()
}

// configure verifies the durability Pragmas of the write connection, and
// bootstraps the schema.
func (s *Store) configure(ctx context.Context) error {
	var want = s.opts.wantPragmas()
	var got, err = queryPragmas(ctx, s.writeConn)
	if err != nil {
		return err
	}
	if got.JournalMode != want.JournalMode {
		return &persistence.ConfigurationError{Setting: "journal_mode", Want: want.JournalMode, Got: got.JournalMode}
	} else if got.Synchronous != want.Synchronous {
		return &persistence.ConfigurationError{Setting: "synchronous",
			Want: strconv.Itoa(want.Synchronous), Got: strconv.Itoa(got.Synchronous)}
	}

	if s.opts.WAL {
		var q = fmt.Sprintf("PRAGMA wal_autocheckpoint = %d", s.opts.AutoCheckpointPages)
		if _, err = s.writeConn.ExecContext(ctx, q); err != nil {
			return persistence.NewStorageError("setting wal_autocheckpoint", err)
		}
	}
	if _, err = s.writeConn.ExecContext(ctx, schemaSQL); err != nil {
		return persistence.NewStorageError("bootstrapping schema", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func queryPragmas(ctx context.Context, q queryer) (Pragmas, error) {
	var out Pragmas
	if err := q.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&out.JournalMode); err != nil {
		return out, persistence.NewStorageError("querying journal_mode", err)
	} else if err = q.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&out.Synchronous); err != nil {
		return out, persistence.NewStorageError("querying synchronous", err)
	}
	out.JournalMode = strings.ToLower(out.JournalMode)
	return out, nil
}

// Pragmas returns the durability settings in effect for the Store's writes.
func (s *Store) Pragmas(ctx context.Context) (Pragmas, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return Pragmas{}, persistence.ErrClosed
	}
	return queryPragmas(ctx, s.writeConn)
}

// Path of the Store's database file.
func (s *Store) Path() string { return s.path }

// Options of the Store, with defaults applied.
func (s *Store) Options() Options { return s.opts }

// IsFresh returns whether the database file was created by Open.
func (s *Store) IsFresh() bool { return s.fresh }

// Reader returns a Reader of the Store.
func (s *Store) Reader() persistence.Reader { return &reader{store: s} }

// Close the Store. Reads which are in progress hold their connections
// until they complete. Close is idempotent.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return nil
	}
	s.closed.Store(true)

	var errs []error
	if err := s.writeConn.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.writeDB.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.readDB != nil {
		if err := s.readDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.lock != nil {
		if err := s.lock.release(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) != 0 {
		return persistence.NewStorageError("closing store", errs[0])
	}
	log.WithField("path", s.path).Debug("closed sqlite store")
	return nil
}

// Constructor builds a Store from a URL of the form
// sqlite:///abs/path?wal=true&codec=snappy or sqlite:relative/path.
// Recognized query parameters are "wal" (default true), "codec",
// "busy_timeout", "autocheckpoint", "revision_cache" and "lock".
func Constructor(_ context.Context, ep *url.URL) (persistence.Persistence, error) {
	var path = ep.Path
	if ep.Opaque != "" {
		path = ep.Opaque
	}
	if path == "" {
		return nil, errors.Errorf("sqlite URL %q has no path", ep.String())
	}

	var opts = Options{WAL: true}
	var q = ep.Query()
	var err error

	if v := q.Get("wal"); v != "" {
		if opts.WAL, err = strconv.ParseBool(v); err != nil {
			return nil, errors.WithMessage(err, "parsing wal")
		}
	}
	if opts.Codec, err = codecs.ParseCodec(q.Get("codec")); err != nil {
		return nil, err
	}
	if v := q.Get("busy_timeout"); v != "" {
		if opts.BusyTimeout, err = time.ParseDuration(v); err != nil {
			return nil, errors.WithMessage(err, "parsing busy_timeout")
		}
	}
	if v := q.Get("checkpoint_busy_timeout"); v != "" {
		if opts.CheckpointBusyTimeout, err = time.ParseDuration(v); err != nil {
			return nil, errors.WithMessage(err, "parsing checkpoint_busy_timeout")
		}
	}
	if v := q.Get("autocheckpoint"); v != "" {
		if opts.AutoCheckpointPages, err = strconv.Atoi(v); err != nil {
			return nil, errors.WithMessage(err, "parsing autocheckpoint")
		}
	}
	if v := q.Get("lock"); v != "" {
		if opts.Exclusive, err = strconv.ParseBool(v); err != nil {
			return nil, errors.WithMessage(err, "parsing lock")
		}
	}
	if v := q.Get("revision_cache"); v != "" {
		if opts.RevisionCacheSize, err = strconv.Atoi(v); err != nil {
			return nil, errors.WithMessage(err, "parsing revision_cache")
		}
	}
	return Open(path, opts)
}
