// Package sqlite implements persistence.Persistence over an embedded SQLite
// database (https://www.sqlite.org), via github.com/mattn/go-sqlite3.
//
// # Representation
//
// The document log is a "documents" table keyed on (ts, tablet_id, id), with a
// secondary index on (tablet_id, id, ts) which represents each document's
// version chain. The index log is an "indexes" table keyed on (index_id,
// key_prefix, key_suffix, key_sha256, ts). Document values are stored as JSON,
// optionally compressed with a codecs.Codec which is recorded on each row.
//
// # Durability
//
// A Store is opened in one of two durability modes, fixed for its lifetime:
//
//   - Write-ahead log mode (journal_mode=WAL, synchronous=NORMAL). A commit is
//     durable once its commit record reaches the log. SQLite skips syncing the
//     log on each commit, and syncs it only when checkpointing, which trades a
//     narrow window of exposure to OS crashes (but not process crashes) for
//     much higher commit throughput. Readers don't block behind the writer.
//   - Rollback-journal mode (journal_mode=DELETE, synchronous=FULL). Every
//     commit is fully synced to the main database file.
//
// Open verifies that the engine reports the requested journal mode and
// synchronous level, and fails with a *persistence.ConfigurationError if not.
//
// # Connections
//
// Writes and checkpoints are serialized over a single dedicated connection,
// which begins its transactions IMMEDIATE so that the write lock is taken
// up front. Reads use a separate pool of query-only connections, and every
// stream holds one connection and read transaction for its lifetime. Under
// WAL mode this gives each stream a stable snapshot which is unaffected by
// concurrent commits. Under rollback-journal mode an open stream holds a
// SHARED lock, and a concurrent writer waits on it for up to BusyTimeout.
//
// # Files
//
// A Store at |path| consists of |path| itself and, in WAL mode, the companion
// files |path|-wal and |path|-shm (see OnDiskFiles). A TRUNCATE checkpoint
// resets the log file to zero bytes without removing it.
package sqlite
