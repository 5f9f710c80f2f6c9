// Package persistence defines the durable persistence contract of the document
// store: an append-only log of multi-versioned documents, a log of secondary
// index entries, and the streaming, snapshot-isolated reads served over them.
//
// # Model
//
// Every mutation of a document is a new DocumentLogEntry at a commit Timestamp.
// A nil Value is a tombstone, and PrevTs links an entry to the preceding
// version of the same DocumentID. Index entries are similarly versioned: an
// IndexScan at a read Timestamp returns, for each distinct key, only the most
// recent entry at or before that Timestamp, and omits the key if that entry
// is a deletion.
//
// # Writes
//
// Persistence.Write commits a batch of document and index entries as a single
// atomic transaction. Writes are serialized: at most one is in flight against
// a store. Collisions with existing entries are handled per ConflictStrategy.
//
// # Reads
//
// Reader methods return lazy streams (DocumentStream and IndexStream) which
// fetch rows in pages. Each stream holds its own read snapshot, established
// when the stream is created, so that writes committing during iteration are
// not observed by it. Streams must be Closed (or fully consumed) to release
// their snapshot:
//
//	var it = p.Reader().LoadDocuments(ctx, persistence.AllTimestamps(),
//	    persistence.Ascending, 100, persistence.NoopRetention{})
//	defer it.Close()
//
//	for {
//	    var entry, err = it.Next()
//	    if err == io.EOF {
//	        break
//	    } else if err != nil {
//	        return err
//	    }
//	    // Use |entry|.
//	}
//
// # Backends
//
// Implementations live in sub-packages: persistence/sqlite (the embedded
// SQLite engine, with WAL or rollback-journal durability), persistence/memory
// (an in-process B-Tree, useful for tests), and persistence/postgres. They are
// interchangeable behind the Persistence interface, and may be constructed
// from a URL through the provider registry (see RegisterProviders and Open).
package persistence
