package persistence

import (
	"context"
	"encoding/json"
	"fmt"
)

// DefaultPageSize is used by reads which are passed a non-positive page size.
const DefaultPageSize = 100

// Persistence is a durable store of document and index logs.
// All methods are safe for concurrent use.
type Persistence interface {
	// Write atomically commits |documents| and |indexes|. Either every entry
	// becomes durably visible to subsequent reads, or none do. Collisions with
	// existing entries are handled according to |strategy|.
	Write(ctx context.Context, documents []DocumentLogEntry, indexes []IndexEntry, strategy ConflictStrategy) error
	// Reader returns a Reader of the Persistence.
	Reader() Reader
	// Checkpoint folds any write-ahead log of the store into its main file.
	// Pages which can't be reclaimed due to concurrent readers are reported
	// by CheckpointResult, and aren't an error.
	Checkpoint(ctx context.Context, mode CheckpointMode) (CheckpointResult, error)
	// WriteGlobal durably sets the value of a persistence-wide global.
	WriteGlobal(ctx context.Context, key GlobalKey, value json.RawMessage) error
	// GetGlobal returns the value of a global, or nil if it's not set.
	GetGlobal(ctx context.Context, key GlobalKey) (json.RawMessage, error)
	// IsFresh returns whether the store was newly created when opened.
	IsFresh() bool
	// Close the Persistence. Open streams continue to hold their resources
	// until they're closed.
	Close() error
}

// Reader serves snapshot-isolated reads of a Persistence.
type Reader interface {
	// LoadDocuments streams every document log entry having a Ts within
	// |tsRange|, ordered by (Ts, DocumentID) per |order| and filtered by
	// |retention|. Rows are fetched in pages of |pageSize|.
	LoadDocuments(ctx context.Context, tsRange TimestampRange, order Order, pageSize int, retention RetentionValidator) *DocumentStream
	// IndexScan streams, for each distinct key of |index| within |interval|,
	// the most recent entry having Ts <= |readTs|, unless that entry is a
	// deletion or isn't retained. Keys are ordered per |order|.
	IndexScan(ctx context.Context, index IndexID, tablet TabletID, readTs Timestamp, interval Interval, order Order, pageSize int, retention RetentionValidator) *IndexStream
	// PreviousRevisions returns, for each query, the newest entry of its
	// document strictly before its Ts. Queries without one are omitted.
	PreviousRevisions(ctx context.Context, queries []RevisionQuery) (map[RevisionQuery]DocumentLogEntry, error)
	// LoadRevisions returns the entries committed exactly at each key.
	// Keys without one are omitted.
	LoadRevisions(ctx context.Context, keys []RevisionKey) (map[RevisionKey]DocumentLogEntry, error)
	// MaxTimestamp returns the largest Ts of any committed entry, and
	// false if the store is empty.
	MaxTimestamp(ctx context.Context) (Timestamp, bool, error)
}

// ConflictStrategy is the policy of a Write which collides with an existing
// document entry of the same (DocumentID, Ts), or index entry of the same
// (IndexID, key, Ts). The enumeration is closed: Validate rejects others.
type ConflictStrategy int

const (
	// ConflictStrategyError aborts the Write with a *ConflictError.
	ConflictStrategyError ConflictStrategy = iota
	// ConflictStrategyOverwrite replaces the existing entry.
	ConflictStrategyOverwrite
)

// Validate returns an error if the ConflictStrategy is unknown.
func (s ConflictStrategy) Validate() error {
	switch s {
	case ConflictStrategyError, ConflictStrategyOverwrite:
		return nil
	default:
		return &ValidationError{Field: "ConflictStrategy", Reason: fmt.Sprintf("unknown strategy %d", int(s))}
	}
}

func (s ConflictStrategy) String() string {
	switch s {
	case ConflictStrategyError:
		return "error"
	case ConflictStrategyOverwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("ConflictStrategy(%d)", int(s))
	}
}

// CheckpointMode selects how aggressively a checkpoint reclaims the log.
type CheckpointMode int

const (
	// CheckpointPassive copies as many log pages as possible without waiting
	// on readers or writers.
	CheckpointPassive CheckpointMode = iota
	// CheckpointFull waits for writers, then copies all log pages.
	CheckpointFull
	// CheckpointRestart is CheckpointFull, and also waits for readers so
	// that the next writer restarts the log from its beginning.
	CheckpointRestart
	// CheckpointTruncate is CheckpointRestart, and also truncates the log.
	CheckpointTruncate
)

func (m CheckpointMode) String() string {
	switch m {
	case CheckpointPassive:
		return "PASSIVE"
	case CheckpointFull:
		return "FULL"
	case CheckpointRestart:
		return "RESTART"
	case CheckpointTruncate:
		return "TRUNCATE"
	default:
		return fmt.Sprintf("CheckpointMode(%d)", int(m))
	}
}

// ParseCheckpointMode parses a CheckpointMode from its String form.
func ParseCheckpointMode(s string) (CheckpointMode, error) {
	for m := CheckpointPassive; m <= CheckpointTruncate; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, &ValidationError{Field: "CheckpointMode", Reason: fmt.Sprintf("unknown mode %q", s)}
}

// CheckpointResult reports the progress of a checkpoint.
type CheckpointResult struct {
	// Busy is true if the checkpoint was blocked from completing.
	Busy bool
	// LogPages is the number of pages in the log, or -1 if the store
	// doesn't use a write-ahead log.
	LogPages int64
	// CheckpointedPages is the number of log pages which have been copied
	// into the main file, or -1 if the store doesn't use a write-ahead log.
	CheckpointedPages int64
}

// PagesRemaining is the number of log pages not yet folded into the main file.
// Zero means the log was fully reclaimed.
func (r CheckpointResult) PagesRemaining() int64 {
	if r.LogPages <= 0 {
		return 0
	}
	return r.LogPages - r.CheckpointedPages
}

// GlobalKey names a persistence-wide global value.
type GlobalKey string

const (
	// GlobalMaxRepeatableTimestamp is the largest Timestamp at which reads
	// are known to be repeatable.
	GlobalMaxRepeatableTimestamp GlobalKey = "max_repeatable_ts"
	// GlobalRetentionMinSnapshotTimestamp is the smallest Timestamp which
	// remains within retention.
	GlobalRetentionMinSnapshotTimestamp GlobalKey = "retention_min_snapshot_ts"
)

// ValidateWrite checks a Write batch for violations which can be detected
// without consulting the store: malformed entries, an unknown strategy, and
// version chains which are inconsistent within the batch. It returns the
// PrevTs references which must instead be satisfied by committed entries.
func ValidateWrite(documents []DocumentLogEntry, indexes []IndexEntry, strategy ConflictStrategy) ([]RevisionKey, error) {
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	var batch = make(map[RevisionKey]struct{}, len(documents))
	var external []RevisionKey

	for _, doc := range documents {
		if err := doc.Validate(); err != nil {
			return nil, err
		}
		if doc.PrevTs != nil {
			var prev = RevisionKey{ID: doc.ID, Ts: *doc.PrevTs}
			if _, ok := batch[prev]; !ok {
				external = append(external, prev)
			}
		}
		batch[RevisionKey{ID: doc.ID, Ts: doc.Ts}] = struct{}{}
	}
	for _, idx := range indexes {
		if err := idx.Validate(); err != nil {
			return nil, err
		}
	}
	return external, nil
}

// MissingPrevTsError is the *ValidationError of a PrevTs which references no entry.
func MissingPrevTsError(key RevisionKey) error {
	return &ValidationError{Field: "DocumentLogEntry.PrevTs",
		Reason: fmt.Sprintf("document %s has no entry at prev_ts %d", key.ID, key.Ts)}
}
