package persistence

import (
	"bytes"
	"crypto/sha256"
	"fmt"
)

// MaxIndexKeyPrefixLen is the capacity of IndexEntry.KeyPrefix. Longer keys
// carry their remainder in KeySuffix.
const MaxIndexKeyPrefixLen = 2500

// DocumentLogEntry is one version of a document.
type DocumentLogEntry struct {
	// Ts is the commit Timestamp of this version.
	Ts Timestamp
	// ID of the document.
	ID DocumentID
	// Value of the document at Ts, or nil if the document was deleted at Ts.
	Value *ResolvedDocument
	// PrevTs is the Timestamp of the immediately preceding version of ID, if any.
	PrevTs *Timestamp
}

// IsTombstone returns whether the entry records a deletion.
func (e DocumentLogEntry) IsTombstone() bool { return e.Value == nil }

// Clone returns a deep copy of the entry.
func (e DocumentLogEntry) Clone() DocumentLogEntry {
	e.Value = e.Value.Clone()
	if e.PrevTs != nil {
		var ts = *e.PrevTs
		e.PrevTs = &ts
	}
	return e
}

// Validate the entry in isolation.
func (e DocumentLogEntry) Validate() error {
	if err := e.Ts.Validate(); err != nil {
		return err
	} else if e.Value != nil && e.Value.Tablet != e.ID.Tablet {
		return &ValidationError{Field: "DocumentLogEntry.Value",
			Reason: fmt.Sprintf("tablet %s doesn't match document %s", e.Value.Tablet, e.ID)}
	} else if e.Value != nil && len(e.Value.Value) == 0 {
		return &ValidationError{Field: "DocumentLogEntry.Value", Reason: "empty value"}
	} else if e.PrevTs != nil && *e.PrevTs >= e.Ts {
		return &ValidationError{Field: "DocumentLogEntry.PrevTs",
			Reason: fmt.Sprintf("prev_ts %d of %s is not before ts %d", *e.PrevTs, e.ID, e.Ts)}
	}
	return nil
}

// IndexEntry is one version of a secondary index key.
type IndexEntry struct {
	IndexID IndexID
	// KeyPrefix is the sortable, possibly truncated, index key.
	KeyPrefix []byte
	// KeySuffix is the remainder of a key longer than MaxIndexKeyPrefixLen.
	// An empty KeySuffix is equivalent to an absent one.
	KeySuffix []byte
	// KeySHA256 is a content hash of the complete key.
	KeySHA256 []byte
	// Ts is the commit Timestamp of this version.
	Ts Timestamp
	// Value is the document referenced by the key.
	Value *DocumentID
	// Deleted marks a tombstone of the key at Ts.
	Deleted bool
}

// NewIndexEntry builds an IndexEntry of the complete |key|, splitting it
// into prefix and suffix and computing its hash.
func NewIndexEntry(index IndexID, key []byte, ts Timestamp, value *DocumentID, deleted bool) IndexEntry {
	var prefix, suffix = key, []byte(nil)
	if len(key) > MaxIndexKeyPrefixLen {
		prefix, suffix = key[:MaxIndexKeyPrefixLen], key[MaxIndexKeyPrefixLen:]
	}
	var sum = sha256.Sum256(key)

	return IndexEntry{
		IndexID:   index,
		KeyPrefix: append([]byte(nil), prefix...),
		KeySuffix: append([]byte(nil), suffix...),
		KeySHA256: sum[:],
		Ts:        ts,
		Value:     value,
		Deleted:   deleted,
	}
}

// Key returns the complete index key.
func (e IndexEntry) Key() []byte {
	var out = make([]byte, 0, len(e.KeyPrefix)+len(e.KeySuffix))
	return append(append(out, e.KeyPrefix...), e.KeySuffix...)
}

// SameKey returns whether |e| and |other| are versions of the same index key.
func (e IndexEntry) SameKey(other IndexEntry) bool {
	return e.IndexID == other.IndexID &&
		bytes.Equal(e.KeyPrefix, other.KeyPrefix) &&
		bytes.Equal(e.KeySuffix, other.KeySuffix) &&
		bytes.Equal(e.KeySHA256, other.KeySHA256)
}

// CompareKey orders entries by (KeyPrefix, KeySuffix, KeySHA256).
func (e IndexEntry) CompareKey(other IndexEntry) int {
	if c := bytes.Compare(e.KeyPrefix, other.KeyPrefix); c != 0 {
		return c
	} else if c = bytes.Compare(e.KeySuffix, other.KeySuffix); c != 0 {
		return c
	}
	return bytes.Compare(e.KeySHA256, other.KeySHA256)
}

// Clone returns a deep copy of the entry.
func (e IndexEntry) Clone() IndexEntry {
	e.KeyPrefix = append([]byte(nil), e.KeyPrefix...)
	e.KeySuffix = append([]byte(nil), e.KeySuffix...)
	e.KeySHA256 = append([]byte(nil), e.KeySHA256...)
	if e.Value != nil {
		var id = *e.Value
		e.Value = &id
	}
	return e
}

// Validate the entry in isolation.
func (e IndexEntry) Validate() error {
	if err := e.Ts.Validate(); err != nil {
		return err
	} else if len(e.KeyPrefix) > MaxIndexKeyPrefixLen {
		return &ValidationError{Field: "IndexEntry.KeyPrefix",
			Reason: fmt.Sprintf("length %d exceeds maximum %d", len(e.KeyPrefix), MaxIndexKeyPrefixLen)}
	} else if len(e.KeySuffix) != 0 && len(e.KeyPrefix) != MaxIndexKeyPrefixLen {
		return &ValidationError{Field: "IndexEntry.KeySuffix", Reason: "suffix of a key prefix which isn't full"}
	} else if len(e.KeySHA256) == 0 {
		return &ValidationError{Field: "IndexEntry.KeySHA256", Reason: "expected a non-empty key hash"}
	} else if !e.Deleted && e.Value == nil {
		return &ValidationError{Field: "IndexEntry.Value", Reason: "live index entry must reference a document"}
	}
	return nil
}

// RevisionQuery asks for the newest revision of ID strictly before Ts.
type RevisionQuery struct {
	ID DocumentID
	Ts Timestamp
}

// RevisionKey names the revision of ID committed exactly at Ts.
type RevisionKey struct {
	ID DocumentID
	Ts Timestamp
}
