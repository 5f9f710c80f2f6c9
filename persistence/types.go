package persistence

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
)

// Timestamp is a logical commit time. Timestamps are totally ordered, and a
// Timestamp uniquely identifies a commit instant within the whole store.
// Valid Timestamps fall within [MinTimestamp, MaxTimestamp], which maps
// losslessly onto the signed 64-bit integers of SQL engines.
type Timestamp uint64

const (
	// MinTimestamp is the smallest valid Timestamp.
	MinTimestamp Timestamp = 0
	// MaxTimestamp is the largest valid Timestamp.
	MaxTimestamp Timestamp = math.MaxInt64
)

// NewTimestamp returns |v| as a Timestamp, or an error if |v| exceeds MaxTimestamp.
func NewTimestamp(v uint64) (Timestamp, error) {
	if v > uint64(MaxTimestamp) {
		return 0, &ValidationError{Field: "Timestamp", Reason: fmt.Sprintf("%d exceeds maximum %d", v, MaxTimestamp)}
	}
	return Timestamp(v), nil
}

// Validate returns an error if the Timestamp is out of range.
func (ts Timestamp) Validate() error {
	if ts > MaxTimestamp {
		return &ValidationError{Field: "Timestamp", Reason: fmt.Sprintf("%d exceeds maximum %d", uint64(ts), MaxTimestamp)}
	}
	return nil
}

// Succ returns the Timestamp immediately following |ts|.
func (ts Timestamp) Succ() (Timestamp, error) {
	if ts >= MaxTimestamp {
		return 0, &ValidationError{Field: "Timestamp", Reason: "no successor of MaxTimestamp"}
	}
	return ts + 1, nil
}

// Pred returns the Timestamp immediately preceding |ts|.
func (ts Timestamp) Pred() (Timestamp, error) {
	if ts == MinTimestamp {
		return 0, &ValidationError{Field: "Timestamp", Reason: "no predecessor of MinTimestamp"}
	}
	return ts - 1, nil
}

func (ts Timestamp) String() string { return strconv.FormatUint(uint64(ts), 10) }

// InternalID identifies a document within its tablet.
// InternalIDs are ordered lexicographically by their bytes.
type InternalID [16]byte

var (
	// MinInternalID is the smallest InternalID.
	MinInternalID = InternalID{}
	// MaxInternalID is the largest InternalID.
	MaxInternalID = InternalID{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	}
)

// NewInternalID returns a new, random InternalID.
func NewInternalID() InternalID { return InternalID(uuid.New()) }

// InternalIDFromBytes returns an InternalID of |b|, which must be 16 bytes.
func InternalIDFromBytes(b []byte) (InternalID, error) {
	var id InternalID
	if len(b) != len(id) {
		return id, &ValidationError{Field: "InternalID", Reason: fmt.Sprintf("expected %d bytes (got %d)", len(id), len(b))}
	}
	copy(id[:], b)
	return id, nil
}

// Compare returns -1, 0, or 1 as |id| is less than, equal to, or greater than |other|.
func (id InternalID) Compare(other InternalID) int { return bytes.Compare(id[:], other[:]) }

func (id InternalID) String() string { return hex.EncodeToString(id[:]) }

// TabletID identifies a logical partition (a "table") of the store.
type TabletID InternalID

// MinTabletID is the smallest TabletID.
var MinTabletID = TabletID{}

// NewTabletID returns a new, random TabletID.
func NewTabletID() TabletID { return TabletID(NewInternalID()) }

// TabletIDFromBytes returns a TabletID of |b|, which must be 16 bytes.
func TabletIDFromBytes(b []byte) (TabletID, error) {
	var id, err = InternalIDFromBytes(b)
	if err != nil {
		err.(*ValidationError).Field = "TabletID"
	}
	return TabletID(id), err
}

func (id TabletID) String() string { return InternalID(id).String() }

// IndexID identifies a secondary index definition.
type IndexID InternalID

// MinIndexID is the smallest IndexID.
var MinIndexID = IndexID{}

// NewIndexID returns a new, random IndexID.
func NewIndexID() IndexID { return IndexID(NewInternalID()) }

// IndexIDFromBytes returns an IndexID of |b|, which must be 16 bytes.
func IndexIDFromBytes(b []byte) (IndexID, error) {
	var id, err = InternalIDFromBytes(b)
	if err != nil {
		err.(*ValidationError).Field = "IndexID"
	}
	return IndexID(id), err
}

func (id IndexID) String() string { return InternalID(id).String() }

// DocumentID is the stable identity of a document across all of its versions.
type DocumentID struct {
	Tablet   TabletID
	Internal InternalID
}

// NewDocumentID composes a DocumentID.
func NewDocumentID(tablet TabletID, internal InternalID) DocumentID {
	return DocumentID{Tablet: tablet, Internal: internal}
}

// Compare orders DocumentIDs by tablet, and then by InternalID.
func (id DocumentID) Compare(other DocumentID) int {
	if c := bytes.Compare(id.Tablet[:], other.Tablet[:]); c != 0 {
		return c
	}
	return id.Internal.Compare(other.Internal)
}

func (id DocumentID) String() string { return id.Tablet.String() + "/" + id.Internal.String() }

// TimestampRange is an inclusive range [Min, Max] of Timestamps.
type TimestampRange struct {
	Min, Max Timestamp
}

// NewTimestampRange returns the range [min, max], or an error if min > max.
func NewTimestampRange(min, max Timestamp) (TimestampRange, error) {
	var r = TimestampRange{Min: min, Max: max}
	return r, r.Validate()
}

// AllTimestamps returns the range [MinTimestamp, MaxTimestamp].
func AllTimestamps() TimestampRange { return TimestampRange{Min: MinTimestamp, Max: MaxTimestamp} }

// Validate returns an error if the TimestampRange is malformed.
func (r TimestampRange) Validate() error {
	if err := r.Max.Validate(); err != nil {
		return err
	} else if r.Min > r.Max {
		return &ValidationError{Field: "TimestampRange", Reason: fmt.Sprintf("min %d > max %d", r.Min, r.Max)}
	}
	return nil
}

// Contains returns whether |ts| is within the range.
func (r TimestampRange) Contains(ts Timestamp) bool { return ts >= r.Min && ts <= r.Max }

// Order is a direction of iteration.
type Order int

const (
	// Ascending iterates from smallest to largest.
	Ascending Order = iota
	// Descending iterates from largest to smallest.
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// ParseOrder parses "asc" or "desc".
func ParseOrder(s string) (Order, error) {
	switch s {
	case "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return 0, &ValidationError{Field: "Order", Reason: fmt.Sprintf("unknown order %q", s)}
	}
}
