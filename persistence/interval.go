package persistence

import "bytes"

// BoundKind is the kind of an Interval Bound.
type BoundKind int

const (
	// Unbounded extends the Interval without limit.
	Unbounded BoundKind = iota
	// Included bounds the Interval at Key, inclusive.
	Included
	// Excluded bounds the Interval at Key, exclusive.
	Excluded
)

// Bound is one end of an Interval.
type Bound struct {
	Kind BoundKind
	Key  []byte
}

// Interval is a range of index keys.
type Interval struct {
	Start, End Bound
}

// AllInterval returns the Interval of all keys.
func AllInterval() Interval { return Interval{} }

// PrefixInterval returns the Interval of all keys beginning with |prefix|.
func PrefixInterval(prefix []byte) Interval {
	var iv = Interval{Start: Bound{Kind: Included, Key: prefix}}
	if end, ok := prefixSuccessor(prefix); ok {
		iv.End = Bound{Kind: Excluded, Key: end}
	}
	return iv
}

// Contains returns whether |key| falls within the Interval.
func (iv Interval) Contains(key []byte) bool {
	switch iv.Start.Kind {
	case Included:
		if bytes.Compare(key, iv.Start.Key) < 0 {
			return false
		}
	case Excluded:
		if bytes.Compare(key, iv.Start.Key) <= 0 {
			return false
		}
	}
	switch iv.End.Kind {
	case Included:
		if bytes.Compare(key, iv.End.Key) > 0 {
			return false
		}
	case Excluded:
		if bytes.Compare(key, iv.End.Key) >= 0 {
			return false
		}
	}
	return true
}

// IsEmpty returns whether the Interval can contain no keys.
func (iv Interval) IsEmpty() bool {
	if iv.Start.Kind == Unbounded || iv.End.Kind == Unbounded {
		return iv.End.Kind == Excluded && len(iv.End.Key) == 0
	}
	var c = bytes.Compare(iv.Start.Key, iv.End.Key)
	if iv.Start.Kind == Included && iv.End.Kind == Included {
		return c > 0
	}
	return c >= 0
}

// PrefixBounds returns inclusive bounds over the KeyPrefix column of entries
// which may fall within the Interval, given that a KeyPrefix is its complete
// key truncated to MaxIndexKeyPrefixLen. Truncation preserves ordering, so a
// key within the Interval has a prefix within these bounds. A nil bound is
// unbounded. Callers must still check complete keys with Contains.
func (iv Interval) PrefixBounds() (lower, upper []byte) {
	if iv.Start.Kind != Unbounded {
		lower = truncateKey(iv.Start.Key)
	}
	if iv.End.Kind != Unbounded {
		upper = truncateKey(iv.End.Key)
	}
	return
}

func truncateKey(key []byte) []byte {
	if len(key) > MaxIndexKeyPrefixLen {
		key = key[:MaxIndexKeyPrefixLen]
	}
	return append([]byte{}, key...)
}

// prefixSuccessor returns the smallest key greater than every key prefixed
// by |prefix|, or false if there is none (|prefix| is all 0xff).
func prefixSuccessor(prefix []byte) ([]byte, bool) {
	var out = append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1], true
		}
	}
	return nil, false
}
