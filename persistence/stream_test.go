package persistence

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// pager returns a PageFunc over |items| which records the limits it's passed.
func pager(items []int, limits *[]int) PageFunc[int] {
	return func(limit int) ([]int, bool, error) {
		*limits = append(*limits, limit)
		if limit > len(items) {
			limit = len(items)
		}
		var out = items[:limit]
		items = items[limit:]
		return out, len(items) == 0, nil
	}
}

func TestStreamPagesAndReleasesOnce(t *testing.T) {
	var limits []int
	var released int
	var s = NewStream(2, pager([]int{1, 2, 3, 4, 5}, &limits), func() error { released++; return nil })

	var out, err = s.Collect()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5}, out)
	require.Equal(t, []int{2, 2, 2}, limits)
	require.Equal(t, 1, released)

	// Further reads continue to return EOF, and Close is a no-op.
	_, err = s.Next()
	require.Equal(t, io.EOF, err)
	require.NoError(t, s.Close())
	require.Equal(t, 1, released)
}

func TestStreamDefaultPageSize(t *testing.T) {
	var limits []int
	var s = NewStream(0, pager(nil, &limits), nil)

	var _, err = s.Next()
	require.Equal(t, io.EOF, err)
	require.Equal(t, []int{DefaultPageSize}, limits)
}

func TestStreamSkipsEmptyPages(t *testing.T) {
	var pages = [][]int{nil, {1}, nil, nil, {2}}
	var s = NewStream(10, func(int) ([]int, bool, error) {
		var page = pages[0]
		pages = pages[1:]
		return page, len(pages) == 0, nil
	}, nil)

	var out, err = s.Collect()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, out)
}

func TestStreamCloseBeforeExhaustion(t *testing.T) {
	var limits []int
	var released int
	var s = NewStream(1, pager([]int{1, 2, 3}, &limits), func() error { released++; return nil })

	var item, err = s.Next()
	require.NoError(t, err)
	require.Equal(t, 1, item)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, 1, released)

	_, err = s.Next()
	require.Equal(t, ErrClosed, err)
	require.Equal(t, []int{1}, limits)
}

func TestStreamFetchErrorIsTerminal(t *testing.T) {
	var released int
	var calls int
	var s = NewStream(1, func(int) ([]int, bool, error) {
		calls++
		if calls == 2 {
			return nil, false, errors.New("boom")
		}
		return []int{calls}, false, nil
	}, func() error { released++; return nil })

	var out, err = s.Collect()
	require.EqualError(t, err, "boom")
	require.Equal(t, []int{1}, out)
	require.Equal(t, 1, released)

	_, err = s.Next()
	require.EqualError(t, err, "boom")
	require.Equal(t, 2, calls)
}

func TestStreamReleaseError(t *testing.T) {
	var limits []int
	var s = NewStream(5, pager([]int{1}, &limits), func() error { return errors.New("release failed") })

	var out, err = s.Collect()
	require.EqualError(t, err, "release failed")
	require.Equal(t, []int{1}, out)
}

func TestErrorStream(t *testing.T) {
	var s = ErrorStream[int](ErrClosed)

	var _, err = s.Next()
	require.Equal(t, ErrClosed, err)
	require.NoError(t, s.Close())
}

func TestIndexVersionFilter(t *testing.T) {
	var (
		tablet = NewTabletID()
		index  = NewIndexID()
		mine   = NewDocumentID(tablet, NewInternalID())
		theirs = NewDocumentID(NewTabletID(), NewInternalID())
		entry  = func(key string, ts Timestamp, value *DocumentID, deleted bool) IndexEntry {
			return NewIndexEntry(index, []byte(key), ts, value, deleted)
		}
	)
	var f = &IndexVersionFilter{
		Tablet:    tablet,
		ReadTs:    10,
		Interval:  Interval{End: Bound{Kind: Excluded, Key: []byte("d")}},
		Retention: RetentionFloor(3),
	}

	// Rows ordered by key, then descending Ts.
	for _, tc := range []struct {
		row   IndexEntry
		admit bool
	}{
		{entry("a", 12, &mine, false), false},    // After ReadTs.
		{entry("a", 9, &theirs, false), false},   // Another tablet.
		{entry("a", 8, &mine, false), true},      // Latest visible version.
		{entry("a", 7, &mine, false), false},     // Older version.
		{entry("b", 6, nil, true), false},        // Deleted.
		{entry("b", 5, &mine, false), false},     // Shadowed by the deletion.
		{entry("c", 2, &mine, false), false},     // Not retained.
		{entry("c", 1, &mine, false), false},     // Older version.
		{entry("d", 9, &mine, false), false},     // Outside the interval.
		{entry("d\x00", 9, &mine, false), false}, // Outside the interval.
	} {
		require.Equal(t, tc.admit, f.Admit(tc.row), "%s@%d", tc.row.Key(), tc.row.Ts)
	}
}

func TestDocumentFilter(t *testing.T) {
	var filter = DocumentFilter(TimestampRange{Min: 2, Max: 8}, RetentionFunc(func(ts Timestamp) bool { return ts != 5 }))

	var admitted []Timestamp
	for ts := Timestamp(0); ts != 10; ts++ {
		if filter(DocumentLogEntry{Ts: ts}) {
			admitted = append(admitted, ts)
		}
	}
	require.Equal(t, []Timestamp{2, 3, 4, 6, 7, 8}, admitted)

	require.True(t, DocumentFilter(AllTimestamps(), nil)(DocumentLogEntry{Ts: MaxTimestamp}))
}
