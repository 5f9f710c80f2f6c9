package persistence

import (
	"io"
)

// PageFunc fetches up to |limit| further items of a Stream. It returns |done|
// once no items remain beyond those returned. A page may hold fewer than
// |limit| items (even none) without the stream being done, if fetched rows
// were filtered out.
type PageFunc[T any] func(limit int) (items []T, done bool, err error)

// Stream is a lazy, single-pass sequence of items fetched in pages from a
// backing snapshot. Next returns io.EOF after the final item. A Stream
// releases its snapshot when it's exhausted, fails, or is Closed.
// A Stream is not safe for concurrent use.
type Stream[T any] struct {
	fetch    PageFunc[T]
	release  func() error
	pageSize int

	buf    []T
	done   bool
	err    error
	closed bool
}

// DocumentStream is a Stream of DocumentLogEntry.
type DocumentStream = Stream[DocumentLogEntry]

// IndexStream is a Stream of IndexEntry.
type IndexStream = Stream[IndexEntry]

// NewStream returns a Stream which fetches pages of |pageSize| via |fetch|,
// and invokes |release| exactly once when the Stream is finished.
// A non-positive |pageSize| selects DefaultPageSize.
func NewStream[T any](pageSize int, fetch PageFunc[T], release func() error) *Stream[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Stream[T]{fetch: fetch, release: release, pageSize: pageSize}
}

// ErrorStream returns a Stream which fails with |err| on its first Next.
func ErrorStream[T any](err error) *Stream[T] {
	return &Stream[T]{err: err, closed: true}
}

// Next returns the next item, or io.EOF if the Stream is exhausted.
// Any other error is terminal.
func (s *Stream[T]) Next() (T, error) {
	var zero T

	for len(s.buf) == 0 {
		if s.err != nil {
			return zero, s.err
		} else if s.closed {
			return zero, ErrClosed
		} else if s.done {
			if s.err = s.finish(); s.err == nil {
				s.err = io.EOF
			}
			return zero, s.err
		}

		var items, done, err = s.fetch(s.pageSize)
		if err != nil {
			s.err = err
			_ = s.finish()
			return zero, err
		}
		s.buf, s.done = items, done
	}

	var item = s.buf[0]
	s.buf[0] = zero
	s.buf = s.buf[1:]
	return item, nil
}

// Close the Stream, releasing its snapshot. Close may be called repeatedly,
// and after the Stream is exhausted.
func (s *Stream[T]) Close() error {
	s.buf = nil
	return s.finish()
}

// Collect reads all remaining items of the Stream, and closes it.
func (s *Stream[T]) Collect() ([]T, error) {
	var out []T
	for {
		var item, err = s.Next()
		if err == io.EOF {
			return out, nil
		} else if err != nil {
			_ = s.Close()
			return out, err
		}
		out = append(out, item)
	}
}

func (s *Stream[T]) finish() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.release == nil {
		return nil
	}
	return s.release()
}

// IndexVersionFilter selects the entries an IndexScan yields from rows which
// are ordered by key (in either direction) and then by descending Ts.
// The first row of each key which is visible at ReadTs is that key's latest
// version, and all further rows of the key are skipped.
type IndexVersionFilter struct {
	Tablet    TabletID
	ReadTs    Timestamp
	Interval  Interval
	Retention RetentionValidator

	last    IndexEntry
	hasLast bool
}

// Admit returns whether the row |e| is yielded by the scan.
func (f *IndexVersionFilter) Admit(e IndexEntry) bool {
	if e.Ts > f.ReadTs {
		return false
	} else if e.Value != nil && e.Value.Tablet != f.Tablet {
		return false // Not an entry of this scan's tablet.
	} else if f.hasLast && f.last.SameKey(e) {
		return false // An older version of an already-resolved key.
	}
	f.last, f.hasLast = IndexEntry{
		IndexID:   e.IndexID,
		KeyPrefix: e.KeyPrefix,
		KeySuffix: e.KeySuffix,
		KeySHA256: e.KeySHA256,
	}, true

	return !e.Deleted &&
		f.Interval.Contains(e.Key()) &&
		retentionOrDefault(f.Retention).Retained(e.Ts)
}

// DocumentFilter returns whether a fetched document row is yielded by a
// LoadDocuments stream.
func DocumentFilter(tsRange TimestampRange, retention RetentionValidator) func(DocumentLogEntry) bool {
	retention = retentionOrDefault(retention)
	return func(e DocumentLogEntry) bool {
		return tsRange.Contains(e.Ts) && retention.Retained(e.Ts)
	}
}
