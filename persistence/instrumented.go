package persistence

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// Instrumented wraps a Persistence implementation with metrics of its
// operations and streams.
type Instrumented struct {
	// Name of the store, used as a metric label.
	Name string
	// Persistence which is instrumented.
	Persistence Persistence
}

var _ Persistence = (*Instrumented)(nil)

// Instrument wraps |p| with metrics labeled by |name|.
func Instrument(name string, p Persistence) *Instrumented {
	return &Instrumented{Name: name, Persistence: p}
}

func (s *Instrumented) observe(op string, started time.Time, err error) {
	var status = statusOf(err)
	operationTotal.WithLabelValues(s.Name, op, status).Inc()
	operationDuration.WithLabelValues(s.Name, op, status).Observe(time.Since(started).Seconds())
}

// Write commits entries to the wrapped Persistence.
func (s *Instrumented) Write(ctx context.Context, documents []DocumentLogEntry, indexes []IndexEntry, strategy ConflictStrategy) error {
	var started = time.Now()
	var err = s.Persistence.Write(ctx, documents, indexes, strategy)
	s.observe("write", started, err)

	if err == nil {
		writeEntriesTotal.WithLabelValues(s.Name, "document").Add(float64(len(documents)))
		writeEntriesTotal.WithLabelValues(s.Name, "index").Add(float64(len(indexes)))
	}
	return err
}

// Reader returns an instrumented Reader of the wrapped Persistence.
func (s *Instrumented) Reader() Reader {
	return &instrumentedReader{delegate: s.Persistence.Reader(), parent: s}
}

// Checkpoint the wrapped Persistence.
func (s *Instrumented) Checkpoint(ctx context.Context, mode CheckpointMode) (CheckpointResult, error) {
	var started = time.Now()
	var result, err = s.Persistence.Checkpoint(ctx, mode)
	s.observe("checkpoint", started, err)

	if err == nil {
		checkpointLogPages.WithLabelValues(s.Name).Set(float64(result.LogPages))
		checkpointRemainingPages.WithLabelValues(s.Name).Set(float64(result.PagesRemaining()))
	}
	return result, err
}

// WriteGlobal sets a global of the wrapped Persistence.
func (s *Instrumented) WriteGlobal(ctx context.Context, key GlobalKey, value json.RawMessage) error {
	var started = time.Now()
	var err = s.Persistence.WriteGlobal(ctx, key, value)
	s.observe("write_global", started, err)
	return err
}

// GetGlobal gets a global of the wrapped Persistence.
func (s *Instrumented) GetGlobal(ctx context.Context, key GlobalKey) (json.RawMessage, error) {
	var started = time.Now()
	var value, err = s.Persistence.GetGlobal(ctx, key)
	s.observe("get_global", started, err)
	return value, err
}

// IsFresh returns whether the wrapped Persistence was newly created.
func (s *Instrumented) IsFresh() bool { return s.Persistence.IsFresh() }

// Close the wrapped Persistence.
func (s *Instrumented) Close() error { return s.Persistence.Close() }

type instrumentedReader struct {
	delegate Reader
	parent   *Instrumented
}

func (r *instrumentedReader) LoadDocuments(ctx context.Context, tsRange TimestampRange, order Order, pageSize int, retention RetentionValidator) *DocumentStream {
	return instrumentStream(r.parent, "load_documents",
		r.delegate.LoadDocuments(ctx, tsRange, order, pageSize, retention), pageSize)
}

func (r *instrumentedReader) IndexScan(ctx context.Context, index IndexID, tablet TabletID, readTs Timestamp, interval Interval, order Order, pageSize int, retention RetentionValidator) *IndexStream {
	return instrumentStream(r.parent, "index_scan",
		r.delegate.IndexScan(ctx, index, tablet, readTs, interval, order, pageSize, retention), pageSize)
}

func (r *instrumentedReader) PreviousRevisions(ctx context.Context, queries []RevisionQuery) (map[RevisionQuery]DocumentLogEntry, error) {
	var started = time.Now()
	var out, err = r.delegate.PreviousRevisions(ctx, queries)
	r.parent.observe("previous_revisions", started, err)
	return out, err
}

func (r *instrumentedReader) LoadRevisions(ctx context.Context, keys []RevisionKey) (map[RevisionKey]DocumentLogEntry, error) {
	var started = time.Now()
	var out, err = r.delegate.LoadRevisions(ctx, keys)
	r.parent.observe("load_revisions", started, err)
	return out, err
}

func (r *instrumentedReader) MaxTimestamp(ctx context.Context) (Timestamp, bool, error) {
	var started = time.Now()
	var ts, ok, err = r.delegate.MaxTimestamp(ctx)
	r.parent.observe("max_timestamp", started, err)
	return ts, ok, err
}

// instrumentStream wraps |inner| with a Stream which counts yielded items,
// and observes the stream's outcome when it completes. Items which |inner|
// yields before failing are delivered ahead of its error.
func instrumentStream[T any](s *Instrumented, name string, inner *Stream[T], pageSize int) *Stream[T] {
	var started = time.Now()
	var items = streamItemsTotal.WithLabelValues(s.Name, name)
	var failure error

	return NewStream(pageSize, func(limit int) ([]T, bool, error) {
		if failure != nil {
			return nil, false, failure
		}
		var out []T
		for len(out) != limit {
			var item, err = inner.Next()
			if err == io.EOF {
				return out, true, nil
			} else if err != nil {
				failure = err
				if len(out) != 0 {
					return out, false, nil
				}
				return nil, false, err
			}
			items.Inc()
			out = append(out, item)
		}
		return out, false, nil
	}, func() error {
		var err = inner.Close()
		s.observe(name, started, failure)
		return err
	})
}
