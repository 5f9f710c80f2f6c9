package checkpointer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.gazette.dev/docstore/persistence"
	"go.gazette.dev/docstore/persistence/memory"
)

// scripted is a Persistence whose Checkpoint returns scripted outcomes.
type scripted struct {
	persistence.Persistence

	results []persistence.CheckpointResult
	errs    []error
	modes   []persistence.CheckpointMode
}

func (s *scripted) Checkpoint(_ context.Context, mode persistence.CheckpointMode) (persistence.CheckpointResult, error) {
	s.modes = append(s.modes, mode)
	var result, err = s.results[0], s.errs[0]
	s.results, s.errs = s.results[1:], s.errs[1:]
	return result, err
}

func TestServeBacksOffUntilComplete(t *testing.T) {
	var (
		complete   = persistence.CheckpointResult{LogPages: 10, CheckpointedPages: 10}
		incomplete = persistence.CheckpointResult{LogPages: 10, CheckpointedPages: 4}
		busy       = persistence.CheckpointResult{Busy: true, LogPages: 10, CheckpointedPages: 10}
		boom       = errors.New("boom")
	)
	var target = &scripted{
		Persistence: memory.New(),
		results:     []persistence.CheckpointResult{incomplete, busy, {}, incomplete, complete, incomplete, complete},
		errs:        []error{nil, nil, boom, nil, nil, nil, nil},
	}
	var ctx, cancel = context.WithCancel(context.Background())
	var delays []time.Duration

	var c = &Checkpointer{
		Target:   target,
		Mode:     persistence.CheckpointTruncate,
		Interval: time.Hour,
		after: func(d time.Duration) <-chan time.Time {
			delays = append(delays, d)
			if len(target.results) == 0 {
				cancel()
				return nil // Blocks, so that Serve observes the cancellation.
			}
			var ch = make(chan time.Time, 1)
			ch <- time.Time{}
			return ch
		},
	}
	require.NoError(t, c.Serve(ctx))

	var expect = []time.Duration{0, 100 * time.Millisecond, time.Second, time.Second, time.Hour, 0, time.Hour}
	require.Len(t, delays, len(expect))
	for i := range expect {
		require.InDelta(t, float64(expect[i]), float64(delays[i]), 0.2*float64(expect[i]), "delay %d", i)
	}
	for _, mode := range target.modes {
		require.Equal(t, persistence.CheckpointTruncate, mode)
	}
	require.Equal(t, 0.0, testutil.ToFloat64(consecutiveIncomplete))
}

func TestServeStopsWhenTargetCloses(t *testing.T) {
	var store = memory.New()
	require.NoError(t, store.Close())

	var c = &Checkpointer{Target: store, Interval: time.Second}
	require.Equal(t, persistence.ErrClosed, c.Serve(context.Background()))
}

func TestServeRequiresInterval(t *testing.T) {
	var c = &Checkpointer{Target: memory.New()}
	require.EqualError(t, c.Serve(context.Background()), "invalid checkpoint Interval (0s; expected > 0)")
}

func TestServeReturnsOnCancellation(t *testing.T) {
	var ctx, cancel = context.WithCancel(context.Background())
	var c = &Checkpointer{Target: memory.New(), Interval: time.Hour}

	var done = make(chan error)
	go func() { done <- c.Serve(ctx) }()

	cancel()
	require.NoError(t, <-done)
}

func TestRunOnceRecordsOutcome(t *testing.T) {
	var c = &Checkpointer{Target: memory.New(), Mode: persistence.CheckpointFull}
	var before = testutil.ToFloat64(runsTotal.WithLabelValues("FULL", "complete"))

	var result, err = c.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(0), result.PagesRemaining())
	require.Equal(t, before+1, testutil.ToFloat64(runsTotal.WithLabelValues("FULL", "complete")))
}

func TestBackoffAndJitter(t *testing.T) {
	var expect = []time.Duration{0, 100 * time.Millisecond, time.Second, time.Second,
		10 * time.Second, 10 * time.Second, 100 * time.Second, 100 * time.Second}
	for attempt, d := range expect {
		require.Equal(t, d, backoff(attempt))
	}
	for i := 0; i != 100; i++ {
		var d = jitter(time.Second)
		require.True(t, d >= 800*time.Millisecond && d <= 1200*time.Millisecond, d)
	}
	require.Equal(t, time.Duration(0), jitter(0))

	require.Equal(t, "error", outcomeOf(persistence.CheckpointResult{}, errors.New("x")))
	require.Equal(t, "incomplete", outcomeOf(persistence.CheckpointResult{Busy: true}, nil))
	require.Equal(t, "complete", outcomeOf(persistence.CheckpointResult{LogPages: -1, CheckpointedPages: -1}, nil))
}
