// Package checkpointer periodically folds the write-ahead log of a
// persistence.Persistence into its main file.
package checkpointer

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/docstore/persistence"
)

// Checkpointer runs checkpoints of a Target at an Interval. A checkpoint
// which can't reclaim the whole log, typically because readers hold
// snapshots which reference it, is retried on an escalating backoff.
type Checkpointer struct {
	// Target is checkpointed.
	Target persistence.Persistence
	// Mode of each checkpoint.
	Mode persistence.CheckpointMode
	// Interval between checkpoints which fully reclaim the log.
	Interval time.Duration
	// Timeout of each checkpoint. Zero uses one minute.
	Timeout time.Duration

	// after is time.After, and may be swapped by tests.
	after func(time.Duration) <-chan time.Time
}

// RunOnce runs a single checkpoint of the Target.
func (c *Checkpointer) RunOnce(ctx context.Context) (persistence.CheckpointResult, error) {
	var timeout = c.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var started = time.Now()
	var result, err = c.Target.Checkpoint(ctx, c.Mode)
	var outcome = outcomeOf(result, err)

	runsTotal.WithLabelValues(c.Mode.String(), outcome).Inc()
	runDuration.Observe(time.Since(started).Seconds())

	return result, err
}

// Serve runs checkpoints until |ctx| is cancelled or the Target is closed.
// Cancellation is not an error.
func (c *Checkpointer) Serve(ctx context.Context) error {
	if c.Interval <= 0 {
		return errors.Errorf("invalid checkpoint Interval (%s; expected > 0)", c.Interval)
	}
	var after = c.after
	if after == nil {
		after = time.After
	}

	for attempt := 0; ; {
		var result, err = c.RunOnce(ctx)
		var delay time.Duration

		if ctx.Err() != nil {
			return nil
		} else if err == persistence.ErrClosed {
			return err
		} else if err == nil && !result.Busy && result.PagesRemaining() == 0 {
			delay = c.Interval

			log.WithFields(log.Fields{
				"mode":     c.Mode,
				"logPages": result.LogPages,
				"attempt":  attempt,
				"interval": delay,
			}).Debug("checkpoint completed")
			attempt = 0
		} else {
			delay = backoff(attempt)

			var fields = log.Fields{
				"mode":      c.Mode,
				"busy":      result.Busy,
				"logPages":  result.LogPages,
				"remaining": result.PagesRemaining(),
				"attempt":   attempt,
				"interval":  delay,
			}
			if err != nil {
				fields["err"] = err
				log.WithFields(fields).Warn("checkpoint failed")
			} else {
				log.WithFields(fields).Info("checkpoint incomplete")
			}
			attempt++
		}
		consecutiveIncomplete.Set(float64(attempt))

		select {
		case <-ctx.Done():
			return nil
		case <-after(jitter(delay)):
		}
	}
}

// backoff returns the delay before retrying after |attempt| prior
// consecutive incomplete checkpoints.
func backoff(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 0
	case 1:
		return time.Second / 10
	case 2, 3:
		return time.Second
	case 4, 5:
		return time.Second * 10
	default:
		return time.Second * 100
	}
}

// jitter returns |d| adjusted by up to +/- 20%.
func jitter(d time.Duration) time.Duration {
	return d + time.Duration((rand.Float64()-0.5)*0.4*float64(d))
}

func outcomeOf(result persistence.CheckpointResult, err error) string {
	if err != nil {
		return "error"
	} else if result.Busy || result.PagesRemaining() != 0 {
		return "incomplete"
	}
	return "complete"
}

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docstore_checkpointer_runs_total",
		Help: "Total number of checkpoints run, by mode and outcome",
	}, []string{"mode", "outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docstore_checkpointer_run_duration_seconds",
		Help:    "Duration of checkpoints in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	})

	consecutiveIncomplete = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docstore_checkpointer_consecutive_incomplete",
		Help: "Number of consecutive checkpoints which failed or left log pages behind",
	})
)
