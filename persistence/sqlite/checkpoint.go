package sqlite

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.gazette.dev/docstore/persistence"
)

// Checkpoint copies committed pages of the write-ahead log into the main
// database file, per |mode|. Log pages which are still referenced by the
// snapshots of open streams can't be reclaimed, and are reported by the
// CheckpointResult. In rollback-journal mode there is no log, and the
// result reports -1 pages.
//
// FULL, RESTART and TRUNCATE modes wait on open readers for at most
// Options.CheckpointBusyTimeout. Writers queue behind the Checkpoint for
// that long, rather than for the full BusyTimeout, and a Checkpoint which
// gives up on readers reports Busy.
func (s *Store) Checkpoint(ctx context.Context, mode persistence.CheckpointMode) (result persistence.CheckpointResult, err error) {

	switch mode {
	case persistence.CheckpointPassive, persistence.CheckpointFull,
		persistence.CheckpointRestart, persistence.CheckpointTruncate:
	default:
		return result, &persistence.ValidationError{Field: "CheckpointMode",
			Reason: fmt.Sprintf("unknown mode %s", mode)}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return result, persistence.ErrClosed
	}
	if mode != persistence.CheckpointPassive {
		if err = s.setBusyTimeout(ctx, s.opts.CheckpointBusyTimeout); err != nil {
			return result, err
		}
		// Restore the write connection's timeout even if |ctx| is cancelled.
		defer func() {
			if restoreErr := s.setBusyTimeout(context.Background(), s.opts.BusyTimeout); restoreErr != nil && err == nil {
				err = restoreErr
			}
		}()
	}

	var busy int
	if err := s.writeConn.QueryRowContext(ctx, fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)).
		Scan(&busy, &result.LogPages, &result.CheckpointedPages); err != nil {
		return result, persistence.NewStorageError("checkpointing", err)
	}
	result.Busy = busy != 0

	log.WithFields(log.Fields{
		"path":         s.path,
		"mode":         mode,
		"busy":         result.Busy,
		"logPages":     result.LogPages,
		"checkpointed": result.CheckpointedPages,
	}).Debug("checkpointed sqlite store")

	return result, nil
}

// setBusyTimeout of the write connection. Callers hold |writeMu|.
func (s *Store) setBusyTimeout(ctx context.Context, d time.Duration) error {
	if _, err := s.writeConn.ExecContext(ctx,
		fmt.Sprintf("PRAGMA busy_timeout = %d", d.Milliseconds())); err != nil {
		return persistence.NewStorageError("setting busy_timeout", err)
	}
	return nil
}
