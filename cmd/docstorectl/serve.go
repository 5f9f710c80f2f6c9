package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/docstore/mainboilerplate"
	"go.gazette.dev/docstore/persistence"
	"go.gazette.dev/docstore/persistence/checkpointer"
	"go.gazette.dev/docstore/task"
)

type cmdServe struct {
	Checkpoint struct {
		Mode     string        `long:"mode" env:"MODE" default:"TRUNCATE" choice:"PASSIVE" choice:"FULL" choice:"RESTART" choice:"TRUNCATE" description:"Checkpoint mode"`
		Interval time.Duration `long:"interval" env:"INTERVAL" default:"1m" description:"Interval between checkpoints"`
		Timeout  time.Duration `long:"timeout" env:"TIMEOUT" default:"1m" description:"Timeout of each checkpoint"`
	} `group:"Checkpoint" namespace:"checkpoint" env-namespace:"CHECKPOINT"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
}

func (cmd *cmdServe) Execute([]string) error {
	startup()
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()

	var mode, err = persistence.ParseCheckpointMode(cmd.Checkpoint.Mode)
	if err != nil {
		return err
	}
	var signalCh = make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)

	return cmd.serve(context.Background(), mode, signalCh)
}

// serve until a signal is read from |signalCh| or a task fails.
func (cmd *cmdServe) serve(ctx context.Context, mode persistence.CheckpointMode, signalCh <-chan os.Signal) error {
	var store, err = openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var tasks = task.NewGroup(ctx)
	var cp = &checkpointer.Checkpointer{
		Target:   store,
		Mode:     mode,
		Interval: cmd.Checkpoint.Interval,
		Timeout:  cmd.Checkpoint.Timeout,
	}

	tasks.Queue("checkpointer", func() error { return cp.Serve(tasks.Context()) })
	tasks.Queue("diagnostics", func() error { return mbp.ServeDiagnostics(tasks.Context(), cmd.Diagnostics) })
	tasks.Queue("watch signalCh", func() error {
		select {
		case sig := <-signalCh:
			log.WithField("signal", sig).Info("caught signal")
			tasks.Cancel()
		case <-tasks.Context().Done():
		}
		return nil
	})

	log.WithFields(log.Fields{
		"store":    store.Name,
		"mode":     mode,
		"interval": cmd.Checkpoint.Interval,
		"address":  cmd.Diagnostics.Address,
	}).Info("serving")

	tasks.GoRun()
	return tasks.Wait()
}
