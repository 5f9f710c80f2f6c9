package main

import (
	"context"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"go.gazette.dev/docstore/persistence"
)

type cmdCheckpoint struct {
	Mode string `long:"mode" default:"PASSIVE" choice:"PASSIVE" choice:"FULL" choice:"RESTART" choice:"TRUNCATE" description:"Checkpoint mode"`
}

func (cmd *cmdCheckpoint) Execute([]string) error {
	startup()

	var mode, err = persistence.ParseCheckpointMode(cmd.Mode)
	if err != nil {
		return err
	}
	var ctx = context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := store.Checkpoint(ctx, mode)
	if err != nil {
		return err
	}

	var table = tablewriter.NewWriter(stdout)
	table.Header("Mode", "Busy", "Log Pages", "Checkpointed", "Remaining")
	_ = table.Append([]string{
		mode.String(),
		fmt.Sprint(result.Busy),
		pages(result.LogPages),
		pages(result.CheckpointedPages),
		fmt.Sprint(result.PagesRemaining()),
	})
	return table.Render()
}

// pages formats a page count, which is negative if the store has no log.
func pages(n int64) string {
	if n < 0 {
		return "n/a"
	}
	return fmt.Sprint(n)
}
