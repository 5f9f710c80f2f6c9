package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"go.gazette.dev/docstore/persistence"
	"go.gazette.dev/docstore/persistence/sqlite"
)

type cmdStat struct{}

// fs is the file system of stat'd stores.
var fs = afero.NewOsFs()

func (cmd *cmdStat) Execute([]string) error {
	startup()

	var ctx = context.Background()
	var store, err = openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var table = tablewriter.NewWriter(stdout)
	table.Header("Property", "Value")

	var row = func(k, v string) { _ = table.Append([]string{k, v}) }
	row("Store", store.Name)
	row("Fresh", fmt.Sprint(store.IsFresh()))

	if ts, ok, err := store.Reader().MaxTimestamp(ctx); err != nil {
		return err
	} else if ok {
		row("Max Timestamp", ts.String())
	} else {
		row("Max Timestamp", "<empty>")
	}
	for _, key := range []persistence.GlobalKey{
		persistence.GlobalMaxRepeatableTimestamp,
		persistence.GlobalRetentionMinSnapshotTimestamp,
	} {
		if v, err := store.GetGlobal(ctx, key); err != nil {
			return err
		} else if v != nil {
			row("Global "+string(key), string(v))
		}
	}

	if s, ok := store.Persistence.(*sqlite.Store); ok {
		var pragmas, err = s.Pragmas(ctx)
		if err != nil {
			return err
		}
		row("Journal Mode", pragmas.JournalMode)
		row("Synchronous", fmt.Sprint(pragmas.Synchronous))
		row("Codec", s.Options().Codec.String())

		files, err := sqlite.OnDiskFiles(fs, s.Path())
		if err != nil {
			return err
		}
		for _, f := range files {
			if f.Exists {
				row("File "+f.Role, fmt.Sprintf("%s (%s)", f.Path, humanize.IBytes(uint64(f.Size))))
			} else {
				row("File "+f.Role, f.Path+" (absent)")
			}
		}
	}
	return table.Render()
}
