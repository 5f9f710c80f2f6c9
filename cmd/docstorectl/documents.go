package main

import (
	"context"

	"go.gazette.dev/docstore/persistence"
)

type cmdDocuments struct {
	OutputConfig
	MinTs          uint64 `long:"min-ts" default:"0" description:"Minimum timestamp, inclusive"`
	MaxTs          uint64 `long:"max-ts" default:"9223372036854775807" description:"Maximum timestamp, inclusive"`
	RetentionFloor uint64 `long:"retention-floor" default:"0" description:"Omit entries committed before this timestamp"`
}

func (cmd *cmdDocuments) Execute([]string) error {
	startup()

	var tsRange, err = persistence.NewTimestampRange(persistence.Timestamp(cmd.MinTs), persistence.Timestamp(cmd.MaxTs))
	if err != nil {
		return err
	}
	order, err := persistence.ParseOrder(cmd.Order)
	if err != nil {
		return err
	}
	var ctx = context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := collect(store.Reader().LoadDocuments(ctx, tsRange, order, cmd.PageSize,
		persistence.RetentionFloor(cmd.RetentionFloor)), cmd.Limit)
	if err != nil {
		return err
	}

	var records = make([]record, len(entries))
	for i, e := range entries {
		records[i] = documentRecord(e)
	}
	return writeRecords(stdout, cmd.Format, records, true)
}
