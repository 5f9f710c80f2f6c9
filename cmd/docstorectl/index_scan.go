package main

import (
	"context"

	"github.com/pkg/errors"
	"go.gazette.dev/docstore/persistence"
)

type cmdIndexScan struct {
	OutputConfig
	Index  string `long:"index" required:"true" description:"ID of the index to scan"`
	Tablet string `long:"tablet" default:"00000000000000000000000000000000" description:"ID of the tablet to scan"`
	ReadTs int64  `long:"read-ts" default:"-1" description:"Read timestamp. If negative, the maximum timestamp of the store is used"`
	Prefix string `long:"prefix" description:"Scan keys having this prefix"`
	Start  string `long:"start" description:"Scan keys at or after this key"`
	End    string `long:"end" description:"Scan keys before this key"`
}

// interval returns the Interval of keys selected by flags.
func (cmd *cmdIndexScan) interval() (persistence.Interval, error) {
	if cmd.Prefix != "" {
		if cmd.Start != "" || cmd.End != "" {
			return persistence.Interval{}, errors.New("--prefix may not be used with --start or --end")
		}
		var prefix, err = parseKey(cmd.Prefix)
		return persistence.PrefixInterval(prefix), err
	}
	var iv persistence.Interval
	if cmd.Start != "" {
		var key, err = parseKey(cmd.Start)
		if err != nil {
			return iv, err
		}
		iv.Start = persistence.Bound{Kind: persistence.Included, Key: key}
	}
	if cmd.End != "" {
		var key, err = parseKey(cmd.End)
		if err != nil {
			return iv, err
		}
		iv.End = persistence.Bound{Kind: persistence.Excluded, Key: key}
	}
	return iv, nil
}

func (cmd *cmdIndexScan) Execute([]string) error {
	startup()

	var index, err = parseID(cmd.Index)
	if err != nil {
		return err
	}
	tablet, err := parseID(cmd.Tablet)
	if err != nil {
		return err
	}
	interval, err := cmd.interval()
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

	var readTs = persistence.Timestamp(cmd.ReadTs)
	if cmd.ReadTs < 0 {
		if readTs, _, err = store.Reader().MaxTimestamp(ctx); err != nil {
			return err
		}
	}

	entries, err := collect(store.Reader().IndexScan(ctx, persistence.IndexID(index), persistence.TabletID(tablet),
		readTs, interval, order, cmd.PageSize, nil), cmd.Limit)
	if err != nil {
		return err
	}

	var records = make([]record, len(entries))
	for i, e := range entries {
		records[i] = indexRecord(e)
	}
	return writeRecords(stdout, cmd.Format, records, false)
}
