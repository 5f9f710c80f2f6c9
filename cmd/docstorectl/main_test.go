package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.gazette.dev/docstore/persistence"
	pt "go.gazette.dev/docstore/persistence/persistencetest"
	"go.gazette.dev/docstore/persistence/sqlite"
	"gopkg.in/yaml.v2"
)

var (
	testTablet = persistence.TabletID(pt.ID(0x11))
	testIndex  = persistence.IndexID(pt.ID(0x22))
)

// seedStore creates a store with three documents and an index of them,
// and returns its URL.
func seedStore(t *testing.T) string {
	var path = filepath.Join(t.TempDir(), "test.db")
	var store, err = sqlite.New(path, true)
	require.NoError(t, err)

	var ctx = context.Background()
	var docs []persistence.DocumentLogEntry
	var indexes []persistence.IndexEntry

	for i, name := range []string{"alpha", "bravo", "charlie"} {
		var id = persistence.NewDocumentID(testTablet, pt.ID(byte(i+1)))
		var ts = persistence.Timestamp(i + 1)
		docs = append(docs, pt.Document(t, id, ts, map[string]string{"name": name}))
		indexes = append(indexes, pt.Index(testIndex, "name/"+name, ts, id))
	}
	require.NoError(t, store.Write(ctx, docs, indexes, persistence.ConflictStrategyError))

	// Delete "bravo" at ts 4.
	var bravo = docs[1].ID
	require.NoError(t, store.Write(ctx,
		[]persistence.DocumentLogEntry{pt.Tombstone(bravo, 4, 2)},
		[]persistence.IndexEntry{persistence.NewIndexEntry(testIndex, []byte("name/bravo"), 4, nil, true)},
		persistence.ConflictStrategyError))
	require.NoError(t, store.WriteGlobal(ctx, persistence.GlobalMaxRepeatableTimestamp, []byte("4")))
	require.NoError(t, store.Close())

	return "sqlite:" + path
}

// run parses and executes |args| against the store at |url|, returning output.
func run(t *testing.T, url string, args ...string) string {
	var buf bytes.Buffer
	stdout = &buf
	t.Cleanup(func() { stdout = os.Stdout })

	var _, err = newParser().ParseArgs(append([]string{"--store.url", url, "--log.level", "error"}, args...))
	require.NoError(t, err)
	return buf.String()
}

func TestDocumentsAsJSON(t *testing.T) {
	var url = seedStore(t)
	var out = run(t, url, "documents", "--format", "json", "--page-size", "2")

	var lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)

	var first, last map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[3]), &last))

	require.Equal(t, 1.0, first["ts"])
	require.Equal(t, map[string]interface{}{"name": "alpha"}, first["value"])
	require.Equal(t, 4.0, last["ts"])
	require.Equal(t, 2.0, last["prev_ts"])
	require.Equal(t, true, last["deleted"])
	require.NotContains(t, last, "value")
}

func TestDocumentsRangeOrderAndLimit(t *testing.T) {
	var url = seedStore(t)
	var out = run(t, url, "documents", "-o", "json", "--min-ts", "2", "--max-ts", "3", "--order", "desc")

	var lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"ts":3`)
	require.Contains(t, lines[1], `"ts":2`)

	out = run(t, url, "documents", "-o", "json", "--limit", "1", "--retention-floor", "3")
	require.Equal(t, 1, strings.Count(out, "\n"))
	require.Contains(t, out, `"ts":3`)
}

func TestDocumentsAsYAML(t *testing.T) {
	var url = seedStore(t)
	var out = run(t, url, "documents", "-o", "yaml", "--max-ts", "1")

	var records []map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	require.Equal(t, 1, records[0]["ts"])
	require.Equal(t, map[interface{}]interface{}{"name": "alpha"}, records[0]["value"])
}

func TestDocumentsAsTable(t *testing.T) {
	var url = seedStore(t)
	var out = run(t, url, "documents")

	require.Contains(t, out, `{"name":"charlie"}`)
	require.Contains(t, out, persistence.NewDocumentID(testTablet, pt.ID(2)).String())
}

func TestIndexScan(t *testing.T) {
	var url = seedStore(t)
	var index = testIndex.String()
	var tablet = testTablet.String()

	// "bravo" was deleted at ts 4.
	var out = run(t, url, "index-scan", "--index", index, "--tablet", tablet, "-o", "json", "--prefix", "name/")
	var lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"key":"\"name/alpha\""`)
	require.Contains(t, lines[1], `"key":"\"name/charlie\""`)

	// But is visible as of ts 3.
	out = run(t, url, "index-scan", "--index", index, "--tablet", tablet, "-o", "json", "--read-ts", "3", "--order", "desc")
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "name/charlie")
	require.Contains(t, lines[1], "name/bravo")

	out = run(t, url, "index-scan", "--index", index, "--tablet", tablet, "-o", "json",
		"--read-ts", "3", "--start", "name/b", "--end", "name/c")
	require.Equal(t, 1, strings.Count(out, "\n"))
	require.Contains(t, out, "name/bravo")

	// Entries of other tablets aren't visible.
	out = run(t, url, "index-scan", "--index", index, "-o", "json")
	require.Empty(t, out)
}

func TestStatAndCheckpoint(t *testing.T) {
	var url = seedStore(t)

	var out = run(t, url, "stat")
	require.Contains(t, out, "wal")
	require.Contains(t, out, "max_repeatable_ts")
	require.Contains(t, out, "test.db-wal")

	out = run(t, url, "checkpoint", "--mode", "TRUNCATE")
	require.Contains(t, out, "TRUNCATE")
	require.Contains(t, out, "false")

	out = run(t, "memory://", "checkpoint")
	require.Contains(t, out, "n/a")
}

func TestServeUntilSignaled(t *testing.T) {
	baseCfg.Store.URL = seedStore(t)

	var cmd cmdServe
	cmd.Checkpoint.Interval = time.Hour
	cmd.Checkpoint.Timeout = time.Second
	cmd.Diagnostics.Address = "127.0.0.1:0"

	var signalCh = make(chan os.Signal, 1)
	signalCh <- syscall.SIGTERM

	require.NoError(t, cmd.serve(context.Background(), persistence.CheckpointPassive, signalCh))
}

func TestIndexScanInterval(t *testing.T) {
	var iv, err = (&cmdIndexScan{Start: `a\x00`, End: "b"}).interval()
	require.NoError(t, err)
	require.Equal(t, persistence.Bound{Kind: persistence.Included, Key: []byte("a\x00")}, iv.Start)
	require.Equal(t, persistence.Bound{Kind: persistence.Excluded, Key: []byte("b")}, iv.End)

	iv, err = (&cmdIndexScan{Prefix: "p"}).interval()
	require.NoError(t, err)
	require.Equal(t, persistence.PrefixInterval([]byte("p")), iv)

	_, err = (&cmdIndexScan{Prefix: "p", End: "q"}).interval()
	require.EqualError(t, err, "--prefix may not be used with --start or --end")
	_, err = (&cmdIndexScan{Start: `\q`}).interval()
	require.Error(t, err)
}

func TestParseID(t *testing.T) {
	var id, err = parseID("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	require.Equal(t, persistence.InternalID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, id)

	dashed, err := parseID("01020304-0506-0708-090a-0b0c0d0e0f10")
	require.NoError(t, err)
	require.Equal(t, id, dashed)

	_, err = parseID("nope")
	require.Error(t, err)
	require.Equal(t, "ab...", truncate("abcdefgh", 5))
}
