// docstorectl is a tool for inspecting and maintaining docstore persistence.
package main

import (
	"context"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	mbp "go.gazette.dev/docstore/mainboilerplate"
	"go.gazette.dev/docstore/persistence"
	"go.gazette.dev/docstore/persistence/memory"
	"go.gazette.dev/docstore/persistence/postgres"
	"go.gazette.dev/docstore/persistence/sqlite"
)

const iniFilename = "docstorectl.ini"

// StoreConfig configures the persistence which commands operate upon.
type StoreConfig struct {
	URL string `long:"url" env:"URL" default:"sqlite:docstore.db" description:"URL of the store. One of sqlite:path?wal=true&codec=snappy, memory://, or postgres://user@host/db?schema=docstore"`
}

var baseCfg = new(struct {
	Store StoreConfig   `group:"Store" namespace:"store" env-namespace:"STORE"`
	Log   mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
})

// stdout receives command output.
var stdout io.Writer = os.Stdout

func init() {
	persistence.RegisterProviders(map[string]persistence.Constructor{
		"sqlite":     sqlite.Constructor,
		"memory":     memory.Constructor,
		"postgres":   postgres.Constructor,
		"postgresql": postgres.Constructor,
	})
}

func startup() { mbp.InitLog(baseCfg.Log) }

// openStore opens the configured store.
func openStore(ctx context.Context) (*persistence.Instrumented, error) {
	return persistence.Open(ctx, baseCfg.Store.URL)
}

func newParser() *flags.Parser {
	var parser = flags.NewParser(baseCfg, flags.Default)

	parser.LongDescription = `docstorectl is a tool for inspecting and maintaining the persistence of a docstore.

See --help pages of each sub-command for documentation and usage examples.
Optionally configure docstorectl with a '` + iniFilename + `' file in the current working directory,
or with '~/.config/docstore/` + iniFilename + `'. Use the 'print-config' sub-command to inspect
the tool's current configuration.
`
	mustAddCmd(parser, "stat", "Describe the store", `
Describe the store's durability configuration, on-disk files, maximum
committed timestamp, and globals.
`, &cmdStat{})

	mustAddCmd(parser, "checkpoint", "Checkpoint the store's write-ahead log", `
Fold the store's write-ahead log into its main database file.

PASSIVE checkpoints as much as possible without waiting on readers or writers.
FULL waits for writers. RESTART also waits for readers, and TRUNCATE also
truncates the log to zero bytes. Pages left behind due to concurrent
readers are reported, and are not an error.
`, &cmdCheckpoint{})

	mustAddCmd(parser, "documents", "List document log entries", `
List entries of the document log within a timestamp range.

Select a range with --min-ts and --max-ts, and results may be output
in a variety of --format options:
table: Prints as a table.
json:  Prints entries encoded as JSON, one per line.
yaml:  Prints a YAML sequence of entries.
`, &cmdDocuments{})

	mustAddCmd(parser, "index-scan", "Scan a secondary index", `
Scan the latest entries of each key of an index, as of a read timestamp.

Index and tablet IDs are 32 hex digits, optionally in the dashed form of a UUID.
Keys are matched by --prefix, or by --start (inclusive) and --end (exclusive).
Keys with non-printable bytes may be given with Go escapes, such as "\x00".
`, &cmdIndexScan{})

	mustAddCmd(parser, "serve", "Serve periodic checkpoints and diagnostics", `
Checkpoint the store at an interval until signaled to exit, retrying
checkpoints which can't reclaim the whole log on an escalating backoff.
Metrics and debugging endpoints are served over HTTP at /debug/.
`, &cmdServe{})

	mbp.AddPrintConfigCmd(parser, iniFilename)
	return parser
}

func mustAddCmd(parser *flags.Parser, name, short, long string, cfg interface{}) {
	var _, err = parser.AddCommand(name, short, long, cfg)
	mbp.Must(err, "failed to add command")
}

func main() {
	mbp.MustParseConfig(newParser(), iniFilename)
}
