package mainboilerplate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

// ConfigSearchPath returns directories searched for a configuration file:
//   - The current working directory.
//   - ~/.config/docstore (under the user's $HOME or %UserProfile% directory).
//   - $APPLICATION_CONFIG_ROOT, if set.
func ConfigSearchPath() []string {
	var out = []string{
		".",
		filepath.Join(os.Getenv("HOME"), ".config", "docstore"),
		filepath.Join(os.Getenv("UserProfile"), ".config", "docstore"),
	}
	if root := os.Getenv("APPLICATION_CONFIG_ROOT"); root != "" {
		out = append(out, root)
	}
	return out
}

// ParseConfig parses into |parser| the first INI file named |configName|
// within |searchPath|, if any, and then the arguments |args|. Unknown INI
// options are ignored, as the file may be shared by several programs.
func ParseConfig(parser *flags.Parser, configName string, searchPath []string, args []string) error {
	var origOptions = parser.Options
	parser.Options |= flags.IgnoreUnknown

	var iniParser = flags.NewIniParser(parser)

	for _, dir := range searchPath {
		var path = filepath.Join(dir, configName)

		if err := iniParser.ParseFile(path); err == nil {
			break
		} else if os.IsNotExist(err) {
			// Pass.
		} else {
			parser.Options = origOptions
			return err
		}
	}
	// Restore original options for parsing argument flags.
	parser.Options = origOptions

	var _, err = parser.ParseArgs(args)
	return err
}

// MustParseConfig requires that the Parser parse from the combination of an
// optional INI file, configured environment bindings, and explicit flags.
func MustParseConfig(parser *flags.Parser, configName string) {
	var err = ParseConfig(parser, configName, ConfigSearchPath(), os.Args[1:])
	if err == nil {
		return
	}
	var flagErr, ok = err.(*flags.Error)
	if !ok {
		// An unreadable or malformed INI file, or a failed command.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	switch flagErr.Type {
	case flags.ErrDuplicatedFlag, flags.ErrTag, flags.ErrInvalidTag, flags.ErrShortNameTooLong, flags.ErrMarshal:
		// These indicate a problem in the configuration object |parser|
		// was asked to parse (a developer error rather than input error).
		panic(err)

	case flags.ErrCommandRequired:
		// Extend go-flag's "Please specify one command of: ... " output with the full usage.
		os.Stderr.WriteString("\n")
		parser.WriteHelp(os.Stderr)
		fmt.Fprintf(os.Stderr, "\nVersion %s, built at %s.\n", Version, BuildDate)
		os.Exit(1)

	case flags.ErrHelp:
		if parser.Options&flags.PrintErrors == 0 {
			parser.WriteHelp(os.Stderr)
		}
		fmt.Fprintf(os.Stderr, "\nVersion %s, built at %s.\n", Version, BuildDate)
		os.Exit(0)

	default:
		// Other error types indicate a problem of input, of which
		// go-flags has already printed a helpful message.
		os.Exit(1)
	}
}

// AddPrintConfigCmd to the Parser. The "print-config" command helps users test
// whether their applications are correctly configured, by exporting all runtime
// configuration in INI format.
func AddPrintConfigCmd(parser *flags.Parser, configName string) {
	_, _ = parser.AddCommand("print-config", "Print combined configuration and exit", `
print-config parses the combined configuration from `+configName+`, flags,
and environment variables, and then writes the configuration to stdout in INI format.
`, &printConfig{Parser: parser})
}

type printConfig struct {
	*flags.Parser `no-flag:"t"`
}

func (p printConfig) Execute([]string) error {
	var ini = flags.NewIniParser(p.Parser)
	ini.Write(os.Stdout, flags.IniIncludeComments|flags.IniCommentDefaults|flags.IniIncludeDefaults)
	return nil
}
