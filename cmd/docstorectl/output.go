package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"go.gazette.dev/docstore/persistence"
	"gopkg.in/yaml.v2"
)

// OutputConfig is common configuration of listing commands.
type OutputConfig struct {
	Format   string `long:"format" short:"o" choice:"table" choice:"json" choice:"yaml" default:"table" description:"Output format"`
	Order    string `long:"order" choice:"asc" choice:"desc" default:"asc" description:"Order of results"`
	PageSize int    `long:"page-size" default:"100" description:"Number of rows fetched per page"`
	Limit    int    `long:"limit" default:"0" description:"Maximum number of results. Zero is unlimited"`
}

// record is an output row of a listing command.
type record struct {
	Ts       uint64          `json:"ts"`
	Document string          `json:"document,omitempty"`
	Key      string          `json:"key,omitempty"`
	PrevTs   *uint64         `json:"prev_ts,omitempty"`
	Deleted  bool            `json:"deleted,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
}

func documentRecord(e persistence.DocumentLogEntry) record {
	var r = record{Ts: uint64(e.Ts), Document: e.ID.String(), Deleted: e.IsTombstone()}
	if e.PrevTs != nil {
		var p = uint64(*e.PrevTs)
		r.PrevTs = &p
	}
	if e.Value != nil {
		r.Value = e.Value.Value
	}
	return r
}

func indexRecord(e persistence.IndexEntry) record {
	var r = record{Ts: uint64(e.Ts), Key: strconv.Quote(string(e.Key())), Deleted: e.Deleted}
	if e.Value != nil {
		r.Document = e.Value.String()
	}
	return r
}

// writeRecords writes |records| to |w| in |format|.
func writeRecords(w io.Writer, format string, records []record, withValue bool) error {
	switch format {
	case "json":
		var enc = json.NewEncoder(w)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return errors.WithMessage(err, "encoding json")
			}
		}
		return nil

	case "yaml":
		// Values are mapped through their JSON decoding, for YAML encoding.
		var out = make([]yaml.MapSlice, 0, len(records))
		for _, r := range records {
			var m = yaml.MapSlice{{Key: "ts", Value: r.Ts}}
			if r.Document != "" {
				m = append(m, yaml.MapItem{Key: "document", Value: r.Document})
			}
			if r.Key != "" {
				m = append(m, yaml.MapItem{Key: "key", Value: r.Key})
			}
			if r.PrevTs != nil {
				m = append(m, yaml.MapItem{Key: "prev_ts", Value: *r.PrevTs})
			}
			if r.Deleted {
				m = append(m, yaml.MapItem{Key: "deleted", Value: true})
			}
			if r.Value != nil {
				var v interface{}
				if err := json.Unmarshal(r.Value, &v); err != nil {
					return errors.WithMessage(err, "decoding value")
				}
				m = append(m, yaml.MapItem{Key: "value", Value: v})
			}
			out = append(out, m)
		}
		var b, err = yaml.Marshal(out)
		if err != nil {
			return errors.WithMessage(err, "encoding yaml")
		}
		_, err = w.Write(b)
		return err

	default:
		var table = tablewriter.NewWriter(w)
		if withValue {
			table.Header("Ts", "Document", "Deleted", "Prev Ts", "Value")
		} else {
			table.Header("Key", "Ts", "Document")
		}

		for _, r := range records {
			var row []string
			if withValue {
				var prev = ""
				if r.PrevTs != nil {
					prev = fmt.Sprint(*r.PrevTs)
				}
				row = []string{fmt.Sprint(r.Ts), r.Document, fmt.Sprint(r.Deleted), prev, truncate(string(r.Value), 64)}
			} else {
				row = []string{r.Key, fmt.Sprint(r.Ts), r.Document}
			}
			if err := table.Append(row); err != nil {
				return err
			}
		}
		return table.Render()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// collect reads up to |limit| items of |s|, or all items if |limit| is zero.
func collect[T any](s *persistence.Stream[T], limit int) ([]T, error) {
	defer s.Close()

	var out []T
	for limit == 0 || len(out) != limit {
		var item, err = s.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// parseID parses a 16-byte identifier from hex or dashed UUID form.
func parseID(s string) (persistence.InternalID, error) {
	var u, err = uuid.Parse(s)
	if err != nil {
		return persistence.InternalID{}, errors.WithMessagef(err, "parsing ID %q", s)
	}
	return persistence.InternalID(u), nil
}

// parseKey parses a key which may include Go string escapes.
func parseKey(s string) ([]byte, error) {
	var out, err = strconv.Unquote(`"` + s + `"`)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing key %q", s)
	}
	return []byte(out), nil
}
