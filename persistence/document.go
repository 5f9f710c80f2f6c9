package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	// MaxDocumentSize is the maximum encoded size of a document value.
	MaxDocumentSize = 1 << 20
	// MaxDocumentDepth is the maximum nesting depth of a document value.
	MaxDocumentDepth = 64
)

// ResolvedDocument is the materialized value of a document at one version.
// Value is a compact JSON object.
type ResolvedDocument struct {
	Tablet TabletID
	Value  json.RawMessage
}

// NewResolvedDocument encodes |v| as the value of a document within |tablet|.
// It fails if |v| doesn't encode as a valid document.
func NewResolvedDocument(tablet TabletID, v interface{}) (*ResolvedDocument, error) {
	var b, err = json.Marshal(v)
	if err != nil {
		return nil, &ValidationError{Field: "ResolvedDocument", Reason: err.Error()}
	}
	return ResolvedDocumentFromJSON(tablet, b)
}

// ResolvedDocumentFromJSON validates |b| as a document value of |tablet|.
// The returned ResolvedDocument holds a compacted copy of |b|.
func ResolvedDocumentFromJSON(tablet TabletID, b []byte) (*ResolvedDocument, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return nil, &ValidationError{Field: "ResolvedDocument", Reason: err.Error()}
	} else if buf.Len() > MaxDocumentSize {
		return nil, &ValidationError{Field: "ResolvedDocument",
			Reason: fmt.Sprintf("encoded size %d exceeds maximum %d", buf.Len(), MaxDocumentSize)}
	} else if err = validateDocument(buf.Bytes()); err != nil {
		return nil, err
	}
	return &ResolvedDocument{Tablet: tablet, Value: json.RawMessage(buf.Bytes())}, nil
}

// Decode the document value into |v|.
func (d *ResolvedDocument) Decode(v interface{}) error {
	return json.Unmarshal(d.Value, v)
}

// Clone returns a deep copy of the ResolvedDocument.
func (d *ResolvedDocument) Clone() *ResolvedDocument {
	if d == nil {
		return nil
	}
	return &ResolvedDocument{Tablet: d.Tablet, Value: append(json.RawMessage(nil), d.Value...)}
}

// validateDocument walks the tokens of |b|, requiring a top-level object,
// bounded nesting, and well-formed field names.
func validateDocument(b []byte) error {
	var dec = json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	// Each open container pushes whether it's an object, and whether the
	// next token of an object is expected to be a field name.
	type frame struct{ object, expectName bool }
	var stack []frame

	for first := true; ; first = false {
		var tok, err = dec.Token()
		if err == io.EOF {
			break
		} else if err != nil {
			return &ValidationError{Field: "ResolvedDocument", Reason: err.Error()}
		}

		if first {
			if d, ok := tok.(json.Delim); !ok || d != '{' {
				return &ValidationError{Field: "ResolvedDocument", Reason: "value must be an object"}
			}
		}

		if n := len(stack); n != 0 && stack[n-1].object && stack[n-1].expectName {
			if name, ok := tok.(string); ok {
				if name == "" {
					return &ValidationError{Field: "ResolvedDocument", Reason: "empty field name"}
				} else if strings.HasPrefix(name, "$") {
					return &ValidationError{Field: "ResolvedDocument", Reason: fmt.Sprintf("field name %q may not begin with '$'", name)}
				}
				stack[n-1].expectName = false
				continue
			}
		}

		switch tok {
		case json.Delim('{'), json.Delim('['):
			if len(stack) == MaxDocumentDepth {
				return &ValidationError{Field: "ResolvedDocument",
					Reason: fmt.Sprintf("nesting exceeds maximum depth %d", MaxDocumentDepth)}
			}
			stack = append(stack, frame{object: tok == json.Delim('{'), expectName: tok == json.Delim('{')})
			continue
		case json.Delim('}'), json.Delim(']'):
			stack = stack[:len(stack)-1]
		}
		// A completed value within an object is followed by a field name.
		if n := len(stack); n != 0 && stack[n-1].object {
			stack[n-1].expectName = true
		}
	}
	return nil
}
