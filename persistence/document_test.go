package persistence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvedDocumentValidation(t *testing.T) {
	var tablet = NewTabletID()

	var doc, err = ResolvedDocumentFromJSON(tablet, []byte(` { "a" : [1, {"b": null}], "c": "$d" } `))
	require.NoError(t, err)
	require.Equal(t, `{"a":[1,{"b":null}],"c":"$d"}`, string(doc.Value))
	require.Equal(t, tablet, doc.Tablet)

	for _, tc := range []struct {
		in, reason string
	}{
		{`[1, 2]`, "value must be an object"},
		{`"str"`, "value must be an object"},
		{`{"": 1}`, "empty field name"},
		{`{"a": {"$b": 1}}`, `field name "$b" may not begin with '$'`},
		{`{"a": 1`, "unexpected end of JSON input"},
	} {
		_, err = ResolvedDocumentFromJSON(tablet, []byte(tc.in))
		require.True(t, IsValidation(err), tc.in)
		require.Contains(t, err.Error(), tc.reason, tc.in)
	}

	// Field names nested within arrays of objects are also checked.
	_, err = ResolvedDocumentFromJSON(tablet, []byte(`{"a": [{"ok": 1}, {"$bad": 2}]}`))
	require.True(t, IsValidation(err))
	// String values which look like field names are not.
	_, err = ResolvedDocumentFromJSON(tablet, []byte(`{"a": ["", "$x"]}`))
	require.NoError(t, err)
}

func TestResolvedDocumentLimits(t *testing.T) {
	var deep = strings.Repeat(`{"a":`, MaxDocumentDepth) + "1" + strings.Repeat("}", MaxDocumentDepth)
	var _, err = ResolvedDocumentFromJSON(MinTabletID, []byte(deep))
	require.NoError(t, err)

	deep = strings.Repeat(`{"a":`, MaxDocumentDepth+1) + "1" + strings.Repeat("}", MaxDocumentDepth+1)
	_, err = ResolvedDocumentFromJSON(MinTabletID, []byte(deep))
	require.EqualError(t, err, "invalid ResolvedDocument: nesting exceeds maximum depth 64")

	var big = `{"a":"` + strings.Repeat("x", MaxDocumentSize) + `"}`
	_, err = ResolvedDocumentFromJSON(MinTabletID, []byte(big))
	require.Contains(t, err.Error(), "exceeds maximum")
}

func TestResolvedDocumentRoundTrip(t *testing.T) {
	type value struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	var doc, err = NewResolvedDocument(MinTabletID, value{Name: "x", Count: 3})
	require.NoError(t, err)

	var out value
	require.NoError(t, doc.Decode(&out))
	require.Equal(t, value{Name: "x", Count: 3}, out)

	var clone = doc.Clone()
	clone.Value[2] = 'N'
	require.Equal(t, `{"name":"x","count":3}`, string(doc.Value))
	require.Nil(t, (*ResolvedDocument)(nil).Clone())

	_, err = NewResolvedDocument(MinTabletID, make(chan int))
	require.True(t, IsValidation(err))
}
