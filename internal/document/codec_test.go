package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_KeepsKeyOrder(t *testing.T) {
	input := `{"zeta":"z value","alpha":{"b":1,"a":[true,null,"text"]},"mid":2.50}`

	doc, err := Parse([]byte(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, doc.Keys())
	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, input, string(out))
}

func TestParse_DuplicateKeys(t *testing.T) {
	doc, err := Parse([]byte(`{"a":"first","b":"middle","a":"last"}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, doc.Keys())
	v, ok := doc.Get("a")
	require.True(t, ok)
	text, _ := v.AsText()
	assert.Equal(t, "last", text)
}

func TestParse_Errors(t *testing.T) {
	for _, input := range []string{"", "{", `{"a":}`, `{"a":1} trailing`, `[1,2`} {
		_, err := Parse([]byte(input))
		assert.Error(t, err, "input %q", input)
		assert.Empty(t, Flatten(ParseOrEmpty([]byte(input))))
	}
}

func TestDocument_JSONField(t *testing.T) {
	var payload struct {
		Structured Document `json:"structured"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"structured":{"Summary":"Builds things well"}}`), &payload))
	assert.Equal(t, []string{"Builds things well"}, Flatten(payload.Structured))
}

func TestParseYAML(t *testing.T) {
	input := `
Name: Jane Doe
Experience:
  - Led a team of 5 engineers
  - "1234"
Years: 7
Remote: true
Manager: ~
defaults: &defaults
  Location: Remote first
Copy: *defaults
`
	doc, err := ParseYAML([]byte(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Experience", "Years", "Remote", "Manager", "defaults", "Copy"}, doc.Keys())

	years, _ := doc.Get("Years")
	assert.Equal(t, KindScalar, years.Kind())
	assert.Equal(t, "7", years.Raw())

	manager, _ := doc.Get("Manager")
	assert.Equal(t, "null", manager.Raw())

	assert.Equal(t, []string{
		"Jane Doe",
		"Led a team of 5 engineers",
		"1234",
		"Remote first",
		"Remote first",
	}, Flatten(doc))
}

func TestParseYAML_Empty(t *testing.T) {
	doc, err := ParseYAML(nil)
	require.NoError(t, err)
	assert.True(t, doc.IsSection())
	assert.Equal(t, 0, doc.Len())
}

func TestPath(t *testing.T) {
	p := Path{Key("a/b"), Key("c~d"), Index(2)}
	assert.Equal(t, "/a~1b/c~0d/2", p.String())

	parsed, err := ParsePath(p.String())
	require.NoError(t, err)
	assert.True(t, p.Equal(parsed))

	_, err = ParsePath("no-slash")
	assert.Error(t, err)

	root, err := ParsePath("")
	require.NoError(t, err)
	assert.Empty(t, root.String())

	var m Modification
	require.NoError(t, json.Unmarshal([]byte(`{"path":"/Experience/1","original":"a","improved":"b"}`), &m))
	assert.True(t, m.ByPath())
	assert.Equal(t, "/Experience/1", m.Path.String())

	var byValue Modification
	require.NoError(t, json.Unmarshal([]byte(`{"original":"a","improved":"b"}`), &byValue))
	assert.False(t, byValue.ByPath())
}

func TestMeasure(t *testing.T) {
	doc, err := Parse([]byte(experienceJSON))
	require.NoError(t, err)
	assert.Equal(t, Stats{Texts: 5, Lists: 1, Sections: 1, Depth: 3}, Measure(doc))
}
