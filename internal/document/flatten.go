package document

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMinLength is the length a text must exceed to be editable.
	DefaultMinLength = 3
	// DefaultExcludedKeyMarker excludes texts whose context key contains it.
	DefaultExcludedKeyMarker = "title"
)

// FlattenOptions tunes which text leaves count as editable fragments.
type FlattenOptions struct {
	// MinLength is exclusive: a text needs more than MinLength characters.
	MinLength int
	// ExcludedKeyMarker is matched case-insensitively against the context
	// key. Empty disables the exclusion.
	ExcludedKeyMarker string
}

// DefaultFlattenOptions returns the options Flatten uses.
func DefaultFlattenOptions() FlattenOptions {
	return FlattenOptions{
		MinLength:         DefaultMinLength,
		ExcludedKeyMarker: DefaultExcludedKeyMarker,
	}
}

// Fragment is an editable text leaf and where it lives.
type Fragment struct {
	Path Path   `json:"path"`
	Text string `json:"text"`
}

// Flatten returns the editable texts of doc in pre-order, section keys in
// stored order. Identical texts are all returned.
func Flatten(doc Document) []string {
	return Texts(Fragments(doc))
}

// Fragments is Flatten with the path of each text.
func Fragments(doc Document) []Fragment {
	return FragmentsWithOptions(doc, DefaultFlattenOptions())
}

// FragmentsWithOptions flattens doc with custom limits.
func FragmentsWithOptions(doc Document, opts FlattenOptions) []Fragment {
	f := flattener{
		opts:   opts,
		marker: strings.ToLower(opts.ExcludedKeyMarker),
		out:    []Fragment{},
	}
	f.walk(doc, "", Path{})
	return f.out
}

// Texts projects fragments to their text.
func Texts(fragments []Fragment) []string {
	out := make([]string, len(fragments))
	for i, f := range fragments {
		out[i] = f.Text
	}
	return out
}

type flattener struct {
	opts   FlattenOptions
	marker string
	out    []Fragment
}

func (f *flattener) walk(d Document, key string, path Path) {
	switch d.kind {
	case KindText:
		if f.editable(d.text, key) {
			f.out = append(f.out, Fragment{Path: path, Text: d.text})
		}
	case KindList:
		for i, item := range d.items {
			f.walk(item, key+"_"+strconv.Itoa(i), path.Child(Index(i)))
		}
	case KindSection:
		for _, e := range d.entries {
			f.walk(e.Value, e.Key, path.Child(Key(e.Key)))
		}
	case KindScalar:
	}
}

func (f *flattener) editable(s, key string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	if utf8.RuneCountInString(s) <= f.opts.MinLength {
		return false
	}
	if f.marker != "" && strings.Contains(strings.ToLower(key), f.marker) {
		return false
	}
	return true
}
