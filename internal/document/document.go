// Package document models the structured resume returned by the backend and
// implements the two tree walks over it: flattening into editable text
// fragments and rewriting accepted replacements back into the tree.
//
// A Document is an immutable value. Every function in this package returns
// new values and never modifies its inputs, so documents can be shared
// between goroutines without locking.
package document

import (
	"slices"
)

// Kind identifies which variant a Document holds.
type Kind int

const (
	// KindScalar is any non-string JSON scalar (number, boolean, null).
	// The zero Document is a null scalar.
	KindScalar Kind = iota
	// KindText is a string leaf.
	KindText
	// KindList is an ordered sequence of documents.
	KindList
	// KindSection is a keyed mapping of documents that keeps insertion order.
	KindSection
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindText:
		return "text"
	case KindList:
		return "list"
	case KindSection:
		return "section"
	default:
		return "unknown"
	}
}

// Document is a closed tagged variant: exactly one of text, items or
// entries is meaningful, selected by kind. For scalars, text holds the raw
// JSON encoding of the value.
type Document struct {
	kind    Kind
	text    string
	items   []Document
	entries []Entry
}

// Entry is one key/value pair of a section.
type Entry struct {
	Key   string
	Value Document
}

// Text returns a text leaf.
func Text(s string) Document {
	return Document{kind: KindText, text: s}
}

// List returns a list holding a copy of items.
func List(items ...Document) Document {
	return Document{kind: KindList, items: slices.Clone(items)}
}

// Section returns a section holding entries in the given order. When a key
// repeats, the last value wins and keeps the position of the first
// occurrence.
func Section(entries ...Entry) Document {
	return Document{kind: KindSection, entries: dedupeEntries(entries)}
}

// Null returns the JSON null scalar.
func Null() Document {
	return Document{kind: KindScalar, text: "null"}
}

// Scalar returns a non-string scalar from its raw JSON encoding, for
// example "42", "true" or "null". The raw text is not validated here;
// decoders only pass well-formed tokens.
func Scalar(raw string) Document {
	return Document{kind: KindScalar, text: raw}
}

// Empty returns an empty section, the shape an absent or malformed
// document degrades to.
func Empty() Document {
	return Document{kind: KindSection}
}

func dedupeEntries(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, e := range entries {
		if i, ok := index[e.Key]; ok {
			out[i].Value = e.Value
			continue
		}
		index[e.Key] = len(out)
		out = append(out, e)
	}
	return out
}

// Kind reports the variant held by d.
func (d Document) Kind() Kind {
	return d.kind
}

// IsText reports whether d is a text leaf.
func (d Document) IsText() bool { return d.kind == KindText }

// IsList reports whether d is a list.
func (d Document) IsList() bool { return d.kind == KindList }

// IsSection reports whether d is a section.
func (d Document) IsSection() bool { return d.kind == KindSection }

// IsScalar reports whether d is a non-string scalar.
func (d Document) IsScalar() bool { return d.kind == KindScalar }

// AsText returns the string of a text leaf.
func (d Document) AsText() (string, bool) {
	if d.kind != KindText {
		return "", false
	}
	return d.text, true
}

// Raw returns the JSON encoding of a scalar.
func (d Document) Raw() string {
	if d.kind != KindScalar {
		return ""
	}
	if d.text == "" {
		return "null"
	}
	return d.text
}

// Len returns the number of list items or section entries, and zero for
// leaves.
func (d Document) Len() int {
	switch d.kind {
	case KindList:
		return len(d.items)
	case KindSection:
		return len(d.entries)
	default:
		return 0
	}
}

// Items returns a copy of the list items.
func (d Document) Items() []Document {
	if d.kind != KindList {
		return nil
	}
	return slices.Clone(d.items)
}

// Index returns the list item at i.
func (d Document) Index(i int) (Document, bool) {
	if d.kind != KindList || i < 0 || i >= len(d.items) {
		return Document{}, false
	}
	return d.items[i], true
}

// Entries returns a copy of the section entries in stored order.
func (d Document) Entries() []Entry {
	if d.kind != KindSection {
		return nil
	}
	return slices.Clone(d.entries)
}

// Keys returns the section keys in stored order.
func (d Document) Keys() []string {
	if d.kind != KindSection {
		return nil
	}
	keys := make([]string, len(d.entries))
	for i, e := range d.entries {
		keys[i] = e.Key
	}
	return keys
}

// Get returns the value stored under key in a section.
func (d Document) Get(key string) (Document, bool) {
	if d.kind != KindSection {
		return Document{}, false
	}
	for _, e := range d.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Document{}, false
}

// Stats summarises the composition of a document.
type Stats struct {
	Texts    int `json:"texts"`
	Lists    int `json:"lists"`
	Sections int `json:"sections"`
	Scalars  int `json:"scalars"`
	Depth    int `json:"depth"`
}

// Measure walks d and counts each variant.
func Measure(d Document) Stats {
	var s Stats
	measure(d, 1, &s)
	return s
}

func measure(d Document, depth int, s *Stats) {
	s.Depth = max(s.Depth, depth)
	switch d.kind {
	case KindText:
		s.Texts++
	case KindList:
		s.Lists++
		for _, item := range d.items {
			measure(item, depth+1, s)
		}
	case KindSection:
		s.Sections++
		for _, e := range d.entries {
			measure(e.Value, depth+1, s)
		}
	case KindScalar:
		s.Scalars++
	}
}
