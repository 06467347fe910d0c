package document

import (
	"strings"
)

// Rewrite returns a copy of doc in which every text whose trimmed value
// equals the trimmed original is replaced by replacement. All other texts
// are kept untrimmed and the shape of doc is preserved.
func Rewrite(doc Document, original, replacement string) Document {
	target := strings.TrimSpace(original)
	return rewrite(doc, target, replacement)
}

func rewrite(d Document, target, replacement string) Document {
	switch d.kind {
	case KindText:
		if strings.TrimSpace(d.text) == target {
			return Text(replacement)
		}
		return d
	case KindList:
		items := make([]Document, len(d.items))
		for i, item := range d.items {
			items[i] = rewrite(item, target, replacement)
		}
		return Document{kind: KindList, items: items}
	case KindSection:
		entries := make([]Entry, len(d.entries))
		for i, e := range d.entries {
			entries[i] = Entry{Key: e.Key, Value: rewrite(e.Value, target, replacement)}
		}
		return Document{kind: KindSection, entries: entries}
	default:
		return d
	}
}

// RewriteAt replaces the text leaf at path. It reports false and returns
// doc unchanged when path does not resolve to a text.
func RewriteAt(doc Document, path Path, replacement string) (Document, bool) {
	return rewriteAt(doc, path, replacement)
}

func rewriteAt(d Document, path Path, replacement string) (Document, bool) {
	if len(path) == 0 {
		if d.kind != KindText {
			return d, false
		}
		return Text(replacement), true
	}

	step, rest := path[0], path[1:]
	switch d.kind {
	case KindList:
		i, ok := step.resolveIndex()
		if !ok || i >= len(d.items) {
			return d, false
		}
		child, ok := rewriteAt(d.items[i], rest, replacement)
		if !ok {
			return d, false
		}
		items := make([]Document, len(d.items))
		copy(items, d.items)
		items[i] = child
		return Document{kind: KindList, items: items}, true
	case KindSection:
		key := step.token()
		for i, e := range d.entries {
			if e.Key != key {
				continue
			}
			child, ok := rewriteAt(e.Value, rest, replacement)
			if !ok {
				return d, false
			}
			entries := make([]Entry, len(d.entries))
			copy(entries, d.entries)
			entries[i] = Entry{Key: key, Value: child}
			return Document{kind: KindSection, entries: entries}, true
		}
		return d, false
	default:
		return d, false
	}
}

// Modification is one accepted replacement. When Path is set it targets
// that leaf only; otherwise it targets every text equal to Original after
// trimming.
type Modification struct {
	Path     Path   `json:"path,omitempty"`
	Original string `json:"original"`
	Improved string `json:"improved"`
}

// ByPath reports whether m targets a single leaf.
func (m Modification) ByPath() bool {
	return m.Path != nil
}

// Apply replays mods over doc in order. A path-keyed modification whose
// path no longer resolves to a text is skipped.
func Apply(doc Document, mods []Modification) Document {
	out := doc
	for _, m := range mods {
		if m.ByPath() {
			out, _ = RewriteAt(out, m.Path, m.Improved)
			continue
		}
		out = Rewrite(out, m.Original, m.Improved)
	}
	return out
}

// ApplyAll folds Rewrite over the by-value pairs in order.
func ApplyAll(doc Document, mods []Modification) Document {
	out := doc
	for _, m := range mods {
		out = Rewrite(out, m.Original, m.Improved)
	}
	return out
}
