// Package review holds the state of one resume review: the document under
// review, the backend's suggestions and the replacements the user accepted.
package review

import (
	"slices"
	"strings"

	"resumereview/internal/document"
)

// ModificationSet is an ordered set of accepted replacements. An entry is
// identified by its path when it has one and by its original text
// otherwise. Putting an entry with an existing identity overwrites it in
// place, so replay order is the order of first acceptance.
type ModificationSet struct {
	entries []document.Modification
}

func (s *ModificationSet) indexOf(m document.Modification) int {
	return slices.IndexFunc(s.entries, func(e document.Modification) bool {
		if m.ByPath() || e.ByPath() {
			return m.ByPath() && e.ByPath() && e.Path.Equal(m.Path)
		}
		return e.Original == m.Original
	})
}

// Put adds m or replaces the entry with the same identity.
func (s *ModificationSet) Put(m document.Modification) {
	if i := s.indexOf(m); i >= 0 {
		s.entries[i] = m
		return
	}
	s.entries = append(s.entries, m)
}

// Remove drops the entry recorded for path.
func (s *ModificationSet) Remove(path document.Path) bool {
	if path == nil {
		return false
	}
	i := s.indexOf(document.Modification{Path: path})
	if i < 0 {
		return false
	}
	s.entries = slices.Delete(s.entries, i, i+1)
	return true
}

// RemoveText drops every entry, by path or by value, whose original text
// equals original after trimming. It returns the number of entries removed.
func (s *ModificationSet) RemoveText(original string) int {
	target := strings.TrimSpace(original)
	before := len(s.entries)
	s.entries = slices.DeleteFunc(s.entries, func(e document.Modification) bool {
		return strings.TrimSpace(e.Original) == target
	})
	return before - len(s.entries)
}

// ForPath returns the entry recorded for path.
func (s *ModificationSet) ForPath(path document.Path) (document.Modification, bool) {
	if path == nil {
		return document.Modification{}, false
	}
	if i := s.indexOf(document.Modification{Path: path}); i >= 0 {
		return s.entries[i], true
	}
	return document.Modification{}, false
}

// ForText returns the by-value entry recorded for original.
func (s *ModificationSet) ForText(original string) (document.Modification, bool) {
	if i := s.indexOf(document.Modification{Original: original}); i >= 0 {
		return s.entries[i], true
	}
	return document.Modification{}, false
}

// List returns a copy of the entries in replay order.
func (s *ModificationSet) List() []document.Modification {
	return slices.Clone(s.entries)
}

// Len returns the number of entries.
func (s *ModificationSet) Len() int {
	return len(s.entries)
}
