package review

import (
	"strings"

	"resumereview/internal/errors"
	"resumereview/internal/types"
)

// Sentinel errors, matched with errors.Is by code.
var (
	ErrNoSuggestion        = errors.NewNotFoundError(errors.ErrCodeNoSuggestion, "no suggestion matches the fragment", nil)
	ErrAmbiguousSuggestion = errors.NewConflictError(errors.ErrCodeAmbiguousMatch, "several different suggestions match the fragment", nil)
)

type matchStrategy struct {
	name  string
	match func(original, fragment string) bool
}

// Strategies in decreasing order of confidence. The first one that
// produces a usable answer wins.
var matchStrategies = []matchStrategy{
	{"exact", func(original, fragment string) bool {
		return original == fragment
	}},
	{"trimmed", func(original, fragment string) bool {
		return strings.TrimSpace(original) == strings.TrimSpace(fragment)
	}},
	{"substring", func(original, fragment string) bool {
		o, f := strings.TrimSpace(original), strings.TrimSpace(fragment)
		if o == "" || f == "" {
			return false
		}
		return strings.Contains(o, f) || strings.Contains(f, o)
	}},
}

// MatchSuggestion finds the suggestion the backend made for fragment.
// Several matches under one strategy are accepted only when they all
// propose the same text.
func MatchSuggestion(suggestions []types.Suggestion, fragment string) (types.Suggestion, error) {
	for _, strategy := range matchStrategies {
		var matches []types.Suggestion
		for _, s := range suggestions {
			if strategy.match(s.Original, fragment) {
				matches = append(matches, s)
			}
		}

		switch {
		case len(matches) == 0:
			continue
		case agree(matches):
			return matches[0], nil
		default:
			candidates := make([]string, len(matches))
			for i, m := range matches {
				candidates[i] = m.Original
			}
			return types.Suggestion{}, errors.NewConflictError(errors.ErrCodeAmbiguousMatch,
				ErrAmbiguousSuggestion.Message, nil).
				WithContext("strategy", strategy.name).
				WithContext("candidates", candidates)
		}
	}

	return types.Suggestion{}, ErrNoSuggestion
}

func agree(matches []types.Suggestion) bool {
	for _, m := range matches[1:] {
		if m.Suggested != matches[0].Suggested {
			return false
		}
	}
	return true
}
