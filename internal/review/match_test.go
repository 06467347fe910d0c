package review

import (
	stderrors "errors"
	"testing"

	"resumereview/internal/errors"
	"resumereview/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func suggestion(original, suggested string) types.Suggestion {
	return types.Suggestion{Original: original, Suggested: suggested}
}

func TestMatchSuggestion(t *testing.T) {
	tests := []struct {
		name        string
		suggestions []types.Suggestion
		fragment    string
		want        string
		wantErr     error
	}{
		{
			name:        "exact match",
			suggestions: []types.Suggestion{suggestion("Did stuff", "Delivered features"), suggestion("Wrote code", "Shipped code")},
			fragment:    "Did stuff",
			want:        "Delivered features",
		},
		{
			name:        "trimmed match",
			suggestions: []types.Suggestion{suggestion("Did stuff", "Delivered features")},
			fragment:    "  Did stuff\n",
			want:        "Delivered features",
		},
		{
			name:        "fragment inside suggestion original",
			suggestions: []types.Suggestion{suggestion("Did stuff at Acme", "Delivered features at Acme")},
			fragment:    "Did stuff",
			want:        "Delivered features at Acme",
		},
		{
			name:        "suggestion original inside fragment",
			suggestions: []types.Suggestion{suggestion("Did stuff", "Delivered features")},
			fragment:    "Did stuff at Acme",
			want:        "Delivered features",
		},
		{
			name: "exact wins over substring",
			suggestions: []types.Suggestion{
				suggestion("Led a team of five engineers", "Managed five engineers"),
				suggestion("Led a team", "Led a cross-functional team"),
			},
			fragment: "Led a team",
			want:     "Led a cross-functional team",
		},
		{
			name: "duplicate originals with the same suggestion",
			suggestions: []types.Suggestion{
				suggestion("Managed budget", "Owned a $2M budget"),
				suggestion("Managed budget", "Owned a $2M budget"),
			},
			fragment: "Managed budget",
			want:     "Owned a $2M budget",
		},
		{
			name: "duplicate originals with different suggestions",
			suggestions: []types.Suggestion{
				suggestion("Managed budget", "Owned a $2M budget"),
				suggestion("Managed budget", "Cut spend by 10%"),
			},
			fragment: "Managed budget",
			wantErr:  ErrAmbiguousSuggestion,
		},
		{
			name: "several substring matches",
			suggestions: []types.Suggestion{
				suggestion("Built APIs in Go", "Designed Go APIs"),
				suggestion("Built APIs in Go and Rust", "Designed polyglot APIs"),
			},
			fragment: "Built APIs",
			wantErr:  ErrAmbiguousSuggestion,
		},
		{
			name:        "no match",
			suggestions: []types.Suggestion{suggestion("Did stuff", "Delivered features")},
			fragment:    "Mentored interns",
			wantErr:     ErrNoSuggestion,
		},
		{
			name:        "blank original never matches by substring",
			suggestions: []types.Suggestion{suggestion("   ", "Something")},
			fragment:    "Mentored interns",
			wantErr:     ErrNoSuggestion,
		},
		{
			name:     "no suggestions",
			fragment: "Mentored interns",
			wantErr:  ErrNoSuggestion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchSuggestion(tt.suggestions, tt.fragment)
			if tt.wantErr != nil {
				assert.True(t, stderrors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Suggested)
		})
	}
}

func TestMatchSuggestion_AmbiguousListsCandidates(t *testing.T) {
	_, err := MatchSuggestion([]types.Suggestion{
		suggestion("Built APIs in Go", "A"),
		suggestion("Built APIs in Rust", "B"),
	}, "Built APIs")

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorTypeConflict, appErr.Type)
	assert.Equal(t, "substring", appErr.Context["strategy"])
	assert.Equal(t, []string{"Built APIs in Go", "Built APIs in Rust"}, appErr.Context["candidates"])

	// The sentinel itself must stay free of per-call context.
	assert.Empty(t, ErrAmbiguousSuggestion.Context)
}
