package review

import (
	"slices"
	"strings"
	"sync"
	"time"

	"resumereview/internal/document"
	"resumereview/internal/errors"
	"resumereview/internal/types"

	"github.com/google/uuid"
)

// Download modes of Session.DownloadPayload
const (
	DownloadMaterialized = "materialized"
	DownloadAnnotated    = "annotated"
)

// RequestKind names a kind of backend request whose answer is stored in a
// session.
type RequestKind string

const (
	RequestSuggestions RequestKind = "suggestions"
	RequestSummary     RequestKind = "summary"
	RequestKeywords    RequestKind = "keywords"
)

// ErrStaleResponse reports a backend answer that was overtaken by a newer
// request of the same kind.
var ErrStaleResponse = errors.NewConflictError(errors.ErrCodeStaleResponse, "a newer request superseded this response", nil)

// Token identifies one request started with Session.Begin.
type Token struct {
	kind       RequestKind
	generation uint64
}

// Kind returns the request kind of the token.
func (t Token) Kind() RequestKind { return t.kind }

// Results holds the backend answers stored in a session.
type Results struct {
	Suggestions     []types.Suggestion
	Summary         string
	JobDescription  string
	MissingKeywords []string
}

// Session is one review of one document. It is safe for concurrent use.
type Session struct {
	mu sync.RWMutex

	id          string
	original    document.Document
	fragments   []document.Fragment
	results     Results
	mods        ModificationSet
	generations map[RequestKind]uint64

	createdAt  time.Time
	lastAccess time.Time
}

// NewSession starts a review of doc. The document is flattened once with
// opts to find its editable fragments.
func NewSession(doc document.Document, opts document.FlattenOptions) *Session {
	now := time.Now()
	return &Session{
		id:          uuid.NewString(),
		original:    doc,
		fragments:   document.FragmentsWithOptions(doc, opts),
		generations: make(map[RequestKind]uint64),
		createdAt:   now,
		lastAccess:  now,
	}
}

func (s *Session) ID() string { return s.id }

// Original returns the document as it was received.
func (s *Session) Original() document.Document { return s.original }

// Fragments returns the editable fragments of the original document.
func (s *Session) Fragments() []document.Fragment {
	return slices.Clone(s.fragments)
}

// Bullets returns the fragment texts, the batch sent for suggestions.
func (s *Session) Bullets() []string {
	return document.Texts(s.fragments)
}

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastAccess returns when the session was last read or changed.
func (s *Session) LastAccess() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccess
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

// Results returns a copy of the stored backend answers.
func (s *Session) Results() Results {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.results
	r.Suggestions = slices.Clone(r.Suggestions)
	r.MissingKeywords = slices.Clone(r.MissingKeywords)
	return r
}

// Begin registers a new request of kind and returns its token. Any answer
// to an earlier request of the same kind becomes stale.
func (s *Session) Begin(kind RequestKind) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[kind]++
	return Token{kind: kind, generation: s.generations[kind]}
}

// Commit applies the answer of the request identified by tok through fn,
// unless a newer request of the same kind began after it.
func (s *Session) Commit(tok Token, fn func(*Results)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[tok.kind] != tok.generation {
		return errors.NewConflictError(errors.ErrCodeStaleResponse, ErrStaleResponse.Message, nil).
			WithContext("request", string(tok.kind))
	}
	fn(&s.results)
	s.lastAccess = time.Now()
	return nil
}

// CommitSuggestions stores the suggestions answered for tok.
func (s *Session) CommitSuggestions(tok Token, suggestions []types.Suggestion) error {
	return s.Commit(tok, func(r *Results) { r.Suggestions = slices.Clone(suggestions) })
}

// CommitSummary stores the summary answered for tok.
func (s *Session) CommitSummary(tok Token, summary string) error {
	return s.Commit(tok, func(r *Results) { r.Summary = summary })
}

// CommitKeywords stores the keywords of jobDescription missing from the
// resume.
func (s *Session) CommitKeywords(tok Token, jobDescription string, missing []string) error {
	return s.Commit(tok, func(r *Results) {
		r.JobDescription = jobDescription
		r.MissingKeywords = slices.Clone(missing)
	})
}

func (s *Session) fragmentAt(path document.Path) (document.Fragment, bool) {
	for _, f := range s.fragments {
		if f.Path.Equal(path) {
			return f, true
		}
	}
	return document.Fragment{}, false
}

// Accept records the suggestion for the fragment at path.
func (s *Session) Accept(path document.Path) (document.Modification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frag, ok := s.fragmentAt(path)
	if !ok {
		return document.Modification{}, errors.NewNotFoundError(errors.ErrCodeFragmentNotFound,
			"no editable fragment at path", nil).WithContext("path", path.String())
	}

	suggestion, err := MatchSuggestion(s.results.Suggestions, frag.Text)
	if err != nil {
		return document.Modification{}, err
	}
	if strings.TrimSpace(suggestion.Suggested) == "" {
		return document.Modification{}, ErrNoSuggestion
	}

	mod := document.Modification{Path: frag.Path, Original: frag.Text, Improved: suggestion.Suggested}
	s.mods.Put(mod)
	s.lastAccess = time.Now()
	return mod, nil
}

// AcceptText records a replacement of every text equal to original. With
// an empty improved text the matching suggestion is used.
func (s *Session) AcceptText(original, improved string) (document.Modification, error) {
	if strings.TrimSpace(original) == "" {
		return document.Modification{}, errors.NewValidationError(errors.ErrCodeInvalidRequest, "original text is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if improved == "" {
		suggestion, err := MatchSuggestion(s.results.Suggestions, original)
		if err != nil {
			return document.Modification{}, err
		}
		if strings.TrimSpace(suggestion.Suggested) == "" {
			return document.Modification{}, ErrNoSuggestion
		}
		improved = suggestion.Suggested
	}

	mod := document.Modification{Original: original, Improved: improved}
	s.mods.Put(mod)
	s.lastAccess = time.Now()
	return mod, nil
}

// Revert drops the modification recorded for path.
func (s *Session) Revert(path document.Path) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = time.Now()
	return s.mods.Remove(path)
}

// RevertText drops every modification of original and returns how many
// were dropped.
func (s *Session) RevertText(original string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = time.Now()
	return s.mods.RemoveText(original)
}

// Entries returns the accepted modifications in replay order.
func (s *Session) Entries() []document.Modification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mods.List()
}

// Materialize returns the original document with every accepted
// modification applied. The original is left untouched.
func (s *Session) Materialize() document.Document {
	return document.Apply(s.original, s.Entries())
}

// Modifications returns the accepted replacements in the by-value form the
// renderer expects.
func (s *Session) Modifications() []types.DownloadModification {
	return types.ToDownloadModifications(s.Entries())
}

// DownloadPayload builds the render request for mode. Materialized sends
// the edited document, annotated sends the original so the renderer can
// print each improvement under its original text.
func (s *Session) DownloadPayload(mode string) types.DownloadRequest {
	mods := s.Entries()
	resume := s.original
	if mode != DownloadAnnotated {
		resume = document.Apply(s.original, mods)
	}
	return types.DownloadRequest{
		Resume:        resume,
		Modifications: types.ToDownloadModifications(mods),
	}
}

// FragmentView is one fragment with its review state.
type FragmentView struct {
	Path       document.Path     `json:"path"`
	Text       string            `json:"text"`
	Suggestion *types.Suggestion `json:"suggestion,omitempty"`
	MatchError string            `json:"matchError,omitempty"`
	Accepted   bool              `json:"accepted"`
	Improved   string            `json:"improved,omitempty"`
}

// View is the serializable state of a session.
type View struct {
	ID              string                       `json:"id"`
	Structured      document.Document            `json:"structured"`
	Fragments       []FragmentView               `json:"fragments"`
	Modifications   []types.DownloadModification `json:"modifications"`
	Summary         string                       `json:"linkedin_summary,omitempty"`
	JobDescription  string                       `json:"jd,omitempty"`
	MissingKeywords []string                     `json:"missing,omitempty"`
	CreatedAt       time.Time                    `json:"createdAt"`
	LastAccess      time.Time                    `json:"lastAccess"`
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fragments := make([]FragmentView, len(s.fragments))
	for i, f := range s.fragments {
		fv := FragmentView{Path: f.Path, Text: f.Text}
		if suggestion, err := MatchSuggestion(s.results.Suggestions, f.Text); err == nil {
			fv.Suggestion = &suggestion
		} else if len(s.results.Suggestions) > 0 {
			fv.MatchError = err.Error()
		}
		if m, ok := s.mods.ForPath(f.Path); ok {
			fv.Accepted, fv.Improved = true, m.Improved
		} else if m, ok := s.mods.ForText(f.Text); ok {
			fv.Accepted, fv.Improved = true, m.Improved
		}
		fragments[i] = fv
	}

	return View{
		ID:              s.id,
		Structured:      s.original,
		Fragments:       fragments,
		Modifications:   types.ToDownloadModifications(s.mods.List()),
		Summary:         s.results.Summary,
		JobDescription:  s.results.JobDescription,
		MissingKeywords: slices.Clone(s.results.MissingKeywords),
		CreatedAt:       s.createdAt,
		LastAccess:      s.lastAccess,
	}
}
