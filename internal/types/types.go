package types

import (
	"encoding/json"

	"resumereview/internal/document"
)

// UploadResponse is the backend's answer to a resume upload
type UploadResponse struct {
	Structured document.Document `json:"structured"`
}

// ImproveBulletsRequest asks the backend to improve a batch of bullets
type ImproveBulletsRequest struct {
	Bullets []string `json:"bullets"`
}

// Suggestion is one improved bullet proposed by the backend
type Suggestion struct {
	Original  string `json:"original"`
	Suggested string `json:"suggested"`
	Feedback  string `json:"feedback"`
	// Scores values may be numbers or "-", so they are kept verbatim.
	Scores map[string]json.RawMessage `json:"scores,omitempty"`
}

// ImproveBulletsResponse carries the suggestions for a batch
type ImproveBulletsResponse struct {
	Results []Suggestion `json:"results"`
}

// SummaryRequest asks for a LinkedIn summary of a structured resume
type SummaryRequest struct {
	Structured document.Document `json:"structured"`
}

// SummaryResponse holds the generated summary
type SummaryResponse struct {
	LinkedInSummary string `json:"linkedin_summary"`
}

// KeywordsRequest compares a structured resume with a job description
type KeywordsRequest struct {
	Structured     document.Document `json:"structured"`
	JobDescription string            `json:"jd"`
}

// KeywordsResponse lists job-description keywords missing from the resume
type KeywordsResponse struct {
	Missing []string `json:"missing"`
}

// DownloadModification is the download contract's by-value replacement
type DownloadModification struct {
	Original string `json:"original"`
	Improved string `json:"improved"`
}

// DownloadRequest asks the backend to render a resume with replacements
type DownloadRequest struct {
	Resume        document.Document      `json:"resume"`
	Modifications []DownloadModification `json:"modifications"`
}

// ErrorResponse is the body the backend and this server send on failure
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// FlattenRequest is the body of POST /api/flatten
type FlattenRequest struct {
	Structured document.Document `json:"structured"`
}

// FlattenResponse lists the editable fragments of a document
type FlattenResponse struct {
	Bullets   []string            `json:"bullets"`
	Fragments []document.Fragment `json:"fragments"`
}

// RewriteRequest is the body of POST /api/rewrite
type RewriteRequest struct {
	Structured  document.Document `json:"structured"`
	Original    string            `json:"original"`
	Replacement string            `json:"replacement"`
}

// ApplyRequest is the body of POST /api/apply
type ApplyRequest struct {
	Structured    document.Document       `json:"structured"`
	Modifications []document.Modification `json:"modifications"`
}

// DocumentResponse wraps a structured document
type DocumentResponse struct {
	Structured document.Document `json:"structured"`
}

// AcceptRequest accepts the suggestion at Path, or records Original to
// Improved when no path is given
type AcceptRequest struct {
	Path     *string `json:"path,omitempty"`
	Original string  `json:"original,omitempty"`
	Improved string  `json:"improved,omitempty"`
}

// RevertRequest drops the modification at Path, or the by-value one for
// Original
type RevertRequest struct {
	Path     *string `json:"path,omitempty"`
	Original string  `json:"original,omitempty"`
}

// JobDescriptionRequest is the body of the keywords endpoint
type JobDescriptionRequest struct {
	JobDescription string `json:"jd"`
}

// ToDownloadModifications converts modifications to the by-value download
// contract
func ToDownloadModifications(mods []document.Modification) []DownloadModification {
	out := make([]DownloadModification, len(mods))
	for i, m := range mods {
		out[i] = DownloadModification{Original: m.Original, Improved: m.Improved}
	}
	return out
}

// FlattenReport is the output of the flatten command. Fragments is only
// set when paths were requested.
type FlattenReport struct {
	Source    string              `json:"source"`
	Bullets   []string            `json:"bullets"`
	Fragments []document.Fragment `json:"fragments,omitempty"`
}

// ReviewItem is one fragment of a review report
type ReviewItem struct {
	Path       string                     `json:"path"`
	Original   string                     `json:"original"`
	Suggested  string                     `json:"suggested,omitempty"`
	Feedback   string                     `json:"feedback,omitempty"`
	Scores     map[string]json.RawMessage `json:"scores,omitempty"`
	MatchError string                     `json:"matchError,omitempty"`
	Accepted   bool                       `json:"accepted"`
}

// ReviewReport is the output of the review command
type ReviewReport struct {
	Source          string                 `json:"source"`
	Items           []ReviewItem           `json:"items"`
	Modifications   []DownloadModification `json:"modifications"`
	LinkedInSummary string                 `json:"linkedin_summary,omitempty"`
	MissingKeywords []string               `json:"missing,omitempty"`
	DownloadedTo    string                 `json:"downloadedTo,omitempty"`
	Warnings        []string               `json:"warnings,omitempty"`
}
