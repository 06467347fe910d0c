package server

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"resumereview/internal/document"
	"resumereview/internal/errors"
	"resumereview/internal/observability"
	"resumereview/internal/review"
	"resumereview/internal/types"
	"resumereview/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// sessionResponse is a session view with an optional warning about a
// backend call that failed after the session was created
type sessionResponse struct {
	review.View
	Warning string `json:"warning,omitempty"`
}

func (s *Server) startSpan(r *http.Request, operation string) (context.Context, trace.Span) {
	ctx, span := s.om.Tracer("resumereview.api").Start(r.Context(), "api."+operation)
	span.SetAttributes(attribute.String("operation", operation))
	return ctx, span
}

// fail records err on span and writes it as the response
func (s *Server) fail(w http.ResponseWriter, span trace.Span, err error, message string) {
	status := statusFor(err)

	errorType := "internal"
	if appErr, ok := errors.AsAppError(err); ok {
		errorType = string(appErr.Type)
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String("error.type", errorType))

	if status >= http.StatusInternalServerError {
		s.Logger.LogError(err, message)
	} else {
		s.Logger.Debug(message, "error", err.Error(), "status", status)
	}
	writeAppError(w, err, status)
}

func (s *Server) flattenOptions() document.FlattenOptions {
	if s.Sessions == nil {
		return document.DefaultFlattenOptions()
	}
	return s.Sessions.FlattenOptions()
}

// flattenHandler lists the editable fragments of a posted document
func (s *Server) flattenHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "flatten")
	defer span.End()

	var req types.FlattenRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.fail(w, span, err, "Invalid flatten request")
		return
	}

	fragments := document.FragmentsWithOptions(req.Structured, s.flattenOptions())

	s.om.RecordBusinessMetric(ctx, observability.MetricDocumentFlattened, 1)
	s.om.RecordBusinessMetric(ctx, observability.MetricFragmentsExtracted, int64(len(fragments)))
	span.SetAttributes(attribute.Int("fragments.count", len(fragments)))

	writeJSONResponse(w, http.StatusOK, types.FlattenResponse{
		Bullets:   document.Texts(fragments),
		Fragments: fragments,
	})
}

// rewriteHandler replaces every occurrence of one text
func (s *Server) rewriteHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "rewrite")
	defer span.End()

	var req types.RewriteRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.fail(w, span, err, "Invalid rewrite request")
		return
	}

	out := document.Rewrite(req.Structured, req.Original, req.Replacement)
	s.om.RecordBusinessMetric(ctx, observability.MetricRewriteApplied, 1,
		attribute.String("mode", "value"))

	writeJSONResponse(w, http.StatusOK, types.DocumentResponse{Structured: out})
}

// applyHandler replays a list of modifications
func (s *Server) applyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "apply")
	defer span.End()

	var req types.ApplyRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.fail(w, span, err, "Invalid apply request")
		return
	}

	out := document.Apply(req.Structured, req.Modifications)
	s.om.RecordBusinessMetric(ctx, observability.MetricRewriteApplied, int64(len(req.Modifications)),
		attribute.String("mode", "batch"))
	span.SetAttributes(attribute.Int("modifications.count", len(req.Modifications)))

	writeJSONResponse(w, http.StatusOK, types.DocumentResponse{Structured: out})
}

// createSessionHandler uploads a resume file to the backend and starts a
// review of the structured result
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "session.create")
	defer span.End()

	filename, data, err := readUpload(r)
	if err != nil {
		s.fail(w, span, err, "Invalid resume upload")
		return
	}
	span.SetAttributes(
		attribute.String("upload.extension", utils.GetFileExtension(filename)),
		attribute.Int("upload.size", len(data)))

	doc, err := s.Backend.Upload(ctx, filename, bytes.NewReader(data))
	if err != nil {
		s.fail(w, span, err, "Resume upload failed")
		return
	}

	s.startSession(ctx, w, doc)
}

// readUpload reads the "resume" file of a multipart request. Only PDF and
// plain text resumes are accepted and PDFs must contain pages.
func readUpload(r *http.Request) (string, []byte, error) {
	file, header, err := r.FormFile("resume")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if stderrors.As(err, &maxBytesErr) {
			return "", nil, readError(err)
		}
		return "", nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "multipart field 'resume' is required", err)
	}
	defer func() { _ = file.Close() }()

	if !utils.IsUploadable(header.Filename) {
		return "", nil, errors.NewValidationError(errors.ErrCodeUnsupportedFile,
			"only .pdf and .txt resumes are supported", nil).
			WithContext("filename", header.Filename)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, readError(err)
	}

	if utils.IsPDF(header.Filename) {
		pages, err := utils.PDFPageCount(data)
		if err != nil {
			return "", nil, errors.NewValidationError(errors.ErrCodeInvalidDocument, "resume is not a readable PDF", err)
		}
		if pages == 0 {
			return "", nil, errors.NewValidationError(errors.ErrCodeInvalidDocument, "resume PDF has no pages", nil)
		}
	} else if len(bytes.TrimSpace(data)) == 0 {
		return "", nil, errors.NewValidationError(errors.ErrCodeInvalidDocument, "resume is empty", nil)
	}

	return header.Filename, data, nil
}

// importSessionHandler starts a review of an already structured document
func (s *Server) importSessionHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "session.import")
	defer span.End()

	var req types.DocumentResponse
	if err := parseJSONRequest(r, &req); err != nil {
		s.fail(w, span, err, "Invalid import request")
		return
	}
	if !req.Structured.IsSection() {
		s.fail(w, span, errors.NewValidationError(errors.ErrCodeInvalidDocument,
			"structured must be an object", nil), "Invalid import request")
		return
	}

	s.startSession(ctx, w, req.Structured)
}

// startSession stores a session for doc and fetches its first suggestions.
// A failed suggestion request still returns the session, with a warning.
func (s *Server) startSession(ctx context.Context, w http.ResponseWriter, doc document.Document) {
	session := s.Sessions.Create(doc)
	s.om.RecordBusinessMetric(ctx, observability.MetricSessionCreated, 1)
	s.om.RecordBusinessMetric(ctx, observability.MetricFragmentsExtracted, int64(len(session.Fragments())))

	response := sessionResponse{}
	if err := s.refreshSuggestions(ctx, session); err != nil {
		s.Logger.LogError(err, "Failed to fetch suggestions for new session", "session_id", session.ID())
		response.Warning = err.Error()
	}
	response.View = session.View()

	writeJSONResponse(w, http.StatusCreated, response)
}

// refreshSuggestions asks the backend to improve the session's fragments
func (s *Server) refreshSuggestions(ctx context.Context, session *review.Session) error {
	tok := session.Begin(review.RequestSuggestions)
	suggestions, err := s.Backend.ImproveBullets(ctx, session.Bullets())
	if err != nil {
		return err
	}
	return session.CommitSuggestions(tok, suggestions)
}

func (s *Server) lookupSession(r *http.Request, span trace.Span) (*review.Session, error) {
	id := r.PathValue("id")
	span.SetAttributes(attribute.String("session.id", id))
	return s.Sessions.Get(id)
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "session.get")
	defer span.End()

	session, err := s.lookupSession(r, span)
	if err != nil {
		s.fail(w, span, err, "Session lookup failed")
		return
	}
	writeJSONResponse(w, http.StatusOK, sessionResponse{View: session.View()})
}

func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "session.delete")
	defer span.End()

	id := r.PathValue("id")
	if !s.Sessions.Delete(id) {
		s.fail(w, span, errors.NewNotFoundError(errors.ErrCodeSessionNotFound, "review session not found", nil).
			WithContext("session_id", id), "Session delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// suggestionsHandler fetches fresh suggestions for a session
func (s *Server) suggestionsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "session.suggestions")
	defer span.End()

	session, err := s.lookupSession(r, span)
	if err != nil {
		s.fail(w, span, err, "Session lookup failed")
		return
	}

	if err := s.refreshSuggestions(ctx, session); err != nil {
		s.fail(w, span, err, "Failed to fetch suggestions")
		return
	}
	writeJSONResponse(w, http.StatusOK, sessionResponse{View: session.View()})
}

// acceptHandler accepts the suggestion of one fragment, or records a
// replacement of every copy of a text
func (s *Server) acceptHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "session.accept")
	defer span.End()

	session, err := s.lookupSession(r, span)
	if err != nil {
		s.fail(w, span, err, "Session lookup failed")
		return
	}

	var req types.AcceptRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.fail(w, span, err, "Invalid accept request")
		return
	}

	mode := "value"
	if req.Path != nil {
		mode = "path"
		path, perr := parsePath(*req.Path)
		if perr != nil {
			s.fail(w, span, perr, "Invalid accept request")
			return
		}
		_, err = session.Accept(path)
	} else {
		_, err = session.AcceptText(req.Original, req.Improved)
	}
	if err != nil {
		s.fail(w, span, err, "Accept failed")
		return
	}

	s.om.RecordBusinessMetric(ctx, observability.MetricSuggestionAccepted, 1, attribute.String("mode", mode))
	writeJSONResponse(w, http.StatusOK, sessionResponse{View: session.View()})
}

// revertHandler drops an accepted modification
func (s *Server) revertHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "session.revert")
	defer span.End()

	session, err := s.lookupSession(r, span)
	if err != nil {
		s.fail(w, span, err, "Session lookup failed")
		return
	}

	var req types.RevertRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.fail(w, span, err, "Invalid revert request")
		return
	}

	var reverted bool
	switch {
	case req.Path != nil:
		path, perr := parsePath(*req.Path)
		if perr != nil {
			s.fail(w, span, perr, "Invalid revert request")
			return
		}
		reverted = session.Revert(path)
	case strings.TrimSpace(req.Original) != "":
		reverted = session.RevertText(req.Original) > 0
	default:
		s.fail(w, span, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"either path or original is required", nil), "Invalid revert request")
		return
	}

	if !reverted {
		s.fail(w, span, errors.NewNotFoundError(errors.ErrCodeModificationAbsent,
			"no accepted modification matches", nil), "Revert failed")
		return
	}
	writeJSONResponse(w, http.StatusOK, sessionResponse{View: session.View()})
}

// summaryHandler generates a LinkedIn summary of the session's resume
func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "session.summary")
	defer span.End()

	session, err := s.lookupSession(r, span)
	if err != nil {
		s.fail(w, span, err, "Session lookup failed")
		return
	}

	tok := session.Begin(review.RequestSummary)
	summary, err := s.Backend.GenerateSummary(ctx, session.Original())
	if err == nil {
		err = session.CommitSummary(tok, summary)
	}
	if err != nil {
		s.fail(w, span, err, "Failed to generate summary")
		return
	}

	writeJSONResponse(w, http.StatusOK, types.SummaryResponse{LinkedInSummary: summary})
}

// keywordsHandler lists job description keywords missing from the resume
func (s *Server) keywordsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "session.keywords")
	defer span.End()

	session, err := s.lookupSession(r, span)
	if err != nil {
		s.fail(w, span, err, "Session lookup failed")
		return
	}

	var req types.JobDescriptionRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.fail(w, span, err, "Invalid keywords request")
		return
	}
	if strings.TrimSpace(req.JobDescription) == "" {
		s.fail(w, span, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"job description is required", nil), "Invalid keywords request")
		return
	}
	span.SetAttributes(attribute.Int("request.jd_length", len(req.JobDescription)))

	tok := session.Begin(review.RequestKeywords)
	missing, err := s.Backend.MatchKeywords(ctx, session.Original(), req.JobDescription)
	if err == nil {
		err = session.CommitKeywords(tok, req.JobDescription, missing)
	}
	if err != nil {
		s.fail(w, span, err, "Failed to match keywords")
		return
	}

	writeJSONResponse(w, http.StatusOK, types.KeywordsResponse{Missing: missing})
}

// documentHandler returns the session's document with every accepted
// modification applied
func (s *Server) documentHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "session.document")
	defer span.End()

	session, err := s.lookupSession(r, span)
	if err != nil {
		s.fail(w, span, err, "Session lookup failed")
		return
	}
	writeJSONResponse(w, http.StatusOK, types.DocumentResponse{Structured: session.Materialize()})
}

// downloadHandler has the backend render the reviewed resume as PDF
func (s *Server) downloadHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "session.download")
	defer span.End()

	session, err := s.lookupSession(r, span)
	if err != nil {
		s.fail(w, span, err, "Session lookup failed")
		return
	}

	mode := s.downloadMode()
	payload := session.DownloadPayload(mode)
	span.SetAttributes(
		attribute.String("download.mode", mode),
		attribute.Int("modifications.count", len(payload.Modifications)))

	pdf, err := s.Backend.DownloadResume(ctx, payload.Resume, session.Entries())
	if err != nil {
		s.fail(w, span, err, "Failed to render resume")
		return
	}

	s.om.RecordBusinessMetric(ctx, observability.MetricResumeDownloaded, 1, attribute.String("mode", mode))

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="modified_resume.pdf"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		s.Logger.LogError(err, "Failed to write PDF response", "session_id", session.ID())
	}
}

func parsePath(raw string) (document.Path, error) {
	path, err := document.ParsePath(raw)
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "invalid fragment path", err).
			WithContext("path", raw)
	}
	return path, nil
}
