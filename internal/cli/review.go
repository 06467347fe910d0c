package cli

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"resumereview/internal/backend"
	"resumereview/internal/common"
	"resumereview/internal/config"
	"resumereview/internal/document"
	"resumereview/internal/errors"
	"resumereview/internal/review"
	"resumereview/internal/server"
	"resumereview/internal/types"
	"resumereview/internal/utils"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var reviewCmd = &cobra.Command{
	Use:   "review [resume-file]",
	Short: "Run a review session against the backend",
	Long: `Review a resume end to end. PDF and plain text resumes are uploaded to
the backend to be structured first; JSON and YAML resumes are reviewed as is.

The backend suggests an improvement for every editable fragment. With
--accept-all every unambiguous suggestion is accepted. --summary asks for a
LinkedIn summary, --jd compares the resume with a job description file and
--download renders the reviewed resume as PDF.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return prepareOutput(cmd, &reviewConfig)
	},
	RunE: runReview,
}

var (
	reviewConfig common.CommandConfig
	reviewFlags  reviewOptions
)

// reviewOptions selects the optional steps of a review
type reviewOptions struct {
	JobDescriptionFile string
	Summary            bool
	AcceptAll          bool
	DownloadFile       string
	DownloadMode       string
}

func init() {
	addOutputFlags(reviewCmd, &reviewConfig)
	reviewCmd.Flags().StringVar(&reviewFlags.JobDescriptionFile, "jd", "", "Job description file to match keywords against")
	reviewCmd.Flags().BoolVar(&reviewFlags.Summary, "summary", false, "Generate a LinkedIn summary")
	reviewCmd.Flags().BoolVar(&reviewFlags.AcceptAll, "accept-all", false, "Accept every unambiguous suggestion")
	reviewCmd.Flags().StringVar(&reviewFlags.DownloadFile, "download", "", "Write the reviewed resume as PDF to this file")
}

// reviewInput is a loaded resume and the optional job description
type reviewInput struct {
	source         string
	doc            document.Document
	jobDescription string
}

// reviewer drives one review session
type reviewer struct {
	backend server.Backend
	store   *review.Store
	files   *common.FileProcessor
	opts    reviewOptions
	logger  *errors.Logger
}

// load reads the resume, uploading PDF and text files to be structured
func (rv *reviewer) load(ctx context.Context, source string) (reviewInput, error) {
	in := reviewInput{source: source}

	switch {
	case utils.IsStructuredDocument(source):
		doc, err := rv.files.ReadDocument(source)
		if err != nil {
			return reviewInput{}, err
		}
		in.doc = doc
	case utils.IsUploadable(source):
		data, err := rv.files.ReadFile(source)
		if err != nil {
			return reviewInput{}, err
		}
		if err := checkUpload(source, data); err != nil {
			return reviewInput{}, err
		}
		doc, err := rv.backend.Upload(ctx, filepath.Base(source), bytes.NewReader(data))
		if err != nil {
			return reviewInput{}, fmt.Errorf("failed to upload resume: %w", err)
		}
		in.doc = doc
	default:
		return reviewInput{}, errors.NewValidationError(errors.ErrCodeUnsupportedFile,
			fmt.Sprintf("%s is not a .pdf, .txt, .json, .yaml or .yml resume", source), nil)
	}

	if rv.opts.JobDescriptionFile != "" {
		jd, err := rv.files.ReadText(rv.opts.JobDescriptionFile)
		if err != nil {
			return reviewInput{}, err
		}
		if strings.TrimSpace(jd) == "" {
			return reviewInput{}, errors.NewValidationError(errors.ErrCodeInvalidRequest, "job description is empty", nil)
		}
		in.jobDescription = jd
	}

	return in, nil
}

// checkUpload rejects empty text files and PDFs without pages
func checkUpload(source string, data []byte) error {
	if !utils.IsPDF(source) {
		if len(bytes.TrimSpace(data)) == 0 {
			return errors.NewValidationError(errors.ErrCodeInvalidDocument, "resume is empty", nil)
		}
		return nil
	}

	pages, err := utils.PDFPageCount(data)
	if err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidDocument, "resume is not a readable PDF", err)
	}
	if pages == 0 {
		return errors.NewValidationError(errors.ErrCodeInvalidDocument, "resume PDF has no pages", nil)
	}
	return nil
}

// run fetches suggestions, then the summary and keywords concurrently, and
// renders the download last so it includes every accepted suggestion
func (rv *reviewer) run(ctx context.Context, in reviewInput) (types.ReviewReport, error) {
	session := rv.store.Create(in.doc)
	defer rv.store.Delete(session.ID())

	tok := session.Begin(review.RequestSuggestions)
	suggestions, err := rv.backend.ImproveBullets(ctx, session.Bullets())
	if err != nil {
		return types.ReviewReport{}, fmt.Errorf("failed to fetch suggestions: %w", err)
	}
	if err := session.CommitSuggestions(tok, suggestions); err != nil {
		return types.ReviewReport{}, err
	}

	if rv.opts.AcceptAll {
		rv.acceptAll(session)
	}

	var (
		mu       sync.Mutex
		warnings []string
	)
	addWarning := func(format string, args ...any) {
		mu.Lock()
		warnings = append(warnings, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	eg, egCtx := errgroup.WithContext(ctx)
	if rv.opts.Summary {
		eg.Go(func() error {
			tok := session.Begin(review.RequestSummary)
			summary, err := rv.backend.GenerateSummary(egCtx, session.Original())
			if err == nil {
				err = session.CommitSummary(tok, summary)
			}
			if err != nil {
				addWarning("summary: %v", err)
			}
			return nil
		})
	}
	if in.jobDescription != "" {
		eg.Go(func() error {
			tok := session.Begin(review.RequestKeywords)
			missing, err := rv.backend.MatchKeywords(egCtx, session.Original(), in.jobDescription)
			if err == nil {
				err = session.CommitKeywords(tok, in.jobDescription, missing)
			}
			if err != nil {
				addWarning("keywords: %v", err)
			}
			return nil
		})
	}
	_ = eg.Wait()

	report := buildReport(in.source, session)
	report.Warnings = warnings

	if rv.opts.DownloadFile != "" {
		if err := rv.download(ctx, session); err != nil {
			return types.ReviewReport{}, err
		}
		report.DownloadedTo = rv.opts.DownloadFile
	}

	return report, nil
}

// acceptAll accepts the suggestion of every fragment that has exactly one
func (rv *reviewer) acceptAll(session *review.Session) {
	accepted := 0
	for _, f := range session.Fragments() {
		if _, err := session.Accept(f.Path); err != nil {
			rv.logger.Debug("Suggestion not accepted",
				"path", f.Path.String(),
				"reason", err.Error())
			continue
		}
		accepted++
	}
	rv.logger.Info("Suggestions accepted",
		"accepted", accepted,
		"fragments", len(session.Fragments()))
}

func (rv *reviewer) download(ctx context.Context, session *review.Session) error {
	mode := rv.opts.DownloadMode
	if mode == "" {
		mode = review.DownloadMaterialized
	}
	payload := session.DownloadPayload(mode)

	pdf, err := rv.backend.DownloadResume(ctx, payload.Resume, session.Entries())
	if err != nil {
		return fmt.Errorf("failed to render resume: %w", err)
	}
	if err := rv.files.WriteFile(rv.opts.DownloadFile, pdf); err != nil {
		return err
	}

	rv.logger.Info("Reviewed resume downloaded",
		"file", rv.opts.DownloadFile,
		"mode", mode,
		"size", utils.FormatFileSize(int64(len(pdf))))
	return nil
}

// buildReport projects the session state onto the report
func buildReport(source string, session *review.Session) types.ReviewReport {
	view := session.View()

	items := make([]types.ReviewItem, len(view.Fragments))
	for i, f := range view.Fragments {
		item := types.ReviewItem{
			Path:       f.Path.String(),
			Original:   f.Text,
			MatchError: f.MatchError,
			Accepted:   f.Accepted,
		}
		if f.Suggestion != nil {
			item.Suggested = f.Suggestion.Suggested
			item.Feedback = f.Suggestion.Feedback
			item.Scores = f.Suggestion.Scores
		}
		items[i] = item
	}

	report := types.ReviewReport{
		Source:          source,
		Items:           items,
		Modifications:   view.Modifications,
		LinkedInSummary: view.Summary,
	}
	if view.JobDescription != "" {
		report.MissingKeywords = view.MissingKeywords
		if report.MissingKeywords == nil {
			report.MissingKeywords = []string{}
		}
	}
	return report
}

func runReview(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	if err := config.ApplyVaultSecrets(cfg, logger); err != nil {
		return err
	}

	client, err := backend.New(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	store := review.NewStore(cfg.Review, logger)
	defer store.Close()

	opts := reviewFlags
	opts.DownloadMode = cfg.Review.DownloadMode

	rv := &reviewer{
		backend: client,
		store:   store,
		files:   common.NewFileProcessor(logger, cfg.App.MaxFileSize),
		opts:    opts,
		logger:  logger,
	}

	loadInput := func(ctx context.Context, _ *common.FileProcessor) (reviewInput, error) {
		return rv.load(ctx, args[0])
	}

	logDetails := func(in reviewInput, cmdConfig common.CommandConfig) {
		logger.Info("Starting resume review",
			"file", in.source,
			"fragments", len(document.FragmentsWithOptions(in.doc, store.FlattenOptions())),
			"summary", opts.Summary,
			"job_description", in.jobDescription != "",
			"accept_all", opts.AcceptAll,
			"output_format", cmdConfig.OutputFormat)
	}

	return common.RunCommand(cmd.Context(), logger, reviewConfig, loadInput, rv.run, logDetails)
}
