package cli

import (
	"context"

	"resumereview/internal/common"
	"resumereview/internal/config"
	"resumereview/internal/document"
	"resumereview/internal/types"

	"github.com/spf13/cobra"
)

var flattenCmd = &cobra.Command{
	Use:   "flatten [document-file]",
	Short: "List the editable text fragments of a structured resume",
	Long: `Flatten a JSON or YAML resume into the text fragments a reviewer can
improve, in document order. Texts of at most --min-length characters and
texts under keys containing the excluded marker (default "title") are left
out.

Use --paths to print the JSON Pointer of each fragment.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return prepareOutput(cmd, &flattenConfig)
	},
	RunE: runFlatten,
}

var (
	flattenConfig    common.CommandConfig
	flattenPaths     bool
	flattenMinLength int
)

func init() {
	addOutputFlags(flattenCmd, &flattenConfig)
	flattenCmd.Flags().BoolVar(&flattenPaths, "paths", false, "Include the path of every fragment")
	flattenCmd.Flags().IntVar(&flattenMinLength, "min-length", document.DefaultMinLength, "Texts must be longer than this many characters")
}

// flattenOptions applies the review config and the --min-length override
func flattenOptions(cfg *config.Config, minLength int, minLengthSet bool) document.FlattenOptions {
	opts := document.DefaultFlattenOptions()
	if cfg.Review.MinFragmentLength > 0 {
		opts.MinLength = cfg.Review.MinFragmentLength
	}
	if cfg.Review.ExcludedKeyMarker != "" {
		opts.ExcludedKeyMarker = cfg.Review.ExcludedKeyMarker
	}
	if minLengthSet {
		opts.MinLength = minLength
	}
	return opts
}

func runFlatten(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())
	opts := flattenOptions(cfg, flattenMinLength, cmd.Flags().Changed("min-length"))
	source := args[0]

	loadInput := func(_ context.Context, fp *common.FileProcessor) (document.Document, error) {
		return fp.ReadDocument(source)
	}

	flatten := func(_ context.Context, doc document.Document) (types.FlattenReport, error) {
		fragments := document.FragmentsWithOptions(doc, opts)
		report := types.FlattenReport{Source: source, Bullets: document.Texts(fragments)}
		if flattenPaths {
			report.Fragments = fragments
		}
		return report, nil
	}

	logDetails := func(doc document.Document, cmdConfig common.CommandConfig) {
		stats := document.Measure(doc)
		logger.Info("Flattening document",
			"file", source,
			"texts", stats.Texts,
			"depth", stats.Depth,
			"min_length", opts.MinLength,
			"output_format", cmdConfig.OutputFormat)
	}

	return common.RunCommand(cmd.Context(), logger, flattenConfig, loadInput, flatten, logDetails)
}
