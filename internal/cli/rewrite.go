package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"resumereview/internal/common"
	"resumereview/internal/document"
	"resumereview/internal/errors"
	"resumereview/internal/types"

	"github.com/spf13/cobra"
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [document-file]",
	Short: "Replace fragment texts in a structured resume",
	Long: `Rewrite replaces every text of a JSON or YAML resume whose trimmed
value equals the trimmed --original with --replacement, keeping the shape of
the document.

With --modifications, a JSON list of {"original", "improved", "path"}
objects is replayed in order instead. Entries with a path replace only the
text at that JSON Pointer.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if rewriteModsFile == "" && strings.TrimSpace(rewriteOriginal) == "" {
			return fmt.Errorf("either --original or --modifications is required")
		}
		if rewriteModsFile != "" && cmd.Flags().Changed("original") {
			return fmt.Errorf("--original and --modifications are mutually exclusive")
		}
		return prepareOutput(cmd, &rewriteConfig)
	},
	RunE: runRewrite,
}

var (
	rewriteConfig      common.CommandConfig
	rewriteOriginal    string
	rewriteReplacement string
	rewriteModsFile    string
)

func init() {
	addOutputFlags(rewriteCmd, &rewriteConfig)
	rewriteCmd.Flags().StringVar(&rewriteOriginal, "original", "", "Text to replace")
	rewriteCmd.Flags().StringVar(&rewriteReplacement, "replacement", "", "Replacement text")
	rewriteCmd.Flags().StringVar(&rewriteModsFile, "modifications", "", "JSON file with a list of modifications")
}

type rewriteInput struct {
	doc  document.Document
	mods []document.Modification
}

// parseModifications decodes a JSON list of modifications
func parseModifications(data []byte) ([]document.Modification, error) {
	var mods []document.Modification
	if err := json.Unmarshal(data, &mods); err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidFormat, "modifications must be a JSON list of {original, improved, path}", err)
	}
	for i, m := range mods {
		if !m.ByPath() && strings.TrimSpace(m.Original) == "" {
			return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
				fmt.Sprintf("modification %d has neither a path nor an original text", i), nil)
		}
	}
	return mods, nil
}

func runRewrite(cmd *cobra.Command, args []string) error {
	logger := getLoggerFromContext(cmd.Context())
	source := args[0]

	loadInput := func(_ context.Context, fp *common.FileProcessor) (rewriteInput, error) {
		doc, err := fp.ReadDocument(source)
		if err != nil {
			return rewriteInput{}, err
		}

		if rewriteModsFile == "" {
			return rewriteInput{doc: doc, mods: []document.Modification{
				{Original: rewriteOriginal, Improved: rewriteReplacement},
			}}, nil
		}

		data, err := fp.ReadFile(rewriteModsFile)
		if err != nil {
			return rewriteInput{}, err
		}
		mods, err := parseModifications(data)
		if err != nil {
			return rewriteInput{}, err
		}
		return rewriteInput{doc: doc, mods: mods}, nil
	}

	rewrite := func(_ context.Context, in rewriteInput) (types.DocumentResponse, error) {
		return types.DocumentResponse{Structured: document.Apply(in.doc, in.mods)}, nil
	}

	logDetails := func(in rewriteInput, cmdConfig common.CommandConfig) {
		logger.Info("Rewriting document",
			"file", source,
			"modifications", len(in.mods),
			"output_format", cmdConfig.OutputFormat)
	}

	return common.RunCommand(cmd.Context(), logger, rewriteConfig, loadInput, rewrite, logDetails)
}
