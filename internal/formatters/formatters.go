package formatters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"resumereview/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "FlattenReport", &FlattenTextFormatter{})
	registry.RegisterFormatter("markdown", "FlattenReport", &FlattenMarkdownFormatter{})
	registry.RegisterFormatter("text", "DocumentResponse", &DocumentFormatter{})
	registry.RegisterFormatter("markdown", "DocumentResponse", &DocumentFormatter{fenced: true})
	registry.RegisterFormatter("text", "ReviewReport", &ReviewTextFormatter{})
	registry.RegisterFormatter("markdown", "ReviewReport", &ReviewMarkdownFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats, sorted
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case types.FlattenReport:
		return "FlattenReport"
	case types.DocumentResponse:
		return "DocumentResponse"
	case types.ReviewReport:
		return "ReviewReport"
	default:
		return "any"
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData) + "\n", nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// FlattenTextFormatter prints one fragment per line
type FlattenTextFormatter struct{}

func (ftf *FlattenTextFormatter) Format(data any) (string, error) {
	result, ok := data.(types.FlattenReport)
	if !ok {
		return "", fmt.Errorf("expected FlattenReport, got %T", data)
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("=== FRAGMENTS (%d) ===\n", len(result.Bullets)))
	if result.Source != "" {
		output.WriteString(fmt.Sprintf("Source: %s\n", result.Source))
	}
	output.WriteString("\n")

	if len(result.Fragments) > 0 {
		for _, f := range result.Fragments {
			output.WriteString(fmt.Sprintf("%s\t%s\n", f.Path, f.Text))
		}
	} else {
		for i, b := range result.Bullets {
			output.WriteString(fmt.Sprintf("%d. %s\n", i+1, b))
		}
	}

	return output.String(), nil
}

func (ftf *FlattenTextFormatter) SupportedType() string {
	return "FlattenReport"
}

// FlattenMarkdownFormatter prints fragments as a list, or a table with paths
type FlattenMarkdownFormatter struct{}

func (fmf *FlattenMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(types.FlattenReport)
	if !ok {
		return "", fmt.Errorf("expected FlattenReport, got %T", data)
	}

	var output strings.Builder
	output.WriteString("# Editable Fragments\n\n")
	if result.Source != "" {
		output.WriteString(fmt.Sprintf("**Source:** `%s`\n\n", result.Source))
	}

	switch {
	case len(result.Fragments) > 0:
		output.WriteString("| Path | Text |\n|------|------|\n")
		for _, f := range result.Fragments {
			output.WriteString(fmt.Sprintf("| `%s` | %s |\n", f.Path, escapeCell(f.Text)))
		}
	case len(result.Bullets) > 0:
		for _, b := range result.Bullets {
			output.WriteString(fmt.Sprintf("- %s\n", b))
		}
	default:
		output.WriteString("_No editable fragments._\n")
	}

	return output.String(), nil
}

func (fmf *FlattenMarkdownFormatter) SupportedType() string {
	return "FlattenReport"
}

// DocumentFormatter prints the structured document as indented JSON,
// fenced for markdown
type DocumentFormatter struct {
	fenced bool
}

func (df *DocumentFormatter) Format(data any) (string, error) {
	result, ok := data.(types.DocumentResponse)
	if !ok {
		return "", fmt.Errorf("expected DocumentResponse, got %T", data)
	}

	body, err := json.MarshalIndent(result.Structured, "", "  ")
	if err != nil {
		return "", err
	}
	if df.fenced {
		return "```json\n" + string(body) + "\n```\n", nil
	}
	return string(body) + "\n", nil
}

func (df *DocumentFormatter) SupportedType() string {
	return "DocumentResponse"
}

// ReviewTextFormatter handles text formatting for review reports
type ReviewTextFormatter struct{}

func (rtf *ReviewTextFormatter) Format(data any) (string, error) {
	result, ok := data.(types.ReviewReport)
	if !ok {
		return "", fmt.Errorf("expected ReviewReport, got %T", data)
	}

	var output strings.Builder

	output.WriteString("=== RESUME REVIEW ===\n")
	output.WriteString(fmt.Sprintf("Source: %s\n\n", result.Source))

	for i, item := range result.Items {
		marker := " "
		if item.Accepted {
			marker = "x"
		}
		output.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, marker, item.Original))
		output.WriteString(fmt.Sprintf("   Path: %s\n", item.Path))
		switch {
		case item.Suggested != "":
			output.WriteString(fmt.Sprintf("   Suggested: %s\n", item.Suggested))
			if item.Feedback != "" {
				output.WriteString(fmt.Sprintf("   Feedback: %s\n", item.Feedback))
			}
			if scores := formatScores(item.Scores); scores != "" {
				output.WriteString(fmt.Sprintf("   Scores: %s\n", scores))
			}
		case item.MatchError != "":
			output.WriteString(fmt.Sprintf("   No suggestion: %s\n", item.MatchError))
		}
		output.WriteString("\n")
	}

	output.WriteString(fmt.Sprintf("=== ACCEPTED MODIFICATIONS (%d) ===\n", len(result.Modifications)))
	for _, m := range result.Modifications {
		output.WriteString(fmt.Sprintf("- %s\n  -> %s\n", m.Original, m.Improved))
	}

	if result.LinkedInSummary != "" {
		output.WriteString("\n=== LINKEDIN SUMMARY ===\n")
		output.WriteString(result.LinkedInSummary)
		output.WriteString("\n")
	}

	if result.MissingKeywords != nil {
		output.WriteString("\n=== MISSING KEYWORDS ===\n")
		if len(result.MissingKeywords) == 0 {
			output.WriteString("None, the resume covers the job description.\n")
		}
		for _, k := range result.MissingKeywords {
			output.WriteString(fmt.Sprintf("- %s\n", k))
		}
	}

	if result.DownloadedTo != "" {
		output.WriteString(fmt.Sprintf("\nReviewed resume written to %s\n", result.DownloadedTo))
	}
	for _, w := range result.Warnings {
		output.WriteString(fmt.Sprintf("\nWarning: %s\n", w))
	}

	return output.String(), nil
}

func (rtf *ReviewTextFormatter) SupportedType() string {
	return "ReviewReport"
}

// ReviewMarkdownFormatter handles markdown formatting for review reports
type ReviewMarkdownFormatter struct{}

func (rmf *ReviewMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(types.ReviewReport)
	if !ok {
		return "", fmt.Errorf("expected ReviewReport, got %T", data)
	}

	var output strings.Builder

	output.WriteString("# Resume Review\n\n")
	output.WriteString(fmt.Sprintf("**Source:** `%s`\n\n", result.Source))

	output.WriteString("## Suggestions\n\n")
	for i, item := range result.Items {
		output.WriteString(fmt.Sprintf("### %d. %s\n\n", i+1, item.Original))
		output.WriteString(fmt.Sprintf("**Path:** `%s`", item.Path))
		if item.Accepted {
			output.WriteString(" (accepted)")
		}
		output.WriteString("\n\n")
		switch {
		case item.Suggested != "":
			output.WriteString(fmt.Sprintf("**Suggested:** %s\n\n", item.Suggested))
			if item.Feedback != "" {
				output.WriteString(fmt.Sprintf("**Feedback:** %s\n\n", item.Feedback))
			}
			if scores := formatScores(item.Scores); scores != "" {
				output.WriteString(fmt.Sprintf("**Scores:** %s\n\n", scores))
			}
		case item.MatchError != "":
			output.WriteString(fmt.Sprintf("_No suggestion: %s_\n\n", item.MatchError))
		}
	}

	if len(result.Modifications) > 0 {
		output.WriteString("## Accepted Modifications\n\n")
		output.WriteString("| Original | Improved |\n|----------|----------|\n")
		for _, m := range result.Modifications {
			output.WriteString(fmt.Sprintf("| %s | %s |\n", escapeCell(m.Original), escapeCell(m.Improved)))
		}
		output.WriteString("\n")
	}

	if result.LinkedInSummary != "" {
		output.WriteString("## LinkedIn Summary\n\n")
		output.WriteString(result.LinkedInSummary)
		output.WriteString("\n\n")
	}

	if result.MissingKeywords != nil {
		output.WriteString("## Missing Keywords\n\n")
		if len(result.MissingKeywords) == 0 {
			output.WriteString("None, the resume covers the job description.\n")
		}
		for _, k := range result.MissingKeywords {
			output.WriteString(fmt.Sprintf("- %s\n", k))
		}
		output.WriteString("\n")
	}

	if result.DownloadedTo != "" {
		output.WriteString(fmt.Sprintf("Reviewed resume written to `%s`.\n", result.DownloadedTo))
	}
	for _, w := range result.Warnings {
		output.WriteString(fmt.Sprintf("> **Warning:** %s\n", w))
	}

	return output.String(), nil
}

func (rmf *ReviewMarkdownFormatter) SupportedType() string {
	return "ReviewReport"
}

// formatScores renders scores as "key=value" pairs sorted by key. Values
// are printed verbatim, so "-" stays a dash.
func formatScores(scores map[string]json.RawMessage) string {
	if len(scores) == 0 {
		return ""
	}
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		value := string(scores[k])
		var s string
		if json.Unmarshal(scores[k], &s) == nil {
			value = s
		}
		parts[i] = k + "=" + value
	}
	return strings.Join(parts, ", ")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Global formatter registry
var GlobalRegistry = NewFormatterRegistry()
