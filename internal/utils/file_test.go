package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKinds(t *testing.T) {
	tests := []struct {
		name       string
		uploadable bool
		structured bool
		pdf        bool
	}{
		{"resume.pdf", true, false, true},
		{"RESUME.PDF", true, false, true},
		{"resume.txt", true, false, false},
		{"resume.json", false, true, false},
		{"resume.yml", false, true, false},
		{"resume.yaml", false, true, false},
		{"resume.docx", false, false, false},
		{"resume", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.uploadable, IsUploadable(tt.name))
			assert.Equal(t, tt.structured, IsStructuredDocument(tt.name))
			assert.Equal(t, tt.pdf, IsPDF(tt.name))
		})
	}
}

func TestPDFPageCountRejectsGarbage(t *testing.T) {
	_, err := PDFPageCount(nil)
	assert.Error(t, err)

	_, err = PDFPageCount([]byte("Jane Doe\nSenior Engineer\n"))
	assert.Error(t, err)
}

func TestValidateInputFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "resume.txt")
	require.NoError(t, os.WriteFile(file, []byte("Jane Doe"), 0600))

	assert.NoError(t, ValidateInputFile(file))
	assert.Error(t, ValidateInputFile(""))
	assert.Error(t, ValidateInputFile(dir))
	assert.Error(t, ValidateInputFile(filepath.Join(dir, "missing.txt")))
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.5 KB", FormatFileSize(1536))
	assert.Equal(t, "5.0 MB", FormatFileSize(5*1024*1024))
}
