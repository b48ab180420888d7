// Package converter provides the built-in MarkdownConverter. Markdown
// and plain-text files pass through unchanged; anything needing real
// conversion (PDF parsing, OCR) must come from the host as an injected
// capability.
package converter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
)

// maxFileSize bounds what the passthrough will slurp into memory.
const maxFileSize = 32 << 20 // 32 MiB

// Ensure FileConverter implements the interface.
var _ driven.MarkdownConverter = (*FileConverter)(nil)

// FileConverter reads Markdown and plain-text files from disk.
type FileConverter struct{}

// New creates the passthrough converter.
func New() *FileConverter {
	return &FileConverter{}
}

// Convert returns the file content as Markdown and the base file name
// as the citation display name.
func (c *FileConverter) Convert(ctx context.Context, path string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	base := filepath.Base(path)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".md", ".markdown", ".txt":
	case ".pdf":
		return "", "", fmt.Errorf("%w: %s: pdf conversion requires an external converter", domain.ErrPathInvalid, base)
	default:
		return "", "", fmt.Errorf("%w: %s: unsupported file type %q", domain.ErrPathInvalid, base, ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s: %v", domain.ErrPathInvalid, base, err)
	}
	if info.Size() > maxFileSize {
		return "", "", fmt.Errorf("%s exceeds the %d MiB conversion limit: %w", base, maxFileSize>>20, domain.ErrInvalidInput)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", base, err)
	}
	if !utf8.Valid(data) {
		return "", "", fmt.Errorf("%s is not valid UTF-8: %w", base, domain.ErrInvalidInput)
	}
	return string(data), base, nil
}
