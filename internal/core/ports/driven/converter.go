package driven

import "context"

// MarkdownConverter turns a source file into Markdown. The conversion
// itself (PDF parsing, OCR) is the host's concern; the engine only
// consumes the resulting text and display name.
type MarkdownConverter interface {
	// Convert reads the file at path and returns its Markdown rendition
	// together with a display name for citations.
	Convert(ctx context.Context, path string) (markdown string, sourceName string, err error)
}
