// Package chunker splits Markdown into overlapping, header-aware
// chunks. Output is deterministic: identical input and options always
// produce identical chunks.
package chunker

import (
	"regexp"
	"strings"
)

// DefaultChunkSize is the default chunk budget in characters.
const DefaultChunkSize = 1200

// DefaultOverlap is the default overlap between successive chunks.
const DefaultOverlap = 150

// headerRe matches ATX headings of any level, capturing the title.
var headerRe = regexp.MustCompile(`^\s{0,3}#{1,6}\s+(.*)$`)

// Chunk is one produced slice. Index is dense from 0 across the whole
// document, not per section.
type Chunk struct {
	// Index is the 0-based position of the chunk.
	Index int

	// SectionTitle is the most recent heading above the slice, if any.
	SectionTitle string

	// Content is the slice text.
	Content string

	// TokenCount is a rough estimate (len/4) for budget accounting.
	TokenCount int
}

// Chunker splits Markdown text.
type Chunker struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk budget in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between successive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlap,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Overlap must stay below the chunk size or windows never advance.
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize - 1
	}

	return c
}

// Chunk splits the Markdown into ordered chunks. Headings delimit
// sections and become section titles; sections over budget are cut
// preferentially at paragraph boundaries, falling back to character
// boundaries; each successive chunk begins overlap characters before
// the end of its predecessor. Chunks empty after trimming are dropped.
func (c *Chunker) Chunk(markdown string) []Chunk {
	var out []Chunk
	for _, sec := range splitSections(markdown) {
		text := sec.text
		if text == "" && sec.title != "" {
			// A heading with an empty body is still worth retrieving.
			text = sec.title
		}
		for _, piece := range c.splitWithOverlap(text) {
			if strings.TrimSpace(piece) == "" {
				continue
			}
			out = append(out, Chunk{
				Index:        len(out),
				SectionTitle: sec.title,
				Content:      piece,
				TokenCount:   len(piece) / 4,
			})
		}
	}
	return out
}

type section struct {
	title string
	text  string
}

// splitSections walks the lines, closing the running section at every
// heading. Content before the first heading forms an untitled section.
func splitSections(markdown string) []section {
	lines := strings.Split(markdown, "\n")

	var sections []section
	var current []string
	title := ""
	titled := false

	flush := func() {
		if titled || len(current) > 0 {
			sections = append(sections, section{
				title: title,
				text:  strings.TrimSpace(strings.Join(current, "\n")),
			})
		}
	}

	for _, line := range lines {
		if m := headerRe.FindStringSubmatch(line); m != nil {
			flush()
			title = strings.TrimSpace(m[1])
			titled = true
			current = current[:0]
			continue
		}
		current = append(current, line)
	}
	flush()

	if len(sections) == 0 {
		return []section{{text: strings.TrimSpace(markdown)}}
	}
	return sections
}

// splitWithOverlap windows the text. Every non-final piece is longer
// than the overlap, so the next window always advances and successive
// pieces share exactly overlap characters.
func (c *Chunker) splitWithOverlap(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.chunkSize {
		return []string{text}
	}

	var pieces []string
	start := 0
	for start < len(text) {
		end := start + c.chunkSize
		if end >= len(text) {
			pieces = append(pieces, text[start:])
			break
		}

		// Prefer the last paragraph boundary inside the window, as long
		// as the resulting piece still exceeds the overlap.
		if cut := strings.LastIndex(text[start:end], "\n\n"); cut > c.overlap {
			end = start + cut
		}

		pieces = append(pieces, text[start:end])
		start = end - c.overlap
	}
	return pieces
}
