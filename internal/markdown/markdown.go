// Package markdown prepares Markdown text for content addressing.
// Hashing must be bit-exact across platforms, so the same canonical
// form (LF line endings, trailing whitespace trimmed) is applied before
// every digest.
package markdown

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Canonicalize normalises line endings to LF, strips trailing spaces
// and tabs from every line, and trims trailing newlines. Identical
// logical content always canonicalises to identical bytes.
func Canonicalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// Hash returns the lowercase hex SHA-256 of the canonicalised text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(Canonicalize(text)))
	return hex.EncodeToString(sum[:])
}

// HashFile streams the file through SHA-256 and returns lowercase hex.
// File hashing is byte-exact (no canonicalisation); it identifies the
// file on disk, not the converted Markdown.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ExtractTitle returns the first H1 heading, or a cleaned-up form of
// the file name when the content has none.
func ExtractTitle(content, path string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}

	name := filepath.Base(path)
	if ext := filepath.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return name
}
