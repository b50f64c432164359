// Package rag provides the document processing collaborators behind the
// pipeline agents: text extraction, chunking, embedding, vector storage and
// answer generation.
package rag

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Extractor turns raw document bytes into plain text.
type Extractor interface {
	Extract(filename string, data []byte) (string, error)
	Supports(ext string) bool
}

// ExtractFunc decodes one format.
type ExtractFunc func(filename string, data []byte) (string, error)

// FormatExtractor dispatches on file extension. The zero value is unusable;
// use NewFormatExtractor, which registers the built-in formats.
type FormatExtractor struct {
	formats map[string]ExtractFunc
}

var _ Extractor = (*FormatExtractor)(nil)

// NewFormatExtractor creates an extractor with .txt, .md and .csv support.
func NewFormatExtractor() *FormatExtractor {
	e := &FormatExtractor{formats: make(map[string]ExtractFunc)}
	e.RegisterFormat(".txt", extractPlainText)
	e.RegisterFormat(".md", extractMarkdown)
	e.RegisterFormat(".csv", extractCSV)
	return e
}

// RegisterFormat adds or replaces the extractor for an extension. The
// extension must include the leading dot and is matched case-insensitively.
func (e *FormatExtractor) RegisterFormat(ext string, fn ExtractFunc) {
	e.formats[strings.ToLower(ext)] = fn
}

// Supports reports whether an extension has a registered extractor.
func (e *FormatExtractor) Supports(ext string) bool {
	_, ok := e.formats[strings.ToLower(ext)]
	return ok
}

// Extract decodes the document into plain text based on its extension.
func (e *FormatExtractor) Extract(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fn, ok := e.formats[ext]
	if !ok {
		return "", NewUnsupportedFormatError(ext)
	}
	if !utf8.Valid(data) {
		return "", NewCorruptFileError(filename, "not valid UTF-8")
	}
	return fn(filename, data)
}

// =============================================================================
// BUILT-IN FORMATS
// =============================================================================

func extractPlainText(_ string, data []byte) (string, error) {
	return string(data), nil
}

var (
	mdCodeFence = regexp.MustCompile("(?s)```.*?```")
	mdInline    = regexp.MustCompile("`([^`]*)`")
	mdHeading   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdLink      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdImage     = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdEmphasis  = regexp.MustCompile(`(\*\*|__|\*|_)([^*_]+)(\*\*|__|\*|_)`)
	mdListMark  = regexp.MustCompile(`(?m)^\s*([-*+]|\d+\.)\s+`)
)

// extractMarkdown strips markup so chunks carry prose, not syntax.
func extractMarkdown(_ string, data []byte) (string, error) {
	text := string(data)
	text = mdCodeFence.ReplaceAllString(text, "")
	text = mdImage.ReplaceAllString(text, "")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdInline.ReplaceAllString(text, "$1")
	text = mdHeading.ReplaceAllString(text, "")
	text = mdEmphasis.ReplaceAllString(text, "$2")
	text = mdListMark.ReplaceAllString(text, "")
	return text, nil
}

// extractCSV flattens rows into comma-joined lines.
func extractCSV(filename string, data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	var lines []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", NewCorruptFileError(filename, err.Error())
		}
		lines = append(lines, strings.Join(record, ", "))
	}
	return strings.Join(lines, "\n"), nil
}
