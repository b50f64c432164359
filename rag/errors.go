package rag

import "fmt"

// =============================================================================
// EXTRACTION ERRORS
// =============================================================================

// UnsupportedFormatError indicates a document extension with no registered
// extractor.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format: %s", e.Ext)
}

// NewUnsupportedFormatError creates a new UnsupportedFormatError.
func NewUnsupportedFormatError(ext string) *UnsupportedFormatError {
	return &UnsupportedFormatError{Ext: ext}
}

// CorruptFileError indicates a document whose bytes could not be decoded as
// its declared format.
type CorruptFileError struct {
	Filename string
	Reason   string
}

func (e *CorruptFileError) Error() string {
	return fmt.Sprintf("corrupt file %s: %s", e.Filename, e.Reason)
}

// NewCorruptFileError creates a new CorruptFileError.
func NewCorruptFileError(filename, reason string) *CorruptFileError {
	return &CorruptFileError{Filename: filename, Reason: reason}
}

// EmptyDocumentError indicates a document that decoded to no usable text.
type EmptyDocumentError struct {
	Filename string
}

func (e *EmptyDocumentError) Error() string {
	return fmt.Sprintf("document %s contains no text", e.Filename)
}

// NewEmptyDocumentError creates a new EmptyDocumentError.
func NewEmptyDocumentError(filename string) *EmptyDocumentError {
	return &EmptyDocumentError{Filename: filename}
}

// =============================================================================
// CHUNKING ERRORS
// =============================================================================

// InvalidChunkConfigError indicates a chunker configuration that cannot make
// progress.
type InvalidChunkConfigError struct {
	Size    int
	Overlap int
}

func (e *InvalidChunkConfigError) Error() string {
	return fmt.Sprintf("invalid chunk config: size=%d overlap=%d (overlap must be smaller than size, size must be positive)", e.Size, e.Overlap)
}

// =============================================================================
// GENERATION ERRORS
// =============================================================================

// GenerationTimeoutError indicates the generator did not produce an answer
// within its deadline.
type GenerationTimeoutError struct {
	Timeout float64
}

func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("generation timed out after %.2fs", e.Timeout)
}

// NewGenerationTimeoutError creates a new GenerationTimeoutError.
func NewGenerationTimeoutError(timeout float64) *GenerationTimeoutError {
	return &GenerationTimeoutError{Timeout: timeout}
}
