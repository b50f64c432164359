package rag

// Default chunking bounds.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunker splits text into overlapping windows. Windows are measured in
// runes so multi-byte text never splits mid-character.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates and creates a Chunker. Overlap must be smaller than
// size and size must be positive.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, &InvalidChunkConfigError{Size: size, Overlap: overlap}
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the window size in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the window overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Split produces the sliding windows for text. Empty input yields no chunks.
// Each window starts past the previous window's start, so the walk always
// terminates.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	length := len(runes)

	var chunks []string
	start := 0
	for start < length {
		end := start + c.size
		if end > length {
			end = length
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == length {
			break
		}

		next := start + c.size - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}
