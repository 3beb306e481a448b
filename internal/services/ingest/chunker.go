package ingest

import (
	"strings"
)

// Chunker splits markdown content into overlapping word-bounded passages
type Chunker struct {
	chunkSize    int // words per chunk
	chunkOverlap int // words carried over between consecutive chunks
}

// NewChunker creates a chunker. Overlap must be smaller than size; invalid
// values fall back to defaults.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 300
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 50
		if chunkOverlap >= chunkSize {
			chunkOverlap = chunkSize / 4
		}
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits content into word-windowed chunks. Consecutive chunks share
// chunkOverlap words so sentences near a boundary stay retrievable. Empty
// content yields no chunks.
func (c *Chunker) Chunk(content string) []string {
	words := strings.Fields(content)
	if len(words) == 0 {
		return nil
	}

	if len(words) <= c.chunkSize {
		return []string{strings.Join(words, " ")}
	}

	step := c.chunkSize - c.chunkOverlap
	chunks := make([]string, 0, (len(words)+step-1)/step)

	for start := 0; start < len(words); start += step {
		end := start + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}

	return chunks
}
