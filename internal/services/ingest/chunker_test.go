package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestChunkShortContentSingleChunk(t *testing.T) {
	c := NewChunker(100, 20)

	chunks := c.Chunk(words(50))
	require.Len(t, chunks, 1)
	assert.Equal(t, 50, len(strings.Fields(chunks[0])))
}

func TestChunkEmptyContent(t *testing.T) {
	c := NewChunker(100, 20)

	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("   \n\t  "))
}

func TestChunkOverlapCarriesWords(t *testing.T) {
	c := NewChunker(10, 3)

	chunks := c.Chunk(words(25))
	require.True(t, len(chunks) >= 3)

	// Each chunk except the last holds exactly chunkSize words
	for i, chunk := range chunks[:len(chunks)-1] {
		assert.Equal(t, 10, len(strings.Fields(chunk)), "chunk %d", i)
	}

	// Consecutive chunks share the overlap words
	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	assert.Equal(t, first[7:], second[:3], "last 3 words of chunk 0 start chunk 1")

	// Every word appears somewhere
	all := strings.Join(chunks, " ")
	for i := 0; i < 25; i++ {
		assert.Contains(t, all, fmt.Sprintf("w%d", i))
	}
}

func TestChunkerInvalidConfigFallsBack(t *testing.T) {
	// Overlap >= size must not produce an infinite loop
	c := NewChunker(10, 10)
	chunks := c.Chunk(words(100))
	assert.NotEmpty(t, chunks)

	c = NewChunker(0, -5)
	chunks = c.Chunk(words(100))
	assert.NotEmpty(t, chunks)
}
