package worker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChunker_Split tests chunk sizing and token counting
func TestChunker_Split(t *testing.T) {
	c, err := NewChunker()
	require.NoError(t, err)

	text := strings.Repeat("Paragraph about retrieval. ", 100)
	chunks, err := c.Split(text, 200, 20)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk.Text)
		assert.Positive(t, chunk.Tokens)
	}
}

// TestChunker_ShortText tests that text below the chunk size yields one chunk
func TestChunker_ShortText(t *testing.T) {
	c, err := NewChunker()
	require.NoError(t, err)

	chunks, err := c.Split("just one small piece", 500, 50)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "just one small piece", chunks[0].Text)
}

// TestChunker_EmptyText tests the empty input edge case
func TestChunker_EmptyText(t *testing.T) {
	c, err := NewChunker()
	require.NoError(t, err)

	chunks, err := c.Split("", 500, 50)
	require.NoError(t, err)
	assert.Nil(t, chunks)
}
