package worker

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/textsplitter"
)

// tokenEncoding is the tokenizer used for chunk token counts.
const tokenEncoding = "cl100k_base"

// Chunk is one split of a source's extracted text.
type Chunk struct {
	Text   string
	Tokens int
}

// Chunker splits extracted text into overlapping chunks and counts tokens
// per chunk.
type Chunker struct {
	encoder *tiktoken.Tiktoken
}

// NewChunker creates a chunker. The tokenizer tables are loaded once and
// reused across sources; when they cannot be loaded (first use needs a
// download unless TIKTOKEN_CACHE_DIR is pre-seeded), token counts fall back
// to a whitespace estimate rather than failing every embed job.
func NewChunker() (*Chunker, error) {
	encoder, err := tiktoken.GetEncoding(tokenEncoding)
	if err != nil {
		slog.Warn("tokenizer unavailable, using word-count estimates", "encoding", tokenEncoding, "error", err)
		return &Chunker{}, nil
	}
	return &Chunker{encoder: encoder}, nil
}

func (c *Chunker) countTokens(text string) int {
	if c.encoder == nil {
		return len(strings.Fields(text))
	}
	return len(c.encoder.Encode(text, nil, nil))
}

// Split divides text into chunks of about chunkSize characters with the
// given overlap, preferring paragraph and sentence boundaries.
func (c *Chunker) Split(text string, chunkSize, overlap int) ([]Chunk, error) {
	if text == "" {
		return nil, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(overlap),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	chunks := make([]Chunk, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Text:   part,
			Tokens: c.countTokens(part),
		})
	}
	return chunks, nil
}
