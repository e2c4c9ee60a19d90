package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mathewevviai/diala-sub005/internal/workflow"
)

// record is the wire shape of one exported embedding.
type record struct {
	EmbeddingID string    `json:"embedding_id"`
	SourceID    string    `json:"source_id"`
	ChunkText   string    `json:"chunk_text"`
	ChunkTokens int       `json:"chunk_tokens"`
	Dimensions  int       `json:"dimensions"`
	Vector      []float32 `json:"vector"`
}

func toRecord(c *workflow.EmbeddingChunk) record {
	return record{
		EmbeddingID: c.EmbeddingID,
		SourceID:    c.SourceID.String(),
		ChunkText:   c.ChunkText,
		ChunkTokens: c.ChunkTokens,
		Dimensions:  c.Dimensions,
		Vector:      c.Vector,
	}
}

// Encode serializes chunks in the given format. Only json, jsonl, and csv are
// encoded in-process; the remaining formats are produced by the worker and
// return an error here.
func Encode(format Format, chunks []*workflow.EmbeddingChunk) ([]byte, error) {
	switch format {
	case FormatJSON:
		return encodeJSON(chunks)
	case FormatJSONL:
		return encodeJSONL(chunks)
	case FormatCSV:
		return encodeCSV(chunks)
	}
	return nil, fmt.Errorf("format %s requires an external worker", format)
}

func encodeJSON(chunks []*workflow.EmbeddingChunk) ([]byte, error) {
	records := make([]record, 0, len(chunks))
	for _, c := range chunks {
		records = append(records, toRecord(c))
	}
	return json.MarshalIndent(records, "", "  ")
}

func encodeJSONL(chunks []*workflow.EmbeddingChunk) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, c := range chunks {
		if err := enc.Encode(toRecord(c)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func encodeCSV(chunks []*workflow.EmbeddingChunk) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"embedding_id", "source_id", "chunk_text", "chunk_tokens", "dimensions", "vector"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, c := range chunks {
		row := []string{
			c.EmbeddingID,
			c.SourceID.String(),
			c.ChunkText,
			strconv.Itoa(c.ChunkTokens),
			strconv.Itoa(c.Dimensions),
			encodeVector(c.Vector),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeVector renders a vector as a space-separated list, which keeps the
// CSV cell free of the record delimiter.
func encodeVector(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return strings.Join(parts, " ")
}
