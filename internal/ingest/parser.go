package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/abhisek/examprep/internal/validate"
)

// ParsedDocument is the output of the document-parsing service for one
// uploaded syllabus: its topics and the embedded chunks of its material.
type ParsedDocument struct {
	Class      string       `json:"class" validate:"notblank"`
	Subject    string       `json:"subject" validate:"notblank"`
	SyllabusID string       `json:"syllabusId"`
	Topics     []TopicInput `json:"topics" validate:"min=1,dive"`
	Items      []Item       `json:"items" validate:"dive"`
}

type TopicInput struct {
	ID         string `json:"id"`
	Name       string `json:"name" validate:"notblank"`
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
}

// Item is one chunk of material with its precomputed embedding.
type Item struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic" validate:"notblank"`
	Text        string    `json:"text"`
	ContentType string    `json:"contentType"`
	ChunkIndex  int       `json:"chunkIndex" validate:"min=0"`
	TotalChunks int       `json:"totalChunks" validate:"min=0"`
	Embedding   []float32 `json:"embedding"`
}

// Parser reads a parsed document from path.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParsedDocument, error)
}

// JSONFileParser reads the parsing service's JSON output from disk.
type JSONFileParser struct{}

func (JSONFileParser) Parse(ctx context.Context, path string) (*ParsedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read parsed document: %w", err)
	}
	var doc ParsedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode parsed document %s: %w", path, err)
	}
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("parsed document %s: %w", path, err)
	}
	return &doc, nil
}
