// Package vectorindex stores chunk embeddings of ingested material and
// answers metadata lookups and similarity queries over them.
package vectorindex

import (
	"context"
	"errors"
	"strconv"
)

// Metadata keys stored with every vector.
const (
	KeyClass       = "class"
	KeySubject     = "subject"
	KeyTopic       = "topic"
	KeyChunkIndex  = "chunk_index"
	KeyTotalChunks = "total_chunks"
	KeyText        = "text"
	KeyContentType = "content_type"
)

// ErrDimensionMismatch is returned for vectors whose length differs from the
// index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Metadata describes the chunk a vector was computed from.
type Metadata struct {
	Class       string `json:"class"`
	Subject     string `json:"subject"`
	Topic       string `json:"topic"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	Text        string `json:"text"`
	ContentType string `json:"content_type"`
}

// Vector is one stored embedding.
type Vector struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

// Match is a similarity query hit. Score is higher for closer vectors.
type Match struct {
	ID       string
	Score    float64
	Values   []float32
	Metadata Metadata
}

// Filter restricts lookups by exact metadata equality. Empty fields match
// anything.
type Filter struct {
	Class   string
	Subject string
	Topic   string
}

// Index is a vector store.
type Index interface {
	// Upsert inserts vectors, replacing any with the same ID.
	Upsert(ctx context.Context, vectors []Vector) error

	// FetchByMetadata returns up to limit stored vectors, values included,
	// whose metadata matches f exactly.
	FetchByMetadata(ctx context.Context, f Filter, limit int) ([]Vector, error)

	// QuerySimilar returns up to topK vectors matching f, closest first.
	QuerySimilar(ctx context.Context, values []float32, f Filter, topK int) ([]Match, error)
}

func (f Filter) pairs() [][2]string {
	var out [][2]string
	if f.Class != "" {
		out = append(out, [2]string{KeyClass, f.Class})
	}
	if f.Subject != "" {
		out = append(out, [2]string{KeySubject, f.Subject})
	}
	if f.Topic != "" {
		out = append(out, [2]string{KeyTopic, f.Topic})
	}
	return out
}

func (m Metadata) stringMap() map[string]string {
	return map[string]string{
		KeyClass:       m.Class,
		KeySubject:     m.Subject,
		KeyTopic:       m.Topic,
		KeyChunkIndex:  strconv.Itoa(m.ChunkIndex),
		KeyTotalChunks: strconv.Itoa(m.TotalChunks),
		KeyText:        m.Text,
		KeyContentType: m.ContentType,
	}
}

func metadataFromStrings(m map[string]string) Metadata {
	idx, _ := strconv.Atoi(m[KeyChunkIndex])
	total, _ := strconv.Atoi(m[KeyTotalChunks])
	return Metadata{
		Class:       m[KeyClass],
		Subject:     m[KeySubject],
		Topic:       m[KeyTopic],
		ChunkIndex:  idx,
		TotalChunks: total,
		Text:        m[KeyText],
		ContentType: m[KeyContentType],
	}
}

func (m Metadata) anyMap() map[string]any {
	return map[string]any{
		KeyClass:       m.Class,
		KeySubject:     m.Subject,
		KeyTopic:       m.Topic,
		KeyChunkIndex:  m.ChunkIndex,
		KeyTotalChunks: m.TotalChunks,
		KeyText:        m.Text,
		KeyContentType: m.ContentType,
	}
}

func metadataFromAny(m map[string]any) Metadata {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	num := func(k string) int {
		switch v := m[k].(type) {
		case float64:
			return int(v)
		case int:
			return v
		case string:
			n, _ := strconv.Atoi(v)
			return n
		}
		return 0
	}
	return Metadata{
		Class:       str(KeyClass),
		Subject:     str(KeySubject),
		Topic:       str(KeyTopic),
		ChunkIndex:  num(KeyChunkIndex),
		TotalChunks: num(KeyTotalChunks),
		Text:        str(KeyText),
		ContentType: str(KeyContentType),
	}
}

// probe returns the all-ones vector used to list vectors by metadata.
func probe(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = 1
	}
	return v
}
