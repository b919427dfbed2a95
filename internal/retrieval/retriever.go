// Package retrieval pulls previously ingested material for a set of topics
// out of the vector index.
package retrieval

import (
	"context"
	"slices"
	"strings"

	"github.com/abhisek/examprep/internal/logger"
	"github.com/abhisek/examprep/internal/vectorindex"
)

const DefaultTopK = 10

// Filters scope retrieval to one class and subject.
type Filters struct {
	Class   string
	Subject string
}

// KnowledgeChunk is a piece of ingested material relevant to a topic.
type KnowledgeChunk struct {
	ID             string  `json:"id"`
	TopicName      string  `json:"topicName"`
	Content        string  `json:"content"`
	ChunkIndex     int     `json:"chunkIndex"`
	TotalChunks    int     `json:"totalChunks"`
	RelevanceScore float64 `json:"relevanceScore"`
	ContentType    string  `json:"contentType"`
	SubjectFilter  string  `json:"subjectFilter"`
	ClassFilter    string  `json:"classFilter"`
}

type Config struct {
	// TopK is the number of neighbours requested per topic.
	TopK int
}

// Retriever looks up each topic's stored vector and gathers its nearest
// neighbours. It never computes embeddings: a topic without a stored vector
// is skipped.
type Retriever struct {
	idx  vectorindex.Index
	topK int
	log  *logger.Logger
}

func New(idx vectorindex.Index, cfg Config, log *logger.Logger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Retriever{
		idx:  idx,
		topK: cfg.TopK,
		log:  logger.OrNop(log).With("component", "retrieval.Retriever"),
	}
}

// Retrieve returns the chunks found for topicNames, most relevant first.
// Lookup failures for a topic are logged and skipped; only a done ctx
// aborts. No material is not an error.
func (r *Retriever) Retrieve(ctx context.Context, topicNames []string, f Filters) ([]KnowledgeChunk, error) {
	seen := make(map[string]bool)
	var out []KnowledgeChunk

	for _, name := range topicNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		chunks, err := r.retrieveTopic(ctx, name, f)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			r.log.Warn("knowledge lookup failed", "topic", name, "error", err)
			continue
		}
		for _, c := range chunks {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}

	slices.SortStableFunc(out, func(a, b KnowledgeChunk) int {
		switch {
		case a.RelevanceScore > b.RelevanceScore:
			return -1
		case a.RelevanceScore < b.RelevanceScore:
			return 1
		}
		return 0
	})

	r.log.Debug("retrieved knowledge", "topics", len(topicNames), "chunks", len(out))
	return out, nil
}

func (r *Retriever) retrieveTopic(ctx context.Context, name string, f Filters) ([]KnowledgeChunk, error) {
	stored, err := r.idx.FetchByMetadata(ctx, vectorindex.Filter{
		Class:   f.Class,
		Subject: f.Subject,
		Topic:   name,
	}, 1)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 || len(stored[0].Values) == 0 {
		r.log.Info("no stored vector for topic; skipping", "topic", name)
		return nil, nil
	}

	matches, err := r.idx.QuerySimilar(ctx, stored[0].Values, vectorindex.Filter{
		Class:   f.Class,
		Subject: f.Subject,
	}, r.topK)
	if err != nil {
		return nil, err
	}

	out := make([]KnowledgeChunk, len(matches))
	for i, m := range matches {
		out[i] = KnowledgeChunk{
			ID:             m.ID,
			TopicName:      name,
			Content:        m.Metadata.Text,
			ChunkIndex:     m.Metadata.ChunkIndex,
			TotalChunks:    m.Metadata.TotalChunks,
			RelevanceScore: m.Score,
			ContentType:    m.Metadata.ContentType,
			SubjectFilter:  f.Subject,
			ClassFilter:    f.Class,
		}
	}
	return out, nil
}
