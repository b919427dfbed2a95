package vectorindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/abhisek/examprep/internal/logger"
	"github.com/abhisek/examprep/internal/vectorindex/pinecone"
)

type PineconeConfig struct {
	IndexName string
	// IndexHost skips the describe-index call when set.
	IndexHost string
	Namespace string
	Dimension int
}

// PineconeIndex is an Index backed by a hosted Pinecone index.
type PineconeIndex struct {
	pc        *pinecone.Client
	host      string
	namespace string
	dim       int
	log       *logger.Logger
}

// NewPineconeIndex resolves the index host when it is not configured.
func NewPineconeIndex(ctx context.Context, pc *pinecone.Client, cfg PineconeConfig, log *logger.Logger) (*PineconeIndex, error) {
	if pc == nil {
		return nil, fmt.Errorf("pinecone client required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", cfg.Dimension)
	}
	log = logger.OrNop(log).With("component", "vectorindex.Pinecone")

	host := strings.TrimSpace(cfg.IndexHost)
	if host == "" {
		desc, err := pc.DescribeIndex(ctx, cfg.IndexName)
		if err != nil {
			return nil, err
		}
		host = desc.Host
		log.Warn("pinecone index host not configured; resolved via describe_index",
			"index_name", cfg.IndexName,
			"index_host", host,
		)
	}
	return &PineconeIndex{
		pc:        pc,
		host:      host,
		namespace: strings.TrimSpace(cfg.Namespace),
		dim:       cfg.Dimension,
		log:       log,
	}, nil
}

func (x *PineconeIndex) Upsert(ctx context.Context, vectors []Vector) error {
	req := pinecone.UpsertRequest{Namespace: x.namespace, Vectors: make([]pinecone.Vector, len(vectors))}
	for i, v := range vectors {
		if len(v.Values) != x.dim {
			return fmt.Errorf("vector %s: %w: got %d, want %d", v.ID, ErrDimensionMismatch, len(v.Values), x.dim)
		}
		req.Vectors[i] = pinecone.Vector{ID: v.ID, Values: v.Values, Metadata: v.Metadata.anyMap()}
	}
	resp, err := x.pc.UpsertVectors(ctx, x.host, req)
	if err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	if int(resp.UpsertedCount) != len(vectors) {
		x.log.Warn("upserted count differs from batch size", "sent", len(vectors), "upserted", resp.UpsertedCount)
	}
	return nil
}

func (x *PineconeIndex) FetchByMetadata(ctx context.Context, f Filter, limit int) ([]Vector, error) {
	matches, err := x.query(ctx, probe(x.dim), f, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Vector, len(matches))
	for i, m := range matches {
		out[i] = Vector{ID: m.ID, Values: m.Values, Metadata: m.Metadata}
	}
	return out, nil
}

func (x *PineconeIndex) QuerySimilar(ctx context.Context, values []float32, f Filter, topK int) ([]Match, error) {
	if len(values) != x.dim {
		return nil, fmt.Errorf("query: %w: got %d, want %d", ErrDimensionMismatch, len(values), x.dim)
	}
	return x.query(ctx, values, f, topK)
}

func (x *PineconeIndex) query(ctx context.Context, values []float32, f Filter, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	resp, err := x.pc.Query(ctx, x.host, pinecone.QueryRequest{
		Namespace:       x.namespace,
		Vector:          values,
		TopK:            topK,
		Filter:          pineconeFilter(f),
		IncludeValues:   true,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	out := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		out = append(out, Match{
			ID:       m.ID,
			Score:    m.Score,
			Values:   m.Values,
			Metadata: metadataFromAny(m.Metadata),
		})
	}
	return out, nil
}

func pineconeFilter(f Filter) map[string]any {
	pairs := f.pairs()
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		out[p[0]] = map[string]any{"$eq": p[1]}
	}
	return out
}
