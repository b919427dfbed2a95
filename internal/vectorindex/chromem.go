package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/abhisek/examprep/internal/logger"
)

// DefaultCollection is the chromem collection holding material chunks.
const DefaultCollection = "knowledge_base"

// ErrEmbeddingDisabled is returned when chromem asks for an embedding. Every
// vector arrives precomputed and queries are by vector only.
var ErrEmbeddingDisabled = errors.New("runtime embedding generation is disabled")

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, ErrEmbeddingDisabled
}

// ChromemIndex is an embedded Index backed by chromem-go. With a directory
// it persists to disk; otherwise it lives in memory.
type ChromemIndex struct {
	mu  sync.RWMutex
	db  *chromem.DB
	col *chromem.Collection
	dim int
	log *logger.Logger
}

// NewChromemIndex opens (or creates) the collection under dir. An empty dir
// keeps everything in memory.
func NewChromemIndex(dir, collection string, dim int, log *logger.Logger) (*ChromemIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dim)
	}
	if collection == "" {
		collection = DefaultCollection
	}

	var db *chromem.DB
	if dir == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create vector index dir: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("open vector index: %w", err)
		}
	}

	col, err := db.GetOrCreateCollection(collection, nil, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collection, err)
	}
	return &ChromemIndex{
		db:  db,
		col: col,
		dim: dim,
		log: logger.OrNop(log).With("component", "vectorindex.Chromem"),
	}, nil
}

// Count returns the number of stored vectors.
func (x *ChromemIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.col.Count()
}

func (x *ChromemIndex) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(vectors))
	for i, v := range vectors {
		if len(v.Values) != x.dim {
			return fmt.Errorf("vector %s: %w: got %d, want %d", v.ID, ErrDimensionMismatch, len(v.Values), x.dim)
		}
		docs[i] = chromem.Document{
			ID:        v.ID,
			Metadata:  v.Metadata.stringMap(),
			Embedding: v.Values,
			Content:   v.Metadata.Text,
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

func (x *ChromemIndex) FetchByMetadata(ctx context.Context, f Filter, limit int) ([]Vector, error) {
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

func (x *ChromemIndex) QuerySimilar(ctx context.Context, values []float32, f Filter, topK int) ([]Match, error) {
	if len(values) != x.dim {
		return nil, fmt.Errorf("query: %w: got %d, want %d", ErrDimensionMismatch, len(values), x.dim)
	}
	return x.query(ctx, values, f, topK)
}

func (x *ChromemIndex) query(ctx context.Context, values []float32, f Filter, n int) ([]Match, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	count := x.col.Count()
	if count == 0 || n <= 0 {
		return nil, nil
	}
	n = min(n, count)

	var where map[string]string
	if pairs := f.pairs(); len(pairs) > 0 {
		where = make(map[string]string, len(pairs))
		for _, p := range pairs {
			where[p[0]] = p[1]
		}
	}

	// chromem rejects nResults above the number of documents left after
	// filtering, so step down until it accepts.
	var (
		results []chromem.Result
		err     error
	)
	for k := n; k > 0; k-- {
		results, err = x.col.QueryEmbedding(ctx, values, k, where, nil)
		if err == nil || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	out := make([]Match, len(results))
	for i, r := range results {
		out[i] = Match{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Values:   r.Embedding,
			Metadata: metadataFromStrings(r.Metadata),
		}
	}
	return out, nil
}
