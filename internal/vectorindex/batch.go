package vectorindex

import (
	"context"
	"iter"
)

// DefaultBatchSize is the number of vectors sent per Upsert call.
const DefaultBatchSize = 100

// BatchResult is the outcome of upserting one batch. Index is the batch's
// position in submission order.
type BatchResult struct {
	Index int
	IDs   []string
	Err   error

	vectors []Vector
}

// UpsertBatches splits vectors into batches of size and upserts them one at
// a time as the sequence is consumed. A failed batch does not stop later
// batches. Once ctx is done the remaining batches are reported with ctx.Err()
// without being sent.
func UpsertBatches(ctx context.Context, idx Index, vectors []Vector, size int) iter.Seq[BatchResult] {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return func(yield func(BatchResult) bool) {
		for i, start := 0, 0; start < len(vectors); i, start = i+1, start+size {
			end := min(start+size, len(vectors))
			if !yield(submit(ctx, idx, i, vectors[start:end])) {
				return
			}
		}
	}
}

// RetryFailed re-submits only the failed batches of results, keeping their
// original Index.
func RetryFailed(ctx context.Context, idx Index, results []BatchResult) iter.Seq[BatchResult] {
	return func(yield func(BatchResult) bool) {
		for _, r := range results {
			if r.Err == nil {
				continue
			}
			if !yield(submit(ctx, idx, r.Index, r.vectors)) {
				return
			}
		}
	}
}

// Split partitions results into the ids that were stored and the batches
// that failed.
func Split(results []BatchResult) (upserted []string, failed []BatchResult) {
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
			continue
		}
		upserted = append(upserted, r.IDs...)
	}
	return upserted, failed
}

func submit(ctx context.Context, idx Index, i int, batch []Vector) BatchResult {
	res := BatchResult{Index: i, IDs: make([]string, len(batch)), vectors: batch}
	for j, v := range batch {
		res.IDs[j] = v.ID
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	res.Err = idx.Upsert(ctx, batch)
	return res
}
