package vectorindex

import (
	"errors"
	"testing"
)

func sampleVectors() []Vector {
	meta := func(topic string, chunk int) Metadata {
		return Metadata{
			Class:       "10",
			Subject:     "Physics",
			Topic:       topic,
			ChunkIndex:  chunk,
			TotalChunks: 2,
			Text:        topic + " notes",
			ContentType: "text",
		}
	}
	return []Vector{
		{ID: "a", Values: []float32{1, 0, 0}, Metadata: meta("Optics", 0)},
		{ID: "b", Values: []float32{0, 1, 0}, Metadata: meta("Kinematics", 0)},
		{ID: "c", Values: []float32{0.9, 0.1, 0}, Metadata: meta("Optics", 1)},
	}
}

func TestChromemIndex(t *testing.T) {
	idx, err := NewChromemIndex("", "", 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := t.Context()

	if got, err := idx.QuerySimilar(ctx, []float32{1, 0, 0}, Filter{}, 5); err != nil || got != nil {
		t.Fatalf("empty index query = %v, %v", got, err)
	}

	if err := idx.Upsert(ctx, sampleVectors()); err != nil {
		t.Fatal(err)
	}
	if idx.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", idx.Count())
	}

	t.Run("fetch by metadata", func(t *testing.T) {
		got, err := idx.FetchByMetadata(ctx, Filter{Class: "10", Subject: "Physics", Topic: "Kinematics"}, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].ID != "b" {
			t.Fatalf("got %+v, want vector b", got)
		}
		if len(got[0].Values) != 3 {
			t.Errorf("values not returned: %v", got[0].Values)
		}
		if got[0].Metadata.Topic != "Kinematics" || got[0].Metadata.TotalChunks != 2 {
			t.Errorf("metadata = %+v", got[0].Metadata)
		}
	})

	t.Run("fetch miss", func(t *testing.T) {
		got, err := idx.FetchByMetadata(ctx, Filter{Topic: "Thermodynamics"}, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("got %+v, want none", got)
		}
	})

	t.Run("query orders by similarity", func(t *testing.T) {
		got, err := idx.QuerySimilar(ctx, []float32{1, 0, 0}, Filter{Subject: "Physics"}, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 {
			t.Fatalf("got %d matches, want 3 (topK clamped to count)", len(got))
		}
		want := []string{"a", "c", "b"}
		for i, m := range got {
			if m.ID != want[i] {
				t.Errorf("match %d = %s, want %s", i, m.ID, want[i])
			}
		}
		if got[0].Score < got[1].Score {
			t.Errorf("scores not descending: %v, %v", got[0].Score, got[1].Score)
		}
	})

	t.Run("upsert replaces", func(t *testing.T) {
		v := sampleVectors()[1]
		v.Metadata.Text = "updated"
		if err := idx.Upsert(ctx, []Vector{v}); err != nil {
			t.Fatal(err)
		}
		if idx.Count() != 3 {
			t.Errorf("Count() = %d after replace, want 3", idx.Count())
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		err := idx.Upsert(ctx, []Vector{{ID: "bad", Values: []float32{1}}})
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("Upsert err = %v", err)
		}
		_, err = idx.QuerySimilar(ctx, []float32{1, 0}, Filter{}, 1)
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("QuerySimilar err = %v", err)
		}
	})
}

func TestChromemIndexPersists(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewChromemIndex(dir, "kb", 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(t.Context(), sampleVectors()); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewChromemIndex(dir, "kb", 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Count() != 3 {
		t.Fatalf("reopened Count() = %d, want 3", reopened.Count())
	}
	got, err := reopened.FetchByMetadata(t.Context(), Filter{Topic: "Optics"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d optics chunks, want 2", len(got))
	}
}

func TestNewChromemIndexRejectsDimension(t *testing.T) {
	if _, err := NewChromemIndex("", "", 0, nil); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestRefuseEmbedding(t *testing.T) {
	if _, err := refuseEmbedding(t.Context(), "text"); !errors.Is(err, ErrEmbeddingDisabled) {
		t.Errorf("err = %v", err)
	}
}
