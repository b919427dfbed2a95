package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/abhisek/examprep/internal/catalog"
	"github.com/abhisek/examprep/internal/studyplan"
)

func TestTopicsKeepInsertionOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, name := range []string{"Zeta", "Alpha", "Mu"} {
		if err := s.Topics().Insert(ctx, &catalog.Topic{Name: name, SyllabusID: "syl"}); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}

	got, err := s.Topics().Find(ctx, catalog.Filter{SyllabusID: "syl"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 3 || got[0].Name != "Zeta" || got[1].Name != "Alpha" || got[2].Name != "Mu" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestPlanUpdateVersionConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := &studyplan.StudyPlan{UserID: "u1"}
	if err := s.Plans().Insert(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	a, _ := s.Plans().FindByID(ctx, p.ID)
	b, _ := s.Plans().FindByID(ctx, p.ID)

	a.StudyTips = []string{"first"}
	if err := s.Plans().Update(ctx, a); err != nil {
		t.Fatalf("first update: %v", err)
	}
	b.StudyTips = []string{"second"}
	if err := s.Plans().Update(ctx, b); !errors.Is(err, studyplan.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestLatestPrefersNewestSeq(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := &studyplan.StudyPlan{UserID: "u1"}
	second := &studyplan.StudyPlan{UserID: "u1"}
	_ = s.Plans().Insert(ctx, first)
	_ = s.Plans().Insert(ctx, second)
	// Same creation timestamp must not matter.
	second.CreatedAt = first.CreatedAt

	got, err := s.Plans().Latest(ctx, "u1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.ID != second.ID {
		t.Fatalf("latest = %s, want %s", got.ID, second.ID)
	}

	if _, err := s.Plans().Latest(ctx, "nobody"); !errors.Is(err, studyplan.ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}
