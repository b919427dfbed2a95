package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/abhisek/examprep/internal/catalog"
	"github.com/abhisek/examprep/internal/studyplan"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "examprep.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
		{"busy_timeout", "5000"},
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestAutoMigrationCreatesTables(t *testing.T) {
	s := openTestStore(t)

	for _, table := range []string{topicsTable, plansTable, planTopicsTable, llmEventsTable, "global_sequence"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Fatalf("table %s: %v", table, err)
		}
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examprep.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	topic := &catalog.Topic{Subject: "Math", Name: "Limits", SyllabusID: "calc"}
	if err := s.Topics().Insert(ctx, topic); err != nil {
		t.Fatalf("insert: %v", err)
	}
	s.Close()

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Topics().FindByID(ctx, topic.ID)
	if err != nil {
		t.Fatalf("find after reopen: %v", err)
	}
	if got.Name != "Limits" {
		t.Fatalf("name = %q, want Limits", got.Name)
	}

	// The counter keeps counting after a restart.
	next := &catalog.Topic{Subject: "Math", Name: "Derivatives", SyllabusID: "calc"}
	if err := s.Topics().Insert(ctx, next); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if next.Seq <= topic.Seq {
		t.Fatalf("seq went backwards: %d after %d", next.Seq, topic.Seq)
	}
}

func TestSequenceCounter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		seq, err := s.seq.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if seq != last+1 {
			t.Fatalf("seq = %d, want %d", seq, last+1)
		}
		last = seq
	}
}

func TestTopicRepo(t *testing.T) {
	s := openTestStore(t)
	repo := s.Topics()
	ctx := context.Background()

	topics := []*catalog.Topic{
		{ID: "t-1", Subject: "Math", Name: "Limits", SyllabusID: "calc"},
		{ID: "t-2", Subject: "Math", Name: "Derivatives", SyllabusID: "calc", Difficulty: catalog.DifficultyHard},
		{ID: "t-3", Subject: "Physics", Name: "Kinematics", SyllabusID: "mech"},
		{Subject: "Math", Name: "Integrals", SyllabusID: "calc"},
	}
	for _, tp := range topics {
		if err := repo.Insert(ctx, tp); err != nil {
			t.Fatalf("insert %s: %v", tp.Name, err)
		}
	}
	if topics[3].ID == "" {
		t.Fatal("expected generated id")
	}

	if err := repo.Insert(ctx, &catalog.Topic{ID: "t-1", Name: "dup"}); err == nil {
		t.Fatal("expected duplicate id to fail")
	}

	t.Run("insertion order", func(t *testing.T) {
		got, err := repo.Find(ctx, catalog.Filter{SyllabusID: "calc"})
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		want := []string{"t-1", "t-2", topics[3].ID}
		if ids := catalog.IDs(got); len(ids) != 3 || ids[0] != want[0] || ids[1] != want[1] || ids[2] != want[2] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	})

	t.Run("filters", func(t *testing.T) {
		all, _ := repo.Find(ctx, catalog.Filter{})
		if len(all) != 4 {
			t.Fatalf("all = %d, want 4", len(all))
		}
		bySubject, _ := repo.Find(ctx, catalog.Filter{Subject: "Physics"})
		if len(bySubject) != 1 || bySubject[0].ID != "t-3" {
			t.Fatalf("by subject = %v", catalog.IDs(bySubject))
		}
		byIDs, _ := repo.Find(ctx, catalog.Filter{IDs: []string{"t-3", "t-1", "missing"}})
		if ids := catalog.IDs(byIDs); len(ids) != 2 || ids[0] != "t-1" || ids[1] != "t-3" {
			t.Fatalf("by ids = %v", ids)
		}
		none, _ := repo.Find(ctx, catalog.Filter{IDs: []string{}})
		if len(none) != 0 {
			t.Fatalf("empty id filter matched %d topics", len(none))
		}
	})

	t.Run("find by id", func(t *testing.T) {
		got, err := repo.FindByID(ctx, "t-2")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.Difficulty != catalog.DifficultyHard || got.CreatedAt.IsZero() {
			t.Fatalf("unexpected topic: %+v", got)
		}
		if _, err := repo.FindByID(ctx, "nope"); !errors.Is(err, catalog.ErrTopicNotFound) {
			t.Fatalf("expected ErrTopicNotFound, got %v", err)
		}
	})

	t.Run("difficulty backfill", func(t *testing.T) {
		if err := repo.SetDifficulty(ctx, "t-1", catalog.DifficultyEasy); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := repo.SetDifficulty(ctx, "t-2", catalog.DifficultyEasy); err != nil {
			t.Fatalf("set: %v", err)
		}
		t1, _ := repo.FindByID(ctx, "t-1")
		t2, _ := repo.FindByID(ctx, "t-2")
		if t1.Difficulty != catalog.DifficultyEasy {
			t.Fatalf("unknown difficulty not backfilled: %q", t1.Difficulty)
		}
		if t2.Difficulty != catalog.DifficultyHard {
			t.Fatalf("known difficulty overwritten: %q", t2.Difficulty)
		}
		if err := repo.SetDifficulty(ctx, "nope", catalog.DifficultyEasy); !errors.Is(err, catalog.ErrTopicNotFound) {
			t.Fatalf("expected ErrTopicNotFound, got %v", err)
		}
	})
}

func samplePlan(userID string) *studyplan.StudyPlan {
	completed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &studyplan.StudyPlan{
		UserID:     userID,
		SyllabusID: "calc",
		Topics: []studyplan.TopicEntry{
			{
				TopicID:            "t-1",
				Status:             studyplan.StatusCompleted,
				AllocatedTime:      studyplan.AllocatedTime{Minutes: 90, Formatted: "1h 30m"},
				ScheduledDay:       1,
				Difficulty:         catalog.DifficultyEasy,
				LearningObjectives: []string{"Evaluate one-sided limits"},
				Resources:          []string{"Chapter 2"},
				CompletedAt:        &completed,
			},
			{
				TopicID:       "t-2",
				Status:        studyplan.StatusPending,
				AllocatedTime: studyplan.AllocatedTime{Minutes: 60, Formatted: "1h"},
				ScheduledDay:  2,
				Difficulty:    catalog.DifficultyMedium,
			},
		},
		Schedule: studyplan.Schedule{
			TotalDays:        2,
			StudyHoursPerDay: 2.5,
			DailySchedule: map[string][]studyplan.ScheduleItem{
				"day1": {{TopicName: "Limits", Time: "1h 30m"}},
			},
		},
		StudyTips:        []string{"Practice daily"},
		RevisionSchedule: studyplan.RevisionSchedule{Description: "Weekly review", Days: []int{7}},
		Metadata:         studyplan.Metadata{KnowledgeBaseReferences: 3, TotalTopics: 2},
	}
}

// seedTopics inserts the topics samplePlan references.
func seedTopics(t *testing.T, s *Store) {
	t.Helper()
	for _, id := range []string{"t-1", "t-2"} {
		if err := s.Topics().Insert(context.Background(), &catalog.Topic{ID: id, Subject: "Math", Name: id, SyllabusID: "calc"}); err != nil {
			t.Fatalf("seed topic %s: %v", id, err)
		}
	}
}

func TestPlanRepo_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	seedTopics(t, s)
	repo := s.Plans()
	ctx := context.Background()

	p := samplePlan("u1")
	if err := repo.Insert(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if p.ID == "" || p.Version != 1 || p.Seq == 0 {
		t.Fatalf("insert did not assign identity: %+v", p)
	}

	got, err := repo.FindByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got.Topics) != 2 || got.Topics[0].TopicID != "t-1" || got.Topics[1].TopicID != "t-2" {
		t.Fatalf("entries out of order: %+v", got.Topics)
	}
	first := got.Topics[0]
	if first.CompletedAt == nil || !first.CompletedAt.Equal(*p.Topics[0].CompletedAt) {
		t.Fatalf("completedAt lost: %v", first.CompletedAt)
	}
	if first.AllocatedTime.Formatted != "1h 30m" || first.LearningObjectives[0] != "Evaluate one-sided limits" {
		t.Fatalf("entry fields lost: %+v", first)
	}
	if got.Topics[1].CompletedAt != nil || got.Topics[1].Resources == nil {
		t.Fatalf("pending entry decoded badly: %+v", got.Topics[1])
	}
	if got.Schedule.StudyHoursPerDay != 2.5 || got.Schedule.DailySchedule["day1"][0].TopicName != "Limits" {
		t.Fatalf("schedule lost: %+v", got.Schedule)
	}
	if got.RevisionSchedule.Days[0] != 7 || got.StudyTips[0] != "Practice daily" || got.Metadata.TotalTopics != 2 {
		t.Fatalf("plan fields lost: %+v", got)
	}
}

func TestPlanRepo_LatestPrefersNewest(t *testing.T) {
	s := openTestStore(t)
	seedTopics(t, s)
	repo := s.Plans()
	ctx := context.Background()

	older := samplePlan("u1")
	newer := samplePlan("u1")
	other := samplePlan("u2")
	for _, p := range []*studyplan.StudyPlan{older, newer, other} {
		if err := repo.Insert(ctx, p); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	latest, err := repo.Latest(ctx, "u1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != newer.ID {
		t.Fatalf("latest = %s, want %s", latest.ID, newer.ID)
	}
	if _, err := repo.Latest(ctx, "nobody"); !errors.Is(err, studyplan.ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestPlanRepo_UpdateVersioning(t *testing.T) {
	s := openTestStore(t)
	seedTopics(t, s)
	repo := s.Plans()
	ctx := context.Background()

	p := samplePlan("u1")
	if err := repo.Insert(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	stale, _ := repo.FindByID(ctx, p.ID)

	p.Topics = p.Topics[:1]
	p.Topics[0].Status = studyplan.StatusPending
	p.Topics[0].CompletedAt = nil
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Version != 2 {
		t.Fatalf("version = %d, want 2", p.Version)
	}

	got, _ := repo.FindByID(ctx, p.ID)
	if len(got.Topics) != 1 || got.Topics[0].Status != studyplan.StatusPending || got.Topics[0].CompletedAt != nil {
		t.Fatalf("update not applied: %+v", got.Topics)
	}
	if got.Version != 2 {
		t.Fatalf("stored version = %d, want 2", got.Version)
	}

	if err := repo.Update(ctx, stale); !errors.Is(err, studyplan.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	// The rejected write left the stored entries alone.
	got, _ = repo.FindByID(ctx, p.ID)
	if len(got.Topics) != 1 {
		t.Fatalf("conflicting update leaked entries: %d", len(got.Topics))
	}

	missing := samplePlan("u1")
	missing.ID, missing.Version = "missing", 1
	if err := repo.Update(ctx, missing); !errors.Is(err, studyplan.ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestPlanRepo_EntriesMustReferenceTopics(t *testing.T) {
	s := openTestStore(t)
	seedTopics(t, s)

	p := samplePlan("u1")
	p.Topics[1].TopicID = "ghost"
	if err := s.Plans().Insert(context.Background(), p); err == nil {
		t.Fatal("expected foreign key violation for unknown topic")
	}
	if _, err := s.Plans().Latest(context.Background(), "u1"); !errors.Is(err, studyplan.ErrPlanNotFound) {
		t.Fatalf("failed insert left a plan behind: %v", err)
	}
}

func TestPlanRepo_DeleteCascades(t *testing.T) {
	s := openTestStore(t)
	seedTopics(t, s)
	repo := s.Plans()
	ctx := context.Background()

	p := samplePlan("u1")
	if err := repo.Insert(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, p.ID); !errors.Is(err, studyplan.ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}

	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM study_plan_topics WHERE plan_id = ?", p.ID).Scan(&n); err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if n != 0 {
		t.Fatalf("entries left behind: %d", n)
	}
}

func TestEventRepo(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	events := []LLMRequestEventData{
		{Provider: "openai", Model: "gpt-4o-mini", Purpose: "study-plan", InputTokens: 1000, OutputTokens: 400, LatencyMs: 200, Success: true, StopReason: "end", RequestBody: "[user]\nplan", ResponseBody: "{}"},
		{Provider: "openai", Model: "gpt-4o-mini", Purpose: "study-plan", InputTokens: 500, OutputTokens: 100, LatencyMs: 100, Success: true},
		{Provider: "openai", Model: "gpt-4o-mini", Purpose: "study-plan", LatencyMs: 30, Success: false, ErrorMessage: "rate limited"},
		{Provider: "gemini", Model: "gemini-2.0-flash", Purpose: "topic-extract", InputTokens: 50, OutputTokens: 10, LatencyMs: 60, Success: true},
	}
	for _, e := range events {
		if err := repo.AppendLLMRequest(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	t.Run("query newest first", func(t *testing.T) {
		got, err := repo.QueryLLMEvents(ctx, QueryOpts{Limit: 2})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(got) != 2 || got[0].Purpose != "topic-extract" || !got[1].Timestamp.After(time.Time{}) {
			t.Fatalf("unexpected events: %+v", got)
		}
		if got[0].Sequence <= got[1].Sequence {
			t.Fatalf("events not newest first: %d, %d", got[0].Sequence, got[1].Sequence)
		}
	})

	t.Run("purpose filter", func(t *testing.T) {
		got, _ := repo.QueryLLMEvents(ctx, QueryOpts{Purpose: "study-plan"})
		if len(got) != 3 {
			t.Fatalf("study-plan events = %d, want 3", len(got))
		}
	})

	t.Run("time window", func(t *testing.T) {
		recent, err := repo.QueryLLMEvents(ctx, QueryOpts{From: time.Now().Add(-time.Hour)})
		if err != nil || len(recent) != 4 {
			t.Fatalf("events in the last hour = %d (%v), want 4", len(recent), err)
		}
		future, _ := repo.QueryLLMEvents(ctx, QueryOpts{From: time.Now().Add(time.Hour)})
		if len(future) != 0 {
			t.Fatalf("events from the future = %d", len(future))
		}
	})

	t.Run("get by id", func(t *testing.T) {
		all, _ := repo.QueryLLMEvents(ctx, QueryOpts{})
		oldest := all[len(all)-1]
		got, err := repo.GetLLMEvent(ctx, oldest.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.RequestBody != "[user]\nplan" || got.ResponseBody != "{}" || !got.Success || got.StopReason != "end" {
			t.Fatalf("unexpected event: %+v", got)
		}
		missing, err := repo.GetLLMEvent(ctx, 9999)
		if err != nil || missing != nil {
			t.Fatalf("missing event = %v, %v", missing, err)
		}
	})

	t.Run("usage by purpose", func(t *testing.T) {
		stats, err := repo.LLMUsageByPurpose(ctx)
		if err != nil {
			t.Fatalf("usage: %v", err)
		}
		if len(stats) != 2 || stats[0].Purpose != "study-plan" {
			t.Fatalf("unexpected stats: %+v", stats)
		}
		if stats[0].Calls != 3 || stats[0].InputTokens != 1500 || stats[0].OutputTokens != 500 || stats[0].AvgLatencyMs != 110 {
			t.Fatalf("unexpected study-plan stats: %+v", stats[0])
		}
	})

	t.Run("usage by model counts successes", func(t *testing.T) {
		usage, err := repo.LLMUsageByModel(ctx)
		if err != nil {
			t.Fatalf("usage: %v", err)
		}
		if len(usage) != 2 || usage[0].Model != "gpt-4o-mini" || usage[0].Calls != 2 {
			t.Fatalf("unexpected usage: %+v", usage)
		}
	})
}
