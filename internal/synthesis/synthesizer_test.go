package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/abhisek/examprep/internal/llm"
	"github.com/abhisek/examprep/internal/retrieval"
	"github.com/abhisek/examprep/internal/validate"
)

type stubRetriever struct {
	chunks []retrieval.KnowledgeChunk
	err    error
	got    retrieval.Filters
}

func (s *stubRetriever) Retrieve(_ context.Context, _ []string, f retrieval.Filters) ([]retrieval.KnowledgeChunk, error) {
	s.got = f
	return s.chunks, s.err
}

func makeChunks(n int) []retrieval.KnowledgeChunk {
	out := make([]retrieval.KnowledgeChunk, n)
	for i := range out {
		out[i] = retrieval.KnowledgeChunk{
			ID:             fmt.Sprintf("chunk-%d", i),
			TopicName:      "Optics",
			Content:        strings.Repeat("light ", 100),
			ChunkIndex:     i,
			TotalChunks:    n,
			RelevanceScore: 1 - float64(i)/100,
		}
	}
	return out
}

const validPlan = `{
  "dailySchedule": {
    "day1": [{"topicName": "Optics", "subject": "Physics", "time": "1h 30m", "difficulty": "hard",
              "learningObjectives": ["Ray diagrams"], "resources": ["NCERT ch 9"]}],
    "day2": [{"topicName": "Waves", "time": "45m"}]
  },
  "studyTips": ["Practice numericals daily"],
  "revisionSchedule": {"description": "Revise on the last day", "days": [2]}
}`

func TestSynthesize(t *testing.T) {
	mock := llm.NewMockProvider(llm.TextResponse(validPlan))
	ret := &stubRetriever{chunks: makeChunks(12)}
	s := New(ret, mock, Config{}, nil)

	res, err := s.Synthesize(t.Context(), []string{"Optics", "Waves"}, "10", "Physics", Options{StudyHoursPerDay: 3, TotalDays: 14})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if ret.got.Class != "10" || ret.got.Subject != "Physics" {
		t.Errorf("retriever filters = %+v", ret.got)
	}

	if res.Metadata.TotalDays != 2 {
		t.Errorf("TotalDays = %d, want 2", res.Metadata.TotalDays)
	}
	if res.Metadata.KnowledgeBaseReferences != 12 {
		t.Errorf("KnowledgeBaseReferences = %d, want 12", res.Metadata.KnowledgeBaseReferences)
	}
	if res.Metadata.TotalTopics != 2 || res.Metadata.StudyHoursPerDay != 3 {
		t.Errorf("metadata = %+v", res.Metadata)
	}
	if res.Metadata.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}
	if len(res.RetrievedKnowledge) != 10 {
		t.Errorf("kept %d chunks, want 10", len(res.RetrievedKnowledge))
	}
	if got := res.DailySchedule["day1"][0]; got.TimeText != "1h 30m" || got.Difficulty != "hard" {
		t.Errorf("day1 item = %+v", got)
	}
	if len(res.StudyTips) != 1 || res.RevisionSchedule.Days[0] != 2 {
		t.Errorf("tips = %v, revision = %+v", res.StudyTips, res.RevisionSchedule)
	}

	if mock.CallCount() != 1 {
		t.Fatalf("provider called %d times, want 1", mock.CallCount())
	}
	req := mock.Calls[0]
	if !req.JSONMode || req.Schema != nil {
		t.Errorf("request should use JSON mode without schema: %+v", req)
	}
	if req.Temperature == nil || *req.Temperature != 0.3 || req.MaxTokens != 4000 {
		t.Errorf("temperature = %v, max tokens = %d", req.Temperature, req.MaxTokens)
	}
	msg := req.Messages[0].Content
	for _, want := range []string{"Class: 10", "Subject: Physics", "Study hours per day: 3", "Total days: 14", "1. Optics", "Topic: Optics (chunk 1/12"} {
		if !strings.Contains(msg, want) {
			t.Errorf("user message missing %q", want)
		}
	}
	if strings.Contains(msg, "[31]") {
		t.Error("context quotes more than 30 chunks")
	}
}

func TestSynthesizeWithoutMaterial(t *testing.T) {
	mock := llm.NewMockProvider(llm.TextResponse(validPlan))
	s := New(&stubRetriever{}, mock, Config{}, nil)

	res, err := s.Synthesize(t.Context(), []string{"Optics"}, "10", "Physics", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success without material, got %q", res.Error)
	}
	if res.Metadata.KnowledgeBaseReferences != 0 || len(res.RetrievedKnowledge) != 0 {
		t.Errorf("unexpected references: %+v", res.Metadata)
	}
	if !strings.Contains(mock.Calls[0].Messages[0].Content, noMaterialContext) {
		t.Error("prompt missing the no-material context")
	}
	if res.Metadata.StudyHoursPerDay != DefaultOptions().StudyHoursPerDay {
		t.Errorf("default hours not applied: %v", res.Metadata.StudyHoursPerDay)
	}
}

func TestSynthesizeRepairsOutput(t *testing.T) {
	raw := "```json\n{\n  \"dailySchedule\": {\"day1\": [{\"topicName\": \"Optics\", \"time\": \"1h\",},],},\n  \"studyTips\": [\"Sleep well\",],\n}\n```"
	s := New(&stubRetriever{}, llm.NewMockProvider(llm.TextResponse(raw)), Config{}, nil)

	res, err := s.Synthesize(t.Context(), []string{"Optics"}, "10", "Physics", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("repair failed: %s", res.Error)
	}
	if res.DailySchedule["day1"][0].TopicName != "Optics" || res.StudyTips[0] != "Sleep well" {
		t.Errorf("result = %+v", res)
	}
}

func TestSynthesizeLooselyTypedItems(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, res *Result)
	}{
		{
			name: "numeric time",
			raw:  `{"dailySchedule":{"day1":[{"topicName":"Optics","time":90}]}}`,
			check: func(t *testing.T, res *Result) {
				if got := res.DailySchedule["day1"][0].TimeText; got != "90" {
					t.Errorf("time = %q, want 90", got)
				}
			},
		},
		{
			name: "null objectives",
			raw:  `{"dailySchedule":{"day1":[{"topicName":"Optics","learningObjectives":null,"resources":"NCERT ch 9"}]}}`,
			check: func(t *testing.T, res *Result) {
				it := res.DailySchedule["day1"][0]
				if it.LearningObjectives == nil || len(it.LearningObjectives) != 0 {
					t.Errorf("objectives = %#v, want empty", it.LearningObjectives)
				}
				if len(it.Resources) != 1 || it.Resources[0] != "NCERT ch 9" {
					t.Errorf("resources = %v", it.Resources)
				}
			},
		},
		{
			name: "revision days as text",
			raw:  `{"dailySchedule":{"day1":[{"topicName":"Optics"}]},"revisionSchedule":{"days":["day 5", 7, "9", "soon"]}}`,
			check: func(t *testing.T, res *Result) {
				want := []int{5, 7, 9}
				got := res.RevisionSchedule.Days
				if fmt.Sprint(got) != fmt.Sprint(want) {
					t.Errorf("revision days = %v, want %v", got, want)
				}
			},
		},
		{
			name: "items without topic dropped",
			raw:  `{"dailySchedule":{"day1":[{"topicName":"  "},{"time":"1h"},"Optics",{"topicName":"Waves"}],"day2":[]}}`,
			check: func(t *testing.T, res *Result) {
				day1 := res.DailySchedule["day1"]
				if len(day1) != 1 || day1[0].TopicName != "Waves" {
					t.Errorf("day1 = %+v", day1)
				}
				if res.Metadata.TotalDays != 2 {
					t.Errorf("TotalDays = %d, want 2", res.Metadata.TotalDays)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&stubRetriever{}, llm.NewMockProvider(llm.TextResponse(tt.raw)), Config{}, nil)
			res, err := s.Synthesize(t.Context(), []string{"Optics"}, "10", "Physics", Options{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.Success {
				t.Fatalf("expected success, got %q", res.Error)
			}
			tt.check(t, res)
		})
	}
}

func TestSynthesizeZeroTemperature(t *testing.T) {
	mock := llm.NewMockProvider(llm.TextResponse(validPlan))
	s := New(&stubRetriever{}, mock, Config{Temperature: llm.Float(0)}, nil)

	if _, err := s.Synthesize(t.Context(), []string{"Optics"}, "10", "Physics", Options{}); err != nil {
		t.Fatal(err)
	}
	if temp := mock.Calls[0].Temperature; temp == nil || *temp != 0 {
		t.Errorf("temperature = %v, want explicit 0", temp)
	}
}

func TestSynthesizeFailureEnvelope(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"prose", "I'm sorry, I can't create that plan. " + strings.Repeat("x", 600)},
		{"schedule not an object", `{"dailySchedule": [1, 2]}`},
		{"missing schedule", `{"studyTips": ["a"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&stubRetriever{chunks: makeChunks(3)}, llm.NewMockProvider(llm.TextResponse(tt.raw)), Config{}, nil)
			res, err := s.Synthesize(t.Context(), []string{"Optics"}, "10", "Physics", Options{})
			if err != nil {
				t.Fatalf("unparseable output must not be a Go error: %v", err)
			}
			if res.Success {
				t.Fatal("expected failure envelope")
			}
			if res.Error == "" || res.Metadata.Error != res.Error {
				t.Errorf("error fields = %q / %q", res.Error, res.Metadata.Error)
			}
			if len(res.DailySchedule) != 0 || res.DailySchedule == nil {
				t.Errorf("schedule = %#v, want empty map", res.DailySchedule)
			}
			if len(res.StudyTips) != 1 || res.StudyTips[0] != fallbackStudyTip {
				t.Errorf("tips = %v", res.StudyTips)
			}
			if len([]rune(res.RawResponsePrefix)) > rawPrefixLen || !strings.HasPrefix(tt.raw, res.RawResponsePrefix) {
				t.Errorf("raw prefix = %q", res.RawResponsePrefix)
			}
			if res.Metadata.KnowledgeBaseReferences != 3 {
				t.Errorf("metadata = %+v", res.Metadata)
			}
		})
	}
}

func TestSynthesizeErrors(t *testing.T) {
	t.Run("provider", func(t *testing.T) {
		mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrRateLimit{Err: errors.New("429")}})
		_, err := New(&stubRetriever{}, mock, Config{}, nil).Synthesize(t.Context(), []string{"Optics"}, "10", "Physics", Options{})
		var rl *llm.ErrRateLimit
		if !errors.As(err, &rl) {
			t.Errorf("err = %v, want rate limit", err)
		}
	})

	t.Run("retriever", func(t *testing.T) {
		mock := llm.NewMockProvider()
		_, err := New(&stubRetriever{err: context.DeadlineExceeded}, mock, Config{}, nil).Synthesize(t.Context(), []string{"Optics"}, "10", "Physics", Options{})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v", err)
		}
		if mock.CallCount() != 0 {
			t.Error("provider called after retrieval failed")
		}
	})

	t.Run("options", func(t *testing.T) {
		bad := []Options{
			{StudyHoursPerDay: 25},
			{TotalDays: 400},
			{StudyHoursPerDay: -1},
			{Difficulty: "extreme"},
		}
		for _, o := range bad {
			mock := llm.NewMockProvider()
			_, err := New(&stubRetriever{}, mock, Config{}, nil).Synthesize(t.Context(), []string{"Optics"}, "10", "Physics", o)
			var verr *validate.Error
			if !errors.As(err, &verr) {
				t.Errorf("options %+v: err = %v, want validation error", o, err)
			}
			if mock.CallCount() != 0 {
				t.Errorf("options %+v: provider called", o)
			}
		}
	})
}

func TestBuildContextBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxContextChars = 1000

	got := buildContext(makeChunks(30), cfg)
	if len(got) > cfg.MaxContextChars {
		t.Errorf("context is %d chars, budget %d", len(got), cfg.MaxContextChars)
	}
	if !strings.Contains(got, "[1] Topic: Optics") {
		t.Errorf("best chunk not quoted: %q", got)
	}
	if strings.Contains(got, "[3]") {
		t.Error("budget exceeded by later chunks")
	}

	cfg.MaxContextChars = 50
	if got := buildContext(makeChunks(1), cfg); got == "" || len([]rune(got)) > 53 {
		t.Errorf("tiny budget context = %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("  héllo wörld ", 5); got != "héllo..." {
		t.Errorf("truncateRunes = %q", got)
	}
	if got := truncateRunes("short", 10); got != "short" {
		t.Errorf("truncateRunes = %q", got)
	}
}

func TestSynthesizeTruncatedOutput(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrMaxTokensExceeded{Content: []byte(`{"dailySchedule": {"day1": [`)}})
	res, err := New(&stubRetriever{}, mock, Config{}, nil).Synthesize(t.Context(), []string{"Optics"}, "10", "Physics", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.RawResponsePrefix != `{"dailySchedule": {"day1": [` {
		t.Errorf("result = %+v", res)
	}
}
