package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/examprep/internal/llm"
	"github.com/abhisek/examprep/internal/logger"
	"github.com/abhisek/examprep/internal/retrieval"
	"github.com/abhisek/examprep/internal/validate"
)

// Retriever supplies reference material for a set of topics.
type Retriever interface {
	Retrieve(ctx context.Context, topicNames []string, f retrieval.Filters) ([]retrieval.KnowledgeChunk, error)
}

// rawPrefixLen is how much of an unparseable response a failed Result keeps.
const rawPrefixLen = 500

type Synthesizer struct {
	retriever Retriever
	provider  llm.Provider
	cfg       Config
	log       *logger.Logger
	now       func() time.Time
}

func New(retriever Retriever, provider llm.Provider, cfg Config, log *logger.Logger) *Synthesizer {
	return &Synthesizer{
		retriever: retriever,
		provider:  provider,
		cfg:       cfg.withDefaults(),
		log:       logger.OrNop(log).With("component", "synthesis.Synthesizer"),
		now:       time.Now,
	}
}

// Synthesize produces a study plan for topics. Output the model gets wrong,
// truncated output included, yields a Result with Success false and a nil
// error. An error means the pipeline itself failed.
func (s *Synthesizer) Synthesize(ctx context.Context, topics []string, class, subject string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid synthesis options: %w", err)
	}

	chunks, err := s.retriever.Retrieve(ctx, topics, retrieval.Filters{Class: class, Subject: subject})
	if err != nil {
		return nil, fmt.Errorf("retrieve knowledge: %w", err)
	}
	if len(chunks) == 0 {
		s.log.Info("no knowledge base material; using curriculum fallback", "class", class, "subject", subject)
	}

	req := llm.Request{
		System: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildUserMessage(topics, class, subject, opts, buildContext(chunks, s.cfg))},
		},
		JSONMode:    true,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}
	meta := Metadata{
		StudyHoursPerDay:        opts.StudyHoursPerDay,
		TotalTopics:             len(topics),
		KnowledgeBaseReferences: len(chunks),
	}

	resp, err := s.provider.Generate(llm.WithPurpose(ctx, PurposeStudyPlan), req)
	var truncated *llm.ErrMaxTokensExceeded
	if errors.As(err, &truncated) {
		meta.GeneratedAt = s.now()
		s.log.Warn("generated study plan was truncated", "max_tokens", s.cfg.MaxTokens)
		return failure(err, truncated.Content, meta), nil
	}
	if err != nil {
		return nil, fmt.Errorf("generate study plan: %w", err)
	}
	meta.GeneratedAt = s.now()

	p, dropped, err := parsePlan(resp.Content)
	if err != nil {
		s.log.Warn("could not parse generated study plan", "error", err, "response_bytes", len(resp.Content))
		return failure(err, resp.Content, meta), nil
	}
	if dropped > 0 {
		s.log.Warn("dropped schedule items without a topic name", "count", dropped)
	}

	meta.TotalDays = len(p.DailySchedule)
	return &Result{
		Success:            true,
		DailySchedule:      p.DailySchedule,
		StudyTips:          p.StudyTips,
		RevisionSchedule:   p.RevisionSchedule,
		Metadata:           meta,
		RetrievedKnowledge: chunks[:min(len(chunks), s.cfg.KeepChunks)],
	}, nil
}

// parsePlan repairs raw into an object, checks its outer shape and decodes
// it. dropped counts schedule items that were skipped.
func parsePlan(raw json.RawMessage) (p *plan, dropped int, err error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("parse response: %w", err)
	}
	if err := llm.ValidateJSON(PlanSchema, obj); err != nil {
		return nil, 0, err
	}
	p, dropped, err = decodePlan(obj)
	if err != nil {
		return nil, 0, fmt.Errorf("decode study plan: %w", err)
	}
	return p, dropped, nil
}

func failure(err error, raw []byte, meta Metadata) *Result {
	prefix := []rune(string(raw))
	if len(prefix) > rawPrefixLen {
		prefix = prefix[:rawPrefixLen]
	}
	meta.Error = err.Error()
	return &Result{
		Success:           false,
		DailySchedule:     map[string][]PlannedItem{},
		StudyTips:         []string{fallbackStudyTip},
		Metadata:          meta,
		Error:             err.Error(),
		RawResponsePrefix: string(prefix),
	}
}
