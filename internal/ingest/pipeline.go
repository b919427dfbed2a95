// Package ingest turns a parsed syllabus into catalog topics, stored
// vectors and a first study plan for the uploading user.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/abhisek/examprep/internal/catalog"
	"github.com/abhisek/examprep/internal/llm"
	"github.com/abhisek/examprep/internal/logger"
	"github.com/abhisek/examprep/internal/planformat"
	"github.com/abhisek/examprep/internal/studyplan"
	"github.com/abhisek/examprep/internal/synthesis"
	"github.com/abhisek/examprep/internal/validate"
	"github.com/abhisek/examprep/internal/vectorindex"
)

type Synthesizer interface {
	Synthesize(ctx context.Context, topics []string, class, subject string, opts synthesis.Options) (*synthesis.Result, error)
}

// PlanCreator stores a new plan for a user.
type PlanCreator interface {
	Create(ctx context.Context, userID, syllabusID string, draft studyplan.Draft) (*studyplan.StudyPlan, error)
}

type Config struct {
	BatchSize int
}

// Report summarizes one ingestion.
type Report struct {
	UserID     string `json:"userId"`
	SyllabusID string `json:"syllabusId"`

	TopicIDs      []string `json:"topicIds"`
	TopicsCreated int      `json:"topicsCreated"`
	TopicsReused  int      `json:"topicsReused"`

	VectorsUpserted []string `json:"vectorsUpserted"`
	VectorsMissing  []string `json:"vectorsMissing"`
	FailedBatches   int      `json:"failedBatches"`
	SkippedItems    int      `json:"skippedItems"`

	SynthesisSuccess bool   `json:"synthesisSuccess"`
	SynthesisError   string `json:"synthesisError,omitempty"`

	PlanID               string `json:"planId"`
	PlanTopics           int    `json:"planTopics"`
	DifficultyBackfilled int    `json:"difficultyBackfilled"`

	failed []vectorindex.BatchResult
}

type Pipeline struct {
	topics      catalog.Repo
	index       vectorindex.Index
	synthesizer Synthesizer
	formatter   *planformat.Formatter
	plans       PlanCreator
	cfg         Config
	log         *logger.Logger
}

func New(topics catalog.Repo, index vectorindex.Index, synth Synthesizer, formatter *planformat.Formatter,
	plans PlanCreator, cfg Config, log *logger.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = vectorindex.DefaultBatchSize
	}
	return &Pipeline{
		topics:      topics,
		index:       index,
		synthesizer: synth,
		formatter:   formatter,
		plans:       plans,
		cfg:         cfg,
		log:         logger.OrNop(log).With("component", "ingest.Pipeline"),
	}
}

// Ingest stores doc's topics and vectors, synthesizes a plan and creates it
// for userID. Failed vector batches and unrecoverable model output are
// recorded in the report; they do not fail the ingestion.
func (p *Pipeline) Ingest(ctx context.Context, userID string, doc *ParsedDocument, opts synthesis.Options) (*Report, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}
	if err := validate.Struct(doc); err != nil {
		return nil, err
	}
	if doc.SyllabusID == "" {
		doc.SyllabusID = uuid.NewString()
	}
	rep := &Report{UserID: userID, SyllabusID: doc.SyllabusID}
	log := p.log.With("user_id", userID, "syllabus_id", doc.SyllabusID)
	ctx = llm.WithLogFields(ctx, "user_id", userID, "syllabus_id", doc.SyllabusID)

	vectors := p.vectors(doc, rep)

	topics, err := p.upsertTopics(ctx, doc, vectors, rep)
	if err != nil {
		return nil, err
	}

	results := slices.Collect(vectorindex.UpsertBatches(ctx, p.index, vectors, p.cfg.BatchSize))
	p.recordBatches(rep, results)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names := make([]string, len(topics))
	for i, t := range topics {
		names[i] = t.Name
	}
	res, err := p.synthesizer.Synthesize(ctx, names, doc.Class, doc.Subject, opts)
	if err != nil {
		return nil, fmt.Errorf("synthesize study plan: %w", err)
	}
	rep.SynthesisSuccess = res.Success
	rep.SynthesisError = res.Error

	var draft studyplan.Draft
	if res.Success {
		draft = p.formatter.Format(res, topics)
	} else {
		log.Warn("study plan synthesis failed; creating plan from the catalog", "error", res.Error)
		draft = studyplan.Draft{
			StudyTips: res.StudyTips,
			Metadata: studyplan.Metadata{
				KnowledgeBaseReferences: res.Metadata.KnowledgeBaseReferences,
				GeneratedAt:             res.Metadata.GeneratedAt,
			},
		}
	}

	plan, err := p.plans.Create(ctx, userID, doc.SyllabusID, draft)
	if err != nil {
		return nil, fmt.Errorf("create study plan: %w", err)
	}
	rep.PlanID = plan.ID
	rep.PlanTopics = len(plan.Topics)

	if res.Success {
		rep.DifficultyBackfilled = p.backfillDifficulty(ctx, res, topics)
	}

	log.Info("ingested syllabus",
		"topics", len(rep.TopicIDs),
		"vectors_upserted", len(rep.VectorsUpserted),
		"vectors_missing", len(rep.VectorsMissing),
		"plan_id", rep.PlanID,
		"synthesis_success", rep.SynthesisSuccess,
	)
	return rep, nil
}

// RetryFailed re-submits the vector batches that failed during Ingest and
// updates rep.
func (p *Pipeline) RetryFailed(ctx context.Context, rep *Report) error {
	if len(rep.failed) == 0 {
		return nil
	}
	retried := slices.Collect(vectorindex.RetryFailed(ctx, p.index, rep.failed))
	rep.VectorsMissing = nil
	rep.FailedBatches = 0
	rep.failed = nil
	p.recordBatches(rep, retried)
	if rep.FailedBatches > 0 {
		return fmt.Errorf("%d vector batches still failing", rep.FailedBatches)
	}
	return nil
}

func (p *Pipeline) recordBatches(rep *Report, results []vectorindex.BatchResult) {
	upserted, failed := vectorindex.Split(results)
	rep.VectorsUpserted = append(rep.VectorsUpserted, upserted...)
	for _, b := range failed {
		p.log.Warn("vector batch failed", "batch", b.Index, "size", len(b.IDs), "error", b.Err)
		rep.VectorsMissing = append(rep.VectorsMissing, b.IDs...)
	}
	rep.FailedBatches += len(failed)
	rep.failed = append(rep.failed, failed...)
}

// vectors converts doc's items. Items without an embedding are skipped.
func (p *Pipeline) vectors(doc *ParsedDocument, rep *Report) []vectorindex.Vector {
	out := make([]vectorindex.Vector, 0, len(doc.Items))
	for _, it := range doc.Items {
		if len(it.Embedding) == 0 {
			rep.SkippedItems++
			p.log.Info("skipping item without embedding", "item_id", it.ID, "topic", it.Topic)
			continue
		}
		id := it.ID
		if id == "" {
			id = uuid.NewString()
		}
		out = append(out, vectorindex.Vector{
			ID:     id,
			Values: it.Embedding,
			Metadata: vectorindex.Metadata{
				Class:       doc.Class,
				Subject:     doc.Subject,
				Topic:       it.Topic,
				ChunkIndex:  it.ChunkIndex,
				TotalChunks: it.TotalChunks,
				Text:        it.Text,
				ContentType: it.ContentType,
			},
		})
	}
	return out
}

// upsertTopics reuses catalog topics of the syllabus with the same
// normalized name and inserts the rest. The result follows doc order
// without duplicates.
func (p *Pipeline) upsertTopics(ctx context.Context, doc *ParsedDocument, vectors []vectorindex.Vector, rep *Report) ([]catalog.Topic, error) {
	existing, err := p.topics.Find(ctx, catalog.Filter{SyllabusID: doc.SyllabusID})
	if err != nil {
		return nil, fmt.Errorf("load syllabus topics: %w", err)
	}
	byName := make(map[string]catalog.Topic, len(existing))
	for _, t := range existing {
		key := catalog.NormalizeName(t.Name)
		if _, dup := byName[key]; !dup {
			byName[key] = t
		}
	}

	firstVector := make(map[string]string)
	for _, v := range vectors {
		key := catalog.NormalizeName(v.Metadata.Topic)
		if _, ok := firstVector[key]; !ok {
			firstVector[key] = v.ID
		}
	}

	seen := make(map[string]bool)
	var out []catalog.Topic
	for _, in := range doc.Topics {
		key := catalog.NormalizeName(in.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		d, _ := catalog.ParseDifficulty(in.Difficulty)

		if t, ok := byName[key]; ok {
			if t.Difficulty == "" && d != "" {
				if err := p.topics.SetDifficulty(ctx, t.ID, d); err != nil {
					return nil, fmt.Errorf("backfill difficulty of %s: %w", t.ID, err)
				}
				t.Difficulty = d
			}
			rep.TopicsReused++
			out = append(out, t)
			continue
		}

		t := &catalog.Topic{
			ID:               in.ID,
			Subject:          doc.Subject,
			Name:             in.Name,
			Difficulty:       d,
			SyllabusID:       doc.SyllabusID,
			ContentVectorRef: firstVector[key],
		}
		if err := p.topics.Insert(ctx, t); err != nil {
			return nil, fmt.Errorf("insert topic %q: %w", in.Name, err)
		}
		rep.TopicsCreated++
		out = append(out, *t)
	}
	rep.TopicIDs = catalog.IDs(out)
	return out, nil
}

// backfillDifficulty records generated difficulty grades for topics whose
// difficulty is still unknown. Failures are logged.
func (p *Pipeline) backfillDifficulty(ctx context.Context, res *synthesis.Result, topics []catalog.Topic) int {
	unknown := make(map[string]catalog.Topic)
	for _, t := range topics {
		if t.Difficulty == "" {
			unknown[catalog.NormalizeName(t.Name)] = t
		}
	}

	n := 0
	for _, key := range synthesis.DayKeys(res.DailySchedule) {
		for _, item := range res.DailySchedule[key] {
			name := catalog.NormalizeName(item.TopicName)
			t, ok := unknown[name]
			if !ok {
				continue
			}
			d, ok := catalog.ParseDifficulty(item.Difficulty)
			if !ok {
				continue
			}
			delete(unknown, name)
			if err := p.topics.SetDifficulty(ctx, t.ID, d); err != nil {
				p.log.Warn("difficulty backfill failed", "topic_id", t.ID, "error", err)
				continue
			}
			n++
		}
	}
	return n
}
