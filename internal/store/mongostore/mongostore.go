// Package mongostore keeps the topic catalog and study plans in MongoDB.
// Plans are single documents with their entries embedded, so every plan
// write is atomic without a transaction.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/abhisek/examprep/internal/catalog"
	"github.com/abhisek/examprep/internal/logger"
	"github.com/abhisek/examprep/internal/studyplan"
)

const (
	topicsCollection   = "topics"
	plansCollection    = "study_plans"
	countersCollection = "counters"

	sequenceCounterID = "global_sequence"
)

// Store is a MongoDB-backed catalog and study plan store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *logger.Logger
}

// Connect dials uri, verifies the server is reachable and ensures the
// indexes the repositories rely on.
func Connect(ctx context.Context, uri, database string, log *logger.Logger) (*Store, error) {
	log = logger.OrNop(log).With("component", "mongostore")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb is not reachable: %w", err)
	}

	s := &Store{client: client, db: client.Database(database), log: log}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	log.Info("connected to mongodb", "database", database)
	return s, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Topics returns the catalog repository.
func (s *Store) Topics() catalog.Repo {
	return &topicRepo{coll: s.db.Collection(topicsCollection), seq: s.nextSeq}
}

// Plans returns the study plan repository.
func (s *Store) Plans() studyplan.Repo {
	return &planRepo{coll: s.db.Collection(plansCollection), seq: s.nextSeq}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(topicsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "syllabus_id", Value: 1}, {Key: "normalized_name", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create topic indexes: %w", err)
	}
	_, err = s.db.Collection(plansCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "seq", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create plan indexes: %w", err)
	}
	return nil
}

// nextSeq increments the shared counter document and returns the new value.
func (s *Store) nextSeq(ctx context.Context) (int64, error) {
	var doc struct {
		Value int64 `bson:"value"`
	}
	err := s.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": sequenceCounterID},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return doc.Value, nil
}

type seqFunc func(ctx context.Context) (int64, error)

type topicDoc struct {
	ID               string    `bson:"_id"`
	Seq              int64     `bson:"seq"`
	Subject          string    `bson:"subject"`
	Name             string    `bson:"name"`
	NormalizedName   string    `bson:"normalized_name"`
	Difficulty       string    `bson:"difficulty"`
	SyllabusID       string    `bson:"syllabus_id"`
	ContentVectorRef string    `bson:"content_vector_ref,omitempty"`
	CreatedAt        time.Time `bson:"created_at"`
}

func toTopicDoc(t *catalog.Topic) topicDoc {
	return topicDoc{
		ID:               t.ID,
		Seq:              t.Seq,
		Subject:          t.Subject,
		Name:             t.Name,
		NormalizedName:   catalog.NormalizeName(t.Name),
		Difficulty:       string(t.Difficulty),
		SyllabusID:       t.SyllabusID,
		ContentVectorRef: t.ContentVectorRef,
		CreatedAt:        t.CreatedAt,
	}
}

func (d topicDoc) topic() catalog.Topic {
	return catalog.Topic{
		ID:               d.ID,
		Seq:              d.Seq,
		Subject:          d.Subject,
		Name:             d.Name,
		Difficulty:       catalog.Difficulty(d.Difficulty),
		SyllabusID:       d.SyllabusID,
		ContentVectorRef: d.ContentVectorRef,
		CreatedAt:        d.CreatedAt,
	}
}

// topicFilter translates f into a query document. ok is false when f can
// match nothing.
func topicFilter(f catalog.Filter) (filter bson.D, ok bool) {
	filter = bson.D{}
	if f.IDs != nil {
		if len(f.IDs) == 0 {
			return nil, false
		}
		filter = append(filter, bson.E{Key: "_id", Value: bson.M{"$in": f.IDs}})
	}
	if f.SyllabusID != "" {
		filter = append(filter, bson.E{Key: "syllabus_id", Value: f.SyllabusID})
	}
	if f.Subject != "" {
		filter = append(filter, bson.E{Key: "subject", Value: f.Subject})
	}
	return filter, true
}

type topicRepo struct {
	coll *mongo.Collection
	seq  seqFunc
}

func (r *topicRepo) Insert(ctx context.Context, t *catalog.Topic) error {
	seq, err := r.seq(ctx)
	if err != nil {
		return err
	}
	doc := toTopicDoc(t)
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.Seq = seq

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert topic: %w", err)
	}
	t.ID, t.Seq, t.CreatedAt = doc.ID, doc.Seq, doc.CreatedAt
	return nil
}

func (r *topicRepo) Find(ctx context.Context, f catalog.Filter) ([]catalog.Topic, error) {
	filter, ok := topicFilter(f)
	if !ok {
		return nil, nil
	}
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find topics: %w", err)
	}
	var docs []topicDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	out := make([]catalog.Topic, len(docs))
	for i, d := range docs {
		out[i] = d.topic()
	}
	return out, nil
}

func (r *topicRepo) FindByID(ctx context.Context, id string) (*catalog.Topic, error) {
	var doc topicDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, catalog.ErrTopicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find topic: %w", err)
	}
	t := doc.topic()
	return &t, nil
}

func (r *topicRepo) SetDifficulty(ctx context.Context, id string, d catalog.Difficulty) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "difficulty": ""},
		bson.M{"$set": bson.M{"difficulty": string(d)}},
	)
	if err != nil {
		return fmt.Errorf("set topic difficulty: %w", err)
	}
	if res.MatchedCount == 0 {
		// Either the topic is missing or its difficulty is already known.
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

type planDoc struct {
	ID               string                     `bson:"_id"`
	Seq              int64                      `bson:"seq"`
	Version          int64                      `bson:"version"`
	UserID           string                     `bson:"user_id"`
	SyllabusID       string                     `bson:"syllabus_id"`
	Topics           []studyplan.TopicEntry     `bson:"topics"`
	Schedule         studyplan.Schedule         `bson:"schedule"`
	StudyTips        []string                   `bson:"study_tips"`
	RevisionSchedule studyplan.RevisionSchedule `bson:"revision_schedule"`
	Metadata         studyplan.Metadata         `bson:"metadata"`
	CreatedAt        time.Time                  `bson:"created_at"`
}

func toPlanDoc(p *studyplan.StudyPlan) planDoc {
	topics := p.Topics
	if topics == nil {
		topics = []studyplan.TopicEntry{}
	}
	return planDoc{
		ID:               p.ID,
		Seq:              p.Seq,
		Version:          p.Version,
		UserID:           p.UserID,
		SyllabusID:       p.SyllabusID,
		Topics:           topics,
		Schedule:         p.Schedule,
		StudyTips:        p.StudyTips,
		RevisionSchedule: p.RevisionSchedule,
		Metadata:         p.Metadata,
		CreatedAt:        p.CreatedAt,
	}
}

func (d planDoc) plan() *studyplan.StudyPlan {
	p := &studyplan.StudyPlan{
		ID:               d.ID,
		Seq:              d.Seq,
		Version:          d.Version,
		UserID:           d.UserID,
		SyllabusID:       d.SyllabusID,
		Topics:           d.Topics,
		Schedule:         d.Schedule,
		StudyTips:        d.StudyTips,
		RevisionSchedule: d.RevisionSchedule,
		Metadata:         d.Metadata,
		CreatedAt:        d.CreatedAt,
	}
	if p.Topics == nil {
		p.Topics = []studyplan.TopicEntry{}
	}
	return p
}

type planRepo struct {
	coll *mongo.Collection
	seq  seqFunc
}

func (r *planRepo) Insert(ctx context.Context, p *studyplan.StudyPlan) error {
	seq, err := r.seq(ctx)
	if err != nil {
		return err
	}
	doc := toPlanDoc(p)
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.Seq, doc.Version = seq, 1

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert study plan: %w", err)
	}
	p.ID, p.Seq, p.Version, p.CreatedAt = doc.ID, doc.Seq, doc.Version, doc.CreatedAt
	return nil
}

func (r *planRepo) Latest(ctx context.Context, userID string) (*studyplan.StudyPlan, error) {
	return r.findOne(ctx, bson.M{"user_id": userID},
		options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}}))
}

func (r *planRepo) FindByID(ctx context.Context, id string) (*studyplan.StudyPlan, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *planRepo) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*studyplan.StudyPlan, error) {
	var doc planDoc
	err := r.coll.FindOne(ctx, filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, studyplan.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find study plan: %w", err)
	}
	return doc.plan(), nil
}

func (r *planRepo) Update(ctx context.Context, p *studyplan.StudyPlan) error {
	doc := toPlanDoc(p)
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": p.ID, "version": p.Version},
		bson.M{"$set": bson.M{
			"version":           p.Version + 1,
			"syllabus_id":       doc.SyllabusID,
			"topics":            doc.Topics,
			"schedule":          doc.Schedule,
			"study_tips":        doc.StudyTips,
			"revision_schedule": doc.RevisionSchedule,
			"metadata":          doc.Metadata,
		}},
	)
	if err != nil {
		return fmt.Errorf("update study plan: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"_id": p.ID})
		if err != nil {
			return fmt.Errorf("update study plan: %w", err)
		}
		if n == 0 {
			return studyplan.ErrPlanNotFound
		}
		return studyplan.ErrVersionConflict
	}
	p.Version++
	return nil
}

func (r *planRepo) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete study plan: %w", err)
	}
	if res.DeletedCount == 0 {
		return studyplan.ErrPlanNotFound
	}
	return nil
}
