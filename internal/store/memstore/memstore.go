// Package memstore is a map-backed implementation of the catalog and study
// plan repositories. It is safe for concurrent use and keeps no state on disk.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/examprep/internal/catalog"
	"github.com/abhisek/examprep/internal/studyplan"
)

// Store holds topics and plans in memory.
type Store struct {
	mu     sync.RWMutex
	seq    int64
	topics map[string]*catalog.Topic
	plans  map[string]*studyplan.StudyPlan
	now    func() time.Time
}

func New() *Store {
	return &Store{
		topics: make(map[string]*catalog.Topic),
		plans:  make(map[string]*studyplan.StudyPlan),
		now:    time.Now,
	}
}

// Topics returns the store as a catalog.Repo.
func (s *Store) Topics() catalog.Repo { return topicRepo{s} }

// Plans returns the store as a studyplan.Repo.
func (s *Store) Plans() studyplan.Repo { return planRepo{s} }

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

type topicRepo struct{ s *Store }

func (r topicRepo) Insert(_ context.Context, t *catalog.Topic) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, exists := r.s.topics[t.ID]; exists {
		return &DuplicateError{Kind: "topic", ID: t.ID}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.s.now()
	}
	t.Seq = r.s.nextSeq()
	cp := *t
	r.s.topics[t.ID] = &cp
	return nil
}

func (r topicRepo) Find(_ context.Context, f catalog.Filter) ([]catalog.Topic, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []catalog.Topic
	for _, t := range r.s.topics {
		if f.SyllabusID != "" && t.SyllabusID != f.SyllabusID {
			continue
		}
		if f.Subject != "" && t.Subject != f.Subject {
			continue
		}
		if f.IDs != nil && !slices.Contains(f.IDs, t.ID) {
			continue
		}
		out = append(out, *t)
	}
	slices.SortFunc(out, func(a, b catalog.Topic) int { return cmp.Compare(a.Seq, b.Seq) })
	return out, nil
}

func (r topicRepo) FindByID(_ context.Context, id string) (*catalog.Topic, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.topics[id]
	if !ok {
		return nil, catalog.ErrTopicNotFound
	}
	cp := *t
	return &cp, nil
}

func (r topicRepo) SetDifficulty(_ context.Context, id string, d catalog.Difficulty) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.topics[id]
	if !ok {
		return catalog.ErrTopicNotFound
	}
	if t.Difficulty == "" {
		t.Difficulty = d
	}
	return nil
}

type planRepo struct{ s *Store }

func (r planRepo) Insert(_ context.Context, p *studyplan.StudyPlan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := r.s.plans[p.ID]; exists {
		return &DuplicateError{Kind: "study plan", ID: p.ID}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.s.now()
	}
	p.Seq = r.s.nextSeq()
	p.Version = 1
	r.s.plans[p.ID] = p.Clone()
	return nil
}

func (r planRepo) Latest(_ context.Context, userID string) (*studyplan.StudyPlan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var latest *studyplan.StudyPlan
	for _, p := range r.s.plans {
		if p.UserID != userID {
			continue
		}
		if latest == nil || p.Seq > latest.Seq {
			latest = p
		}
	}
	if latest == nil {
		return nil, studyplan.ErrPlanNotFound
	}
	return latest.Clone(), nil
}

func (r planRepo) FindByID(_ context.Context, id string) (*studyplan.StudyPlan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.plans[id]
	if !ok {
		return nil, studyplan.ErrPlanNotFound
	}
	return p.Clone(), nil
}

func (r planRepo) Update(_ context.Context, p *studyplan.StudyPlan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.plans[p.ID]
	if !ok {
		return studyplan.ErrPlanNotFound
	}
	if cur.Version != p.Version {
		return studyplan.ErrVersionConflict
	}
	p.Version++
	r.s.plans[p.ID] = p.Clone()
	return nil
}

func (r planRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.plans[id]; !ok {
		return studyplan.ErrPlanNotFound
	}
	delete(r.s.plans, id)
	return nil
}

// PlanCount returns the number of stored plans across all users.
func (s *Store) PlanCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.plans)
}

// DuplicateError is returned when inserting an id that already exists.
type DuplicateError struct {
	Kind string
	ID   string
}

func (e *DuplicateError) Error() string {
	return e.Kind + " " + e.ID + " already exists"
}
