package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/abhisek/examprep/internal/catalog"
)

var topicColumns = []string{
	"id", "seq", "subject", "name", "difficulty", "syllabus_id", "content_vector_ref", "created_at",
}

type topicRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *topicRepo) Insert(ctx context.Context, t *catalog.Topic) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return err
	}

	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	q, args := builder().Insert(topicsTable).
		Columns("id", "seq", "subject", "name", "normalized_name", "difficulty", "syllabus_id", "content_vector_ref", "created_at").
		Values(id, seqNum, t.Subject, t.Name, catalog.NormalizeName(t.Name), string(t.Difficulty), t.SyllabusID, t.ContentVectorRef, createdAt).
		Query()
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("save topic: %w", err)
	}

	t.ID, t.Seq, t.CreatedAt = id, seqNum, createdAt
	return nil
}

func (r *topicRepo) Find(ctx context.Context, f catalog.Filter) ([]catalog.Topic, error) {
	if f.IDs != nil && len(f.IDs) == 0 {
		return nil, nil
	}

	var preds []*entsql.Predicate
	if f.SyllabusID != "" {
		preds = append(preds, entsql.EQ("syllabus_id", f.SyllabusID))
	}
	if f.Subject != "" {
		preds = append(preds, entsql.EQ("subject", f.Subject))
	}
	if len(f.IDs) > 0 {
		ids := make([]any, len(f.IDs))
		for i, id := range f.IDs {
			ids[i] = id
		}
		preds = append(preds, entsql.In("id", ids...))
	}

	sel := builder().Select(topicColumns...).
		From(builder().Table(topicsTable)).
		OrderBy("seq")
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}

	q, args := sel.Query()
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var out []catalog.Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *topicRepo) FindByID(ctx context.Context, id string) (*catalog.Topic, error) {
	q, args := builder().Select(topicColumns...).
		From(builder().Table(topicsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	t, err := scanTopic(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrTopicNotFound
	}
	return t, err
}

func (r *topicRepo) SetDifficulty(ctx context.Context, id string, d catalog.Difficulty) error {
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}

	q, args := builder().Update(topicsTable).
		Set("difficulty", string(d)).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("difficulty", ""))).
		Query()
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("set topic difficulty: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTopic(row rowScanner) (*catalog.Topic, error) {
	var (
		t          catalog.Topic
		difficulty string
	)
	err := row.Scan(&t.ID, &t.Seq, &t.Subject, &t.Name, &difficulty, &t.SyllabusID, &t.ContentVectorRef, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan topic: %w", err)
	}
	t.Difficulty = catalog.Difficulty(difficulty)
	return &t, nil
}
