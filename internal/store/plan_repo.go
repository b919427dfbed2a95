package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/abhisek/examprep/internal/catalog"
	"github.com/abhisek/examprep/internal/studyplan"
)

var planColumns = []string{
	"id", "seq", "user_id", "syllabus_id", "version",
	"schedule", "study_tips", "revision_schedule", "metadata", "created_at",
}

var planTopicColumns = []string{
	"topic_id", "status", "minutes", "formatted_time", "scheduled_day",
	"difficulty", "learning_objectives", "resources", "completed_at",
}

type planRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *planRepo) Insert(ctx context.Context, p *studyplan.StudyPlan) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return err
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	cols, err := encodePlanColumns(p)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	q, args := builder().Insert(plansTable).
		Columns(planColumns...).
		Values(id, seqNum, p.UserID, p.SyllabusID, int64(1),
			cols.schedule, cols.tips, cols.revision, cols.metadata, createdAt).
		Query()
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("save study plan: %w", err)
	}
	if err := insertEntries(ctx, tx, id, p.Topics); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit study plan: %w", err)
	}

	p.ID, p.Seq, p.CreatedAt, p.Version = id, seqNum, createdAt, 1
	return nil
}

func (r *planRepo) Latest(ctx context.Context, userID string) (*studyplan.StudyPlan, error) {
	sel := builder().Select(planColumns...).
		From(builder().Table(plansTable)).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("seq")).
		Limit(1)
	return r.load(ctx, sel)
}

func (r *planRepo) FindByID(ctx context.Context, id string) (*studyplan.StudyPlan, error) {
	sel := builder().Select(planColumns...).
		From(builder().Table(plansTable)).
		Where(entsql.EQ("id", id))
	return r.load(ctx, sel)
}

func (r *planRepo) Update(ctx context.Context, p *studyplan.StudyPlan) error {
	cols, err := encodePlanColumns(p)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	q, args := builder().Update(plansTable).
		Set("version", p.Version+1).
		Set("syllabus_id", p.SyllabusID).
		Set("schedule", cols.schedule).
		Set("study_tips", cols.tips).
		Set("revision_schedule", cols.revision).
		Set("metadata", cols.metadata).
		Where(entsql.And(entsql.EQ("id", p.ID), entsql.EQ("version", p.Version))).
		Query()
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update study plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update study plan: %w", err)
	}
	if n == 0 {
		var exists string
		cq, cargs := builder().Select("id").From(builder().Table(plansTable)).Where(entsql.EQ("id", p.ID)).Query()
		if err := tx.QueryRowContext(ctx, cq, cargs...).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return studyplan.ErrPlanNotFound
		}
		return studyplan.ErrVersionConflict
	}

	dq, dargs := builder().Delete(planTopicsTable).Where(entsql.EQ("plan_id", p.ID)).Query()
	if _, err := tx.ExecContext(ctx, dq, dargs...); err != nil {
		return fmt.Errorf("clear plan entries: %w", err)
	}
	if err := insertEntries(ctx, tx, p.ID, p.Topics); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit study plan: %w", err)
	}

	p.Version++
	return nil
}

func (r *planRepo) Delete(ctx context.Context, id string) error {
	// Entries go with the plan through the cascading foreign key.
	q, args := builder().Delete(plansTable).Where(entsql.EQ("id", id)).Query()
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("delete study plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete study plan: %w", err)
	}
	if n == 0 {
		return studyplan.ErrPlanNotFound
	}
	return nil
}

func (r *planRepo) load(ctx context.Context, sel *entsql.Selector) (*studyplan.StudyPlan, error) {
	q, args := sel.Query()

	var (
		p                                     studyplan.StudyPlan
		schedule, tips, revision, metadataRaw []byte
	)
	err := r.db.QueryRowContext(ctx, q, args...).Scan(
		&p.ID, &p.Seq, &p.UserID, &p.SyllabusID, &p.Version,
		&schedule, &tips, &revision, &metadataRaw, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, studyplan.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query study plan: %w", err)
	}

	for _, f := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"schedule", schedule, &p.Schedule},
		{"study_tips", tips, &p.StudyTips},
		{"revision_schedule", revision, &p.RevisionSchedule},
		{"metadata", metadataRaw, &p.Metadata},
	} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode plan %s: %w", f.name, err)
		}
	}

	p.Topics, err = r.entries(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *planRepo) entries(ctx context.Context, planID string) ([]studyplan.TopicEntry, error) {
	q, args := builder().Select(planTopicColumns...).
		From(builder().Table(planTopicsTable)).
		Where(entsql.EQ("plan_id", planID)).
		OrderBy("position").
		Query()
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query plan entries: %w", err)
	}
	defer rows.Close()

	out := []studyplan.TopicEntry{}
	for rows.Next() {
		var (
			e               studyplan.TopicEntry
			status, diff    string
			objectives, res []byte
			completedAt     sql.NullTime
		)
		if err := rows.Scan(&e.TopicID, &status, &e.AllocatedTime.Minutes, &e.AllocatedTime.Formatted,
			&e.ScheduledDay, &diff, &objectives, &res, &completedAt); err != nil {
			return nil, fmt.Errorf("scan plan entry: %w", err)
		}
		e.Status = studyplan.Status(status)
		e.Difficulty = catalog.Difficulty(diff)
		if err := json.Unmarshal(objectives, &e.LearningObjectives); err != nil {
			return nil, fmt.Errorf("decode learning objectives: %w", err)
		}
		if err := json.Unmarshal(res, &e.Resources); err != nil {
			return nil, fmt.Errorf("decode resources: %w", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			e.CompletedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertEntries(ctx context.Context, ex execer, planID string, entries []studyplan.TopicEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ins := builder().Insert(planTopicsTable).
		Columns(append([]string{"plan_id", "position"}, planTopicColumns...)...)
	for i, e := range entries {
		objectives, err := json.Marshal(nonNil(e.LearningObjectives))
		if err != nil {
			return fmt.Errorf("encode learning objectives: %w", err)
		}
		res, err := json.Marshal(nonNil(e.Resources))
		if err != nil {
			return fmt.Errorf("encode resources: %w", err)
		}
		var completedAt any
		if e.CompletedAt != nil {
			completedAt = *e.CompletedAt
		}
		ins = ins.Values(planID, i, e.TopicID, string(e.Status), e.AllocatedTime.Minutes, e.AllocatedTime.Formatted,
			e.ScheduledDay, string(e.Difficulty), string(objectives), string(res), completedAt)
	}

	q, args := ins.Query()
	if _, err := ex.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("save plan entries: %w", err)
	}
	return nil
}

type planColumnValues struct {
	schedule, tips, revision, metadata string
}

func encodePlanColumns(p *studyplan.StudyPlan) (planColumnValues, error) {
	var out planColumnValues
	for _, f := range []struct {
		name string
		src  any
		dst  *string
	}{
		{"schedule", p.Schedule, &out.schedule},
		{"study_tips", nonNil(p.StudyTips), &out.tips},
		{"revision_schedule", p.RevisionSchedule, &out.revision},
		{"metadata", p.Metadata, &out.metadata},
	} {
		b, err := json.Marshal(f.src)
		if err != nil {
			return out, fmt.Errorf("encode plan %s: %w", f.name, err)
		}
		*f.dst = string(b)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
