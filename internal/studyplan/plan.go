// Package studyplan owns the per-user study plan aggregate and keeps it
// reconciled with the topic catalog.
package studyplan

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/abhisek/examprep/internal/catalog"
)

// Status is the progress state of a single plan entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ParseStatus accepts "pending" or "completed" in any case.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusCompleted:
		return StatusCompleted, nil
	}
	return "", fmt.Errorf("invalid status %q: want pending or completed", s)
}

// AllocatedTime is the study time budgeted for one entry.
type AllocatedTime struct {
	Minutes   int    `json:"minutes" bson:"minutes"`
	Formatted string `json:"formatted" bson:"formatted"`
}

// TopicEntry is one scheduled topic inside a plan.
type TopicEntry struct {
	TopicID            string             `json:"topicId" bson:"topic_id"`
	Status             Status             `json:"status" bson:"status"`
	AllocatedTime      AllocatedTime      `json:"allocatedTime" bson:"allocated_time"`
	ScheduledDay       int                `json:"scheduledDay" bson:"scheduled_day"`
	Difficulty         catalog.Difficulty `json:"difficulty" bson:"difficulty"`
	LearningObjectives []string           `json:"learningObjectives" bson:"learning_objectives"`
	Resources          []string           `json:"resources" bson:"resources"`
	CompletedAt        *time.Time         `json:"completedAt,omitempty" bson:"completed_at,omitempty"`
}

// ScheduleItem is a snapshot of one generated day item, kept verbatim.
type ScheduleItem struct {
	TopicName          string   `json:"topicName" bson:"topic_name"`
	Subject            string   `json:"subject" bson:"subject"`
	Time               string   `json:"time" bson:"time"`
	Difficulty         string   `json:"difficulty" bson:"difficulty"`
	LearningObjectives []string `json:"learningObjectives" bson:"learning_objectives"`
	Resources          []string `json:"resources" bson:"resources"`
}

type Schedule struct {
	TotalDays        int                       `json:"totalDays" bson:"total_days"`
	StudyHoursPerDay float64                   `json:"studyHoursPerDay" bson:"study_hours_per_day"`
	DailySchedule    map[string][]ScheduleItem `json:"dailySchedule" bson:"daily_schedule"`
}

type RevisionSchedule struct {
	Description string `json:"description" bson:"description"`
	Days        []int  `json:"days" bson:"days"`
}

type Metadata struct {
	KnowledgeBaseReferences int       `json:"knowledgeBaseReferences" bson:"knowledge_base_references"`
	GeneratedAt             time.Time `json:"generatedAt" bson:"generated_at"`
	TotalTopics             int       `json:"totalTopics" bson:"total_topics"`
}

// StudyPlan is the persisted aggregate. For a user, the plan with the
// highest Seq is the current one.
type StudyPlan struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	SyllabusID       string           `json:"syllabusId,omitempty"`
	Topics           []TopicEntry     `json:"topics"`
	Schedule         Schedule         `json:"schedule"`
	StudyTips        []string         `json:"studyTips"`
	RevisionSchedule RevisionSchedule `json:"revisionSchedule"`
	Metadata         Metadata         `json:"metadata"`
	CreatedAt        time.Time        `json:"createdAt"`

	// Version is the optimistic concurrency counter. Repo.Update only
	// succeeds when it matches the stored value.
	Version int64 `json:"version"`
	// Seq orders plans by creation; assigned by the repository.
	Seq int64 `json:"-"`
}

// Normalize restores derived fields. Every write path calls it.
func (p *StudyPlan) Normalize() {
	p.Metadata.TotalTopics = len(p.Topics)
}

// HasTopic reports whether any entry references topicID.
func (p *StudyPlan) HasTopic(topicID string) bool {
	return slices.ContainsFunc(p.Topics, func(e TopicEntry) bool { return e.TopicID == topicID })
}

// TopicIDs returns the referenced topic ids in plan order.
func (p *StudyPlan) TopicIDs() []string {
	out := make([]string, len(p.Topics))
	for i, e := range p.Topics {
		out[i] = e.TopicID
	}
	return out
}

// Clone returns a deep copy.
func (p *StudyPlan) Clone() *StudyPlan {
	c := *p
	c.Topics = make([]TopicEntry, len(p.Topics))
	for i, e := range p.Topics {
		e.LearningObjectives = slices.Clone(e.LearningObjectives)
		e.Resources = slices.Clone(e.Resources)
		if e.CompletedAt != nil {
			t := *e.CompletedAt
			e.CompletedAt = &t
		}
		c.Topics[i] = e
	}
	c.StudyTips = slices.Clone(p.StudyTips)
	c.RevisionSchedule.Days = slices.Clone(p.RevisionSchedule.Days)
	if p.Schedule.DailySchedule != nil {
		c.Schedule.DailySchedule = make(map[string][]ScheduleItem, len(p.Schedule.DailySchedule))
		for k, items := range p.Schedule.DailySchedule {
			c.Schedule.DailySchedule[k] = slices.Clone(items)
		}
	}
	return &c
}

// Draft is a plan produced by formatting a synthesized schedule, before it
// is owned by a user.
type Draft struct {
	Topics           []TopicEntry
	Schedule         Schedule
	StudyTips        []string
	RevisionSchedule RevisionSchedule
	Metadata         Metadata
}

var (
	// ErrPlanNotFound is returned when a user has no study plan.
	ErrPlanNotFound = errors.New("study plan not found")

	// ErrVersionConflict is returned by Repo.Update when the stored plan
	// changed since it was read.
	ErrVersionConflict = errors.New("study plan was modified concurrently")

	// ErrEmptyCatalog is returned when a rebuild has no topics to use.
	ErrEmptyCatalog = errors.New("topic catalog is empty")
)

// TopicNotFoundError reports a status change for a topic that exists in
// neither the plan nor the catalog.
type TopicNotFoundError struct {
	TopicID      string
	AvailableIDs []string
}

func (e *TopicNotFoundError) Error() string {
	return fmt.Sprintf("topic %q not found in study plan or database", e.TopicID)
}

func (e *TopicNotFoundError) Unwrap() error { return catalog.ErrTopicNotFound }

// Repo persists StudyPlan aggregates.
type Repo interface {
	// Insert stores a new plan, assigning ID (when empty), Seq, CreatedAt
	// and Version 1.
	Insert(ctx context.Context, p *StudyPlan) error

	// Latest returns the user's plan with the highest Seq, or ErrPlanNotFound.
	Latest(ctx context.Context, userID string) (*StudyPlan, error)

	// FindByID returns ErrPlanNotFound when no plan has the id.
	FindByID(ctx context.Context, id string) (*StudyPlan, error)

	// Update replaces the stored plan if its version equals p.Version and
	// increments p.Version. Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, p *StudyPlan) error

	// Delete removes a plan. Deleting a missing plan returns ErrPlanNotFound.
	Delete(ctx context.Context, id string) error
}
