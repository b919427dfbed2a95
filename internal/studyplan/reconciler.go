package studyplan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/examprep/internal/catalog"
	"github.com/abhisek/examprep/internal/logger"
)

// Reconciler keeps each user's latest plan consistent with the catalog.
// Mutations for one user are serialized in-process; across processes the
// repository's version check rejects lost updates. Nothing is retried here.
type Reconciler struct {
	plans  Repo
	topics catalog.Repo
	cfg    Config
	locks  *userLocks
	log    *logger.Logger
	now    func() time.Time
}

// NewReconciler creates a Reconciler. Zero config fields take defaults.
func NewReconciler(plans Repo, topics catalog.Repo, cfg Config, log *logger.Logger) *Reconciler {
	def := DefaultConfig()
	if cfg.Policy == "" {
		cfg.Policy = def.Policy
	}
	if cfg.TopicsPerDay <= 0 {
		cfg.TopicsPerDay = def.TopicsPerDay
	}
	if cfg.DefaultMinutes <= 0 {
		cfg.DefaultMinutes = def.DefaultMinutes
	}
	return &Reconciler{
		plans:  plans,
		topics: topics,
		cfg:    cfg,
		locks:  newUserLocks(),
		log:    logger.OrNop(log).With("component", "studyplan.Reconciler"),
		now:    time.Now,
	}
}

// EntryView is a plan entry joined with its catalog topic.
type EntryView struct {
	TopicEntry
	Topic *catalog.Topic `json:"topic,omitempty"`
}

// PlanView is a plan with topic details populated.
type PlanView struct {
	*StudyPlan
	Entries []EntryView `json:"entries"`
}

// SyncReport verifies a full rebuild from the catalog.
type SyncReport struct {
	TopicsInCollection int  `json:"topicsInCollection"`
	TopicsInStudyPlan  int  `json:"topicsInStudyPlan"`
	Matched            bool `json:"matched"`
}

// Create stores a new plan for userID built from draft according to the
// configured policy.
func (r *Reconciler) Create(ctx context.Context, userID, syllabusID string, draft Draft) (*StudyPlan, error) {
	unlock := r.locks.Lock(userID)
	defer unlock()

	plan := &StudyPlan{
		UserID:           userID,
		SyllabusID:       syllabusID,
		Topics:           draft.Topics,
		Schedule:         draft.Schedule,
		StudyTips:        draft.StudyTips,
		RevisionSchedule: draft.RevisionSchedule,
		Metadata:         draft.Metadata,
	}
	if plan.Metadata.GeneratedAt.IsZero() {
		plan.Metadata.GeneratedAt = r.now()
	}

	if r.cfg.Policy == PolicyStrictCoverage {
		topics, err := r.topics.Find(ctx, catalog.Filter{SyllabusID: syllabusID})
		if err != nil {
			return nil, fmt.Errorf("load syllabus topics: %w", err)
		}
		plan.Topics = r.defaultEntries(topics)
		r.log.Info("applied strict coverage allocation",
			"user_id", userID,
			"generated_entries", len(draft.Topics),
			"coverage_entries", len(plan.Topics),
		)
	}

	plan.Normalize()
	if err := r.plans.Insert(ctx, plan); err != nil {
		return nil, fmt.Errorf("insert study plan: %w", err)
	}
	return plan, nil
}

// GetLatest returns the user's current plan after appending any catalog
// topics of its syllabus that the plan is missing. A second call makes no
// further change.
func (r *Reconciler) GetLatest(ctx context.Context, userID string) (*PlanView, error) {
	unlock := r.locks.Lock(userID)
	defer unlock()

	plan, err := r.plans.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}

	topics, err := r.topics.Find(ctx, catalog.Filter{SyllabusID: plan.SyllabusID})
	if err != nil {
		return nil, fmt.Errorf("load catalog topics: %w", err)
	}

	missing := missingTopics(plan, topics)
	if len(missing) > 0 {
		for _, t := range missing {
			plan.Topics = append(plan.Topics, r.defaultEntry(t, len(plan.Topics)))
		}
		plan.Normalize()
		if err := r.plans.Update(ctx, plan); err != nil {
			return nil, fmt.Errorf("auto-sync study plan: %w", err)
		}
		r.log.Info("auto-synced study plan",
			"user_id", userID,
			"plan_id", plan.ID,
			"appended", len(missing),
		)

		plan, err = r.plans.FindByID(ctx, plan.ID)
		if err != nil {
			return nil, fmt.Errorf("reload study plan: %w", err)
		}
	}

	return r.view(ctx, plan)
}

// Sync rebuilds the latest plan's entries from the whole catalog. Any
// recorded progress is discarded.
func (r *Reconciler) Sync(ctx context.Context, userID string) (*SyncReport, error) {
	unlock := r.locks.Lock(userID)
	defer unlock()

	plan, err := r.plans.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	all, err := r.topics.Find(ctx, catalog.Filter{})
	if err != nil {
		return nil, fmt.Errorf("load catalog topics: %w", err)
	}

	plan.Topics = r.defaultEntries(all)
	plan.Normalize()
	if err := r.plans.Update(ctx, plan); err != nil {
		return nil, fmt.Errorf("sync study plan: %w", err)
	}

	report := &SyncReport{
		TopicsInCollection: len(all),
		TopicsInStudyPlan:  len(plan.Topics),
	}
	report.Matched = report.TopicsInCollection == report.TopicsInStudyPlan
	return report, nil
}

// Fix replaces the latest plan with a new one built from the whole catalog.
// Only the syllabus, study tips and revision schedule carry over. The old
// plan is deleted after the new one is stored with at least one topic.
func (r *Reconciler) Fix(ctx context.Context, userID string) (*StudyPlan, error) {
	unlock := r.locks.Lock(userID)
	defer unlock()

	old, err := r.plans.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	all, err := r.topics.Find(ctx, catalog.Filter{})
	if err != nil {
		return nil, fmt.Errorf("load catalog topics: %w", err)
	}
	if len(all) == 0 {
		return nil, ErrEmptyCatalog
	}

	entries := r.defaultEntries(all)
	fresh := &StudyPlan{
		UserID:           userID,
		SyllabusID:       old.SyllabusID,
		Topics:           entries,
		Schedule:         Schedule{TotalDays: r.dayCount(len(entries))},
		StudyTips:        old.StudyTips,
		RevisionSchedule: old.RevisionSchedule,
		Metadata:         Metadata{GeneratedAt: r.now()},
	}
	fresh.Normalize()
	if err := r.plans.Insert(ctx, fresh); err != nil {
		return nil, fmt.Errorf("insert rebuilt study plan: %w", err)
	}

	if len(fresh.Topics) > 0 {
		if err := r.plans.Delete(ctx, old.ID); err != nil && !errors.Is(err, ErrPlanNotFound) {
			// The new plan already supersedes the old one.
			r.log.Warn("failed to delete superseded study plan", "plan_id", old.ID, "error", err)
		}
	}
	return fresh, nil
}

// SetStatus changes the status of topicID in the user's latest plan. A
// topic missing from the plan but present in the catalog is appended first.
// status is matched case-insensitively.
func (r *Reconciler) SetStatus(ctx context.Context, userID, topicID string, status Status) (*StudyPlan, error) {
	status, err := ParseStatus(string(status))
	if err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(userID)
	defer unlock()

	plan, err := r.plans.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !plan.HasTopic(topicID) {
		t, err := r.topics.FindByID(ctx, topicID)
		if errors.Is(err, catalog.ErrTopicNotFound) {
			return nil, &TopicNotFoundError{TopicID: topicID, AvailableIDs: plan.TopicIDs()}
		}
		if err != nil {
			return nil, fmt.Errorf("look up topic %s: %w", topicID, err)
		}
		plan.Topics = append(plan.Topics, r.defaultEntry(*t, len(plan.Topics)))
		r.log.Info("self-healed missing plan entry", "user_id", userID, "topic_id", topicID)
	}

	now := r.now()
	for i := range plan.Topics {
		e := &plan.Topics[i]
		if e.TopicID != topicID {
			continue
		}
		e.Status = status
		if status == StatusCompleted {
			completedAt := now
			e.CompletedAt = &completedAt
		} else {
			e.CompletedAt = nil
		}
	}

	plan.Normalize()
	if err := r.plans.Update(ctx, plan); err != nil {
		return nil, fmt.Errorf("update topic status: %w", err)
	}
	return plan, nil
}

func (r *Reconciler) view(ctx context.Context, plan *StudyPlan) (*PlanView, error) {
	topics, err := r.topics.Find(ctx, catalog.Filter{IDs: plan.TopicIDs()})
	if err != nil {
		return nil, fmt.Errorf("load plan topics: %w", err)
	}
	byID := make(map[string]*catalog.Topic, len(topics))
	for i := range topics {
		byID[topics[i].ID] = &topics[i]
	}

	v := &PlanView{StudyPlan: plan, Entries: make([]EntryView, len(plan.Topics))}
	for i, e := range plan.Topics {
		v.Entries[i] = EntryView{TopicEntry: e, Topic: byID[e.TopicID]}
	}
	return v, nil
}

func (r *Reconciler) defaultEntries(topics []catalog.Topic) []TopicEntry {
	out := make([]TopicEntry, len(topics))
	for i, t := range topics {
		out[i] = r.defaultEntry(t, i)
	}
	return out
}

// defaultEntry allocates topic at position: TopicsPerDay per day, default
// minutes, pending.
func (r *Reconciler) defaultEntry(t catalog.Topic, position int) TopicEntry {
	d := t.Difficulty
	if d == "" {
		d = catalog.DifficultyMedium
	}
	return TopicEntry{
		TopicID: t.ID,
		Status:  StatusPending,
		AllocatedTime: AllocatedTime{
			Minutes:   r.cfg.DefaultMinutes,
			Formatted: FormatMinutes(r.cfg.DefaultMinutes),
		},
		ScheduledDay:       position/r.cfg.TopicsPerDay + 1,
		Difficulty:         d,
		LearningObjectives: []string{},
		Resources:          []string{},
	}
}

func (r *Reconciler) dayCount(n int) int {
	return (n + r.cfg.TopicsPerDay - 1) / r.cfg.TopicsPerDay
}

// missingTopics returns the topics (in catalog order) the plan does not
// reference.
func missingTopics(plan *StudyPlan, topics []catalog.Topic) []catalog.Topic {
	have := make(map[string]bool, len(plan.Topics))
	for _, e := range plan.Topics {
		have[e.TopicID] = true
	}
	var out []catalog.Topic
	for _, t := range topics {
		if !have[t.ID] {
			out = append(out, t)
			have[t.ID] = true
		}
	}
	return out
}

// FormatMinutes renders minutes as "1h 30m", "2h" or "45m".
func FormatMinutes(minutes int) string {
	if minutes <= 0 {
		return "0m"
	}
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}
