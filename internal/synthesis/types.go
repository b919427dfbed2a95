// Package synthesis turns syllabus topics plus retrieved material into a
// day-by-day study plan using an LLM.
package synthesis

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/abhisek/examprep/internal/retrieval"
	"github.com/abhisek/examprep/internal/studyplan"
)

// PurposeStudyPlan labels LLM calls made by the synthesizer.
const PurposeStudyPlan = "study-plan"

// Options are the learner's scheduling constraints.
type Options struct {
	StudyHoursPerDay float64 `json:"studyHoursPerDay" validate:"min=1,max=24"`
	TotalDays        int     `json:"totalDays" validate:"min=1,max=365"`
	Difficulty       string  `json:"difficulty" validate:"omitempty,oneof=easy medium hard mixed"`
}

// DefaultOptions fill zero fields of caller options.
func DefaultOptions() Options {
	return Options{StudyHoursPerDay: 2, TotalDays: 30}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.StudyHoursPerDay == 0 {
		o.StudyHoursPerDay = def.StudyHoursPerDay
	}
	if o.TotalDays == 0 {
		o.TotalDays = def.TotalDays
	}
	o.Difficulty = strings.ToLower(strings.TrimSpace(o.Difficulty))
	return o
}

// PlannedItem is one topic slot of a generated day.
type PlannedItem struct {
	TopicName          string   `json:"topicName"`
	Subject            string   `json:"subject"`
	TimeText           string   `json:"time"`
	Difficulty         string   `json:"difficulty"`
	LearningObjectives []string `json:"learningObjectives"`
	Resources          []string `json:"resources"`
}

// plan is the object the model is asked to produce.
type plan struct {
	DailySchedule    map[string][]PlannedItem   `json:"dailySchedule"`
	StudyTips        []string                   `json:"studyTips"`
	RevisionSchedule studyplan.RevisionSchedule `json:"revisionSchedule"`
}

type Metadata struct {
	TotalDays               int       `json:"totalDays"`
	StudyHoursPerDay        float64   `json:"studyHoursPerDay"`
	TotalTopics             int       `json:"totalTopics"`
	KnowledgeBaseReferences int       `json:"knowledgeBaseReferences"`
	GeneratedAt             time.Time `json:"generatedAt"`
	Error                   string    `json:"error,omitempty"`
}

// Result is a synthesized plan. When Success is false the model output could
// not be recovered; Error and RawResponsePrefix describe it and the schedule
// is empty.
type Result struct {
	Success            bool                       `json:"success"`
	DailySchedule      map[string][]PlannedItem   `json:"dailySchedule"`
	StudyTips          []string                   `json:"studyTips"`
	RevisionSchedule   studyplan.RevisionSchedule `json:"revisionSchedule"`
	Metadata           Metadata                   `json:"metadata"`
	RetrievedKnowledge []retrieval.KnowledgeChunk `json:"retrievedKnowledge,omitempty"`

	Error             string `json:"error,omitempty"`
	RawResponsePrefix string `json:"rawResponsePrefix,omitempty"`
}

// DayNumber parses a "day<N>" key. ok is false for anything else or N < 1.
func DayNumber(key string) (int, bool) {
	rest, found := strings.CutPrefix(strings.ToLower(strings.TrimSpace(key)), "day")
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// DayKeys returns the valid day keys of schedule ordered by day number.
func DayKeys(schedule map[string][]PlannedItem) []string {
	keys := make([]string, 0, len(schedule))
	for k := range schedule {
		if _, ok := DayNumber(k); ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := DayNumber(keys[i])
		b, _ := DayNumber(keys[j])
		if a != b {
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Snapshot converts the schedule to the form stored with a plan.
func Snapshot(schedule map[string][]PlannedItem) map[string][]studyplan.ScheduleItem {
	out := make(map[string][]studyplan.ScheduleItem, len(schedule))
	for k, items := range schedule {
		conv := make([]studyplan.ScheduleItem, len(items))
		for i, it := range items {
			conv[i] = studyplan.ScheduleItem{
				TopicName:          it.TopicName,
				Subject:            it.Subject,
				Time:               it.TimeText,
				Difficulty:         it.Difficulty,
				LearningObjectives: it.LearningObjectives,
				Resources:          it.Resources,
			}
		}
		out[k] = conv
	}
	return out
}
