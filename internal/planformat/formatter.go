// Package planformat maps a synthesized schedule onto catalog topics,
// producing the entries of a study plan.
package planformat

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/abhisek/examprep/internal/catalog"
	"github.com/abhisek/examprep/internal/logger"
	"github.com/abhisek/examprep/internal/studyplan"
	"github.com/abhisek/examprep/internal/synthesis"
)

// DefaultMinutes is used when an item's time text has no hours or minutes.
const DefaultMinutes = 60

// MaxMinutes caps the time given to one item.
const MaxMinutes = 24 * 60

var (
	hoursRe   = regexp.MustCompile(`(\d+)\s*h`)
	minutesRe = regexp.MustCompile(`(\d+)\s*m`)
)

// ParseTime reads hours and minutes out of text like "1h 30m", "2 hours" or
// "45 min" and returns the total in minutes, at most MaxMinutes. A bare
// number is taken as minutes.
func ParseTime(text string) int {
	text = strings.ToLower(strings.TrimSpace(text))
	if n, err := strconv.Atoi(text); err == nil && n >= 0 {
		return min(n, MaxMinutes)
	}
	h := hoursRe.FindStringSubmatch(text)
	m := minutesRe.FindStringSubmatch(text)
	if h == nil && m == nil {
		return DefaultMinutes
	}
	hours, okH := timeCount(h)
	mins, okM := timeCount(m)
	if !okH || !okM {
		return DefaultMinutes
	}
	return min(hours*60+mins, MaxMinutes)
}

// timeCount parses the digits of a regexp match, clamped to MaxMinutes.
// A nil match counts as zero; digits Atoi cannot hold are not ok.
func timeCount(match []string) (int, bool) {
	if match == nil {
		return 0, true
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return min(n, MaxMinutes), true
}

type Formatter struct {
	newMatcher MatcherFactory
	log        *logger.Logger
}

// New returns a Formatter. A nil factory selects NewExactMatcher.
func New(newMatcher MatcherFactory, log *logger.Logger) *Formatter {
	if newMatcher == nil {
		newMatcher = NewExactMatcher
	}
	return &Formatter{
		newMatcher: newMatcher,
		log:        logger.OrNop(log).With("component", "planformat.Formatter"),
	}
}

// Format converts res into a draft plan. Days are walked in ascending order;
// items naming no catalog topic are dropped, and a topic named more than
// once keeps its first placement.
func (f *Formatter) Format(res *synthesis.Result, catalogTopics []catalog.Topic) studyplan.Draft {
	matcher := f.newMatcher(catalogTopics)
	seen := make(map[string]bool)
	entries := []studyplan.TopicEntry{}
	dropped := 0

	for _, key := range synthesis.DayKeys(res.DailySchedule) {
		day, _ := synthesis.DayNumber(key)
		for _, item := range res.DailySchedule[key] {
			topic, ok := matcher.Match(item.TopicName)
			if !ok {
				dropped++
				f.log.Info("dropping unmatched plan item", "day", day, "topic_name", item.TopicName)
				continue
			}
			if seen[topic.ID] {
				continue
			}
			seen[topic.ID] = true

			minutes := ParseTime(item.TimeText)
			entries = append(entries, studyplan.TopicEntry{
				TopicID: topic.ID,
				Status:  studyplan.StatusPending,
				AllocatedTime: studyplan.AllocatedTime{
					Minutes:   minutes,
					Formatted: studyplan.FormatMinutes(minutes),
				},
				ScheduledDay:       day,
				Difficulty:         entryDifficulty(item.Difficulty, topic.Difficulty),
				LearningObjectives: nonNil(item.LearningObjectives),
				Resources:          nonNil(item.Resources),
			})
		}
	}
	if dropped > 0 {
		f.log.Warn("plan items without a catalog topic were dropped", "dropped", dropped, "kept", len(entries))
	}

	revision := res.RevisionSchedule
	if len(revision.Days) == 0 {
		revision = studyplan.DefaultRevisionSchedule(res.Metadata.TotalDays)
	}

	return studyplan.Draft{
		Topics: entries,
		Schedule: studyplan.Schedule{
			TotalDays:        res.Metadata.TotalDays,
			StudyHoursPerDay: res.Metadata.StudyHoursPerDay,
			DailySchedule:    synthesis.Snapshot(res.DailySchedule),
		},
		StudyTips:        nonNil(res.StudyTips),
		RevisionSchedule: revision,
		Metadata: studyplan.Metadata{
			KnowledgeBaseReferences: res.Metadata.KnowledgeBaseReferences,
			GeneratedAt:             res.Metadata.GeneratedAt,
			TotalTopics:             len(entries),
		},
	}
}

// entryDifficulty prefers the generated grade, then the catalog's, then
// medium.
func entryDifficulty(generated string, known catalog.Difficulty) catalog.Difficulty {
	if d, ok := catalog.ParseDifficulty(generated); ok {
		return d
	}
	if known != "" {
		return known
	}
	return catalog.DifficultyMedium
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
