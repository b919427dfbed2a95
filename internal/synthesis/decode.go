package synthesis

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/abhisek/examprep/internal/studyplan"
)

// looseItem is a schedule item as the model wrote it. Every field is kept
// raw so a number where text was asked for, or a null list, costs that
// field rather than the plan.
type looseItem struct {
	TopicName          json.RawMessage `json:"topicName"`
	Subject            json.RawMessage `json:"subject"`
	Time               json.RawMessage `json:"time"`
	Difficulty         json.RawMessage `json:"difficulty"`
	LearningObjectives json.RawMessage `json:"learningObjectives"`
	Resources          json.RawMessage `json:"resources"`
}

type loosePlan struct {
	DailySchedule    map[string]json.RawMessage `json:"dailySchedule"`
	StudyTips        json.RawMessage            `json:"studyTips"`
	RevisionSchedule struct {
		Description json.RawMessage `json:"description"`
		Days        json.RawMessage `json:"days"`
	} `json:"revisionSchedule"`
}

// decodePlan decodes a schema-checked response. Items without a usable
// topicName are skipped; dropped counts them.
func decodePlan(obj json.RawMessage) (p *plan, dropped int, err error) {
	var lp loosePlan
	if err := json.Unmarshal(obj, &lp); err != nil {
		return nil, 0, err
	}

	p = &plan{
		DailySchedule: make(map[string][]PlannedItem, len(lp.DailySchedule)),
		StudyTips:     textList(lp.StudyTips),
		RevisionSchedule: studyplan.RevisionSchedule{
			Description: text(lp.RevisionSchedule.Description),
			Days:        dayList(lp.RevisionSchedule.Days),
		},
	}
	for day, raw := range lp.DailySchedule {
		var elems []json.RawMessage
		if json.Unmarshal(raw, &elems) != nil {
			// A lone object stands for a one-item day.
			elems = []json.RawMessage{raw}
		}
		items := make([]PlannedItem, 0, len(elems))
		for _, e := range elems {
			it, ok := decodeItem(e)
			if !ok {
				dropped++
				continue
			}
			items = append(items, it)
		}
		p.DailySchedule[day] = items
	}
	return p, dropped, nil
}

func decodeItem(raw json.RawMessage) (PlannedItem, bool) {
	var li looseItem
	if json.Unmarshal(raw, &li) != nil {
		return PlannedItem{}, false
	}
	it := PlannedItem{
		TopicName:          strings.TrimSpace(text(li.TopicName)),
		Subject:            text(li.Subject),
		TimeText:           text(li.Time),
		Difficulty:         text(li.Difficulty),
		LearningObjectives: textList(li.LearningObjectives),
		Resources:          textList(li.Resources),
	}
	return it, it.TopicName != ""
}

// text renders a scalar as a string. Numbers keep their literal form;
// null, objects and arrays give "".
func text(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	case '{', '[', 'n':
	default:
		return string(raw)
	}
	return ""
}

// textList accepts an array of scalars or a single scalar. The result is
// never nil.
func textList(raw json.RawMessage) []string {
	out := []string{}
	var elems []json.RawMessage
	if json.Unmarshal(raw, &elems) != nil {
		elems = []json.RawMessage{raw}
	}
	for _, e := range elems {
		if s := strings.TrimSpace(text(e)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// dayList reads revision days given as 5, "5" or "day 5". Anything else is
// skipped.
func dayList(raw json.RawMessage) []int {
	out := []int{}
	for _, s := range textList(raw) {
		if n, ok := DayNumber(s); ok {
			out = append(out, n)
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err == nil && f >= 1 && f <= math.MaxInt32 && f == math.Trunc(f) {
			out = append(out, int(f))
		}
	}
	return out
}
