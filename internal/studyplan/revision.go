package studyplan

import (
	"fmt"
	"strings"
)

// RevisionIntervals is the expanding gap in days between revision sessions.
var RevisionIntervals = []int{1, 3, 7, 14, 30, 60}

// DefaultRevisionSchedule spaces revision days over a plan of totalDays
// using RevisionIntervals, ending with a revision on the last day. A plan
// shorter than two days gets no revision days.
func DefaultRevisionSchedule(totalDays int) RevisionSchedule {
	if totalDays < 2 {
		return RevisionSchedule{Days: []int{}}
	}

	days := []int{}
	day := 1
	for _, gap := range RevisionIntervals {
		day += gap
		if day >= totalDays {
			break
		}
		days = append(days, day)
	}
	days = append(days, totalDays)

	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return RevisionSchedule{
		Description: "Revise completed topics on days " + strings.Join(parts, ", ") +
			", leaving a longer gap each time.",
		Days: days,
	}
}
