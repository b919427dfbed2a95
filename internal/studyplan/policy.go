package studyplan

import (
	"fmt"
	"strings"
)

// Policy decides which topic entries a freshly created plan keeps.
type Policy string

const (
	// PolicyStrictCoverage replaces the generated entries with every topic
	// of the syllabus on the uniform default allocation.
	PolicyStrictCoverage Policy = "strict-coverage"

	// PolicyGenerativeSchedule keeps the generated day placement, time,
	// objectives and resources. Coverage gaps are filled by auto-sync.
	PolicyGenerativeSchedule Policy = "generative-schedule"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStrictCoverage:
		return PolicyStrictCoverage, nil
	case PolicyGenerativeSchedule:
		return PolicyGenerativeSchedule, nil
	}
	return "", fmt.Errorf("unknown plan policy %q", s)
}

// Config tunes the reconciler.
type Config struct {
	Policy         Policy
	TopicsPerDay   int
	DefaultMinutes int
}

func DefaultConfig() Config {
	return Config{
		Policy:         PolicyStrictCoverage,
		TopicsPerDay:   2,
		DefaultMinutes: 60,
	}
}
