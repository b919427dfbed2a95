// Package catalog defines syllabus topics and the repository contract for
// the canonical topic store.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Difficulty grades a topic. The empty value means "not known yet".
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty normalizes free text to a Difficulty. ok is false when the
// text is not one of easy/medium/hard.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case DifficultyEasy:
		return DifficultyEasy, true
	case DifficultyMedium:
		return DifficultyMedium, true
	case DifficultyHard:
		return DifficultyHard, true
	}
	return "", false
}

// Topic is a single syllabus concept, the unit a study plan schedules.
type Topic struct {
	ID               string     `json:"id" validate:"required"`
	Subject          string     `json:"subject"`
	Name             string     `json:"name" validate:"required"`
	Difficulty       Difficulty `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	SyllabusID       string     `json:"syllabusId,omitempty"`
	ContentVectorRef string     `json:"contentVectorRef,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`

	// Seq is the catalog insertion order. Assigned by the repository.
	Seq int64 `json:"-"`
}

// Filter narrows catalog queries. Zero fields match everything.
type Filter struct {
	SyllabusID string
	Subject    string
	IDs        []string
}

// ErrTopicNotFound is returned when a lookup by id matches no topic.
var ErrTopicNotFound = errors.New("topic not found")

// Repo is the canonical topic store.
type Repo interface {
	// Insert stores a new topic. An empty ID is replaced by a generated one.
	Insert(ctx context.Context, t *Topic) error

	// Find returns the topics matching f in insertion order.
	Find(ctx context.Context, f Filter) ([]Topic, error)

	// FindByID returns ErrTopicNotFound when no topic has the id.
	FindByID(ctx context.Context, id string) (*Topic, error)

	// SetDifficulty backfills the difficulty of a topic whose difficulty is
	// still unknown. Topics with a known difficulty are left unchanged.
	SetDifficulty(ctx context.Context, id string, d Difficulty) error
}

// NormalizeName lowercases, trims, and collapses internal whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// IDs returns the ids of topics in order.
func IDs(topics []Topic) []string {
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = t.ID
	}
	return out
}
