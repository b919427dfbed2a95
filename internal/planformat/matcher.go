package planformat

import "github.com/abhisek/examprep/internal/catalog"

// TopicMatcher resolves a generated topic name to a catalog topic.
type TopicMatcher interface {
	Match(name string) (catalog.Topic, bool)
}

// MatcherFactory builds a TopicMatcher over a catalog snapshot.
type MatcherFactory func(topics []catalog.Topic) TopicMatcher

// ExactMatcher matches names equal after catalog.NormalizeName. When two
// catalog topics normalize the same, the earlier one wins.
type ExactMatcher struct {
	byName map[string]catalog.Topic
}

func NewExactMatcher(topics []catalog.Topic) TopicMatcher {
	m := &ExactMatcher{byName: make(map[string]catalog.Topic, len(topics))}
	for _, t := range topics {
		key := catalog.NormalizeName(t.Name)
		if _, dup := m.byName[key]; !dup {
			m.byName[key] = t
		}
	}
	return m
}

func (m *ExactMatcher) Match(name string) (catalog.Topic, bool) {
	t, ok := m.byName[catalog.NormalizeName(name)]
	return t, ok
}
