package synthesis

import (
	"fmt"
	"strings"

	"github.com/abhisek/examprep/internal/retrieval"
)

const systemPrompt = `You are an experienced tutor building a personalised exam study plan.

Rules:
- Schedule every listed topic at least once. Use the topic names exactly as given.
- Respect the study hours per day. Express time per topic as text like "1h 30m" or "45m".
- Spread difficult topics out and leave room for revision near the end.
- Ground learning objectives and resources in the reference material when it is provided.
- Respond with a single JSON object of this shape and nothing else:
{
  "dailySchedule": {
    "day1": [{"topicName": "", "subject": "", "time": "", "difficulty": "easy|medium|hard", "learningObjectives": [], "resources": []}]
  },
  "studyTips": [""],
  "revisionSchedule": {"description": "", "days": [1]}
}`

// noMaterialContext is used when nothing was retrieved. The prompt stays
// usable without reference material.
const noMaterialContext = "No study materials were found in the knowledge base for these topics. " +
	"Rely on standard curriculum knowledge for this class and subject."

// fallbackStudyTip is the only tip of a failed synthesis.
const fallbackStudyTip = "The study plan could not be generated automatically. " +
	"Work through the syllabus topics in order and review each one before moving on."

func buildUserMessage(topics []string, class, subject string, opts Options, material string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Class: %s\n", class)
	fmt.Fprintf(&b, "Subject: %s\n", subject)
	fmt.Fprintf(&b, "Study hours per day: %g\n", opts.StudyHoursPerDay)
	fmt.Fprintf(&b, "Total days: %d\n", opts.TotalDays)
	if opts.Difficulty != "" {
		fmt.Fprintf(&b, "Preferred difficulty: %s\n", opts.Difficulty)
	}

	b.WriteString("\nTopics:\n")
	for i, t := range topics {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
	}

	b.WriteString("\nReference material:\n")
	b.WriteString(material)
	return b.String()
}

// buildContext quotes the most relevant chunks, stopping before maxChars
// would be exceeded. chunks must already be sorted by relevance.
func buildContext(chunks []retrieval.KnowledgeChunk, cfg Config) string {
	if len(chunks) == 0 {
		return noMaterialContext
	}

	var b strings.Builder
	for i, c := range chunks {
		if i >= cfg.MaxContextChunks {
			break
		}
		entry := fmt.Sprintf("[%d] Topic: %s (chunk %d/%d, relevance %.2f)\n%s\n\n",
			i+1, c.TopicName, c.ChunkIndex+1, max(c.TotalChunks, c.ChunkIndex+1), c.RelevanceScore,
			truncateRunes(c.Content, cfg.PreviewRunes))
		if b.Len()+len(entry) > cfg.MaxContextChars {
			if b.Len() == 0 {
				// Always quote at least a prefix of the best chunk.
				b.WriteString(truncateRunes(entry, cfg.MaxContextChars))
			}
			break
		}
		b.WriteString(entry)
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
