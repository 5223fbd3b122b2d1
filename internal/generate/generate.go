package generate

import (
	"context"

	"github.com/pathwise/pathwise/internal/domain"
)

// ContentGenerator produces learning content and performance analysis.
// Implementations may call an LLM or return canned results (for tests).
// Callers must treat every method as fallible and slow: quiz submission in
// particular degrades to FallbackAnalysis instead of failing the request.
type ContentGenerator interface {
	// GeneratePath synthesizes a course outline broken into topics.
	GeneratePath(ctx context.Context, courseName string, difficulty domain.Difficulty) (*PathContent, error)

	// GenerateQuiz synthesizes an MCQ question set for a topic.
	GenerateQuiz(ctx context.Context, topicName string, difficulty domain.Difficulty, numQuestions int, variant domain.Variant) (*QuizContent, error)

	// AnalyzePerformance classifies a scored submission into strengths,
	// weaknesses and remedial topic suggestions.
	AnalyzePerformance(ctx context.Context, topicName string, difficulty domain.Difficulty, responses []domain.QuizResponse, questions []domain.Question) (*Analysis, error)
}

type PathContent struct {
	Topics        []TopicContent `json:"topics"`
	Strength      string         `json:"strength"`
	Weakness      string         `json:"weakness"`
	DurationHours int            `json:"duration"`
}

type TopicContent struct {
	Name          string                `json:"name"`
	Description   string                `json:"description"`
	ResourceLinks []domain.ResourceLink `json:"resourceLinks"`
}

type QuizContent struct {
	Questions       []domain.Question `json:"questions"`
	DurationMinutes int               `json:"duration"`
}

type Analysis struct {
	Strengths      string                `json:"strengths"`
	Weaknesses     string                `json:"weaknesses"`
	Resources      []domain.ResourceLink `json:"resources"`
	RemedialTopics []TopicContent        `json:"remedialSubtopics"`
}

const (
	fallbackStrengths  = "No specific strengths identified."
	fallbackWeaknesses = "No specific weaknesses identified."
)

// FallbackAnalysis is substituted whenever the analysis collaborator fails or
// returns malformed data. Scoring always completes with these defaults.
func FallbackAnalysis() *Analysis {
	return &Analysis{
		Strengths:  fallbackStrengths,
		Weaknesses: fallbackWeaknesses,
	}
}

// ValidQuestion reports whether a generated question is usable: exactly four
// options, the correct answer among them, and at least one mark.
func ValidQuestion(q domain.Question) bool {
	if q.Text == "" || len(q.Options) != domain.QuestionOptionCount {
		return false
	}
	if q.Marks < 1 {
		return false
	}
	for _, opt := range q.Options {
		if opt == q.CorrectAnswer {
			return true
		}
	}
	return false
}
