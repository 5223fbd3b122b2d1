package generate

import (
	"context"
	"fmt"

	"github.com/pathwise/pathwise/internal/domain"
)

// Static is a canned ContentGenerator for tests and local development.
// Configure Err to simulate an unreachable model.
type Static struct {
	Path     *PathContent
	Quiz     *QuizContent
	Analysis *Analysis
	Err      error
}

var _ ContentGenerator = (*Static)(nil)

func (s *Static) GeneratePath(_ context.Context, courseName string, _ domain.Difficulty) (*PathContent, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Path != nil {
		return s.Path, nil
	}

	topics := make([]TopicContent, 4)
	for i := range topics {
		topics[i] = TopicContent{
			Name:        fmt.Sprintf("%s Part %d", courseName, i+1),
			Description: fmt.Sprintf("Core concepts of %s, part %d.", courseName, i+1),
		}
	}
	return &PathContent{
		Topics:        topics,
		Strength:      "Unknown",
		Weakness:      "Unknown",
		DurationHours: 10,
	}, nil
}

func (s *Static) GenerateQuiz(_ context.Context, topicName string, difficulty domain.Difficulty, numQuestions int, _ domain.Variant) (*QuizContent, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Quiz != nil {
		return s.Quiz, nil
	}

	questions := make([]domain.Question, numQuestions)
	for i := range questions {
		questions[i] = domain.Question{
			Text:          fmt.Sprintf("%s question %d", topicName, i+1),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "A",
			Marks:         marksFor(difficulty),
			Explanation:   fmt.Sprintf("The answer to %s question %d is A.", topicName, i+1),
			Subtopic:      fmt.Sprintf("%s Basics", topicName),
		}
	}
	return &QuizContent{Questions: questions, DurationMinutes: numQuestions}, nil
}

func (s *Static) AnalyzePerformance(_ context.Context, _ string, _ domain.Difficulty, _ []domain.QuizResponse, _ []domain.Question) (*Analysis, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Analysis != nil {
		return s.Analysis, nil
	}
	return FallbackAnalysis(), nil
}

func marksFor(d domain.Difficulty) int {
	switch d {
	case domain.DifficultyMedium:
		return 2
	case domain.DifficultyHard:
		return 3
	default:
		return 1
	}
}
