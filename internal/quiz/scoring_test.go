package quiz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/pathwise/internal/domain"
	"github.com/pathwise/pathwise/internal/errors"
	"github.com/pathwise/pathwise/internal/quiz"
)

func question(correct string, marks int, explanation string) domain.Question {
	return domain.Question{
		Text:          "q",
		Options:       []string{"A", "B", "C", "D"},
		CorrectAnswer: correct,
		Marks:         marks,
		Explanation:   explanation,
	}
}

func TestScore(t *testing.T) {
	type (
		inputs struct {
			questions []domain.Question
			answers   []quiz.Answer
		}

		outputs struct {
			outcome *quiz.Outcome
			err     error
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"all correct should pass with full marks": {
			arrange: func() inputs {
				return inputs{
					questions: []domain.Question{
						question("A", 2, ""),
						question("B", 2, ""),
						question("C", 2, ""),
					},
					answers: []quiz.Answer{
						{SelectedOption: "A"},
						{SelectedOption: "B"},
						{SelectedOption: "C"},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, 6, out.outcome.Score)
				assert.Equal(t, 6, out.outcome.TotalPossible)
				assert.Equal(t, domain.ResultPass, out.outcome.Result)
			},
		},

		"exactly 70 percent should pass": {
			arrange: func() inputs {
				questions := make([]domain.Question, 10)
				answers := make([]quiz.Answer, 10)
				for i := range questions {
					questions[i] = question("A", 1, "")
					answers[i] = quiz.Answer{SelectedOption: "A"}
				}
				for i := 7; i < 10; i++ {
					answers[i].SelectedOption = "B"
				}
				return inputs{questions: questions, answers: answers}
			},

			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, 7, out.outcome.Score)
				assert.Equal(t, domain.ResultPass, out.outcome.Result)
			},
		},

		"just below 70 percent should fail": {
			arrange: func() inputs {
				questions := make([]domain.Question, 10)
				answers := make([]quiz.Answer, 10)
				for i := range questions {
					questions[i] = question("A", 1, "")
					answers[i] = quiz.Answer{SelectedOption: "A"}
				}
				for i := 6; i < 10; i++ {
					answers[i].SelectedOption = "B"
				}
				return inputs{questions: questions, answers: answers}
			},

			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, 6, out.outcome.Score)
				assert.Equal(t, domain.ResultFail, out.outcome.Result)
			},
		},

		"matching is exact, no case folding": {
			arrange: func() inputs {
				return inputs{
					questions: []domain.Question{question("A", 1, "")},
					answers:   []quiz.Answer{{SelectedOption: "a"}},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.False(t, out.outcome.Responses[0].IsCorrect)
				assert.Equal(t, 0, out.outcome.Responses[0].MarksObtained)
			},
		},

		"feedback carries the question explanation when present": {
			arrange: func() inputs {
				return inputs{
					questions: []domain.Question{
						question("A", 1, ""),
						question("A", 1, "A is the only even prime."),
						question("A", 1, ""),
					},
					answers: []quiz.Answer{
						{SelectedOption: "A"},
						{SelectedOption: "B"},
						{SelectedOption: "C"},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, "Correct!", out.outcome.Responses[0].Feedback)
				assert.Equal(t, "Incorrect. A is the only even prime.", out.outcome.Responses[1].Feedback)
				assert.Equal(t, "Incorrect. Please review the topic.", out.outcome.Responses[2].Feedback)
			},
		},

		"response times are carried onto the responses": {
			arrange: func() inputs {
				return inputs{
					questions: []domain.Question{question("A", 1, "")},
					answers:   []quiz.Answer{{SelectedOption: "A", ResponseTimeSeconds: 12.5}},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, 12.5, out.outcome.Responses[0].ResponseTimeSeconds)
			},
		},

		"response count mismatch should be rejected": {
			arrange: func() inputs {
				return inputs{
					questions: []domain.Question{question("A", 1, ""), question("B", 1, "")},
					answers:   []quiz.Answer{{SelectedOption: "A"}},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Error(t, out.err)
				assert.Equal(t, errors.CodeInvalidArgument, errors.Convert(out.err).Code)
			},
		},

		"empty quiz with empty submission should pass vacuously": {
			arrange: func() inputs {
				return inputs{}
			},

			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, 0, out.outcome.Score)
				assert.Equal(t, domain.ResultPass, out.outcome.Result)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}
			out.outcome, out.err = quiz.Score(in.questions, in.answers)
			tt.assert(t, out)
		})
	}
}
