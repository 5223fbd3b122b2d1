package quiz

import (
	"github.com/pathwise/pathwise/internal/domain"
	"github.com/pathwise/pathwise/internal/errors"
)

// Pass threshold: a quiz passes when score reaches 70% of the possible marks.
// Expressed as a ratio of integers so the boundary (exactly 70%) is exact.
const (
	passNumerator   = 7
	passDenominator = 10
)

const defaultExplanation = "Please review the topic."

// Answer is one client-submitted response, positionally aligned with the
// quiz's question list.
type Answer struct {
	SelectedOption      string  `json:"selectedOption"`
	ResponseTimeSeconds float64 `json:"responseTime"`
}

// Outcome is the result of scoring a submission. It carries no side effects;
// the caller applies it to the quiz record.
type Outcome struct {
	Responses     []domain.QuizResponse
	Score         int
	TotalPossible int
	Result        domain.Result
}

// Score grades a submission against the quiz's question set. Correctness is
// exact string match on the selected option, with no normalization or partial
// credit. The response count must equal the question count.
func Score(questions []domain.Question, answers []Answer) (*Outcome, error) {
	if len(answers) != len(questions) {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("expected %d responses, got %d", len(questions), len(answers)))
	}

	out := &Outcome{
		Responses: make([]domain.QuizResponse, 0, len(questions)),
	}

	for i, q := range questions {
		a := answers[i]
		correct := a.SelectedOption == q.CorrectAnswer

		marks := 0
		if correct {
			marks = q.Marks
		}
		out.Score += marks
		out.TotalPossible += q.Marks

		feedback := "Correct!"
		if !correct {
			explanation := q.Explanation
			if explanation == "" {
				explanation = defaultExplanation
			}
			feedback = "Incorrect. " + explanation
		}

		out.Responses = append(out.Responses, domain.QuizResponse{
			Question:            q.Text,
			SelectedOption:      a.SelectedOption,
			IsCorrect:           correct,
			MarksObtained:       marks,
			ResponseTimeSeconds: a.ResponseTimeSeconds,
			Feedback:            feedback,
		})
	}

	out.Result = domain.ResultFail
	if passDenominator*out.Score >= passNumerator*out.TotalPossible {
		out.Result = domain.ResultPass
	}

	return out, nil
}
