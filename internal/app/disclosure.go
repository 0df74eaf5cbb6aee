package app

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"quiz-participation-service/internal/domain"
)

// Evaluate decides what a participant may see about their attempt at time now.
// It is evaluated on every read, so an AfterDueTime quiz starts disclosing once the
// due time passes without any write.
func Evaluate(participation domain.Participation, quiz domain.QuizConfig, now time.Time) domain.Disclosure {
	if _, ok := participation.Submitted(); !ok {
		return domain.Disclosure{}
	}

	d := domain.Disclosure{ShowScore: quiz.ShowScoreAfterSubmission}
	switch quiz.CorrectAnswersMode {
	case domain.CorrectAnswersImmediately:
		d.ShowCorrectAnswers = true
	case domain.CorrectAnswersAfterDueTime:
		d.ShowCorrectAnswers = quiz.DueTime != nil && now.After(*quiz.DueTime)
	}
	return d
}

func shapeResult(attemptID string, submitted domain.Submitted, quiz domain.QuizConfig, selections []domain.Selection, d domain.Disclosure) domain.ParticipationResult {
	totals := Score(quiz, selections)

	result := domain.ParticipationResult{
		AttemptID:          attemptID,
		SubmittedAt:        submitted.SubmittedAt,
		TotalQuestions:     totals.TotalQuestions,
		ShowScore:          d.ShowScore,
		ShowCorrectAnswers: d.ShowCorrectAnswers,
	}
	if d.ShowScore {
		score := submitted.Score
		result.Score = &score
	}
	if d.ShowCorrectAnswers {
		result.CorrectAnswers = totals.CorrectCount
		result.Review = review(quiz, selections)
	}

	result.Message = ResultMessage(d, submitted.Score, totals.CorrectCount, totals.TotalQuestions)
	return result
}

// ResultMessage is the participant-facing summary for a given disclosure.
func ResultMessage(d domain.Disclosure, score decimal.Decimal, correct, total int) string {
	switch {
	case d.ShowScore && d.ShowCorrectAnswers:
		return fmt.Sprintf("You scored %s points! Correct answers: %d/%d", score.StringFixed(2), correct, total)
	case d.ShowScore:
		return fmt.Sprintf("You scored %s points!", score.StringFixed(2))
	case d.ShowCorrectAnswers:
		return fmt.Sprintf("Quiz submitted. You got %d/%d correct.", correct, total)
	default:
		return "Quiz submitted. Results will be available later."
	}
}

func review(quiz domain.QuizConfig, selections []domain.Selection) []domain.QuestionReview {
	selected := make(map[string]struct{}, len(selections))
	for _, sel := range selections {
		selected[sel.AnswerID] = struct{}{}
	}

	out := make([]domain.QuestionReview, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		r := domain.QuestionReview{
			QuestionID:        q.ID,
			CorrectAnswerIDs:  []string{},
			SelectedAnswerIDs: []string{},
		}
		for _, a := range q.Answers {
			if a.Correct {
				r.CorrectAnswerIDs = append(r.CorrectAnswerIDs, a.ID)
			}
			if _, ok := selected[a.ID]; ok {
				r.SelectedAnswerIDs = append(r.SelectedAnswerIDs, a.ID)
			}
		}
		out = append(out, r)
	}
	return out
}
