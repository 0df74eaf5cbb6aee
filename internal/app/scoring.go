package app

import (
	"github.com/shopspring/decimal"
	"quiz-participation-service/internal/domain"
)

var scoreScale = decimal.NewFromInt(10)

// Score computes the totals of an attempt from its selection ledger.
//
// Every linked question adds its points to the total. Every selected answer flagged
// correct adds the points of its question, so selecting two correct options of a
// multi-correct question earns that question twice. The score is earned/total on a
// 0..10 scale rounded half-to-even to 2 digits, or 0 when the quiz carries no points.
func Score(quiz domain.QuizConfig, selections []domain.Selection) domain.ScoreResult {
	type owner struct {
		points  int
		correct bool
	}
	answers := make(map[string]owner)
	total := 0
	for _, q := range quiz.Questions {
		total += q.Points
		for _, a := range q.Answers {
			answers[a.ID] = owner{points: q.Points, correct: a.Correct}
		}
	}

	earned, correct := 0, 0
	for _, sel := range selections {
		a, ok := answers[sel.AnswerID]
		if !ok || !a.correct {
			continue
		}
		correct++
		earned += a.points
	}

	score := decimal.Zero
	if total > 0 {
		score = decimal.NewFromInt(int64(earned)).
			Div(decimal.NewFromInt(int64(total))).
			Mul(scoreScale).
			RoundBank(2)
	}
	return domain.ScoreResult{
		EarnedPoints:   earned,
		TotalPoints:    total,
		CorrectCount:   correct,
		TotalQuestions: len(quiz.Questions),
		Score:          score,
	}
}
