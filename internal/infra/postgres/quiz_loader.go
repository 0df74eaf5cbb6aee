package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-participation-service/internal/domain"
)

// QuizLoader loads quiz JSONB and invitation whitelists from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.QuizConfig, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizConfig{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuizConfig{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.QuizConfig
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.QuizConfig{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	if quiz.ID == "" {
		quiz.ID = quizID
	}
	return quiz, nil
}

// IsInvited matches the whitelist on e-mail (case-insensitive) or student id.
func (l *QuizLoader) IsInvited(ctx context.Context, quizID, email, studentID string) (bool, error) {
	var invited bool
	err := l.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM quiz_invitations
			WHERE quiz_id = $1
			  AND (($2 <> '' AND lower(email) = lower($2))
			    OR ($3 <> '' AND student_id = $3))
		)`, quizID, email, studentID).Scan(&invited)
	if err != nil {
		return false, fmt.Errorf("check invitation: %w", err)
	}
	return invited, nil
}
