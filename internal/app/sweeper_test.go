package app_test

import (
	"context"
	"testing"
	"time"

	"quiz-participation-service/internal/app"
	"quiz-participation-service/internal/domain"
)

func TestDeadlineTakesEarliestBound(t *testing.T) {
	minutes := 30
	due := baseTime.Add(10 * time.Minute)
	p := domain.Participation{AdmittedAt: baseTime}

	if _, ok := app.Deadline(p, domain.QuizConfig{}); ok {
		t.Fatalf("expected no deadline without duration or due time")
	}
	got, ok := app.Deadline(p, domain.QuizConfig{DurationMinutes: &minutes})
	if !ok || !got.Equal(baseTime.Add(30*time.Minute)) {
		t.Fatalf("unexpected duration deadline %v", got)
	}
	got, ok = app.Deadline(p, domain.QuizConfig{DurationMinutes: &minutes, DueTime: &due})
	if !ok || !got.Equal(due) {
		t.Fatalf("expected due time to win, got %v", got)
	}
}

func TestSweeperSubmitsExpiredAttempts(t *testing.T) {
	ctx := context.Background()
	quiz := twoQuestionQuiz()
	quiz.MaxAttempts = 5
	minutes := 15
	quiz.DurationMinutes = &minutes

	now := baseTime
	svc, store := newTestService(quiz, app.WithClock(func() time.Time { return now }))

	stale := admit(t, svc, quiz)
	if _, err := svc.ToggleAnswer(ctx, stale.AttemptID, "q1", "q1-a"); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	now = baseTime.Add(10 * time.Minute)
	fresh := admit(t, svc, quiz)

	now = baseTime.Add(16 * time.Minute)
	sweeper := app.NewExpirySweeper(svc, 0, 10, 2)
	n, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one submitted attempt, got %d", n)
	}

	p, err := store.GetParticipation(ctx, stale.AttemptID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	st, ok := p.Submitted()
	if !ok || st.Score.StringFixed(2) != "5.00" {
		t.Fatalf("stale attempt should be scored from saved selections, got %+v", p.State)
	}
	p, err = store.GetParticipation(ctx, fresh.AttemptID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if _, ok := p.Active(); !ok {
		t.Fatalf("fresh attempt must stay active")
	}

	n, err = sweeper.Sweep(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
}

func TestSweeperRespectsGrace(t *testing.T) {
	ctx := context.Background()
	quiz := twoQuestionQuiz()
	minutes := 5
	quiz.DurationMinutes = &minutes

	now := baseTime
	svc, _ := newTestService(quiz, app.WithClock(func() time.Time { return now }))
	admit(t, svc, quiz)

	now = baseTime.Add(6 * time.Minute)
	n, err := app.NewExpirySweeper(svc, 2*time.Minute, 0, 0).Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("attempt within grace must not be submitted")
	}
}

func TestSweeperPagesPastAttemptsWithoutDeadline(t *testing.T) {
	ctx := context.Background()
	untimed := twoQuestionQuiz()
	untimed.ID = "quiz-open"
	timed := twoQuestionQuiz()
	minutes := 15
	timed.DurationMinutes = &minutes

	now := baseTime
	svc, store := newTestServiceFor(map[string]domain.QuizConfig{
		untimed.ID: untimed,
		timed.ID:   timed,
	}, nil, app.WithClock(func() time.Time { return now }))

	unbounded := admit(t, svc, untimed)
	now = baseTime.Add(time.Minute)
	expired := admit(t, svc, timed)

	now = baseTime.Add(2 * time.Hour)
	n, err := app.NewExpirySweeper(svc, 0, 1, 1).Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one submitted attempt, got %d", n)
	}

	p, err := store.GetParticipation(ctx, expired.AttemptID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if _, ok := p.Submitted(); !ok {
		t.Fatalf("expired attempt behind an unbounded one must be submitted")
	}
	p, err = store.GetParticipation(ctx, unbounded.AttemptID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if _, ok := p.Active(); !ok {
		t.Fatalf("attempt without a deadline must stay active")
	}
}
