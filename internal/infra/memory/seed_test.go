package memory

import (
	"context"
	"testing"
	"time"

	"quiz-participation-service/internal/domain"
)

const seedYAML = `
quizzes:
  - id: quiz-1
    title: Capitals
    published: true
    maxAttempts: 2
    accessType: Private
    dueTime: "2025-03-02T00:00:00Z"
    correctAnswersMode: AfterDueTime
    questions:
      - id: q1
        content: Capital of France?
        points: 1
        answers:
          - {id: a1, content: Paris, correct: true}
          - {id: a2, content: Lyon}
invitations:
  quiz-1:
    - email: ann@example.com
    - studentId: S-1
`

func TestParseSeed(t *testing.T) {
	seed, err := ParseSeed([]byte(seedYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	quiz, ok := seed.Quizzes["quiz-1"]
	if !ok {
		t.Fatalf("quiz-1 missing from %+v", seed.Quizzes)
	}
	if quiz.AccessType != domain.AccessPrivate || quiz.AttemptLimit() != 2 || quiz.CorrectAnswersMode != domain.CorrectAnswersAfterDueTime {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	if quiz.DueTime == nil || !quiz.DueTime.Equal(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected due time %v", quiz.DueTime)
	}
	if len(quiz.Questions) != 1 || !quiz.Questions[0].Answers[0].Correct {
		t.Fatalf("unexpected questions %+v", quiz.Questions)
	}

	invitations := NewStaticInvitations(seed.Invitations)
	if ok, _ := invitations.IsInvited(context.Background(), "quiz-1", "ANN@example.com", ""); !ok {
		t.Fatalf("expected e-mail invitation to match")
	}
	if ok, _ := invitations.IsInvited(context.Background(), "quiz-1", "", "S-1"); !ok {
		t.Fatalf("expected student id invitation to match")
	}
}

func TestParseSeedRejectsQuizWithoutID(t *testing.T) {
	if _, err := ParseSeed([]byte("quizzes:\n  - title: nameless\n")); err == nil {
		t.Fatalf("expected error for quiz without id")
	}
}
