package app_test

import (
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"quiz-participation-service/internal/app"
)

func TestSnapshotIsDeterministicPerSeed(t *testing.T) {
	quiz := manyQuestionQuiz(10)
	quiz.ShuffleQuestions = true
	quiz.ShuffleAnswers = true

	q1, a1 := app.Snapshot(quiz, rand.New(rand.NewSource(7)))
	q2, a2 := app.Snapshot(quiz, rand.New(rand.NewSource(7)))
	if !reflect.DeepEqual(q1, q2) || !reflect.DeepEqual(a1, a2) {
		t.Fatalf("same seed must give the same snapshot")
	}

	sorted := append([]string(nil), q1...)
	sort.Strings(sorted)
	for i, q := range quiz.Questions {
		if sorted[i] != q.ID {
			t.Fatalf("snapshot is not a permutation: %v", q1)
		}
	}
	if len(a1) != len(quiz.Questions) {
		t.Fatalf("expected an answer order per question, got %d", len(a1))
	}
}

func TestSnapshotWithoutShuffle(t *testing.T) {
	q, a := app.Snapshot(manyQuestionQuiz(3), rand.New(rand.NewSource(1)))
	if q != nil || a != nil {
		t.Fatalf("expected nil orders, got %v / %v", q, a)
	}
}
