package app

import (
	"math/rand"

	"quiz-participation-service/internal/domain"
)

// Snapshot draws the presentation order of a new attempt. A nil result means the
// corresponding level is served in catalog order.
func Snapshot(quiz domain.QuizConfig, rnd *rand.Rand) ([]string, map[string][]string) {
	var questionOrder []string
	if quiz.ShuffleQuestions {
		questionOrder = make([]string, len(quiz.Questions))
		for i, q := range quiz.Questions {
			questionOrder[i] = q.ID
		}
		rnd.Shuffle(len(questionOrder), func(i, j int) {
			questionOrder[i], questionOrder[j] = questionOrder[j], questionOrder[i]
		})
	}

	var answerOrder map[string][]string
	if quiz.ShuffleAnswers {
		answerOrder = make(map[string][]string, len(quiz.Questions))
		for _, q := range quiz.Questions {
			ids := make([]string, len(q.Answers))
			for i, a := range q.Answers {
				ids[i] = a.ID
			}
			rnd.Shuffle(len(ids), func(i, j int) {
				ids[i], ids[j] = ids[j], ids[i]
			})
			answerOrder[q.ID] = ids
		}
	}
	return questionOrder, answerOrder
}

// buildContent replays a snapshot against the catalog. Snapshot ids unknown to the
// catalog are skipped; catalog entries missing from the snapshot follow in catalog order.
func buildContent(attemptID string, quiz domain.QuizConfig, active domain.Active) domain.AttemptContent {
	questions := orderByIDs(quiz.Questions, active.QuestionOrder, func(q domain.Question) string { return q.ID })

	content := domain.AttemptContent{
		AttemptID:       attemptID,
		DurationMinutes: quiz.DurationMinutes,
		Questions:       make([]domain.QuestionContent, 0, len(questions)),
	}
	for i, q := range questions {
		answers := q.Answers
		if order, ok := active.AnswerOrder[q.ID]; ok {
			answers = orderByIDs(q.Answers, order, func(a domain.Answer) string { return a.ID })
		}
		options := make([]domain.AnswerOption, len(answers))
		for j, a := range answers {
			options[j] = domain.AnswerOption{
				AnswerID:    a.ID,
				Content:     a.Content,
				OptionLabel: optionLabel(j),
			}
		}
		content.Questions = append(content.Questions, domain.QuestionContent{
			QuestionID:  q.ID,
			Content:     q.Content,
			OrderNumber: i + 1,
			Answers:     options,
		})
	}
	return content
}

func orderByIDs[T any](items []T, order []string, id func(T) string) []T {
	if order == nil {
		return items
	}
	byID := make(map[string]T, len(items))
	for _, item := range items {
		byID[id(item)] = item
	}
	out := make([]T, 0, len(items))
	seen := make(map[string]struct{}, len(order))
	for _, key := range order {
		item, ok := byID[key]
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	for _, item := range items {
		if _, ok := seen[id(item)]; !ok {
			out = append(out, item)
		}
	}
	return out
}

// optionLabel yields A..Z, then AA, AB, ...
func optionLabel(i int) string {
	label := ""
	for i >= 0 {
		label = string(rune('A'+i%26)) + label
		i = i/26 - 1
	}
	return label
}
