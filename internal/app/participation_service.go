package app

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"quiz-participation-service/internal/domain"
)

// QuizRepository loads quiz configuration (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizConfig, error)
}

// InvitationRepository answers whitelist lookups for private quizzes.
type InvitationRepository interface {
	IsInvited(ctx context.Context, quizID, email, studentID string) (bool, error)
}

// ResultNotifier delivers result e-mails. Delivery is best effort.
type ResultNotifier interface {
	SendResultEmail(ctx context.Context, msg domain.ResultEmail) error
}

// ParticipationService contains the quiz participation use cases.
type ParticipationService struct {
	quizzes     QuizRepository
	invitations InvitationRepository
	store       ParticipationStore
	notifier    ResultNotifier
	hub         *AttemptHub
	now         func() time.Time
	newRand     func() *rand.Rand
	log         logrus.FieldLogger
	mailTimeout time.Duration
	mail        sync.WaitGroup
}

// Option customizes a ParticipationService.
type Option func(*ParticipationService)

// WithClock overrides the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *ParticipationService) { s.now = now }
}

// WithRand sets the random source used for each admission's shuffle snapshot.
func WithRand(newRand func() *rand.Rand) Option {
	return func(s *ParticipationService) { s.newRand = newRand }
}

// WithNotifier enables result e-mails through n.
func WithNotifier(n ResultNotifier) Option {
	return func(s *ParticipationService) { s.notifier = n }
}

// WithHub sets the feed that receives attempt events.
func WithHub(h *AttemptHub) Option {
	return func(s *ParticipationService) { s.hub = h }
}

// WithLogger overrides the default logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *ParticipationService) { s.log = l }
}

// NewParticipationService wires the service over its catalog, whitelist and store.
// Without options it uses the wall clock, a crypto-seeded shuffle and a private hub.
func NewParticipationService(quizzes QuizRepository, invitations InvitationRepository, store ParticipationStore, opts ...Option) *ParticipationService {
	s := &ParticipationService{
		quizzes:     quizzes,
		invitations: invitations,
		store:       store,
		hub:         NewAttemptHub(),
		now:         time.Now,
		newRand:     cryptoSeededRand,
		log:         logrus.StandardLogger(),
		mailTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hub exposes the live attempt feed.
func (s *ParticipationService) Hub() *AttemptHub {
	return s.hub
}

// QuizInfo previews a quiz and whether it can be started right now.
func (s *ParticipationService) QuizInfo(ctx context.Context, quizID string) (domain.QuizInfo, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizInfo{}, err
	}

	info := domain.QuizInfo{
		QuizID:             quiz.ID,
		Title:              quiz.Title,
		Description:        quiz.Description,
		StartTime:          quiz.StartTime,
		DueTime:            quiz.DueTime,
		DurationMinutes:    quiz.DurationMinutes,
		TotalQuestions:     len(quiz.Questions),
		RequiresAccessCode: quiz.AccessCode != "",
		IsAvailable:        true,
	}
	switch err := checkAvailability(quiz, s.now().UTC()); err {
	case nil:
	case domain.ErrNotYetAvailable:
		info.IsAvailable = false
		info.Message = "Quiz will be available from " + quiz.StartTime.UTC().Format("02/01/2006 15:04")
	default:
		info.IsAvailable = false
		info.Message = err.Error()
	}
	return info, nil
}

// Admit validates that a participant may start the quiz and creates the attempt.
func (s *ParticipationService) Admit(ctx context.Context, quizID string, participant domain.ParticipantInfo) (domain.AdmissionTicket, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.AdmissionTicket{}, err
	}

	now := s.now().UTC()
	if err := checkAvailability(quiz, now); err != nil {
		return domain.AdmissionTicket{}, err
	}

	participant = participant.Normalized()
	if participant.FullName == "" || (participant.Email == "" && participant.StudentID == "") {
		return domain.AdmissionTicket{}, domain.ErrInvalidParticipant
	}
	if quiz.AccessCode != "" && participant.AccessCode != quiz.AccessCode {
		return domain.AdmissionTicket{}, domain.ErrInvalidAccessCode
	}
	if quiz.AccessType == domain.AccessPrivate {
		invited, err := s.invitations.IsInvited(ctx, quiz.ID, participant.Email, participant.StudentID)
		if err != nil {
			return domain.AdmissionTicket{}, err
		}
		if !invited {
			return domain.AdmissionTicket{}, domain.ErrNotInvited
		}
	}

	questionOrder, answerOrder := Snapshot(quiz, s.newRand())
	participation := domain.Participation{
		ID:         uuid.NewString(),
		QuizID:     quiz.ID,
		FullName:   participant.FullName,
		Email:      participant.Email,
		StudentID:  participant.StudentID,
		ClassName:  participant.ClassName,
		AdmittedAt: now,
		State:      domain.Active{QuestionOrder: questionOrder, AnswerOrder: answerOrder},
	}

	key := participant.Key()
	limit := quiz.AttemptLimit()
	err = s.store.InAdmission(ctx, quiz.ID, key, func(ctx context.Context, tx AdmissionTx) error {
		count, err := tx.CountAttempts(ctx, quiz.ID, key)
		if err != nil {
			return err
		}
		if count >= limit {
			return fmt.Errorf("%w (%d)", domain.ErrQuotaExceeded, limit)
		}
		return tx.Insert(ctx, participation)
	})
	if err != nil {
		return domain.AdmissionTicket{}, err
	}

	s.log.WithFields(logrus.Fields{
		"attempt_id": participation.ID,
		"quiz_id":    quiz.ID,
	}).Info("participant admitted")

	ticket := domain.AdmissionTicket{
		AttemptID:        participation.ID,
		QuizID:           quiz.ID,
		QuizTitle:        quiz.Title,
		Description:      quiz.Description,
		DurationMinutes:  quiz.DurationMinutes,
		StartTime:        now,
		TotalQuestions:   len(quiz.Questions),
		ShuffleQuestions: quiz.ShuffleQuestions,
		ShuffleAnswers:   quiz.ShuffleAnswers,
	}
	if quiz.DurationMinutes != nil {
		end := now.Add(time.Duration(*quiz.DurationMinutes) * time.Minute)
		ticket.EstimatedEndTime = &end
	}
	return ticket, nil
}

// Content replays the attempt's presentation snapshot.
func (s *ParticipationService) Content(ctx context.Context, attemptID string) (domain.AttemptContent, error) {
	participation, err := s.store.GetParticipation(ctx, attemptID)
	if err != nil {
		return domain.AttemptContent{}, err
	}
	active, ok := participation.Active()
	if !ok {
		return domain.AttemptContent{}, domain.ErrAlreadySubmitted
	}
	quiz, err := s.quizzes.GetQuiz(ctx, participation.QuizID)
	if err != nil {
		return domain.AttemptContent{}, err
	}
	return buildContent(participation.ID, quiz, active), nil
}

// Selections returns the current selection ledger of an attempt.
func (s *ParticipationService) Selections(ctx context.Context, attemptID string) ([]domain.Selection, error) {
	if _, err := s.store.GetParticipation(ctx, attemptID); err != nil {
		return nil, err
	}
	return s.store.ListSelections(ctx, attemptID)
}

// ToggleAnswer selects the answer if it is not selected and deselects it otherwise.
func (s *ParticipationService) ToggleAnswer(ctx context.Context, attemptID, questionID, answerID string) (bool, error) {
	sel := domain.Selection{QuestionID: questionID, AnswerID: answerID}
	var selected bool
	err := s.store.InAttempt(ctx, attemptID, func(ctx context.Context, tx AttemptTx) error {
		quiz, err := s.activeQuiz(ctx, tx)
		if err != nil {
			return err
		}
		if err := validateSelection(quiz, sel); err != nil {
			return err
		}
		selected, err = tx.ToggleSelection(ctx, sel)
		return err
	})
	if err != nil {
		return false, err
	}
	s.publishSelection(attemptID, sel, selected)
	return selected, nil
}

// BulkSave applies toggles in order. The batch is all-or-nothing.
func (s *ParticipationService) BulkSave(ctx context.Context, attemptID string, selections []domain.Selection) error {
	states := make([]bool, len(selections))
	err := s.store.InAttempt(ctx, attemptID, func(ctx context.Context, tx AttemptTx) error {
		quiz, err := s.activeQuiz(ctx, tx)
		if err != nil {
			return err
		}
		for i, sel := range selections {
			if err := validateSelection(quiz, sel); err != nil {
				return err
			}
			if states[i], err = tx.ToggleSelection(ctx, sel); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i, sel := range selections {
		s.publishSelection(attemptID, sel, states[i])
	}
	return nil
}

// Submit finalizes an attempt exactly once. The score is computed from the stored
// selection ledger only.
func (s *ParticipationService) Submit(ctx context.Context, attemptID string) (domain.ScoreResult, domain.Disclosure, error) {
	var (
		participation domain.Participation
		quiz          domain.QuizConfig
		result        domain.ScoreResult
	)
	err := s.store.InAttempt(ctx, attemptID, func(ctx context.Context, tx AttemptTx) error {
		var err error
		if quiz, err = s.activeQuiz(ctx, tx); err != nil {
			return err
		}
		participation = tx.Participation()

		selections, err := tx.Selections(ctx)
		if err != nil {
			return err
		}
		result = Score(quiz, selections)
		result.AttemptID = participation.ID
		result.SubmittedAt = s.now().UTC()

		return tx.MarkSubmitted(ctx, domain.Submitted{
			SubmittedAt: result.SubmittedAt,
			Score:       result.Score,
		})
	})
	if err != nil {
		return domain.ScoreResult{}, domain.Disclosure{}, err
	}
	participation.State = domain.Submitted{SubmittedAt: result.SubmittedAt, Score: result.Score}

	s.log.WithFields(logrus.Fields{
		"attempt_id": attemptID,
		"quiz_id":    quiz.ID,
		"score":      result.Score.StringFixed(2),
	}).Info("attempt submitted")

	s.hub.Publish(domain.AttemptEvent{Type: domain.EventSubmitted, AttemptID: attemptID, At: result.SubmittedAt})
	s.dispatchResultEmail(quiz, participation, result)

	return result, Evaluate(participation, quiz, s.now().UTC()), nil
}

// Result returns the disclosure-shaped result of a submitted attempt.
func (s *ParticipationService) Result(ctx context.Context, attemptID string) (domain.ParticipationResult, error) {
	participation, err := s.store.GetParticipation(ctx, attemptID)
	if err != nil {
		return domain.ParticipationResult{}, err
	}
	submitted, ok := participation.Submitted()
	if !ok {
		return domain.ParticipationResult{}, domain.ErrNotSubmitted
	}
	quiz, err := s.quizzes.GetQuiz(ctx, participation.QuizID)
	if err != nil {
		return domain.ParticipationResult{}, err
	}
	selections, err := s.store.ListSelections(ctx, attemptID)
	if err != nil {
		return domain.ParticipationResult{}, err
	}
	disclosure := Evaluate(participation, quiz, s.now().UTC())
	return shapeResult(participation.ID, submitted, quiz, selections, disclosure), nil
}

// Wait blocks until in-flight result e-mails have been handed to the notifier.
func (s *ParticipationService) Wait() {
	s.mail.Wait()
}

func (s *ParticipationService) activeQuiz(ctx context.Context, tx AttemptTx) (domain.QuizConfig, error) {
	participation := tx.Participation()
	if _, ok := participation.Active(); !ok {
		return domain.QuizConfig{}, domain.ErrAlreadySubmitted
	}
	return s.quizzes.GetQuiz(ctx, participation.QuizID)
}

func (s *ParticipationService) publishSelection(attemptID string, sel domain.Selection, selected bool) {
	s.hub.Publish(domain.AttemptEvent{
		Type:      domain.EventSelection,
		AttemptID: attemptID,
		Selection: &sel,
		Selected:  selected,
		At:        s.now().UTC(),
	})
}

func (s *ParticipationService) dispatchResultEmail(quiz domain.QuizConfig, participation domain.Participation, result domain.ScoreResult) {
	if s.notifier == nil || !quiz.SendResultEmail || participation.Email == "" {
		return
	}
	name := participation.FullName
	if name == "" {
		name = "Participant"
	}
	msg := domain.ResultEmail{
		To:              participation.Email,
		ParticipantName: name,
		QuizTitle:       quiz.Title,
		Score:           result.Score,
		CorrectCount:    result.CorrectCount,
		TotalQuestions:  result.TotalQuestions,
	}

	s.mail.Add(1)
	go func() {
		defer s.mail.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.mailTimeout)
		defer cancel()
		if err := s.notifier.SendResultEmail(ctx, msg); err != nil {
			s.log.WithError(err).WithField("attempt_id", participation.ID).Warn("failed to send result email")
		}
	}()
}

func checkAvailability(quiz domain.QuizConfig, now time.Time) error {
	if !quiz.Published {
		return domain.ErrQuizNotPublished
	}
	if quiz.StartTime != nil && now.Before(*quiz.StartTime) {
		return domain.ErrNotYetAvailable
	}
	if quiz.DueTime != nil && now.After(*quiz.DueTime) {
		return domain.ErrQuizExpired
	}
	return nil
}

func validateSelection(quiz domain.QuizConfig, sel domain.Selection) error {
	question, ok := quiz.Question(sel.QuestionID)
	if !ok {
		return domain.ErrQuestionNotFound
	}
	if _, ok := question.Answer(sel.AnswerID); !ok {
		return domain.ErrAnswerNotFound
	}
	return nil
}

func cryptoSeededRand() *rand.Rand {
	var seed [8]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:]))))
}
