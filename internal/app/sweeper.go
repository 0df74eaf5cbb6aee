package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"quiz-participation-service/internal/domain"
)

// ExpirySweeper submits active attempts whose deadline has passed, so they are
// scored from the selections saved so far.
type ExpirySweeper struct {
	svc         *ParticipationService
	store       ParticipationStore
	quizzes     QuizRepository
	grace       time.Duration
	batch       int
	concurrency int
	log         logrus.FieldLogger
}

// NewExpirySweeper pages through active attempts batch at a time, submitting up to
// concurrency of them in parallel.
func NewExpirySweeper(svc *ParticipationService, grace time.Duration, batch, concurrency int) *ExpirySweeper {
	if batch <= 0 {
		batch = 200
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ExpirySweeper{
		svc:         svc,
		store:       svc.store,
		quizzes:     svc.quizzes,
		grace:       grace,
		batch:       batch,
		concurrency: concurrency,
		log:         svc.log.WithField("component", "sweeper"),
	}
}

// Deadline returns when an attempt stops accepting work: the earlier of its
// duration-based end and the quiz due time. ok is false when neither is set.
func Deadline(p domain.Participation, quiz domain.QuizConfig) (time.Time, bool) {
	var (
		deadline time.Time
		ok       bool
	)
	if quiz.DurationMinutes != nil {
		deadline = p.AdmittedAt.Add(time.Duration(*quiz.DurationMinutes) * time.Minute)
		ok = true
	}
	if quiz.DueTime != nil && (!ok || quiz.DueTime.Before(deadline)) {
		deadline = *quiz.DueTime
		ok = true
	}
	return deadline, ok
}

// Sweep runs one pass over every active attempt, batch at a time, and returns
// how many it submitted.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	now := s.svc.now().UTC()
	total := 0
	var after *ActiveCursor
	for {
		page, err := s.store.ListActive(ctx, after, s.batch)
		if err != nil {
			return total, err
		}
		n, err := s.sweepPage(ctx, page, now)
		total += n
		if err != nil {
			return total, err
		}
		if len(page) < s.batch {
			return total, nil
		}
		after = CursorOf(page[len(page)-1])
	}
}

func (s *ExpirySweeper) sweepPage(ctx context.Context, page []domain.Participation, now time.Time) (int, error) {
	var submitted atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range page {
		p := p
		g.Go(func() error {
			quiz, err := s.quizzes.GetQuiz(ctx, p.QuizID)
			if err != nil {
				s.log.WithError(err).WithField("attempt_id", p.ID).Warn("sweep: quiz lookup failed")
				return nil
			}
			deadline, ok := Deadline(p, quiz)
			if !ok || now.Before(deadline.Add(s.grace)) {
				return nil
			}
			_, _, err = s.svc.Submit(ctx, p.ID)
			switch {
			case err == nil:
				submitted.Add(1)
			case errors.Is(err, domain.ErrAlreadySubmitted):
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				s.log.WithError(err).WithField("attempt_id", p.ID).Warn("sweep: submit failed")
			}
			return nil
		})
	}
	err := g.Wait()
	return int(submitted.Load()), err
}

// Run sweeps every interval until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				s.log.WithError(err).Warn("sweep failed")
				continue
			}
			if n > 0 {
				s.log.WithField("submitted", n).Info("expired attempts submitted")
			}
		}
	}
}
