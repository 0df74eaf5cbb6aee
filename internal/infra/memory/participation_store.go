package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"quiz-participation-service/internal/app"
	"quiz-participation-service/internal/domain"
)

// ParticipationStore is an in-memory implementation of app.ParticipationStore.
// Writes made inside InAdmission/InAttempt are staged and only become visible when
// the callback returns nil.
type ParticipationStore struct {
	admissions keyedMutex
	attempts   keyedMutex

	mu             sync.RWMutex
	participations map[string]domain.Participation
	selections     map[string][]domain.Selection
}

func NewParticipationStore() *ParticipationStore {
	return &ParticipationStore{
		participations: make(map[string]domain.Participation),
		selections:     make(map[string][]domain.Selection),
	}
}

func (s *ParticipationStore) InAdmission(ctx context.Context, quizID string, key domain.ParticipantKey, fn func(ctx context.Context, tx app.AdmissionTx) error) error {
	unlock := s.admissions.lock(quizID + "|" + key.String())
	defer unlock()

	tx := &admissionTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range tx.inserts {
		s.participations[p.ID] = p
	}
	return nil
}

func (s *ParticipationStore) InAttempt(ctx context.Context, attemptID string, fn func(ctx context.Context, tx app.AttemptTx) error) error {
	unlock := s.attempts.lock(attemptID)
	defer unlock()

	s.mu.RLock()
	participation, ok := s.participations[attemptID]
	staged := append([]domain.Selection(nil), s.selections[attemptID]...)
	s.mu.RUnlock()
	if !ok {
		return domain.ErrAttemptNotFound
	}

	tx := &attemptTx{participation: participation, selections: staged}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections[attemptID] = tx.selections
	if tx.submitted != nil {
		participation.State = *tx.submitted
		s.participations[attemptID] = participation
	}
	return nil
}

func (s *ParticipationStore) GetParticipation(_ context.Context, attemptID string) (domain.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participations[attemptID]
	if !ok {
		return domain.Participation{}, domain.ErrAttemptNotFound
	}
	return p, nil
}

func (s *ParticipationStore) ListSelections(_ context.Context, attemptID string) ([]domain.Selection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.participations[attemptID]; !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return append([]domain.Selection{}, s.selections[attemptID]...), nil
}

// ListActive pages through active attempts in (AdmittedAt, ID) order.
func (s *ParticipationStore) ListActive(_ context.Context, after *app.ActiveCursor, limit int) ([]domain.Participation, error) {
	s.mu.RLock()
	var out []domain.Participation
	for _, p := range s.participations {
		if _, ok := p.Active(); !ok {
			continue
		}
		if after != nil && !activeAfter(p, after) {
			continue
		}
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].AdmittedAt.Equal(out[j].AdmittedAt) {
			return out[i].AdmittedAt.Before(out[j].AdmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func activeAfter(p domain.Participation, c *app.ActiveCursor) bool {
	if !p.AdmittedAt.Equal(c.AdmittedAt) {
		return p.AdmittedAt.After(c.AdmittedAt)
	}
	return p.ID > c.ID
}

type admissionTx struct {
	store   *ParticipationStore
	inserts []domain.Participation
}

func (tx *admissionTx) CountAttempts(_ context.Context, quizID string, key domain.ParticipantKey) (int, error) {
	count := 0
	match := func(p domain.Participation) bool {
		if p.QuizID != quizID {
			return false
		}
		if key.Kind == domain.KeyStudentID {
			return p.StudentID == key.Value
		}
		return strings.EqualFold(p.Email, key.Value)
	}

	tx.store.mu.RLock()
	for _, p := range tx.store.participations {
		if match(p) {
			count++
		}
	}
	tx.store.mu.RUnlock()

	for _, p := range tx.inserts {
		if match(p) {
			count++
		}
	}
	return count, nil
}

func (tx *admissionTx) Insert(_ context.Context, p domain.Participation) error {
	tx.inserts = append(tx.inserts, p)
	return nil
}

type attemptTx struct {
	participation domain.Participation
	selections    []domain.Selection
	submitted     *domain.Submitted
}

func (tx *attemptTx) Participation() domain.Participation {
	return tx.participation
}

func (tx *attemptTx) ToggleSelection(_ context.Context, sel domain.Selection) (bool, error) {
	if tx.submitted != nil {
		return false, domain.ErrAlreadySubmitted
	}
	for i, existing := range tx.selections {
		if existing == sel {
			tx.selections = append(tx.selections[:i], tx.selections[i+1:]...)
			return false, nil
		}
	}
	tx.selections = append(tx.selections, sel)
	return true, nil
}

func (tx *attemptTx) Selections(_ context.Context) ([]domain.Selection, error) {
	return append([]domain.Selection{}, tx.selections...), nil
}

func (tx *attemptTx) MarkSubmitted(_ context.Context, st domain.Submitted) error {
	if _, ok := tx.participation.Active(); !ok || tx.submitted != nil {
		return domain.ErrAlreadySubmitted
	}
	tx.submitted = &st
	return nil
}

// keyedMutex serializes work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
