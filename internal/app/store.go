package app

import (
	"context"
	"time"

	"quiz-participation-service/internal/domain"
)

// ParticipationStore persists attempts and their selection ledger.
// Every mutation runs inside a scope that the implementation makes atomic; the handle
// passed to the callback is only valid until the callback returns.
type ParticipationStore interface {
	// InAdmission serializes fn against other admissions of the same quiz and participant key.
	InAdmission(ctx context.Context, quizID string, key domain.ParticipantKey, fn func(ctx context.Context, tx AdmissionTx) error) error
	// InAttempt loads and locks one participation. Writes made through tx are
	// committed only when fn returns nil. Unknown ids yield domain.ErrAttemptNotFound.
	InAttempt(ctx context.Context, attemptID string, fn func(ctx context.Context, tx AttemptTx) error) error

	GetParticipation(ctx context.Context, attemptID string) (domain.Participation, error)
	ListSelections(ctx context.Context, attemptID string) ([]domain.Selection, error)
	// ListActive returns up to limit active participations ordered by (AdmittedAt, ID),
	// starting strictly after the cursor. A nil cursor starts from the oldest.
	ListActive(ctx context.Context, after *ActiveCursor, limit int) ([]domain.Participation, error)
}

// ActiveCursor is the position of the last participation of a ListActive page.
type ActiveCursor struct {
	AdmittedAt time.Time
	ID         string
}

// CursorOf returns the cursor positioned at p.
func CursorOf(p domain.Participation) *ActiveCursor {
	return &ActiveCursor{AdmittedAt: p.AdmittedAt, ID: p.ID}
}

// AdmissionTx is the handle of an admission scope.
type AdmissionTx interface {
	CountAttempts(ctx context.Context, quizID string, key domain.ParticipantKey) (int, error)
	Insert(ctx context.Context, p domain.Participation) error
}

// AttemptTx is the handle of an attempt scope.
type AttemptTx interface {
	Participation() domain.Participation
	// ToggleSelection removes the answer if selected, inserts it otherwise,
	// and reports whether it is selected afterwards.
	ToggleSelection(ctx context.Context, sel domain.Selection) (bool, error)
	Selections(ctx context.Context) ([]domain.Selection, error)
	// MarkSubmitted finalizes the attempt and clears its snapshots. It fails with
	// domain.ErrAlreadySubmitted when the attempt is no longer active.
	MarkSubmitted(ctx context.Context, st domain.Submitted) error
}
