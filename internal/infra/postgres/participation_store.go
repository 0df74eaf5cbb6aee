package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"quiz-participation-service/internal/app"
	"quiz-participation-service/internal/domain"
)

type participationRow struct {
	bun.BaseModel `bun:"table:participations"`

	ID            string              `bun:"id,pk"`
	QuizID        string              `bun:"quiz_id,notnull"`
	FullName      string              `bun:"full_name,notnull"`
	Email         string              `bun:"email,nullzero"`
	StudentID     string              `bun:"student_id,nullzero"`
	ClassName     string              `bun:"class_name,nullzero"`
	AdmittedAt    time.Time           `bun:"admitted_at,notnull"`
	QuestionOrder []string            `bun:"question_order,type:jsonb,nullzero"`
	AnswerOrder   map[string][]string `bun:"answer_order,type:jsonb,nullzero"`
	SubmittedAt   *time.Time          `bun:"submitted_at"`
	Score         decimal.NullDecimal `bun:"score,type:numeric(5,2)"`
}

type selectionRow struct {
	bun.BaseModel `bun:"table:answer_selections"`

	ParticipationID string    `bun:"participation_id,pk"`
	AnswerID        string    `bun:"answer_id,pk"`
	QuestionID      string    `bun:"question_id,notnull"`
	SelectedAt      time.Time `bun:"selected_at,notnull"`
}

// ParticipationStore persists participations and the selection ledger with bun.
type ParticipationStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewParticipationStore(db *bun.DB) *ParticipationStore {
	return &ParticipationStore{db: db, now: time.Now}
}

// InAdmission runs fn in a transaction holding an advisory lock on (quiz, participant key),
// so concurrent admissions of one participant count and insert one after another.
func (s *ParticipationStore) InAdmission(ctx context.Context, quizID string, key domain.ParticipantKey, fn func(ctx context.Context, tx app.AdmissionTx) error) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext(?))`, quizID+"|"+key.String()); err != nil {
			return err
		}
		return fn(ctx, &admissionTx{tx: tx})
	})
	return mapErr(err)
}

// InAttempt runs fn in a transaction holding the participation row lock.
func (s *ParticipationStore) InAttempt(ctx context.Context, attemptID string, fn func(ctx context.Context, tx app.AttemptTx) error) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var row participationRow
		err := tx.NewSelect().Model(&row).Where("id = ?", attemptID).For("UPDATE").Scan(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, &attemptTx{tx: tx, participation: row.toDomain(), now: s.now})
	})
	return mapErr(err)
}

func (s *ParticipationStore) GetParticipation(ctx context.Context, attemptID string) (domain.Participation, error) {
	var row participationRow
	if err := s.db.NewSelect().Model(&row).Where("id = ?", attemptID).Scan(ctx); err != nil {
		return domain.Participation{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *ParticipationStore) ListSelections(ctx context.Context, attemptID string) ([]domain.Selection, error) {
	exists, err := s.db.NewSelect().Model((*participationRow)(nil)).Where("id = ?", attemptID).Exists(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	if !exists {
		return nil, domain.ErrAttemptNotFound
	}
	return listSelections(ctx, s.db, attemptID)
}

// ListActive pages through active attempts in (admitted_at, id) order.
func (s *ParticipationStore) ListActive(ctx context.Context, after *app.ActiveCursor, limit int) ([]domain.Participation, error) {
	var rows []participationRow
	q := s.db.NewSelect().Model(&rows).
		Where("submitted_at IS NULL").
		OrderExpr("admitted_at ASC, id ASC")
	if after != nil {
		q = q.Where("(admitted_at, id) > (?, ?)", after.AdmittedAt, after.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, mapErr(err)
	}
	out := make([]domain.Participation, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

type admissionTx struct {
	tx bun.Tx
}

func (a *admissionTx) CountAttempts(ctx context.Context, quizID string, key domain.ParticipantKey) (int, error) {
	q := a.tx.NewSelect().Model((*participationRow)(nil)).Where("quiz_id = ?", quizID)
	if key.Kind == domain.KeyStudentID {
		q = q.Where("student_id = ?", key.Value)
	} else {
		q = q.Where("lower(email) = lower(?)", key.Value)
	}
	return q.Count(ctx)
}

func (a *admissionTx) Insert(ctx context.Context, p domain.Participation) error {
	row := fromDomain(p)
	_, err := a.tx.NewInsert().Model(&row).Exec(ctx)
	return err
}

type attemptTx struct {
	tx            bun.Tx
	participation domain.Participation
	now           func() time.Time
}

func (a *attemptTx) Participation() domain.Participation {
	return a.participation
}

func (a *attemptTx) ToggleSelection(ctx context.Context, sel domain.Selection) (bool, error) {
	res, err := a.tx.NewDelete().
		Model((*selectionRow)(nil)).
		Where("participation_id = ?", a.participation.ID).
		Where("answer_id = ?", sel.AnswerID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}

	row := selectionRow{
		ParticipationID: a.participation.ID,
		AnswerID:        sel.AnswerID,
		QuestionID:      sel.QuestionID,
		SelectedAt:      a.now().UTC(),
	}
	if _, err := a.tx.NewInsert().Model(&row).Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (a *attemptTx) Selections(ctx context.Context) ([]domain.Selection, error) {
	return listSelections(ctx, a.tx, a.participation.ID)
}

// MarkSubmitted finalizes the row only if it is still active; a lost race yields ErrAlreadySubmitted.
func (a *attemptTx) MarkSubmitted(ctx context.Context, st domain.Submitted) error {
	res, err := a.tx.NewUpdate().
		Model((*participationRow)(nil)).
		Set("submitted_at = ?", st.SubmittedAt).
		Set("score = ?", st.Score).
		Set("question_order = NULL").
		Set("answer_order = NULL").
		Where("id = ?", a.participation.ID).
		Where("submitted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrAlreadySubmitted
	}
	return nil
}

func listSelections(ctx context.Context, db bun.IDB, attemptID string) ([]domain.Selection, error) {
	var rows []selectionRow
	err := db.NewSelect().
		Model(&rows).
		Where("participation_id = ?", attemptID).
		Order("selected_at ASC", "answer_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]domain.Selection, len(rows))
	for i, row := range rows {
		out[i] = domain.Selection{QuestionID: row.QuestionID, AnswerID: row.AnswerID}
	}
	return out, nil
}

func fromDomain(p domain.Participation) participationRow {
	row := participationRow{
		ID:         p.ID,
		QuizID:     p.QuizID,
		FullName:   p.FullName,
		Email:      p.Email,
		StudentID:  p.StudentID,
		ClassName:  p.ClassName,
		AdmittedAt: p.AdmittedAt,
	}
	switch st := p.State.(type) {
	case domain.Active:
		row.QuestionOrder = st.QuestionOrder
		row.AnswerOrder = st.AnswerOrder
	case domain.Submitted:
		at := st.SubmittedAt
		row.SubmittedAt = &at
		row.Score = decimal.NewNullDecimal(st.Score)
	}
	return row
}

func (r participationRow) toDomain() domain.Participation {
	p := domain.Participation{
		ID:         r.ID,
		QuizID:     r.QuizID,
		FullName:   r.FullName,
		Email:      r.Email,
		StudentID:  r.StudentID,
		ClassName:  r.ClassName,
		AdmittedAt: r.AdmittedAt.UTC(),
	}
	if r.SubmittedAt != nil {
		p.State = domain.Submitted{SubmittedAt: r.SubmittedAt.UTC(), Score: r.Score.Decimal}
	} else {
		p.State = domain.Active{QuestionOrder: r.QuestionOrder, AnswerOrder: r.AnswerOrder}
	}
	return p
}

// conflictCodes are SQLSTATEs of transactions that lost to a concurrent one.
var conflictCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrAttemptNotFound
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && conflictCodes[pgErr.Field('C')] {
		return fmt.Errorf("%w: %s", domain.ErrConcurrencyConflict, pgErr.Field('M'))
	}
	return err
}
