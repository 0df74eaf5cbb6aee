package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound is returned for an unknown participation id.
	ErrAttemptNotFound = errors.New("participation not found")
	// ErrQuestionNotFound indicates a question id that is not linked to the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAnswerNotFound indicates an answer id that does not belong to the question.
	ErrAnswerNotFound = errors.New("answer not found")

	ErrQuizNotPublished  = errors.New("this quiz is not published yet")
	ErrNotYetAvailable   = errors.New("quiz has not started yet")
	ErrQuizExpired       = errors.New("quiz has expired")
	ErrInvalidAccessCode = errors.New("invalid access code")
	// ErrNotInvited rejects participants missing from a private quiz whitelist.
	ErrNotInvited    = errors.New("you are not invited to this quiz")
	ErrQuotaExceeded = errors.New("maximum number of attempts reached")

	// ErrAlreadySubmitted is returned for any mutation of a finalized attempt.
	ErrAlreadySubmitted = errors.New("quiz has already been submitted")
	// ErrNotSubmitted is returned when reading the result of an active attempt.
	ErrNotSubmitted = errors.New("quiz has not been submitted yet")
	// ErrConcurrencyConflict means a competing transaction won; the read path is safe to retry.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
	// ErrInvalidParticipant indicates missing participant identity.
	ErrInvalidParticipant = errors.New("invalid participant information")
)

// Kind groups errors into the categories surfaced at the request boundary.
type Kind string

const (
	KindNotFound            Kind = "NotFound"
	KindNotYetAvailable     Kind = "NotYetAvailable"
	KindExpired             Kind = "Expired"
	KindInvalidAccessCode   Kind = "InvalidAccessCode"
	KindUnauthorized        Kind = "Unauthorized"
	KindQuotaExceeded       Kind = "QuotaExceeded"
	KindAlreadySubmitted    Kind = "AlreadySubmitted"
	KindNotSubmitted        Kind = "NotSubmitted"
	KindConcurrencyConflict Kind = "ConcurrencyConflict"
	KindInvalid             Kind = "Invalid"
	KindInternal            Kind = "Internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrQuizNotFound, KindNotFound},
	{ErrAttemptNotFound, KindNotFound},
	{ErrQuestionNotFound, KindNotFound},
	{ErrAnswerNotFound, KindNotFound},
	{ErrQuizNotPublished, KindNotYetAvailable},
	{ErrNotYetAvailable, KindNotYetAvailable},
	{ErrQuizExpired, KindExpired},
	{ErrInvalidAccessCode, KindInvalidAccessCode},
	{ErrNotInvited, KindUnauthorized},
	{ErrQuotaExceeded, KindQuotaExceeded},
	{ErrAlreadySubmitted, KindAlreadySubmitted},
	{ErrNotSubmitted, KindNotSubmitted},
	{ErrConcurrencyConflict, KindConcurrencyConflict},
	{ErrInvalidParticipant, KindInvalid},
}

// KindOf classifies err; unknown errors are Internal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
