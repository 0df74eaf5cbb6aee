package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccessType controls who may start a quiz.
type AccessType string

const (
	AccessPublic  AccessType = "Public"
	AccessPrivate AccessType = "Private"
)

// CorrectAnswersMode decides when correct answers are revealed to a participant.
type CorrectAnswersMode string

const (
	CorrectAnswersNever        CorrectAnswersMode = "Never"
	CorrectAnswersImmediately  CorrectAnswersMode = "Immediately"
	CorrectAnswersAfterDueTime CorrectAnswersMode = "AfterDueTime"
)

// Answer is a selectable option of a question.
type Answer struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Correct bool   `json:"correct"`
}

// Question is a linked question of a quiz, in catalog order.
type Question struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Points  int      `json:"points"`
	Answers []Answer `json:"answers"`
}

// QuizConfig is the read-only quiz configuration owned by the catalog.
type QuizConfig struct {
	ID                       string             `json:"id"`
	Title                    string             `json:"title"`
	Description              string             `json:"description,omitempty"`
	Published                bool               `json:"published"`
	StartTime                *time.Time         `json:"startTime,omitempty"`
	DueTime                  *time.Time         `json:"dueTime,omitempty"`
	DurationMinutes          *int               `json:"durationMinutes,omitempty"`
	MaxAttempts              int                `json:"maxAttempts"`
	ShuffleQuestions         bool               `json:"shuffleQuestions"`
	ShuffleAnswers           bool               `json:"shuffleAnswers"`
	AccessType               AccessType         `json:"accessType"`
	AccessCode               string             `json:"accessCode,omitempty"`
	ShowScoreAfterSubmission bool               `json:"showScoreAfterSubmission"`
	CorrectAnswersMode       CorrectAnswersMode `json:"correctAnswersMode"`
	SendResultEmail          bool               `json:"sendResultEmail"`
	Questions                []Question         `json:"questions"`
}

// AttemptLimit returns MaxAttempts, defaulting to a single attempt.
func (q QuizConfig) AttemptLimit() int {
	if q.MaxAttempts <= 0 {
		return 1
	}
	return q.MaxAttempts
}

// Question looks up a linked question by id.
func (q QuizConfig) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Answer looks up an answer option by id.
func (q Question) Answer(id string) (Answer, bool) {
	for _, answer := range q.Answers {
		if answer.ID == id {
			return answer, true
		}
	}
	return Answer{}, false
}

// ParticipantInfo is what a participant supplies when starting an attempt.
type ParticipantInfo struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email,omitempty"`
	StudentID  string `json:"studentId,omitempty"`
	ClassName  string `json:"className,omitempty"`
	AccessCode string `json:"accessCode,omitempty"`
}

// Normalized trims all identity fields and lowercases the e-mail, so quota and
// invitation checks see one identity per address.
func (p ParticipantInfo) Normalized() ParticipantInfo {
	return ParticipantInfo{
		FullName:   strings.TrimSpace(p.FullName),
		Email:      strings.ToLower(strings.TrimSpace(p.Email)),
		StudentID:  strings.TrimSpace(p.StudentID),
		ClassName:  strings.TrimSpace(p.ClassName),
		AccessCode: p.AccessCode,
	}
}

// KeyKind names the identity used to count attempts.
type KeyKind string

const (
	KeyStudentID KeyKind = "student_id"
	KeyEmail     KeyKind = "email"
)

// ParticipantKey identifies a participant for attempt-quota purposes.
type ParticipantKey struct {
	Kind  KeyKind
	Value string
}

// Key prefers the stable student id and falls back to the e-mail address.
func (p ParticipantInfo) Key() ParticipantKey {
	if p.StudentID != "" {
		return ParticipantKey{Kind: KeyStudentID, Value: p.StudentID}
	}
	return ParticipantKey{Kind: KeyEmail, Value: p.Email}
}

func (k ParticipantKey) String() string {
	return string(k.Kind) + ":" + k.Value
}

// AttemptState is either Active or Submitted.
type AttemptState interface {
	attemptState()
}

// Active carries the presentation snapshot of an attempt that can still change.
// A nil QuestionOrder or AnswerOrder means catalog order.
type Active struct {
	QuestionOrder []string
	AnswerOrder   map[string][]string
}

// Submitted is the terminal state of an attempt.
type Submitted struct {
	SubmittedAt time.Time
	Score       decimal.Decimal
}

func (Active) attemptState()    {}
func (Submitted) attemptState() {}

// Participation is one participant's attempt at a quiz.
type Participation struct {
	ID         string
	QuizID     string
	FullName   string
	Email      string
	StudentID  string
	ClassName  string
	AdmittedAt time.Time
	State      AttemptState
}

// Active reports the active state, if the attempt is still open.
func (p Participation) Active() (Active, bool) {
	st, ok := p.State.(Active)
	return st, ok
}

// Submitted reports the submitted state, if the attempt is finalized.
func (p Participation) Submitted() (Submitted, bool) {
	st, ok := p.State.(Submitted)
	return st, ok
}

// Selection is a single (question, answer) choice.
type Selection struct {
	QuestionID string `json:"questionId"`
	AnswerID   string `json:"answerId"`
}

// AdmissionTicket is returned when an attempt has been started.
type AdmissionTicket struct {
	AttemptID        string     `json:"participationId"`
	QuizID           string     `json:"quizId"`
	QuizTitle        string     `json:"quizTitle"`
	Description      string     `json:"description,omitempty"`
	DurationMinutes  *int       `json:"durationInMinutes,omitempty"`
	StartTime        time.Time  `json:"startTime"`
	EstimatedEndTime *time.Time `json:"estimatedEndTime,omitempty"`
	TotalQuestions   int        `json:"totalQuestions"`
	ShuffleQuestions bool       `json:"isShuffleQuestions"`
	ShuffleAnswers   bool       `json:"isShuffleAnswers"`
}

// QuizInfo is the side-effect free preview of a quiz.
type QuizInfo struct {
	QuizID             string     `json:"quizId"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	StartTime          *time.Time `json:"startTime,omitempty"`
	DueTime            *time.Time `json:"dueTime,omitempty"`
	DurationMinutes    *int       `json:"durationInMinutes,omitempty"`
	TotalQuestions     int        `json:"totalQuestions"`
	RequiresAccessCode bool       `json:"requiresAccessCode"`
	IsAvailable        bool       `json:"isAvailable"`
	Message            string     `json:"message,omitempty"`
}

// AnswerOption is an answer as served to a participant; correctness is never included.
type AnswerOption struct {
	AnswerID    string `json:"answerId"`
	Content     string `json:"content"`
	OptionLabel string `json:"optionLabel"`
}

// QuestionContent is a question as served to a participant.
type QuestionContent struct {
	QuestionID  string         `json:"questionId"`
	Content     string         `json:"content"`
	OrderNumber int            `json:"orderNumber"`
	Answers     []AnswerOption `json:"answers"`
}

// AttemptContent is the ordered content of an active attempt.
type AttemptContent struct {
	AttemptID       string            `json:"participationId"`
	DurationMinutes *int              `json:"durationInMinutes,omitempty"`
	Questions       []QuestionContent `json:"questions"`
}

// ScoreResult holds the totals computed at submission.
type ScoreResult struct {
	AttemptID      string          `json:"participationId"`
	SubmittedAt    time.Time       `json:"submitTime"`
	EarnedPoints   int             `json:"earnedPoints"`
	TotalPoints    int             `json:"totalPoints"`
	CorrectCount   int             `json:"correctAnswers"`
	TotalQuestions int             `json:"totalQuestions"`
	Score          decimal.Decimal `json:"score"`
}

// Disclosure tells what a participant may see about a submitted attempt.
type Disclosure struct {
	ShowScore          bool `json:"showScore"`
	ShowCorrectAnswers bool `json:"showCorrectAnswers"`
}

// QuestionReview pairs the correct answers of a question with what was selected.
type QuestionReview struct {
	QuestionID        string   `json:"questionId"`
	CorrectAnswerIDs  []string `json:"correctAnswerIds"`
	SelectedAnswerIDs []string `json:"selectedAnswerIds"`
}

// ParticipationResult is the disclosure-shaped view of a submitted attempt.
type ParticipationResult struct {
	AttemptID          string           `json:"participationId"`
	SubmittedAt        time.Time        `json:"submitTime"`
	Score              *decimal.Decimal `json:"score"`
	TotalQuestions     int              `json:"totalQuestions"`
	CorrectAnswers     int              `json:"correctAnswers"`
	ShowScore          bool             `json:"showScore"`
	ShowCorrectAnswers bool             `json:"showCorrectAnswers"`
	Review             []QuestionReview `json:"review,omitempty"`
	Message            string           `json:"message"`
}

// ResultEmail is the payload handed to the e-mail collaborator after submission.
type ResultEmail struct {
	To              string          `json:"to"`
	ParticipantName string          `json:"participantName"`
	QuizTitle       string          `json:"quizTitle"`
	Score           decimal.Decimal `json:"score"`
	CorrectCount    int             `json:"correctCount"`
	TotalQuestions  int             `json:"totalQuestions"`
}

// AttemptEvent is pushed to live subscribers of an attempt.
type AttemptEvent struct {
	Type      string     `json:"type"`
	AttemptID string     `json:"participationId"`
	Selection *Selection `json:"selection,omitempty"`
	Selected  bool       `json:"selected,omitempty"`
	At        time.Time  `json:"at"`
}

const (
	EventSelection = "selection"
	EventSubmitted = "submitted"
)
