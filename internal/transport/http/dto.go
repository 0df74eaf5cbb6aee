package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"quiz-participation-service/internal/app"
	"quiz-participation-service/internal/domain"
)

// fixed2 renders a decimal as a JSON number with exactly two fractional digits.
type fixed2 decimal.Decimal

func (f fixed2) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(f).StringFixed(2)), nil
}

type startRequest struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	StudentID  string `json:"studentId"`
	ClassName  string `json:"className"`
	AccessCode string `json:"accessCode"`
}

type toggleRequest struct {
	QuestionID string `json:"questionId" binding:"required"`
	AnswerID   string `json:"answerId" binding:"required"`
}

type toggleResponse struct {
	QuestionID string `json:"questionId"`
	AnswerID   string `json:"answerId"`
	Selected   bool   `json:"selected"`
}

type bulkSaveRequest struct {
	Answers []domain.Selection `json:"answers"`
}

type selectionsResponse struct {
	ParticipationID string             `json:"participationId"`
	Selections      []domain.Selection `json:"selections"`
}

type submitResponse struct {
	ParticipationID    string    `json:"participationId"`
	SubmitTime         time.Time `json:"submitTime"`
	Score              *fixed2   `json:"score,omitempty"`
	CorrectAnswers     *int      `json:"correctAnswers,omitempty"`
	TotalQuestions     int       `json:"totalQuestions"`
	ShowScore          bool      `json:"showScore"`
	ShowCorrectAnswers bool      `json:"showCorrectAnswers"`
	Message            string    `json:"message"`
}

func newSubmitResponse(r domain.ScoreResult, d domain.Disclosure) submitResponse {
	resp := submitResponse{
		ParticipationID:    r.AttemptID,
		SubmitTime:         r.SubmittedAt,
		TotalQuestions:     r.TotalQuestions,
		ShowScore:          d.ShowScore,
		ShowCorrectAnswers: d.ShowCorrectAnswers,
		Message:            app.ResultMessage(d, r.Score, r.CorrectCount, r.TotalQuestions),
	}
	if d.ShowScore {
		score := fixed2(r.Score)
		resp.Score = &score
	}
	if d.ShowCorrectAnswers {
		correct := r.CorrectCount
		resp.CorrectAnswers = &correct
	}
	return resp
}

type resultResponse struct {
	ParticipationID    string                  `json:"participationId"`
	SubmitTime         time.Time               `json:"submitTime"`
	Score              *fixed2                 `json:"score,omitempty"`
	CorrectAnswers     *int                    `json:"correctAnswers,omitempty"`
	TotalQuestions     int                     `json:"totalQuestions"`
	ShowScore          bool                    `json:"showScore"`
	ShowCorrectAnswers bool                    `json:"showCorrectAnswers"`
	Review             []domain.QuestionReview `json:"review,omitempty"`
	Message            string                  `json:"message"`
}

func newResultResponse(r domain.ParticipationResult) resultResponse {
	resp := resultResponse{
		ParticipationID:    r.AttemptID,
		SubmitTime:         r.SubmittedAt,
		TotalQuestions:     r.TotalQuestions,
		ShowScore:          r.ShowScore,
		ShowCorrectAnswers: r.ShowCorrectAnswers,
		Review:             r.Review,
		Message:            r.Message,
	}
	if r.Score != nil {
		score := fixed2(*r.Score)
		resp.Score = &score
	}
	if r.ShowCorrectAnswers {
		correct := r.CorrectAnswers
		resp.CorrectAnswers = &correct
	}
	return resp
}

type errorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Kind    domain.Kind `json:"kind"`
}

var kindStatus = map[domain.Kind]int{
	domain.KindNotFound:            http.StatusNotFound,
	domain.KindNotYetAvailable:     http.StatusForbidden,
	domain.KindExpired:             http.StatusGone,
	domain.KindInvalidAccessCode:   http.StatusForbidden,
	domain.KindUnauthorized:        http.StatusForbidden,
	domain.KindQuotaExceeded:       http.StatusTooManyRequests,
	domain.KindAlreadySubmitted:    http.StatusConflict,
	domain.KindNotSubmitted:        http.StatusConflict,
	domain.KindConcurrencyConflict: http.StatusConflict,
	domain.KindInvalid:             http.StatusBadRequest,
	domain.KindInternal:            http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func jsonError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	msg := err.Error()
	if kind == domain.KindInternal {
		_ = c.Error(err)
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, errorResponse{
		Error:   http.StatusText(status),
		Message: msg,
		Kind:    kind,
	})
}

var errBadRequest = errors.New("invalid request body")

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		Error:   http.StatusText(http.StatusBadRequest),
		Message: errBadRequest.Error() + ": " + err.Error(),
		Kind:    domain.KindInvalid,
	})
}
