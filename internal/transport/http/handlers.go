package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"quiz-participation-service/internal/app"
	"quiz-participation-service/internal/domain"
)

// ParticipationHandler exposes the participation use cases over REST.
type ParticipationHandler struct {
	service *app.ParticipationService
}

func NewParticipationHandler(service *app.ParticipationService) *ParticipationHandler {
	return &ParticipationHandler{service: service}
}

// QuizInfo handles GET /api/quizzes/:quizId/info.
func (h *ParticipationHandler) QuizInfo(c *gin.Context) {
	info, err := h.service.QuizInfo(c.Request.Context(), c.Param("quizId"))
	if err != nil {
		jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Start handles POST /api/quizzes/:quizId/start.
func (h *ParticipationHandler) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ticket, err := h.service.Admit(c.Request.Context(), c.Param("quizId"), domain.ParticipantInfo{
		FullName:   req.FullName,
		Email:      req.Email,
		StudentID:  req.StudentID,
		ClassName:  req.ClassName,
		AccessCode: req.AccessCode,
	})
	if err != nil {
		jsonError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

// Content handles GET /api/participations/:id/content.
func (h *ParticipationHandler) Content(c *gin.Context) {
	content, err := h.service.Content(c.Request.Context(), c.Param("id"))
	if err != nil {
		jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, content)
}

// Selections handles GET /api/participations/:id/selections.
func (h *ParticipationHandler) Selections(c *gin.Context) {
	id := c.Param("id")
	sels, err := h.service.Selections(c.Request.Context(), id)
	if err != nil {
		jsonError(c, err)
		return
	}
	if sels == nil {
		sels = []domain.Selection{}
	}
	c.JSON(http.StatusOK, selectionsResponse{ParticipationID: id, Selections: sels})
}

// ToggleAnswer handles POST /api/participations/:id/answer.
func (h *ParticipationHandler) ToggleAnswer(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	selected, err := h.service.ToggleAnswer(c.Request.Context(), c.Param("id"), req.QuestionID, req.AnswerID)
	if err != nil {
		jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, toggleResponse{QuestionID: req.QuestionID, AnswerID: req.AnswerID, Selected: selected})
}

// BulkSave handles POST /api/participations/:id/answers.
func (h *ParticipationHandler) BulkSave(c *gin.Context) {
	var req bulkSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.service.BulkSave(c.Request.Context(), c.Param("id"), req.Answers); err != nil {
		jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Answers saved", "count": len(req.Answers)})
}

// Submit handles POST /api/participations/:id/submit. Any request body is ignored.
func (h *ParticipationHandler) Submit(c *gin.Context) {
	result, disclosure, err := h.service.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSubmitResponse(result, disclosure))
}

// Result handles GET /api/participations/:id/result.
func (h *ParticipationHandler) Result(c *gin.Context) {
	result, err := h.service.Result(c.Request.Context(), c.Param("id"))
	if err != nil {
		jsonError(c, err)
		return
	}
	c.JSON(http.StatusOK, newResultResponse(result))
}
