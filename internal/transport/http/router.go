package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"quiz-participation-service/internal/app"
	"quiz-participation-service/internal/domain"
)

// NewRouter wires REST routes, the live attempt feed and health checks.
func NewRouter(service *app.ParticipationService, log logrus.FieldLogger) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(log), recovery(log))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	ws := NewWSHandler(service, log)
	router.GET("/ws", gin.WrapF(ws.ServeWS))

	h := NewParticipationHandler(service)
	api := router.Group("/api")
	{
		api.GET("/quizzes/:quizId/info", h.QuizInfo)
		api.POST("/quizzes/:quizId/start", h.Start)

		p := api.Group("/participations/:id")
		p.GET("/content", h.Content)
		p.GET("/selections", h.Selections)
		p.POST("/answer", h.ToggleAnswer)
		p.POST("/answers", h.BulkSave)
		p.POST("/submit", h.Submit)
		p.GET("/result", h.Result)
	}
	return router
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry.WithError(c.Errors.Last().Err).Error("request failed")
			return
		}
		entry.Debug("request")
	}
}

func recovery(log logrus.FieldLogger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, err any) {
		log.WithField("panic", err).Error("panic recovered")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
			Error:   http.StatusText(http.StatusInternalServerError),
			Message: "internal server error",
			Kind:    domain.KindInternal,
		})
	})
}
