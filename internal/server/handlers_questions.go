package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"surveyinsights/backend/internal/survey"
)

func (a *App) listQuestions(c *gin.Context) {
	configID := strings.TrimSpace(c.Query("config_id"))
	tag := survey.ResolveLanguage(c.Query("lang"), c.GetHeader("Accept-Language"), a.cfg.DefaultLanguage)

	questions, err := a.deps.Questions.ListQuestions(c.Request.Context(), configID)
	if err != nil {
		a.logger.Error().Err(err).Str("config_id", configID).Msg("failed to load questions")
		writeError(c, http.StatusInternalServerError, "Failed to load questions")
		return
	}

	localized := make([]survey.LocalizedQuestion, 0, len(questions))
	for _, question := range questions {
		localized = append(localized, question.Localize(tag))
	}
	c.JSON(http.StatusOK, gin.H{
		"language":  tag.String(),
		"questions": localized,
	})
}
