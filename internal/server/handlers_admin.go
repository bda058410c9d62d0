package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"surveyinsights/backend/internal/survey"
)

// loadResponses reconciles the scoped responses and applies the optional
// demographic filters. It writes the error response itself.
func (a *App) loadResponses(c *gin.Context) ([]survey.AggregatedResponse, string, bool) {
	configID := strings.TrimSpace(c.Query("config_id"))
	records, err := a.deps.Responses.Reconcile(c.Request.Context(), survey.Scope{ConfigID: configID})
	if err != nil {
		a.logger.Error().Err(err).Str("config_id", configID).Msg("failed to reconcile responses")
		writeError(c, http.StatusInternalServerError, "Failed to load survey responses")
		return nil, configID, false
	}
	records = filterResponses(records, responseFilters{
		Continent: strings.TrimSpace(c.Query("continent")),
		Division:  strings.TrimSpace(c.Query("division")),
		Role:      strings.TrimSpace(c.Query("role")),
	})
	survey.SortNewestFirst(records)
	return records, configID, true
}

func (a *App) listResponses(c *gin.Context) {
	records, _, ok := a.loadResponses(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":     len(records),
		"responses": records,
	})
}

func (a *App) summarizeResponses(c *gin.Context) {
	records, _, ok := a.loadResponses(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, survey.Summarize(records))
}

func (a *App) exportResponsesCSV(c *gin.Context) {
	records, configID, ok := a.loadResponses(c)
	if !ok {
		return
	}

	var out bytes.Buffer
	if err := survey.WriteCSV(&out, records); err != nil {
		a.logger.Error().Err(err).Msg("failed to build response export")
		writeError(c, http.StatusInternalServerError, "Failed to build CSV")
		return
	}

	if admin, ok := adminUserFromContext(c); ok {
		a.logger.Info().
			Str("admin", admin.Subject).
			Str("config_id", configID).
			Int("rows", len(records)).
			Msg("survey responses exported")
	}

	filename := fmt.Sprintf(
		"survey_responses_%s_%s.csv",
		sanitizeCSVFilename(configID),
		time.Now().UTC().Format("20060102_150405"),
	)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", out.Bytes())
}
