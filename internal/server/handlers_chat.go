package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"surveyinsights/backend/internal/analysis"
)

// surveyChat streams an evidence-grounded analysis of the filtered responses.
// Every failure before the first byte is a 500 with a JSON error body.
func (a *App) surveyChat(c *gin.Context) {
	var payload surveyChatRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusInternalServerError, "Invalid request payload")
		return
	}
	filters := analysis.Filters{}
	if payload.Filters != nil {
		filters = *payload.Filters
	}

	ctx := c.Request.Context()
	stream, err := a.deps.Chat.Analyze(ctx, payload.Messages, filters)
	if err != nil {
		a.writeChatError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	written, err := analysis.Relay(ctx, c.Writer, stream)
	switch {
	case err == nil:
		a.logger.Debug().Int64("bytes", written).Msg("survey chat stream completed")
	case errors.Is(err, context.Canceled):
		a.logger.Info().Int64("bytes", written).Msg("survey chat client disconnected")
	default:
		a.logger.Warn().Err(err).Int64("bytes", written).Msg("survey chat stream aborted")
	}
}

func (a *App) writeChatError(c *gin.Context, err error) {
	event := a.logger.Warn()
	switch analysis.KindOf(err) {
	case analysis.KindStore, analysis.KindUpstream, "":
		event = a.logger.Error()
	}
	event.Err(err).Str("kind", string(analysis.KindOf(err))).Msg("survey chat failed")
	writeError(c, http.StatusInternalServerError, analysis.SafeMessage(err))
}
