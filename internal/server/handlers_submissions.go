package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"surveyinsights/backend/internal/store"
	"surveyinsights/backend/internal/survey"
)

func (a *App) createSubmission(c *gin.Context) {
	var payload createSubmissionRequest
	if !mustJSON(c, &payload) {
		return
	}
	var configID *string
	if payload.ConfigID != nil {
		configID = optionalString(*payload.ConfigID)
	}

	meta, err := a.deps.Submissions.CreateSubmission(c.Request.Context(), store.NewSubmission{
		SessionID: strings.TrimSpace(payload.SessionID),
		Continent: strings.TrimSpace(payload.Continent),
		Division:  strings.TrimSpace(payload.Division),
		Role:      strings.TrimSpace(payload.Role),
		ConfigID:  configID,
	})
	if err != nil {
		a.writeStoreError(c, err, "Failed to create submission")
		return
	}
	c.JSON(http.StatusCreated, toSubmissionResponse(meta))
}

func (a *App) saveAnswers(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	var payload saveAnswersRequest
	if !mustJSON(c, &payload) {
		return
	}
	if len(payload.Answers) == 0 {
		writeError(c, http.StatusBadRequest, "answers are required")
		return
	}

	ids := make([]string, 0, len(payload.Answers))
	for _, item := range payload.Answers {
		questionID := strings.TrimSpace(item.QuestionID)
		if questionID == "" {
			writeError(c, http.StatusBadRequest, "question_id is required")
			return
		}
		ids = append(ids, questionID)
	}

	questions, err := a.deps.Questions.QuestionsByID(c.Request.Context(), ids)
	if err != nil {
		a.writeStoreError(c, err, "Failed to load questions")
		return
	}

	inputs := make([]store.AnswerInput, 0, len(payload.Answers))
	for _, item := range payload.Answers {
		question, ok := questions[strings.TrimSpace(item.QuestionID)]
		if !ok {
			writeError(c, http.StatusBadRequest, fmt.Sprintf("Unknown question: %s", item.QuestionID))
			return
		}
		if item.NotApplicable {
			if !question.AllowNA {
				writeError(c, http.StatusBadRequest, fmt.Sprintf("Question %s does not allow N/A", question.Key))
				return
			}
		} else if err := question.ValidateAnswer(item.Value); err != nil {
			message := fmt.Sprintf("Invalid value for question %s", question.Key)
			if errors.Is(err, survey.ErrUnknownQuestionType) {
				message = fmt.Sprintf("Question %s has an unsupported type", question.Key)
			}
			writeError(c, http.StatusBadRequest, message)
			return
		}
		inputs = append(inputs, store.AnswerInput{
			QuestionID:    question.ID,
			QuestionKey:   question.Key,
			Value:         item.Value,
			NotApplicable: item.NotApplicable,
		})
	}

	if err := a.deps.Submissions.SaveAnswers(c.Request.Context(), submissionID, inputs); err != nil {
		a.writeStoreError(c, err, "Failed to save answers")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"submission_id": submissionID,
		"saved":         len(inputs),
	})
}

func (a *App) finalizeSubmission(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	var payload finalizeSubmissionRequest
	if c.Request.ContentLength != 0 && !mustJSON(c, &payload) {
		return
	}
	if payload.CompletionTimeSeconds != nil && *payload.CompletionTimeSeconds < 0 {
		writeError(c, http.StatusBadRequest, "completion_time_seconds must not be negative")
		return
	}

	meta, err := a.deps.Submissions.FinalizeSubmission(c.Request.Context(), submissionID, store.FinalizeInput{
		CompletionTimeSeconds: payload.CompletionTimeSeconds,
		NAResponses:           payload.NAResponses,
	})
	if err != nil {
		a.writeStoreError(c, err, "Failed to finalize submission")
		return
	}
	c.JSON(http.StatusOK, toSubmissionResponse(meta))
}
