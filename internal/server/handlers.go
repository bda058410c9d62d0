package server

import (
	"encoding/json"
	"strings"
	"time"

	"surveyinsights/backend/internal/analysis"
	"surveyinsights/backend/internal/survey"
)

type surveyChatRequest struct {
	Messages []analysis.Message `json:"messages"`
	Filters  *analysis.Filters  `json:"filters"`
}

type createSubmissionRequest struct {
	SessionID string  `json:"session_id"`
	Continent string  `json:"continent"`
	Division  string  `json:"division"`
	Role      string  `json:"role"`
	ConfigID  *string `json:"config_id"`
}

type answerItem struct {
	QuestionID    string          `json:"question_id"`
	Value         json.RawMessage `json:"value"`
	NotApplicable bool            `json:"not_applicable"`
}

type saveAnswersRequest struct {
	Answers []answerItem `json:"answers"`
}

type finalizeSubmissionRequest struct {
	CompletionTimeSeconds *int            `json:"completion_time_seconds"`
	NAResponses           map[string]bool `json:"na_responses"`
}

type submissionResponse struct {
	ID                    string          `json:"id"`
	SessionID             string          `json:"session_id"`
	Continent             string          `json:"continent"`
	Division              string          `json:"division"`
	Role                  string          `json:"role"`
	IsDraft               bool            `json:"is_draft"`
	ConfigID              *string         `json:"config_id"`
	SubmittedAt           *time.Time      `json:"submitted_at"`
	CompletionTimeSeconds *int            `json:"completion_time_seconds"`
	NAResponses           map[string]bool `json:"na_responses"`
}

func toSubmissionResponse(meta survey.SubmissionMetadata) submissionResponse {
	na := meta.NAResponses
	if na == nil {
		na = map[string]bool{}
	}
	return submissionResponse{
		ID:                    meta.ID,
		SessionID:             meta.SessionID,
		Continent:             meta.Continent,
		Division:              meta.Division,
		Role:                  meta.Role,
		IsDraft:               meta.IsDraft,
		ConfigID:              meta.ConfigID,
		SubmittedAt:           meta.SubmittedAt,
		CompletionTimeSeconds: meta.CompletionTimeSeconds,
		NAResponses:           na,
	}
}

type responseFilters struct {
	Continent string
	Division  string
	Role      string
}

func (f responseFilters) match(record survey.AggregatedResponse) bool {
	if f.Continent != "" && record.Continent != f.Continent {
		return false
	}
	if f.Division != "" && record.Division != f.Division {
		return false
	}
	if f.Role != "" && record.Role != f.Role {
		return false
	}
	return true
}

func filterResponses(records []survey.AggregatedResponse, filters responseFilters) []survey.AggregatedResponse {
	result := make([]survey.AggregatedResponse, 0, len(records))
	for _, record := range records {
		if filters.match(record) {
			result = append(result, record)
		}
	}
	return result
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func sanitizeCSVFilename(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "all"
	}
	var b strings.Builder
	for _, r := range trimmed {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	sanitized := strings.Trim(b.String(), "_")
	if sanitized == "" {
		return "all"
	}
	return sanitized
}
