// Package survey holds the survey domain model and the response reconciler
// that merges the legacy per-submission table with the normalized
// per-answer table into one AggregatedResponse per submission.
package survey

import (
	"encoding/json"
	"errors"
	"time"
)

const (
	QuestionTypeRating      = "rating"
	QuestionTypeMultiselect = "multiselect"
	QuestionTypeText        = "text"
	QuestionTypeDemographic = "demographic"
)

var (
	ErrUnknownQuestionType = errors.New("unknown question type")
	ErrInvalidAnswerValue  = errors.New("invalid answer value")
)

// Scope narrows reads to one survey configuration. The zero value means all.
type Scope struct {
	ConfigID string
}

// SubmissionMetadata is one row of the legacy survey_responses table.
type SubmissionMetadata struct {
	ID                    string
	SessionID             string
	Continent             string
	Division              string
	Role                  string
	SubmittedAt           *time.Time
	CompletionTimeSeconds *int
	IsDraft               bool
	ConfigID              *string
	NAResponses           map[string]bool
}

// QuestionAnswer is one normalized answer joined with its question.
// SubmissionDraft mirrors the owning submission's draft flag when the
// submission row exists.
type QuestionAnswer struct {
	ID              string
	ResponseID      string
	QuestionID      string
	QuestionType    string
	QuestionKey     string
	Section         string
	ConfigID        *string
	Value           json.RawMessage
	SubmissionDraft bool
	CreatedAt       time.Time
}

// Key is the map key an answer is stored under.
func (a QuestionAnswer) Key() string {
	if a.QuestionKey != "" {
		return a.QuestionKey
	}
	return a.QuestionID
}

// AggregatedResponse is the unified, derived view of one submission.
type AggregatedResponse struct {
	ID                    string              `json:"id"`
	SessionID             string              `json:"session_id"`
	Continent             string              `json:"continent"`
	Division              string              `json:"division"`
	Role                  string              `json:"role"`
	SubmittedAt           *time.Time          `json:"submitted_at"`
	CompletionTimeSeconds *int                `json:"completion_time_seconds"`
	IsDraft               bool                `json:"is_draft"`
	ConfigID              *string             `json:"config_id"`
	Ratings               map[string]float64  `json:"ratings"`
	Multiselect           map[string][]string `json:"multiselect"`
	TextResponses         map[string]string   `json:"text_responses"`
	NAResponses           map[string]bool     `json:"na_responses"`
}

func newAggregatedResponse(id string) *AggregatedResponse {
	return &AggregatedResponse{
		ID:            id,
		Ratings:       map[string]float64{},
		Multiselect:   map[string][]string{},
		TextResponses: map[string]string{},
		NAResponses:   map[string]bool{},
	}
}

// AnswerCount is the number of answers across the typed maps.
func (r AggregatedResponse) AnswerCount() int {
	return len(r.Ratings) + len(r.Multiselect) + len(r.TextResponses)
}
