package survey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FromMetadata maps a legacy submission row onto the canonical record.
// Answer maps start empty; only identity and demographic fields are copied.
func FromMetadata(meta SubmissionMetadata) *AggregatedResponse {
	record := newAggregatedResponse(meta.ID)
	record.SessionID = meta.SessionID
	record.Continent = meta.Continent
	record.Division = meta.Division
	record.Role = meta.Role
	record.SubmittedAt = meta.SubmittedAt
	record.CompletionTimeSeconds = meta.CompletionTimeSeconds
	record.IsDraft = meta.IsDraft
	record.ConfigID = meta.ConfigID
	return record
}

// fromAnswerOnly builds the record for an answer whose submission has no
// non-draft metadata row.
func fromAnswerOnly(answer QuestionAnswer) *AggregatedResponse {
	record := newAggregatedResponse(answer.ResponseID)
	record.ConfigID = answer.ConfigID
	record.IsDraft = answer.SubmissionDraft
	return record
}

func seedNAResponses(record *AggregatedResponse, na map[string]bool) {
	for key, value := range na {
		record.NAResponses[key] = value
	}
}

// ApplyAnswer maps one normalized answer into exactly one of the typed maps.
// A key already present is left untouched, so the first answer applied wins.
func ApplyAnswer(record *AggregatedResponse, answer QuestionAnswer) error {
	key := answer.Key()
	switch strings.ToLower(strings.TrimSpace(answer.QuestionType)) {
	case QuestionTypeRating:
		if _, exists := record.Ratings[key]; exists {
			return nil
		}
		value, err := ratingValue(answer.Value)
		if err != nil {
			return err
		}
		record.Ratings[key] = value
	case QuestionTypeMultiselect:
		if _, exists := record.Multiselect[key]; exists {
			return nil
		}
		record.Multiselect[key] = multiselectValue(answer.Value)
	case QuestionTypeText, QuestionTypeDemographic:
		if _, exists := record.TextResponses[key]; exists {
			return nil
		}
		record.TextResponses[key] = textValue(answer.Value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownQuestionType, answer.QuestionType)
	}
	return nil
}

func ratingValue(raw json.RawMessage) (float64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, fmt.Errorf("%w: empty rating", ErrInvalidAnswerValue)
	}
	var number float64
	if err := json.Unmarshal(trimmed, &number); err == nil {
		return number, nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		parsed, perr := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if perr == nil {
			return parsed, nil
		}
	}
	return 0, fmt.Errorf("%w: rating %s", ErrInvalidAnswerValue, truncateRaw(trimmed))
}

func multiselectValue(raw json.RawMessage) []string {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{}
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			result = append(result, v)
		case float64:
			result = append(result, strconv.FormatFloat(v, 'f', -1, 64))
		case bool:
			result = append(result, strconv.FormatBool(v))
		}
	}
	return result
}

func textValue(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return text
	}
	return string(trimmed)
}

func truncateRaw(raw []byte) string {
	const limit = 64
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
