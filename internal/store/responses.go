package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"surveyinsights/backend/internal/survey"
)

// ListAnswers returns every normalized answer joined with its question,
// newest first. SubmissionDraft is true only when the owning submission row
// exists and is still a draft.
func (s *Store) ListAnswers(ctx context.Context, scope survey.Scope) ([]survey.QuestionAnswer, error) {
	rows, err := s.db.Query(
		ctx,
		`SELECT a.id::text,
		        a.response_id::text,
		        a.question_id::text,
		        q.question_type,
		        q.question_key,
		        q.section,
		        a.config_id::text,
		        a.answer_value,
		        COALESCE(r.is_draft, FALSE),
		        a.created_at
		 FROM question_answers a
		 JOIN questions q ON q.id = a.question_id
		 LEFT JOIN survey_responses r ON r.id = a.response_id
		 WHERE ($1::text = '' OR a.config_id::text = $1::text)
		 ORDER BY a.created_at DESC, a.id`,
		scope.ConfigID,
	)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	answers := make([]survey.QuestionAnswer, 0)
	for rows.Next() {
		var (
			answer survey.QuestionAnswer
			value  []byte
		)
		if err := rows.Scan(
			&answer.ID,
			&answer.ResponseID,
			&answer.QuestionID,
			&answer.QuestionType,
			&answer.QuestionKey,
			&answer.Section,
			&answer.ConfigID,
			&value,
			&answer.SubmissionDraft,
			&answer.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answer.Value = json.RawMessage(value)
		answers = append(answers, answer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return answers, nil
}

// ListSubmissions returns finalized submissions, newest first.
func (s *Store) ListSubmissions(ctx context.Context, scope survey.Scope) ([]survey.SubmissionMetadata, error) {
	rows, err := s.db.Query(
		ctx,
		`SELECT `+submissionColumns+`
		 FROM survey_responses
		 WHERE is_draft = FALSE
		   AND ($1::text = '' OR config_id::text = $1::text)
		 ORDER BY submitted_at DESC NULLS LAST, id`,
		scope.ConfigID,
	)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	submissions := make([]survey.SubmissionMetadata, 0)
	for rows.Next() {
		meta, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return submissions, nil
}

const submissionColumns = `id::text, session_id, continent, division, role, submitted_at,
		        completion_time_seconds, is_draft, config_id::text, na_responses`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (survey.SubmissionMetadata, error) {
	var (
		meta        survey.SubmissionMetadata
		submittedAt *time.Time
		seconds     *int32
		naRaw       []byte
	)
	if err := row.Scan(
		&meta.ID,
		&meta.SessionID,
		&meta.Continent,
		&meta.Division,
		&meta.Role,
		&submittedAt,
		&seconds,
		&meta.IsDraft,
		&meta.ConfigID,
		&naRaw,
	); err != nil {
		return survey.SubmissionMetadata{}, fmt.Errorf("scan submission: %w", err)
	}
	if submittedAt != nil {
		utc := submittedAt.UTC()
		meta.SubmittedAt = &utc
	}
	if seconds != nil {
		value := int(*seconds)
		meta.CompletionTimeSeconds = &value
	}
	meta.NAResponses = decodeNAResponses(naRaw)
	return meta, nil
}

// decodeNAResponses accepts the flat {"key": true} shape and tolerates
// legacy follow-up objects of the form {"key": {"na": true}}.
func decodeNAResponses(raw []byte) map[string]bool {
	if len(raw) == 0 {
		return nil
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	result := make(map[string]bool, len(generic))
	for key, value := range generic {
		var flag bool
		if err := json.Unmarshal(value, &flag); err == nil {
			result[key] = flag
			continue
		}
		var nested struct {
			NA *bool `json:"na"`
		}
		if err := json.Unmarshal(value, &nested); err == nil && nested.NA != nil {
			result[key] = *nested.NA
		}
	}
	return result
}
