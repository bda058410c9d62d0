package store

import (
	"context"
	"encoding/json"
	"fmt"

	"surveyinsights/backend/internal/survey"
)

const questionColumns = `id::text, config_id::text, question_key, question_type, section, display_order,
		        labels, options, conditional_rules, is_required, is_enabled, allow_na`

// ListQuestions returns the enabled questions of configID ordered for
// display. An empty configID selects the active configuration, or the
// unversioned questions when no configuration is active.
func (s *Store) ListQuestions(ctx context.Context, configID string) ([]survey.Question, error) {
	rows, err := s.db.Query(
		ctx,
		`SELECT `+questionColumns+`
		 FROM questions
		 WHERE is_enabled = TRUE
		   AND (
		     ($1::text <> '' AND config_id::text = $1::text)
		     OR ($1::text = '' AND config_id IS NOT DISTINCT FROM (
		       SELECT id FROM survey_configs
		       WHERE is_active = TRUE
		       ORDER BY version DESC, created_at DESC
		       LIMIT 1
		     ))
		   )
		 ORDER BY section, display_order, question_key`,
		configID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	questions := make([]survey.Question, 0)
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, question)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}

// QuestionsByID loads the given questions, enabled or not, keyed by id.
func (s *Store) QuestionsByID(ctx context.Context, ids []string) (map[string]survey.Question, error) {
	result := make(map[string]survey.Question, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.Query(
		ctx,
		`SELECT `+questionColumns+`
		 FROM questions
		 WHERE id::text = ANY($1::text[])`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions by id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		result[question.ID] = question
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions by id: %w", err)
	}
	return result, nil
}

func scanQuestion(row rowScanner) (survey.Question, error) {
	var (
		question   survey.Question
		labelsRaw  []byte
		optionsRaw []byte
		rulesRaw   []byte
	)
	if err := row.Scan(
		&question.ID,
		&question.ConfigID,
		&question.Key,
		&question.Type,
		&question.Section,
		&question.DisplayOrder,
		&labelsRaw,
		&optionsRaw,
		&rulesRaw,
		&question.IsRequired,
		&question.IsEnabled,
		&question.AllowNA,
	); err != nil {
		return survey.Question{}, fmt.Errorf("scan question: %w", err)
	}
	if len(labelsRaw) > 0 {
		if err := json.Unmarshal(labelsRaw, &question.Labels); err != nil {
			return survey.Question{}, fmt.Errorf("decode labels of question %s: %w", question.ID, err)
		}
	}
	if len(optionsRaw) > 0 {
		if err := json.Unmarshal(optionsRaw, &question.Options); err != nil {
			return survey.Question{}, fmt.Errorf("decode options of question %s: %w", question.ID, err)
		}
	}
	if len(rulesRaw) > 0 {
		question.ConditionalRules = json.RawMessage(rulesRaw)
	}
	return question, nil
}
