package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"surveyinsights/backend/internal/survey"
)

type NewSubmission struct {
	SessionID string
	Continent string
	Division  string
	Role      string
	ConfigID  *string
}

// AnswerInput is one answer to store. NotApplicable replaces any stored
// value with an N/A mark under QuestionKey.
type AnswerInput struct {
	QuestionID    string
	QuestionKey   string
	Value         json.RawMessage
	NotApplicable bool
}

func (s *Store) CreateSubmission(ctx context.Context, in NewSubmission) (survey.SubmissionMetadata, error) {
	row := s.db.QueryRow(
		ctx,
		`INSERT INTO survey_responses (id, session_id, continent, division, role, config_id, is_draft)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		 RETURNING `+submissionColumns,
		uuid.NewString(),
		in.SessionID,
		in.Continent,
		in.Division,
		in.Role,
		in.ConfigID,
	)
	return scanSubmission(row)
}

func (s *Store) GetSubmission(ctx context.Context, id string) (survey.SubmissionMetadata, error) {
	return getSubmission(ctx, s.db, id, false)
}

func getSubmission(ctx context.Context, q dbQuerier, id string, forUpdate bool) (survey.SubmissionMetadata, error) {
	sql := `SELECT ` + submissionColumns + ` FROM survey_responses WHERE id::text = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	meta, err := scanSubmission(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return survey.SubmissionMetadata{}, ErrSubmissionNotFound
	}
	return meta, err
}

// SaveAnswers upserts answers of a draft submission in one transaction.
func (s *Store) SaveAnswers(ctx context.Context, submissionID string, answers []AnswerInput) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	meta, err := getSubmission(ctx, tx, submissionID, true)
	if err != nil {
		return err
	}
	if !meta.IsDraft {
		return ErrSubmissionFinalized
	}

	for _, answer := range answers {
		if answer.NotApplicable {
			if _, err := tx.Exec(
				ctx,
				`DELETE FROM question_answers WHERE response_id = $1 AND question_id = $2`,
				meta.ID,
				answer.QuestionID,
			); err != nil {
				return fmt.Errorf("clear answer %s: %w", answer.QuestionID, err)
			}
			if _, err := tx.Exec(
				ctx,
				`UPDATE survey_responses
				 SET na_responses = COALESCE(na_responses, '{}'::jsonb) || jsonb_build_object($2::text, TRUE)
				 WHERE id = $1`,
				meta.ID,
				answer.QuestionKey,
			); err != nil {
				return fmt.Errorf("mark %s not applicable: %w", answer.QuestionKey, err)
			}
			continue
		}

		if _, err := tx.Exec(
			ctx,
			`INSERT INTO question_answers (id, response_id, question_id, config_id, answer_value)
			 VALUES ($1, $2, $3, $4, $5::jsonb)
			 ON CONFLICT (response_id, question_id)
			 DO UPDATE SET answer_value = EXCLUDED.answer_value, created_at = NOW()`,
			uuid.NewString(),
			meta.ID,
			answer.QuestionID,
			meta.ConfigID,
			string(answer.Value),
		); err != nil {
			return fmt.Errorf("save answer %s: %w", answer.QuestionID, err)
		}
		if _, err := tx.Exec(
			ctx,
			`UPDATE survey_responses SET na_responses = na_responses - $2::text WHERE id = $1`,
			meta.ID,
			answer.QuestionKey,
		); err != nil {
			return fmt.Errorf("unmark %s: %w", answer.QuestionKey, err)
		}
	}

	return tx.Commit(ctx)
}

type FinalizeInput struct {
	CompletionTimeSeconds *int
	// NAResponses is merged over the marks recorded while answering.
	NAResponses map[string]bool
}

// FinalizeSubmission flips the draft flag. It succeeds once per submission;
// later calls return ErrSubmissionFinalized.
func (s *Store) FinalizeSubmission(ctx context.Context, id string, in FinalizeInput) (survey.SubmissionMetadata, error) {
	var naJSON *string
	if len(in.NAResponses) > 0 {
		encoded, err := json.Marshal(in.NAResponses)
		if err != nil {
			return survey.SubmissionMetadata{}, fmt.Errorf("encode na responses: %w", err)
		}
		value := string(encoded)
		naJSON = &value
	}

	meta, err := scanSubmission(s.db.QueryRow(
		ctx,
		`UPDATE survey_responses
		 SET is_draft = FALSE,
		     submitted_at = NOW(),
		     completion_time_seconds = COALESCE($2, completion_time_seconds),
		     na_responses = CASE
		       WHEN $3::jsonb IS NULL THEN na_responses
		       ELSE COALESCE(na_responses, '{}'::jsonb) || $3::jsonb
		     END
		 WHERE id::text = $1 AND is_draft = TRUE
		 RETURNING `+submissionColumns,
		id,
		in.CompletionTimeSeconds,
		naJSON,
	))
	if err == nil {
		return meta, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return survey.SubmissionMetadata{}, err
	}
	if _, lookupErr := s.GetSubmission(ctx, id); lookupErr != nil {
		return survey.SubmissionMetadata{}, lookupErr
	}
	return survey.SubmissionMetadata{}, ErrSubmissionFinalized
}
