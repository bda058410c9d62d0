package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"surveyinsights/backend/internal/analysis"
)

// ListEvidence returns finalized submissions matching every non-empty filter,
// newest first. The payload carries the legacy answer columns plus the
// normalized answers keyed by question key under "answers".
func (s *Store) ListEvidence(ctx context.Context, filters analysis.Filters, limit int) ([]analysis.EvidenceRecord, error) {
	filters = filters.Normalize()
	rows, err := s.db.Query(
		ctx,
		`SELECT r.id::text,
		        r.submitted_at,
		        r.continent,
		        r.division,
		        r.role,
		        jsonb_build_object(
		          'ratings', r.ratings,
		          'multiselect', r.multiselect,
		          'text_responses', r.text_responses,
		          'na_responses', COALESCE(r.na_responses, '{}'::jsonb),
		          'answers', COALESCE((
		            SELECT jsonb_object_agg(q.question_key, a.answer_value ORDER BY a.created_at)
		            FROM question_answers a
		            JOIN questions q ON q.id = a.question_id
		            WHERE a.response_id = r.id
		          ), '{}'::jsonb)
		        )
		 FROM survey_responses r
		 WHERE r.is_draft = FALSE
		   AND ($1::text = '' OR r.continent = $1::text)
		   AND ($2::text = '' OR r.division = $2::text)
		   AND ($3::text = '' OR r.role = $3::text)
		 ORDER BY r.submitted_at DESC NULLS LAST, r.id
		 LIMIT $4`,
		filters.Continent,
		filters.Division,
		filters.Role,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	defer rows.Close()

	records := make([]analysis.EvidenceRecord, 0)
	for rows.Next() {
		var (
			record      analysis.EvidenceRecord
			submittedAt *time.Time
			payload     []byte
		)
		if err := rows.Scan(
			&record.ID,
			&submittedAt,
			&record.Continent,
			&record.Division,
			&record.Role,
			&payload,
		); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		if submittedAt != nil {
			utc := submittedAt.UTC()
			record.SubmittedAt = &utc
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, payload); err != nil {
			return nil, fmt.Errorf("compact evidence payload: %w", err)
		}
		record.Payload = json.RawMessage(compact.Bytes())
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence: %w", err)
	}
	return records, nil
}
