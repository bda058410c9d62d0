package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyinsights/backend/internal/analysis"
	"surveyinsights/backend/internal/db"
	"surveyinsights/backend/internal/survey"
)

var (
	testPool              *pgxpool.Pool
	integrationSkipReason string
)

func TestMain(m *testing.M) {
	testDatabaseURL := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if testDatabaseURL == "" {
		integrationSkipReason = "integration tests skipped: TEST_DATABASE_URL is not set"
		fmt.Fprintln(os.Stderr, integrationSkipReason)
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pool, err := db.Connect(ctx, withSimpleProtocol(testDatabaseURL), db.PoolOptions{})
	if err == nil {
		nop := zerolog.Nop()
		err = db.Migrate(ctx, pool, &nop)
	}
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration test setup failed: %v\n", err)
		os.Exit(1)
	}

	testPool = pool
	exitCode := m.Run()
	testPool.Close()
	os.Exit(exitCode)
}

func withSimpleProtocol(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	queries := parsed.Query()
	queries.Set("default_query_exec_mode", "simple_protocol")
	parsed.RawQuery = queries.Encode()
	return parsed.String()
}

func requireIntegration(t *testing.T) *Store {
	t.Helper()
	if testPool == nil {
		t.Skip(integrationSkipReason)
	}
	_, err := testPool.Exec(context.Background(),
		`TRUNCATE question_answers, survey_responses, questions, survey_configs CASCADE`)
	require.NoError(t, err)
	return New(testPool)
}

func seedConfig(t *testing.T, active bool) string {
	t.Helper()
	id := uuid.NewString()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO survey_configs (id, name, is_active) VALUES ($1, $2, $3)`, id, "config "+id[:8], active)
	require.NoError(t, err)
	return id
}

func seedQuestion(t *testing.T, configID *string, key, questionType string, order int) string {
	t.Helper()
	id := uuid.NewString()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO questions (id, config_id, question_key, question_type, display_order, labels, options, allow_na)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, TRUE)`,
		id, configID, key, questionType, order,
		`{"en":"Label `+key+`","es":"Etiqueta `+key+`"}`,
		`[{"key":"a","labels":{"en":"A"}},{"key":"b","labels":{"en":"B"}}]`,
	)
	require.NoError(t, err)
	return id
}

type legacyRow struct {
	continent   string
	division    string
	role        string
	isDraft     bool
	submittedAt time.Time
	ratings     string
}

func seedLegacy(t *testing.T, row legacyRow) string {
	t.Helper()
	id := uuid.NewString()
	ratings := row.ratings
	if ratings == "" {
		ratings = "{}"
	}
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO survey_responses (id, session_id, continent, division, role, is_draft, submitted_at, ratings, na_responses)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, '{"skip":true}'::jsonb)`,
		id, "sess-"+id[:8], row.continent, row.division, row.role, row.isDraft, row.submittedAt, ratings,
	)
	require.NoError(t, err)
	return id
}

func seedAnswer(t *testing.T, responseID, questionID, value string) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO question_answers (id, response_id, question_id, answer_value) VALUES ($1, $2, $3, $4::jsonb)`,
		uuid.NewString(), responseID, questionID, value)
	require.NoError(t, err)
}

func TestStoreReconcileEndToEnd(t *testing.T) {
	s := requireIntegration(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	rating := seedQuestion(t, nil, "satisfaction", survey.QuestionTypeRating, 1)
	tools := seedQuestion(t, nil, "tools", survey.QuestionTypeMultiselect, 2)

	withAnswers := seedLegacy(t, legacyRow{continent: "Europe", division: "eng", role: "ic", submittedAt: now})
	seedAnswer(t, withAnswers, rating, `4`)
	seedAnswer(t, withAnswers, tools, `["a","b"]`)
	legacyOnly := seedLegacy(t, legacyRow{continent: "Asia", division: "ops", role: "manager", submittedAt: now.Add(-time.Hour)})
	draft := seedLegacy(t, legacyRow{continent: "Europe", isDraft: true, submittedAt: now})
	seedAnswer(t, draft, rating, `1`)

	records, err := survey.NewReconciler(s, nil).Reconcile(ctx, survey.Scope{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	byID := map[string]survey.AggregatedResponse{}
	for _, record := range records {
		byID[record.ID] = record
	}
	require.Contains(t, byID, withAnswers)
	require.Contains(t, byID, legacyOnly)
	assert.NotContains(t, byID, draft)

	assert.Equal(t, map[string]float64{"satisfaction": 4}, byID[withAnswers].Ratings)
	assert.Equal(t, map[string][]string{"tools": {"a", "b"}}, byID[withAnswers].Multiselect)
	assert.Equal(t, map[string]bool{"skip": true}, byID[withAnswers].NAResponses)
	assert.Equal(t, "Europe", byID[withAnswers].Continent)
	assert.Equal(t, 0, byID[legacyOnly].AnswerCount())
}

func TestStoreListEvidenceFilters(t *testing.T) {
	s := requireIntegration(t)
	ctx := context.Background()
	now := time.Now().UTC()

	question := seedQuestion(t, nil, "satisfaction", survey.QuestionTypeRating, 1)
	newest := seedLegacy(t, legacyRow{continent: "Europe", division: "eng", role: "ic", submittedAt: now, ratings: `{"legacy_q":3}`})
	seedAnswer(t, newest, question, `5`)
	seedLegacy(t, legacyRow{continent: "Europe", division: "ops", role: "ic", submittedAt: now.Add(-time.Hour)})
	seedLegacy(t, legacyRow{continent: "Asia", division: "eng", role: "ic", submittedAt: now.Add(-2 * time.Hour)})
	seedLegacy(t, legacyRow{continent: "Europe", division: "eng", role: "ic", isDraft: true, submittedAt: now})

	records, err := s.ListEvidence(ctx, analysis.Filters{Continent: "Europe"}, 200)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, newest, records[0].ID)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(records[0].Payload, &payload))
	assert.JSONEq(t, `{"satisfaction":5}`, string(payload["answers"]))
	assert.JSONEq(t, `{"legacy_q":3}`, string(payload["ratings"]))

	records, err = s.ListEvidence(ctx, analysis.Filters{Continent: "Europe", Division: "eng"}, 200)
	require.NoError(t, err)
	require.Len(t, records, 1)

	records, err = s.ListEvidence(ctx, analysis.Filters{}, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	records, err = s.ListEvidence(ctx, analysis.Filters{Continent: "Antarctica"}, 200)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStoreSubmissionLifecycle(t *testing.T) {
	s := requireIntegration(t)
	ctx := context.Background()

	configID := seedConfig(t, true)
	rating := seedQuestion(t, &configID, "satisfaction", survey.QuestionTypeRating, 1)
	comments := seedQuestion(t, &configID, "comments", survey.QuestionTypeText, 2)

	meta, err := s.CreateSubmission(ctx, NewSubmission{SessionID: "sess-1", Continent: "Europe", ConfigID: &configID})
	require.NoError(t, err)
	assert.True(t, meta.IsDraft)
	require.NotNil(t, meta.ConfigID)
	assert.Equal(t, configID, *meta.ConfigID)

	require.NoError(t, s.SaveAnswers(ctx, meta.ID, []AnswerInput{
		{QuestionID: rating, QuestionKey: "satisfaction", Value: json.RawMessage(`3`)},
		{QuestionID: comments, QuestionKey: "comments", NotApplicable: true},
	}))
	require.NoError(t, s.SaveAnswers(ctx, meta.ID, []AnswerInput{
		{QuestionID: rating, QuestionKey: "satisfaction", Value: json.RawMessage(`5`)},
	}))

	seconds := 95
	finalized, err := s.FinalizeSubmission(ctx, meta.ID, FinalizeInput{
		CompletionTimeSeconds: &seconds,
		NAResponses:           map[string]bool{"extra": true},
	})
	require.NoError(t, err)
	assert.False(t, finalized.IsDraft)
	require.NotNil(t, finalized.SubmittedAt)
	require.NotNil(t, finalized.CompletionTimeSeconds)
	assert.Equal(t, 95, *finalized.CompletionTimeSeconds)
	assert.Equal(t, map[string]bool{"comments": true, "extra": true}, finalized.NAResponses)

	_, err = s.FinalizeSubmission(ctx, meta.ID, FinalizeInput{})
	require.ErrorIs(t, err, ErrSubmissionFinalized)
	err = s.SaveAnswers(ctx, meta.ID, []AnswerInput{{QuestionID: rating, QuestionKey: "satisfaction", Value: json.RawMessage(`1`)}})
	require.ErrorIs(t, err, ErrSubmissionFinalized)

	_, err = s.FinalizeSubmission(ctx, uuid.NewString(), FinalizeInput{})
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	answers, err := s.ListAnswers(ctx, survey.Scope{ConfigID: configID})
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.JSONEq(t, `5`, string(answers[0].Value))
}

func TestStoreListQuestionsUsesActiveConfig(t *testing.T) {
	s := requireIntegration(t)
	ctx := context.Background()

	seedQuestion(t, nil, "unversioned", survey.QuestionTypeText, 1)
	questions, err := s.ListQuestions(ctx, "")
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "unversioned", questions[0].Key)

	active := seedConfig(t, true)
	second := seedQuestion(t, &active, "second", survey.QuestionTypeRating, 2)
	seedQuestion(t, &active, "first", survey.QuestionTypeMultiselect, 1)

	questions, err = s.ListQuestions(ctx, "")
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "first", questions[0].Key)
	assert.Equal(t, "Label second", questions[1].Labels["en"])
	require.Len(t, questions[0].Options, 2)

	byID, err := s.QuestionsByID(ctx, []string{second, uuid.NewString()})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, survey.QuestionTypeRating, byID[second].Type)
}
