package survey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"surveyinsights/backend/internal/observability"
)

// ResponseStore is the read side the reconciler needs. Both lists may be
// empty. Answers come newest first; submissions are non-draft only,
// newest first.
type ResponseStore interface {
	ListAnswers(ctx context.Context, scope Scope) ([]QuestionAnswer, error)
	ListSubmissions(ctx context.Context, scope Scope) ([]SubmissionMetadata, error)
}

type Reconciler struct {
	store  ResponseStore
	logger *zerolog.Logger
}

func NewReconciler(store ResponseStore, logger *zerolog.Logger) *Reconciler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Reconciler{store: store, logger: logger}
}

// Reconcile returns one AggregatedResponse per non-draft submission in scope.
// Any read failure aborts the whole call.
func (r *Reconciler) Reconcile(ctx context.Context, scope Scope) ([]AggregatedResponse, error) {
	started := time.Now()

	var (
		answers     []QuestionAnswer
		submissions []SubmissionMetadata
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		loaded, err := r.store.ListAnswers(groupCtx, scope)
		if err != nil {
			return fmt.Errorf("list answers: %w", err)
		}
		answers = loaded
		return nil
	})
	group.Go(func() error {
		loaded, err := r.store.ListSubmissions(groupCtx, scope)
		if err != nil {
			return fmt.Errorf("list submissions: %w", err)
		}
		submissions = loaded
		return nil
	})
	if err := group.Wait(); err != nil {
		observability.ReconcileRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	records := r.merge(answers, submissions)

	observability.ReconcileRuns.WithLabelValues("ok").Inc()
	observability.ReconcileDuration.Observe(time.Since(started).Seconds())
	observability.ReconciledRecords.Set(float64(len(records)))
	return records, nil
}

func (r *Reconciler) merge(answers []QuestionAnswer, submissions []SubmissionMetadata) []AggregatedResponse {
	metaByID := make(map[string]SubmissionMetadata, len(submissions))
	for _, meta := range submissions {
		metaByID[meta.ID] = meta
	}

	byID := make(map[string]*AggregatedResponse, len(submissions))
	order := make([]string, 0, len(submissions))

	// Pass 1: normalized answers. They are applied before any legacy data,
	// so their values win for every key they cover.
	for _, answer := range answers {
		record, ok := byID[answer.ResponseID]
		if !ok {
			if meta, found := metaByID[answer.ResponseID]; found {
				record = FromMetadata(meta)
				seedNAResponses(record, meta.NAResponses)
			} else {
				record = fromAnswerOnly(answer)
			}
			byID[answer.ResponseID] = record
			order = append(order, answer.ResponseID)
		}
		if err := ApplyAnswer(record, answer); err != nil {
			event := r.logger.Warn()
			if !errors.Is(err, ErrUnknownQuestionType) {
				event = r.logger.Debug()
			}
			event.Err(err).
				Str("submission_id", answer.ResponseID).
				Str("question_id", answer.QuestionID).
				Str("question_type", answer.QuestionType).
				Msg("answer skipped during reconciliation")
		}
	}

	// Pass 2: legacy fallback for submissions without normalized answers.
	for _, meta := range submissions {
		if _, ok := byID[meta.ID]; ok {
			continue
		}
		byID[meta.ID] = FromMetadata(meta)
		order = append(order, meta.ID)
	}

	result := make([]AggregatedResponse, 0, len(order))
	for _, id := range order {
		record := byID[id]
		if record.IsDraft {
			continue
		}
		result = append(result, *record)
	}
	return result
}
