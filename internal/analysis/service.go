package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"surveyinsights/backend/internal/observability"
)

const (
	DefaultRecordLimit  = 200
	DefaultSampleSize   = 50
	DefaultPayloadChars = 300
	DefaultHistoryLimit = 10
)

// Settings are fixed at construction. Zero limits fall back to the defaults.
type Settings struct {
	APIKey       string
	Model        string
	Temperature  float32
	MaxTokens    int
	RecordLimit  int
	SampleSize   int
	PayloadChars int
	HistoryLimit int
}

func (s Settings) withDefaults() Settings {
	if s.RecordLimit <= 0 {
		s.RecordLimit = DefaultRecordLimit
	}
	if s.SampleSize <= 0 {
		s.SampleSize = DefaultSampleSize
	}
	if s.PayloadChars <= 0 {
		s.PayloadChars = DefaultPayloadChars
	}
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = DefaultHistoryLimit
	}
	return s
}

type Service struct {
	settings   Settings
	source     EvidenceSource
	completion CompletionClient
	logger     *zerolog.Logger
}

func NewService(settings Settings, source EvidenceSource, completion CompletionClient, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		settings:   settings.withDefaults(),
		source:     source,
		completion: completion,
		logger:     logger,
	}
}

// Analyze prepares the evidence-grounded conversation and opens the upstream
// completion stream. The caller owns the returned stream.
func (s *Service) Analyze(ctx context.Context, conversation []Message, filters Filters) (Stream, error) {
	if len(conversation) == 0 {
		observability.ChatRequests.WithLabelValues(string(KindInvalidInput)).Inc()
		return nil, &Error{Kind: KindInvalidInput, Message: MessageNoMessages}
	}
	if strings.TrimSpace(s.settings.APIKey) == "" {
		observability.ChatRequests.WithLabelValues(string(KindConfiguration)).Inc()
		return nil, &Error{Kind: KindConfiguration, Message: MessageNotConfigured}
	}

	filters = filters.Normalize()
	records, err := s.source.ListEvidence(ctx, filters, s.settings.RecordLimit)
	if err != nil {
		observability.ChatRequests.WithLabelValues(string(KindStore)).Inc()
		return nil, &Error{Kind: KindStore, Message: MessageStoreFailure, Err: err}
	}
	if len(records) == 0 {
		observability.ChatRequests.WithLabelValues(string(KindNoData)).Inc()
		return nil, &Error{Kind: KindNoData, Message: MessageNoData}
	}
	if len(records) > s.settings.RecordLimit {
		records = records[:s.settings.RecordLimit]
	}
	observability.ChatEvidenceRecords.Observe(float64(len(records)))

	cited := AssignCitations(records)
	prompt := BuildSystemPrompt(NewPromptContext(filters, cited, s.settings.SampleSize, s.settings.PayloadChars))
	messages := BuildMessages(prompt, conversation, s.settings.HistoryLimit)

	s.logger.Debug().
		Int("records", len(cited)).
		Int("messages", len(messages)).
		Str("filters", describeFilters(filters)).
		Msg("starting survey analysis completion")

	stream, err := s.completion.StreamCompletion(ctx, CompletionRequest{
		Model:       s.settings.Model,
		Messages:    messages,
		Temperature: s.settings.Temperature,
		MaxTokens:   s.settings.MaxTokens,
	})
	if err != nil {
		observability.ChatRequests.WithLabelValues(string(KindUpstream)).Inc()
		return nil, &Error{Kind: KindUpstream, Message: upstreamMessage(err), Err: err}
	}
	observability.ChatRequests.WithLabelValues("streaming").Inc()
	return stream, nil
}

type statusCoder interface {
	StatusCode() int
}

func upstreamMessage(err error) string {
	var coded statusCoder
	if errors.As(err, &coded) {
		return fmt.Sprintf("AI gateway error: %d", coded.StatusCode())
	}
	return MessageUpstream
}
