package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	records []EvidenceRecord
	err     error
	calls   int
	filters Filters
	limit   int
}

func (f *fakeSource) ListEvidence(_ context.Context, filters Filters, limit int) ([]EvidenceRecord, error) {
	f.calls++
	f.filters = filters
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type fakeCompletion struct {
	stream Stream
	err    error
	calls  int
	req    CompletionRequest
}

func (f *fakeCompletion) StreamCompletion(_ context.Context, req CompletionRequest) (Stream, error) {
	f.calls++
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

type sliceStream struct {
	chunks [][]byte
	tail   error
	closed bool
}

func (s *sliceStream) Recv() ([]byte, error) {
	if len(s.chunks) == 0 {
		if s.tail != nil {
			return nil, s.tail
		}
		return nil, io.EOF
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

type upstreamStatusError struct{ status int }

func (e upstreamStatusError) Error() string   { return fmt.Sprintf("upstream status %d", e.status) }
func (e upstreamStatusError) StatusCode() int { return e.status }

func evidence(n int) []EvidenceRecord {
	records := make([]EvidenceRecord, n)
	for i := range records {
		records[i] = EvidenceRecord{
			ID:        fmt.Sprintf("resp-%d", i),
			Continent: []string{"Europe", "Asia"}[i%2],
			Division:  "eng",
			Role:      "ic",
			Payload:   json.RawMessage(fmt.Sprintf(`{"ratings":{"q1":%d}}`, i%5+1)),
		}
	}
	return records
}

func conversation(n int) []Message {
	messages := make([]Message, n)
	for i := range messages {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		messages[i] = Message{Role: role, Content: fmt.Sprintf("message %d", i)}
	}
	return messages
}

func newTestService(source EvidenceSource, completion CompletionClient) *Service {
	return NewService(Settings{APIKey: "sk-test", Model: "test-model", Temperature: 0.7, MaxTokens: 2000}, source, completion, nil)
}

func TestAnalyzeRejectsEmptyConversation(t *testing.T) {
	source := &fakeSource{records: evidence(3)}
	completion := &fakeCompletion{stream: &sliceStream{}}
	_, err := newTestService(source, completion).Analyze(context.Background(), nil, Filters{})

	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.Equal(t, MessageNoMessages, SafeMessage(err))
	assert.Zero(t, source.calls)
	assert.Zero(t, completion.calls)
}

func TestAnalyzeRequiresAPIKey(t *testing.T) {
	source := &fakeSource{records: evidence(3)}
	completion := &fakeCompletion{stream: &sliceStream{}}
	svc := NewService(Settings{Model: "m"}, source, completion, nil)

	_, err := svc.Analyze(context.Background(), conversation(1), Filters{})
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
	assert.Zero(t, source.calls)
	assert.Zero(t, completion.calls)
}

func TestAnalyzeNoMatchingRecords(t *testing.T) {
	source := &fakeSource{}
	completion := &fakeCompletion{stream: &sliceStream{}}
	_, err := newTestService(source, completion).Analyze(context.Background(), conversation(1), Filters{Continent: "Antarctica"})

	require.Error(t, err)
	assert.Equal(t, KindNoData, KindOf(err))
	assert.Equal(t, "No survey responses found with the applied filters", SafeMessage(err))
	assert.Equal(t, 1, source.calls)
	assert.Zero(t, completion.calls, "completion service must not be contacted")
}

func TestAnalyzeStoreFailureIsNotLeaked(t *testing.T) {
	source := &fakeSource{err: errors.New("pq: relation survey_responses does not exist")}
	_, err := newTestService(source, &fakeCompletion{}).Analyze(context.Background(), conversation(1), Filters{})

	require.Error(t, err)
	assert.Equal(t, KindStore, KindOf(err))
	assert.Equal(t, MessageStoreFailure, SafeMessage(err))
	assert.NotContains(t, SafeMessage(err), "relation")
}

func TestAnalyzeBuildsBoundedRequest(t *testing.T) {
	source := &fakeSource{records: evidence(120)}
	completion := &fakeCompletion{stream: &sliceStream{}}
	filters := Filters{Continent: " Europe ", Division: "", Role: "ic"}

	stream, err := newTestService(source, completion).Analyze(context.Background(), conversation(15), filters)
	require.NoError(t, err)
	require.NotNil(t, stream)

	assert.Equal(t, Filters{Continent: "Europe", Role: "ic"}, source.filters)
	assert.Equal(t, DefaultRecordLimit, source.limit)

	req := completion.req
	assert.Equal(t, "test-model", req.Model)
	assert.InDelta(t, 0.7, req.Temperature, 0.0001)
	assert.Equal(t, 2000, req.MaxTokens)

	require.Len(t, req.Messages, 11)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, conversation(15)[5:], req.Messages[1:])

	prompt := req.Messages[0].Content
	assert.Contains(t, prompt, "Responses retrieved: 120")
	assert.Contains(t, prompt, "[R-050]")
	assert.NotContains(t, prompt, "[R-051]")
	assert.Contains(t, prompt, "- Europe: 60 (50.0%)")
	assert.Contains(t, prompt, "continent=Europe, role=ic")
}

func TestAnalyzeCapsRecordsFromSource(t *testing.T) {
	source := &fakeSource{records: evidence(250)}
	completion := &fakeCompletion{stream: &sliceStream{}}

	_, err := newTestService(source, completion).Analyze(context.Background(), conversation(1), Filters{})
	require.NoError(t, err)
	assert.Contains(t, completion.req.Messages[0].Content, "Responses retrieved: 200")
}

func TestAnalyzeSurfacesUpstreamStatus(t *testing.T) {
	source := &fakeSource{records: evidence(2)}
	completion := &fakeCompletion{err: upstreamStatusError{status: 429}}

	_, err := newTestService(source, completion).Analyze(context.Background(), conversation(1), Filters{})
	require.Error(t, err)
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.Equal(t, "AI gateway error: 429", SafeMessage(err))
}

func TestAnalyzeUpstreamTransportError(t *testing.T) {
	source := &fakeSource{records: evidence(2)}
	completion := &fakeCompletion{err: errors.New("dial tcp: connection refused")}

	_, err := newTestService(source, completion).Analyze(context.Background(), conversation(1), Filters{})
	require.Error(t, err)
	assert.Equal(t, MessageUpstream, SafeMessage(err))
	assert.False(t, strings.Contains(SafeMessage(err), "dial"))
}
