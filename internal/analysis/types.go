// Package analysis implements the survey analysis chat: it retrieves filtered
// submissions, assigns citation ids, builds a bounded prompt and hands the
// conversation to a streaming completion service.
package analysis

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Filters are exact-match conditions; empty fields are ignored.
type Filters struct {
	Continent string `json:"continent,omitempty"`
	Division  string `json:"division,omitempty"`
	Role      string `json:"role,omitempty"`
}

func (f Filters) Normalize() Filters {
	return Filters{
		Continent: strings.TrimSpace(f.Continent),
		Division:  strings.TrimSpace(f.Division),
		Role:      strings.TrimSpace(f.Role),
	}
}

func (f Filters) IsEmpty() bool {
	n := f.Normalize()
	return n.Continent == "" && n.Division == "" && n.Role == ""
}

// EvidenceRecord is one non-draft submission as the chat sees it. Payload is
// the serialized response data.
type EvidenceRecord struct {
	ID          string
	SubmittedAt *time.Time
	Continent   string
	Division    string
	Role        string
	Payload     json.RawMessage
}

// EvidenceSource returns non-draft submissions matching every non-empty
// filter, newest first, at most limit rows.
type EvidenceSource interface {
	ListEvidence(ctx context.Context, filters Filters, limit int) ([]EvidenceRecord, error)
}

type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Stream is a pull-based view of the upstream completion body. Recv returns
// io.EOF once the upstream finished cleanly.
type Stream interface {
	Recv() ([]byte, error)
	Close() error
}

type CompletionClient interface {
	StreamCompletion(ctx context.Context, req CompletionRequest) (Stream, error)
}
