// Package llm talks to an OpenAI-compatible chat completions endpoint and
// exposes its server-sent event body as a raw stream.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"surveyinsights/backend/internal/analysis"
	"surveyinsights/backend/internal/config"
	"surveyinsights/backend/internal/observability"
)

const (
	maxErrorBodyBytes = 64 << 10
	readBufferSize    = 4 << 10
)

// UpstreamError is a non-2xx answer from the completion service. Body is kept
// for logs only.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("completion service error (%d)", e.Status)
}

func (e *UpstreamError) StatusCode() int {
	return e.Status
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger
}

func NewClient(cfg config.Config, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.AITimeout()

	limit := rate.Inf
	if cfg.AIRateLimitRPS > 0 {
		limit = rate.Limit(cfg.AIRateLimitRPS)
	}
	burst := int(cfg.AIRateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		apiKey:  strings.TrimSpace(cfg.OpenAIAPIKey),
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.OpenAIBaseURL), "/"),
		// No overall client timeout: the body is streamed for as long as the
		// caller's context allows.
		httpClient: &http.Client{Transport: transport},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

// StreamCompletion opens a streaming chat completion. The request is bound to
// ctx, so cancelling ctx aborts the upstream call and the returned stream.
func (c *Client) StreamCompletion(ctx context.Context, req analysis.CompletionRequest) (analysis.Stream, error) {
	if c.apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not configured")
	}
	if c.baseURL == "" {
		return nil, errors.New("OPENAI_BASE_URL is not configured")
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("OPENAI_MODEL is not configured")
	}

	body, err := json.Marshal(buildChatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("completion rate limit: %w", err)
	}

	response, err := c.send(ctx, req.Model, body)
	if err != nil {
		return nil, err
	}
	if response.StatusCode >= http.StatusInternalServerError && response.StatusCode != http.StatusNotImplemented {
		upstreamErr := c.readUpstreamError(response)
		c.logger.Warn().Int("status", upstreamErr.Status).Msg("completion service unavailable, retrying once")
		response, err = c.send(ctx, req.Model, body)
		if err != nil {
			return nil, err
		}
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		upstreamErr := c.readUpstreamError(response)
		c.logger.Error().
			Int("status", upstreamErr.Status).
			Str("model", req.Model).
			Str("upstream_message", upstreamMessage(upstreamErr.Body)).
			Str("body", truncateForLog(upstreamErr.Body, 1200)).
			Msg("completion service rejected request")
		return nil, upstreamErr
	}

	return &bodyStream{body: response.Body, buf: make([]byte, readBufferSize)}, nil
}

func (c *Client) send(ctx context.Context, model string, body []byte) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "text/event-stream")

	started := time.Now()
	response, err := c.httpClient.Do(request)
	status := "error"
	if err == nil {
		status = strconv.Itoa(response.StatusCode)
	}
	observability.CompletionRequestDuration.WithLabelValues(model, status).Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	return response, nil
}

func (c *Client) readUpstreamError(response *http.Response) *UpstreamError {
	defer response.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
	return &UpstreamError{Status: response.StatusCode, Body: strings.TrimSpace(string(raw))}
}

func buildChatRequest(req analysis.CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, message := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    message.Role,
			Content: message.Content,
		})
	}
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Stream:      true,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

// upstreamMessage pulls error.message out of an OpenAI style error body.
func upstreamMessage(body string) string {
	var parsed openai.ErrorResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil || parsed.Error == nil {
		return ""
	}
	return parsed.Error.Message
}

func truncateForLog(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if limit <= 0 || len(trimmed) <= limit {
		return trimmed
	}
	return trimmed[:limit] + "...(truncated)"
}

// bodyStream hands out the response body in read-sized chunks without
// parsing the event framing.
type bodyStream struct {
	body io.ReadCloser
	buf  []byte
}

func (s *bodyStream) Recv() ([]byte, error) {
	n, err := s.body.Read(s.buf)
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, s.buf[:n])
		if errors.Is(err, io.EOF) {
			err = nil
		}
		return chunk, err
	}
	return nil, err
}

func (s *bodyStream) Close() error {
	return s.body.Close()
}
