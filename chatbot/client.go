package chatbot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Default completion policy
const (
	DefaultEndpoint    = "https://api.cerebras.ai/v1/chat/completions"
	DefaultModel       = "llama-3.3-70b"
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.7
	DefaultTopP        = 1.0
)

// maxSSELine bounds a single SSE line; completion deltas are far smaller
const maxSSELine = 1024 * 1024

// Completer streams a completion for the given history
type Completer interface {
	StreamCompletion(ctx context.Context, history []Message) (<-chan StreamChunk, error)
}

// ChatRequest is the request body for the chat completions API
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	MaxTokens   int       `json:"max_completion_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
}

// StreamChunk represents a chunk from the streaming response
type StreamChunk struct {
	Content string // Text content delta
	Err     error  // set on the last chunk if the stream failed
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// APIError represents the error details
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code,omitempty"`
}

type streamResponse struct {
	Choices []struct {
		Index        int    `json:"index"`
		FinishReason string `json:"finish_reason"`
		Delta        struct {
			Role    string  `json:"role,omitempty"`
			Content *string `json:"content,omitempty"`
		} `json:"delta"`
	} `json:"choices"`
	Error *APIError `json:"error,omitempty"`
}

// ClientConfig is the fixed completion policy of an AIClient
type ClientConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// AIClient is a client for an OpenAI-compatible chat completions API
type AIClient struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewAIClient creates a new AI client. Zero fields in cfg are replaced with defaults,
// except Temperature which is used as given.
func NewAIClient(cfg ClientConfig, httpClient *http.Client) *AIClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.TopP == 0 {
		cfg.TopP = DefaultTopP
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &AIClient{cfg: cfg, httpClient: httpClient}
}

// StreamCompletion makes a streaming chat request with the full history.
// The returned channel is closed when the stream ends; a failed stream delivers one
// final chunk with Err set to an *UpstreamError.
func (c *AIClient) StreamCompletion(ctx context.Context, history []Message) (<-chan StreamChunk, error) {
	req := ChatRequest{
		Model:       c.cfg.Model,
		Messages:    history,
		Stream:      true,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Message: "failed to make request", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: errResp.Error.Message}
		}
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	ch := make(chan StreamChunk, 100)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		send := func(chunk StreamChunk) bool {
			select {
			case ch <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var finished bool

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var streamResp streamResponse
			if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
				send(StreamChunk{Err: &UpstreamError{Message: "failed to parse SSE data", Err: err}})
				return
			}

			if streamResp.Error != nil {
				send(StreamChunk{Err: &UpstreamError{Message: streamResp.Error.Message}})
				return
			}

			if len(streamResp.Choices) == 0 {
				continue
			}

			choice := streamResp.Choices[0]
			if choice.FinishReason != "" {
				finished = true
			}

			if choice.Delta.Content != nil && *choice.Delta.Content != "" {
				if !send(StreamChunk{Content: *choice.Delta.Content}) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			send(StreamChunk{Err: &UpstreamError{Message: "failed to read stream", Err: err}})
			return
		}

		if !finished {
			send(StreamChunk{Err: &UpstreamError{Message: "stream ended before completion", Err: io.ErrUnexpectedEOF}})
		}
	}()

	return ch, nil
}
