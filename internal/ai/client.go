package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrEmptyCompletion indicates the provider returned no usable content.
var ErrEmptyCompletion = errors.New("provider returned empty completion")

// Client produces one structured game-master response per prompt transcript.
type Client interface {
	Complete(ctx context.Context, messages []PromptMessage) (Response, error)
}

// HTTPConfig configures the OpenAI-compatible chat completions adapter.
type HTTPConfig struct {
	CompletionsURL string
	APIKey         string
	Model          string
	Temperature    float64
	MaxTokens      int
	HTTPClient     *http.Client
}

type httpClient struct {
	cfg HTTPConfig
}

// NewHTTPClient builds a chat-completions client for any OpenAI-compatible
// endpoint (OpenAI itself, or a local llamacpp/vllm server).
func NewHTTPClient(cfg HTTPConfig) Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.CompletionsURL) == "" {
		cfg.CompletionsURL = "https://api.openai.com/v1/chat/completions"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	return &httpClient{cfg: cfg}
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []PromptMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete performs one chat completion round-trip and parses the
// returned content as a structured Response.
//
// There is no cancellation beyond ctx: a hung upstream call blocks until
// the HTTP client's own timeout fires.
func (c *httpClient) Complete(ctx context.Context, messages []PromptMessage) (Response, error) {
	if len(messages) == 0 {
		return Response{}, fmt.Errorf("prompt messages are required")
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:          c.cfg.Model,
		Messages:       messages,
		Temperature:    c.cfg.Temperature,
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CompletionsURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, fmt.Errorf("completion request failed: status=%d body=%s", resp.StatusCode, truncateForLog(payload))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(payload, &completion); err != nil {
		return Response{}, fmt.Errorf("decode completion envelope: %w", err)
	}
	if completion.Error != nil {
		return Response{}, fmt.Errorf("provider error: %s", completion.Error.Message)
	}
	if len(completion.Choices) == 0 {
		return Response{}, ErrEmptyCompletion
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return Response{}, ErrEmptyCompletion
	}

	return ParseResponse(content)
}

// ParseResponse parses structured game-master JSON, tolerating markdown
// code fences some models wrap around their output.
func ParseResponse(content string) (Response, error) {
	content = stripCodeFence(content)

	var parsed Response
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return Response{}, fmt.Errorf("decode structured response: %w", err)
	}
	if strings.TrimSpace(parsed.Narrative) == "" {
		return Response{}, fmt.Errorf("structured response has no narrative")
	}
	return parsed, nil
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func truncateForLog(payload []byte) string {
	const maxLen = 512
	if len(payload) <= maxLen {
		return string(payload)
	}
	return string(payload[:maxLen]) + "..."
}
