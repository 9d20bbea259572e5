package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"pilot/internal/config"
)

// LLMClient is the shared contract every planner backend implements. The
// retry/repair/validate logic in Planner is backend-agnostic; only this
// call differs between providers.
type LLMClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// NewClient builds the LLMClient selected by cfg.Provider.
func NewClient(cfg config.OracleConfig) (LLMClient, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaClient(cfg.Ollama), nil
	case "zai":
		return newChatCompletionClient(cfg.ZAI, "https://api.z.ai/api/paas/v4/chat/completions", "glm-4.5"), nil
	case "anthropic":
		return NewAnthropicClient(cfg.Anthropic), nil
	case "openai":
		return newChatCompletionClient(cfg.OpenAI, "https://api.openai.com/v1/chat/completions", "gpt-4o-mini"), nil
	default:
		return nil, fmt.Errorf("oracle: unknown provider %q", cfg.Provider)
	}
}

// OllamaClient talks to a local Ollama daemon's /api/chat endpoint.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

func NewOllamaClient(cfg config.OllamaConfig) *OllamaClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "qwen2.5-coder:7b"
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaClient{
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string           `json:"model"`
	Stream   bool             `json:"stream"`
	Messages []ollamaMessage  `json:"messages"`
	Options  ollamaOptions    `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaResponse struct {
	Message  *ollamaMessage `json:"message"`
	Response string         `json:"response"`
}

func (c *OllamaClient) Complete(ctx context.Context, system, user string) (string, error) {
	reqBody := ollamaRequest{
		Model:  c.model,
		Stream: false,
		Messages: []ollamaMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Options: ollamaOptions{
			Temperature: c.temperature,
			TopP:        0.9,
			NumPredict:  2000,
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("oracle: encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("oracle: build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle: ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("oracle: read ollama response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("oracle: ollama returned status %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("oracle: decode ollama response: %w", err)
	}
	if parsed.Message != nil && parsed.Message.Content != "" {
		return parsed.Message.Content, nil
	}
	if parsed.Response != "" {
		return parsed.Response, nil
	}
	return "", fmt.Errorf("oracle: unexpected ollama response shape: %s", truncateBody(raw))
}

// chatMessage is the shared role/content pair used by AnthropicClient's
// request body (the OpenAI/Z.AI branch now builds its own messages via
// openai.ChatCompletionMessage instead).
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionClient implements the OpenAI/Z.AI-compatible chat completions
// shape, which both providers expose under an identical request/response body.
// It wraps go-openai's client with a custom BaseURL rather than hand-rolling
// the wire format, since Z.AI's endpoint is itself OpenAI-compatible.
type chatCompletionClient struct {
	client *openai.Client
	model  string
}

func newChatCompletionClient(cfg config.ProviderConfig, defaultEndpoint, defaultModel string) *chatCompletionClient {
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	transportCfg := openai.DefaultConfig(cfg.APIKey)
	transportCfg.BaseURL = strings.TrimSuffix(endpoint, "/chat/completions")
	transportCfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}

	return &chatCompletionClient{
		client: openai.NewClientWithConfig(transportCfg),
		model:  model,
	}
}

func (c *chatCompletionClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("oracle: chat completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("oracle: chat endpoint returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// AnthropicClient talks to the Messages API, which uses a distinct envelope
// from the OpenAI-compatible chat completion shape.
type AnthropicClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewAnthropicClient(cfg config.ProviderConfig) *AnthropicClient {
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = "https://api.anthropic.com/v1/messages"
	}
	model := cfg.Model
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}
	return &AnthropicClient{
		endpoint:   endpoint,
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type anthropicRequest struct {
	Model     string         `json:"model"`
	System    string         `json:"system"`
	MaxTokens int            `json:"max_tokens"`
	Messages  []chatMessage  `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (c *AnthropicClient) Complete(ctx context.Context, system, user string) (string, error) {
	reqBody := anthropicRequest{
		Model:     c.model,
		System:    system,
		MaxTokens: 2000,
		Messages: []chatMessage{
			{Role: "user", Content: user},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("oracle: encode anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("oracle: build anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle: anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("oracle: read anthropic response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("oracle: anthropic returned status %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("oracle: decode anthropic response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("oracle: anthropic returned no content: %s", truncateBody(raw))
	}
	return parsed.Content[0].Text, nil
}

func truncateBody(b []byte) string {
	const max = 500
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
