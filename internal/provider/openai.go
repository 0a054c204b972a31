package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"stmtsep/internal/types"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// OpenAIConfig holds configuration for the OpenAI-compatible client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
		Timeout: 30 * time.Second,
	}
}

// NewOpenAIClient creates a client with custom config.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// AnalyzeBoundaries asks the model to segment the page-marked text.
func (c *OpenAIClient) AnalyzeBoundaries(ctx context.Context, text string, totalPages int) ([]BoundaryCandidate, error) {
	raw, err := c.complete(ctx, analyzeSystemPrompt, analyzePrompt(text, totalPages))
	if err != nil {
		return nil, err
	}
	return parseBoundaries(raw)
}

// ExtractMetadata asks the model for the statement's metadata triple.
func (c *OpenAIClient) ExtractMetadata(ctx context.Context, text string, startPage, endPage int) (*MetadataCandidate, error) {
	raw, err := c.complete(ctx, extractSystemPrompt, extractPrompt(text, startPage, endPage))
	if err != nil {
		return nil, err
	}
	return parseMetadata(raw)
}

// Available reports whether the client is configured. The cheap probe avoids
// a network round trip; a dead endpoint surfaces as a transient call error.
func (c *OpenAIClient) Available(context.Context) bool {
	return c.apiKey != ""
}

// Info identifies the provider.
func (c *OpenAIClient) Info() Info {
	return Info{Kind: KindRemote, Model: c.model, Endpoint: c.baseURL}
}

func (c *OpenAIClient) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", types.Recoverable(types.KindProviderUnavailable, errors.New("API key not configured"))
	}

	reqBody := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", types.Transient(types.KindNetworkTimeout, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", types.Transient(types.KindRateLimited, fmt.Errorf("provider returned 429"))
	}
	if resp.StatusCode >= 500 {
		return "", types.Transient(types.KindNetworkTimeout, fmt.Errorf("provider returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", types.Recoverable(types.KindMalformedResponse,
			fmt.Errorf("provider returned %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", types.Recoverable(types.KindMalformedResponse, fmt.Errorf("invalid response JSON: %w", err))
	}
	if parsed.Error != nil {
		return "", types.Recoverable(types.KindMalformedResponse, fmt.Errorf("provider error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", types.Recoverable(types.KindMalformedResponse, errors.New("response has no choices"))
	}

	return parsed.Choices[0].Message.Content, nil
}

// classifyTransportError maps network failures onto the error taxonomy.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.Transient(types.KindNetworkTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.Transient(types.KindNetworkTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return types.Transient(types.KindNetworkTimeout, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
