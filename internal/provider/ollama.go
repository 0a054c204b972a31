package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stmtsep/internal/types"
)

// OllamaClient talks to a locally hosted Ollama server.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// OllamaConfig holds configuration for the local client.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultOllamaConfig returns sensible defaults.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		BaseURL: "http://localhost:11434",
		Model:   "llama3",
		Timeout: 120 * time.Second,
	}
}

// NewOllamaClient creates a client for a local model server.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	def := DefaultOllamaConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// AnalyzeBoundaries asks the local model to segment the page-marked text.
func (c *OllamaClient) AnalyzeBoundaries(ctx context.Context, text string, totalPages int) ([]BoundaryCandidate, error) {
	raw, err := c.generate(ctx, analyzeSystemPrompt, analyzePrompt(text, totalPages))
	if err != nil {
		return nil, err
	}
	return parseBoundaries(raw)
}

// ExtractMetadata asks the local model for the statement's metadata triple.
func (c *OllamaClient) ExtractMetadata(ctx context.Context, text string, startPage, endPage int) (*MetadataCandidate, error) {
	raw, err := c.generate(ctx, extractSystemPrompt, extractPrompt(text, startPage, endPage))
	if err != nil {
		return nil, err
	}
	return parseMetadata(raw)
}

// Available probes the server's tag listing with a short deadline.
func (c *OllamaClient) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Info identifies the provider.
func (c *OllamaClient) Info() Info {
	return Info{Kind: KindLocal, Model: c.model, Endpoint: c.baseURL}
}

func (c *OllamaClient) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := ollamaRequest{
		Model:  c.model,
		Prompt: userPrompt,
		System: systemPrompt,
		Stream: false,
		Format: "json",
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", types.Transient(types.KindNetworkTimeout, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode >= 500 {
		return "", types.Transient(types.KindNetworkTimeout, fmt.Errorf("ollama returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", types.Recoverable(types.KindMalformedResponse,
			fmt.Errorf("ollama returned %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", types.Recoverable(types.KindMalformedResponse, fmt.Errorf("invalid response JSON: %w", err))
	}
	if parsed.Error != "" {
		return "", types.Recoverable(types.KindMalformedResponse, errors.New(parsed.Error))
	}

	return parsed.Response, nil
}
