package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"stmtsep/internal/types"
)

// GeminiClient implements Provider on the Google GenAI SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewGeminiClient creates a Gemini-backed provider.
func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{client: client, model: cfg.Model}, nil
}

// AnalyzeBoundaries asks Gemini to segment the page-marked text.
func (c *GeminiClient) AnalyzeBoundaries(ctx context.Context, text string, totalPages int) ([]BoundaryCandidate, error) {
	raw, err := c.generate(ctx, analyzeSystemPrompt, analyzePrompt(text, totalPages))
	if err != nil {
		return nil, err
	}
	return parseBoundaries(raw)
}

// ExtractMetadata asks Gemini for the statement's metadata triple.
func (c *GeminiClient) ExtractMetadata(ctx context.Context, text string, startPage, endPage int) (*MetadataCandidate, error) {
	raw, err := c.generate(ctx, extractSystemPrompt, extractPrompt(text, startPage, endPage))
	if err != nil {
		return nil, err
	}
	return parseMetadata(raw)
}

// Available reports whether the client was constructed with credentials.
func (c *GeminiClient) Available(context.Context) bool {
	return c.client != nil
}

// Info identifies the provider.
func (c *GeminiClient) Info() Info {
	return Info{Kind: KindRemote, Model: c.model, Endpoint: "generativelanguage.googleapis.com"}
}

func (c *GeminiClient) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(userPrompt),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0),
			ResponseMIMEType:  "application/json",
		})
	if err != nil {
		return "", classifyGenAIError(err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", types.Recoverable(types.KindMalformedResponse, errors.New("empty gemini response"))
	}
	return text, nil
}

func classifyGenAIError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.Transient(types.KindNetworkTimeout, err)
	}

	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(strings.ToUpper(msg), "RESOURCE_EXHAUSTED") {
		return types.Transient(types.KindRateLimited, err)
	}
	if strings.Contains(msg, "500") || strings.Contains(msg, "503") {
		return types.Transient(types.KindNetworkTimeout, err)
	}
	return types.Recoverable(types.KindMalformedResponse, err)
}
