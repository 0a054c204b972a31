package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stmtsep/internal/config"
	"stmtsep/internal/types"
)

func TestParseBoundariesEnvelope(t *testing.T) {
	raw := `{"boundaries":[{"start_page":1,"end_page":3,"account_number":"1234 5678 9012","confidence":0.9}]}`
	got, err := parseBoundaries(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].StartPage)
	assert.Equal(t, 3, got[0].EndPage)
	assert.Equal(t, "1234 5678 9012", got[0].AccountNumber)
}

func TestParseBoundariesBareArray(t *testing.T) {
	raw := "```json\n[{\"start_page\":1,\"end_page\":2}]\n```"
	got, err := parseBoundaries(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].EndPage)
}

func TestParseBoundariesMalformed(t *testing.T) {
	for _, raw := range []string{"not json", `{"pages": []}`, ""} {
		_, err := parseBoundaries(raw)
		require.Error(t, err, "input %q", raw)
		assert.Equal(t, types.KindMalformedResponse, types.KindOf(err))
		assert.Equal(t, types.ClassRecoverable, types.ClassOf(err), "malformed responses must not be retried")
	}
}

func TestParseMetadata(t *testing.T) {
	m, err := parseMetadata("```json\n{\"bank\":\"Westpac\",\"account_number\":\"0623 1045 8901 2819\",\"closing_date\":\"2015-05-21\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Westpac", m.Bank)
	assert.Equal(t, "2015-05-21", m.ClosingDate)
}

func openAIHandler(t *testing.T, status int, content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.WriteHeader(status)
		if status == http.StatusOK {
			w.Write([]byte(`{"choices":[{"message":{"content":` + content + `}}]}`))
		}
	}
}

func TestOpenAIAnalyzeBoundaries(t *testing.T) {
	srv := httptest.NewServer(openAIHandler(t, http.StatusOK,
		`"{\"boundaries\":[{\"start_page\":1,\"end_page\":6,\"confidence\":0.8}]}"`))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	got, err := c.AnalyzeBoundaries(context.Background(), "=== PAGE 1 ===\ntext", 6)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 6, got[0].EndPage)
}

func TestOpenAIRateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	_, err := c.AnalyzeBoundaries(context.Background(), "text", 3)
	require.Error(t, err)
	assert.Equal(t, types.KindRateLimited, types.KindOf(err))
	assert.True(t, types.IsTransient(err))
}

func TestOpenAIServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	_, err := c.ExtractMetadata(context.Background(), "text", 1, 3)
	require.Error(t, err)
	assert.True(t, types.IsTransient(err))
}

func TestOpenAITimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := c.AnalyzeBoundaries(context.Background(), "text", 3)
	require.Error(t, err)
	assert.Equal(t, types.KindNetworkTimeout, types.KindOf(err))
	assert.True(t, types.IsTransient(err))
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		case "/api/generate":
			w.Write([]byte(`{"response":"{\"bank\":\"anz\",\"account_number\":\"9012\",\"closing_date\":\"2024-01-31\"}","done":true}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Model: "llama3"})
	assert.True(t, c.Available(context.Background()))

	m, err := c.ExtractMetadata(context.Background(), "statement text", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "anz", m.Bank)
	assert.Equal(t, KindLocal, c.Info().Kind)
}

func TestOllamaUnavailable(t *testing.T) {
	c := NewOllamaClient(OllamaConfig{BaseURL: "http://127.0.0.1:1", Model: "llama3"})
	assert.False(t, c.Available(context.Background()))
}

func TestNullProvider(t *testing.T) {
	p := NewNullProvider()
	assert.False(t, p.Available(context.Background()))
	assert.Equal(t, KindNone, p.Info().Kind)

	_, err := p.AnalyzeBoundaries(context.Background(), "text", 3)
	require.Error(t, err)
	assert.Equal(t, types.KindProviderUnavailable, types.KindOf(err))
	assert.Equal(t, types.ClassRecoverable, types.ClassOf(err))
}

func TestFactorySelection(t *testing.T) {
	cfg := config.DefaultConfig()

	p, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, KindNone, p.Info().Kind)

	cfg.Provider.Kind = "local"
	cfg.Provider.Endpoint = "http://localhost:11434"
	p, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, KindLocal, p.Info().Kind)

	cfg.Provider.Kind = "remote"
	cfg.Provider.APIKey = "sk-test"
	cfg.Provider.Model = "gpt-4o-mini"
	p, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, KindRemote, p.Info().Kind)

	cfg.Provider.Kind = "telepathy"
	_, err = New(cfg)
	assert.Error(t, err)
}
