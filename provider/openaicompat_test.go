package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nth-layer/orchestra/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_Defaults(t *testing.T) {
	b := New(Config{ProviderName: "test"}, nil)
	require.NotNil(t, b)
	assert.Equal(t, "/v1/chat/completions", b.cfg.ChatPath)
	assert.Equal(t, 30*time.Second, b.cfg.Timeout)
	assert.Equal(t, 4096, b.cfg.MaxTokens)
	assert.Equal(t, "test", b.Name())
	assert.False(t, b.IsAvailable())
}

func TestNew_CustomTimeout(t *testing.T) {
	b := New(Config{ProviderName: "t", Timeout: 10 * time.Second}, zap.NewNop())
	assert.Equal(t, 10*time.Second, b.client.Timeout)
}

func TestBase_IsAvailable(t *testing.T) {
	cases := []struct {
		name    string
		apiKey  string
		apiBase string
		want    bool
	}{
		{"both set", "key", "http://x", true},
		{"missing key", "", "http://x", false},
		{"missing base", "key", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := New(Config{ProviderName: "t", APIKey: tc.apiKey, APIBase: tc.apiBase}, nil)
			assert.Equal(t, tc.want, b.IsAvailable())
		})
	}
}

func TestBase_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Content: "hello there"}}},
			Usage:   chatUsage{PromptTokens: 3, CompletionTokens: 2},
		})
	}))
	defer srv.Close()

	b := New(Config{ProviderName: "test", APIKey: "secret", APIBase: srv.URL, RateLimitSeconds: 0.001}, zap.NewNop())
	out, err := b.Generate(context.Background(), "hi", engine.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
}

func TestBase_Generate_Unavailable(t *testing.T) {
	b := New(Config{ProviderName: "test"}, nil)
	_, err := b.Generate(context.Background(), "hi", engine.GenerateOptions{})
	require.Error(t, err)
	assert.Equal(t, engine.ErrUnauthorized, engine.CodeOf(err))
	assert.False(t, engine.IsRetryable(err))
}

func TestBase_Generate_HTTPErrorMapping(t *testing.T) {
	cases := []struct {
		status   int
		wantCode engine.ErrorCode
		retry    bool
	}{
		{401, engine.ErrUnauthorized, false},
		{429, engine.ErrRateLimited, true},
		{500, engine.ErrProviderUnavailable, true},
		{400, engine.ErrBadRequest, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.wantCode), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte("boom"))
			}))
			defer srv.Close()

			b := New(Config{ProviderName: "test", APIKey: "k", APIBase: srv.URL, RateLimitSeconds: 0.001}, zap.NewNop())
			_, err := b.Generate(context.Background(), "hi", engine.GenerateOptions{})
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, engine.CodeOf(err))
			assert.Equal(t, tc.retry, engine.IsRetryable(err))
		})
	}
}

func TestBase_Generate_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	b := New(Config{ProviderName: "test", APIKey: "k", APIBase: srv.URL, RateLimitSeconds: 0.001}, nil)
	_, err := b.Generate(context.Background(), "hi", engine.GenerateOptions{})
	require.Error(t, err)
	assert.True(t, engine.IsRetryable(err))
}

func TestBase_StreamGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		chunks := []chatResponse{
			{Choices: []chatChoice{{Delta: chatMessage{Content: "hel"}}}},
			{Choices: []chatChoice{{Delta: chatMessage{Content: "lo"}, FinishReason: "stop"}}},
		}
		for _, c := range chunks {
			b, _ := json.Marshal(c)
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(b)
			_, _ = w.Write([]byte("\n\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	b := New(Config{ProviderName: "test", APIKey: "k", APIBase: srv.URL, RateLimitSeconds: 0.001}, nil)
	ch, err := b.StreamGenerate(context.Background(), "hi", engine.GenerateOptions{})
	require.NoError(t, err)

	var full string
	var sawDone bool
	for chunk := range ch {
		full += chunk.Content
		if chunk.Done {
			sawDone = true
		}
	}
	assert.Equal(t, "hello", full)
	assert.True(t, sawDone)
}

func TestBase_GetEmbedding_NotSupported(t *testing.T) {
	b := New(Config{ProviderName: "test", APIKey: "k", APIBase: "http://x"}, nil)
	_, err := b.GetEmbedding(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, engine.ErrNotSupported, engine.CodeOf(err))
}

func TestBase_GetEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(embeddingResponse{
			Data: []struct {
				Embedding []float32 `json:"embedding"`
			}{{Embedding: []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	b := New(Config{ProviderName: "test", APIKey: "k", APIBase: srv.URL, EmbeddingsPath: "/v1/embeddings", RateLimitSeconds: 0.001}, nil)
	vec, err := b.GetEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestBase_Generate_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	b := New(Config{ProviderName: "test", APIKey: "k", APIBase: srv.URL, RateLimitSeconds: 0.001}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
	defer cancel()
	_, err := b.Generate(ctx, "hi", engine.GenerateOptions{})
	require.Error(t, err)
	assert.Equal(t, engine.ErrTimeout, engine.CodeOf(err))
}
