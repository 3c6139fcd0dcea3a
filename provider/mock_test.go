package provider

import (
	"context"
	"testing"

	"github.com/nth-layer/orchestra/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock_Generate_KeywordMatch(t *testing.T) {
	m := NewMock(MockConfig{
		Responses:       map[string]string{"weather": "it is sunny"},
		DefaultResponse: "i don't know",
	})
	out, err := m.Generate(context.Background(), "what's the weather like?", engine.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "it is sunny", out)
}

func TestMock_Generate_DefaultFallback(t *testing.T) {
	m := NewMock(MockConfig{DefaultResponse: "fallback"})
	out, err := m.Generate(context.Background(), "unrelated prompt", engine.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", out)
}

func TestMock_Generate_Deterministic(t *testing.T) {
	m := NewMock(MockConfig{FailureProbability: 0.5})
	_, err1 := m.Generate(context.Background(), "same prompt", engine.GenerateOptions{})
	_, err2 := m.Generate(context.Background(), "same prompt", engine.GenerateOptions{})
	assert.Equal(t, err1 == nil, err2 == nil, "identical prompts must yield identical success/failure")
}

func TestMock_Generate_AlwaysFails(t *testing.T) {
	m := NewMock(MockConfig{FailureProbability: 1})
	_, err := m.Generate(context.Background(), "anything", engine.GenerateOptions{})
	require.Error(t, err)
	assert.Equal(t, engine.ErrProviderUnavailable, engine.CodeOf(err))
}

func TestMock_Generate_NeverFails(t *testing.T) {
	m := NewMock(MockConfig{FailureProbability: 0, DefaultResponse: "ok"})
	for i := 0; i < 20; i++ {
		_, err := m.Generate(context.Background(), "anything", engine.GenerateOptions{})
		require.NoError(t, err)
	}
}

func TestMock_StreamGenerate_ConcatenatesToFullResponse(t *testing.T) {
	m := NewMock(MockConfig{DefaultResponse: "the quick brown fox"})
	ch, err := m.StreamGenerate(context.Background(), "anything", engine.GenerateOptions{})
	require.NoError(t, err)

	var full string
	var sawDone bool
	for chunk := range ch {
		full += chunk.Content
		if chunk.Done {
			sawDone = true
		}
	}
	assert.Equal(t, "the quick brown fox", full)
	assert.True(t, sawDone)
}

func TestMock_GetEmbedding_Deterministic(t *testing.T) {
	m := NewMock(MockConfig{})
	v1, err := m.GetEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	v2, err := m.GetEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	v3, err := m.GetEmbedding(context.Background(), "goodbye")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v3)
}

func TestMock_IsAvailable(t *testing.T) {
	m := NewMock(MockConfig{})
	assert.True(t, m.IsAvailable())
}

func TestMock_Capabilities(t *testing.T) {
	m := NewMock(MockConfig{Name: "custom-mock"})
	caps := m.Capabilities()
	assert.Equal(t, "custom-mock", caps.Name)
	assert.True(t, caps.SupportsStreaming)
	assert.True(t, caps.SupportsEmbeddings)
}
