package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/llm"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "gpt-4o-mini", Temperature: 0.3}, nil)
}

func TestCompleteText(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini-2024","choices":[{"message":{"content":"{\"e\":[]}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":3}}`))
	})

	out, err := c.Complete(context.Background(), llm.CompletionRequest{System: "sys", UserText: "hello", MaxTokens: 123})
	require.NoError(t, err)
	assert.Equal(t, `{"e":[]}`, out.Content)
	assert.Equal(t, "stop", out.FinishReason)
	assert.False(t, out.Truncated())
	assert.Equal(t, 3, out.CompletionTokens)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, 123, got["max_tokens"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[1].(map[string]any)["content"])
}

func TestCompleteImageUsesParts(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"},"finish_reason":"length"}]}`))
	})

	out, err := c.Complete(context.Background(), llm.CompletionRequest{UserText: "see image", ImageDataURL: "data:image/png;base64,AA=="})
	require.NoError(t, err)
	assert.True(t, out.Truncated())
	assert.EqualValues(t, 16000, got["max_tokens"])

	user := got["messages"].([]any)[1].(map[string]any)
	parts := user["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	img := parts[1].(map[string]any)
	assert.Equal(t, "image_url", img["type"])
	assert.Equal(t, "data:image/png;base64,AA==", img["image_url"].(map[string]any)["url"])
}

func TestCompleteProviderError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	})

	_, err := c.Complete(context.Background(), llm.CompletionRequest{UserText: "x"})
	require.ErrorIs(t, err, common.ErrProviderError)
	var pe *common.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusTooManyRequests, pe.Status)
	assert.Contains(t, pe.Body, "slow down")
}

func TestCompleteEmptyResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  "},"finish_reason":"stop"}]}`))
	})
	_, err := c.Complete(context.Background(), llm.CompletionRequest{UserText: "x"})
	require.ErrorIs(t, err, common.ErrEmptyResponse)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	_, err = c.Complete(context.Background(), llm.CompletionRequest{UserText: "x"})
	require.ErrorIs(t, err, common.ErrEmptyResponse)
}
