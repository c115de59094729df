package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"future-self-go/internal/config"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string, timeout int) Client {
	t.Helper()
	c, err := NewClient(config.LLMConfig{
		APIKey:         "test-key",
		BaseURL:        url + "/v1",
		Model:          "test-model",
		TimeoutSeconds: timeout,
		Generation:     config.LLMGenerationConfig{Temperature: 0.7, MaxTokens: 450},
	})
	require.NoError(t, err)
	return c
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "test-model",
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
}

func TestNewClient_NotConfigured(t *testing.T) {
	_, err := NewClient(config.LLMConfig{APIKey: "  "})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, 450, req.MaxTokens)
		assert.InDelta(t, 0.7, req.Temperature, 0.0001)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, RoleSystem, req.Messages[0].Role)
		assert.Equal(t, RoleUser, req.Messages[1].Role)

		writeCompletion(w, "  Be patient with yourself.\n")
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 5)
	out, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Be patient with yourself.", out)
}

func TestComplete_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"auth failure", http.StatusUnauthorized, `{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"tokens"}}`},
		{"server error", http.StatusBadGateway, `upstream down`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL, 5).Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrServiceUnavailable)

			var serr *ServiceError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, tc.status, serr.StatusCode)
			assert.NotEmpty(t, serr.Detail)

			// 库自身的错误类型不对外暴露
			var apiErr *openai.APIError
			assert.False(t, errors.As(err, &apiErr))
			var reqErr *openai.RequestError
			assert.False(t, errors.As(err, &reqErr))
		})
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 5).Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestComplete_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
		writeCompletion(w, "late")
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, server.URL, 5).Complete(ctx, []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceUnavailable)

	var serr *ServiceError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 0, serr.StatusCode)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEmpty(t, serr.Detail)
}
