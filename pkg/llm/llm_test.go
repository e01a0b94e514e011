package llm_test

import (
	"Resilix/pkg/llm"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestLLMHandler_Query(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Apply pressure to the wound.  "},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	h := llm.NewLLMHandler("test-key", srv.URL, "", quietLogger())
	out, err := h.Query(context.Background(), "gpt-4o-mini", "bleeding", 150)

	require.NoError(t, err)
	assert.Equal(t, "Apply pressure to the wound.", out)
	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, 150, got["max_tokens"])
}

func TestLLMHandler_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[]}`)
	}))
	defer srv.Close()

	_, err := llm.NewLLMHandler("k", srv.URL, "", quietLogger()).Query(context.Background(), "m", "x", 10)
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestLLMHandler_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`)
	}))
	defer srv.Close()

	_, err := llm.NewLLMHandler("k", srv.URL, "", quietLogger()).Query(context.Background(), "m", "x", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestOllamaHandler_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["stream"])
		_, _ = io.WriteString(w, `{"response":"Move to higher ground."}`)
	}))
	defer srv.Close()

	h := llm.New(llm.ProviderOllama, "", srv.URL, "", quietLogger())
	out, err := h.Query(context.Background(), "llama3", "flood", 50)
	require.NoError(t, err)
	assert.Equal(t, "Move to higher ground.", out)
}
