package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// OllamaHandler implements the LLM interface for Ollama
type OllamaHandler struct {
	systemMsg string
	logger    *logrus.Logger
	apiKey    string
	ollamaURL string
	client    *http.Client
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// NewOllamaHandler creates a new Ollama handler
func NewOllamaHandler(apiKey, ollamaURL, systemPrompt string, logger *logrus.Logger) *OllamaHandler {
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	return &OllamaHandler{
		systemMsg: systemPrompt,
		logger:    logger,
		apiKey:    apiKey,
		ollamaURL: strings.TrimRight(ollamaURL, "/"),
		client:    http.DefaultClient,
	}
}

// Query queries Ollama's generate endpoint without streaming
func (h *OllamaHandler) Query(ctx context.Context, model, text string, maxTokens int) (string, error) {
	reqBody := ollamaRequest{
		Model:  model,
		Prompt: text,
		System: h.systemMsg,
	}
	if maxTokens > 0 {
		reqBody.Options = map[string]any{"num_predict": maxTokens}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.ollamaURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.WithError(err).Warn("ollama request failed")
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: status %d: %s", resp.StatusCode, out.Error)
	}
	content := strings.TrimSpace(out.Response)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
