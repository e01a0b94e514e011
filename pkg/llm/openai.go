package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// LLMHandler implements the LLM interface for any OpenAI compatible endpoint
type LLMHandler struct {
	client    *openai.Client
	systemMsg string
	logger    *logrus.Logger
}

// NewLLMHandler creates a new OpenAI compatible handler; empty endpoint keeps the default
func NewLLMHandler(apiKey, endpoint, systemPrompt string, logger *logrus.Logger) *LLMHandler {
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = strings.TrimRight(endpoint, "/")
	}
	return &LLMHandler{
		client:    openai.NewClientWithConfig(cfg),
		systemMsg: systemPrompt,
		logger:    logger,
	}
}

// Query 无状态调用，每次只发送 system + user 两条消息
func (h *LLMHandler) Query(ctx context.Context, model, text string, maxTokens int) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if h.systemMsg != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: h.systemMsg,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	resp, err := h.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		h.logger.WithError(err).WithField("model", model).Warn("chat completion failed")
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	h.logger.WithFields(logrus.Fields{
		"model":             model,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	}).Debug("chat completion done")
	return content, nil
}
