package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
)

var ErrEmptyResponse = errors.New("llm returned an empty response")

// LLM represents a generic interface for interacting with LLMs
type LLM interface {
	// Query sends a single prompt and returns the generated text, bounded by maxTokens
	Query(ctx context.Context, model, text string, maxTokens int) (string, error)
}

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// New 按 provider 创建处理器，默认 OpenAI 兼容接口
func New(provider, apiKey, baseURL, systemPrompt string, logger *logrus.Logger) LLM {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	switch strings.ToLower(provider) {
	case ProviderOllama:
		return NewOllamaHandler(apiKey, baseURL, systemPrompt, logger)
	default:
		return NewLLMHandler(apiKey, baseURL, systemPrompt, logger)
	}
}
