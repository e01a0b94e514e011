package guidance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Resilix/pkg/llm"
	"Resilix/pkg/logger"
	"Resilix/pkg/metrics"

	"go.uber.org/zap"
)

const Fallback = "First-aid guidance is unavailable right now. If anyone is in danger, call your local emergency services immediately."

const promptTemplate = "Given the following emergency alert: %s,  You are well-versed in first aid measures for emergencies in %s. Provide immediate and clear first aid measures. Offer concise and effective first aid guidance."

type Config struct {
	Model     string
	Region    string
	MaxTokens int
	Timeout   time.Duration
}

// Generator 为告警生成急救建议，失败时返回固定兜底文本
type Generator struct {
	llm llm.LLM
	cfg Config
}

func New(provider llm.LLM, cfg Config) *Generator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 150
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Region == "" {
		cfg.Region = "Cameroon"
	}
	return &Generator{llm: provider, cfg: cfg}
}

func Prompt(description, region string) string {
	return fmt.Sprintf(promptTemplate, description, region)
}

// Generate 从不返回错误，provider 的 panic 在此处被恢复
func (g *Generator) Generate(ctx context.Context, description string) (out string) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			logger.Error("guidance provider panic", zap.Any("panic", r))
			outcome = "panic"
			out = Fallback
		}
		metrics.ObserveGuidance(outcome, time.Since(start))
	}()

	if g.llm == nil {
		outcome = "unconfigured"
		return Fallback
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	text, err := g.llm.Query(ctx, g.cfg.Model, Prompt(description, g.cfg.Region), g.cfg.MaxTokens)
	if err != nil {
		logger.Warn("guidance generation failed", zap.Error(err))
		outcome = "error"
		return Fallback
	}
	if strings.TrimSpace(text) == "" {
		outcome = "empty"
		return Fallback
	}
	return Normalize(text)
}

// Normalize 转成 markdown 引用块，项目符号改为列表
func Normalize(text string) string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "•", "  *")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}
