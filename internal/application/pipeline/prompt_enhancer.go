package pipeline

import (
	"context"
	"fmt"
	"strings"

	"inkwell-ai-api/internal/domain/entity"
	"inkwell-ai-api/internal/application/provider"
)

const enhancerSystemPrompt = "You are a prompt engineer for a fiction writing assistant. Rewrite the user's prompt to be more specific and evocative while preserving its intent. Reply with the rewritten prompt only."

// PromptEnhancer 提示词增强阶段
// 非致命：失败时退回原始提示词。
type PromptEnhancer struct {
	text provider.TextGenerator
}

// NewPromptEnhancer 创建提示词增强阶段
func NewPromptEnhancer(text provider.TextGenerator) *PromptEnhancer {
	return &PromptEnhancer{text: text}
}

func (s *PromptEnhancer) Name() string             { return "prompt_enhancer" }
func (s *PromptEnhancer) Status() entity.JobStatus { return entity.JobStatusEnhancing }
func (s *PromptEnhancer) Fatal() bool              { return false }

// Run 调用供应商改写提示词
func (s *PromptEnhancer) Run(ctx context.Context, exec *Execution) error {
	if s.text == nil {
		return fmt.Errorf("no text generator configured")
	}

	enhanced, _, err := s.text.Complete(ctx, provider.TextParams{
		SystemPrompt: enhancerSystemPrompt,
		Prompt:       exec.Prompt,
		Temperature:  0.7,
		MaxWords:     300,
	})
	if err != nil {
		return fmt.Errorf("prompt enhancement failed: %w", err)
	}

	enhanced = strings.TrimSpace(enhanced)
	if enhanced == "" {
		return fmt.Errorf("enhancer returned empty prompt")
	}
	exec.Prompt = enhanced
	return nil
}
