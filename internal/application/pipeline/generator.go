package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"inkwell-ai-api/internal/domain/entity"
	"inkwell-ai-api/internal/application/credit"
	"inkwell-ai-api/internal/application/provider"
)

// 生成阶段在整体进度条上占据的区间
const (
	generateProgressStart = 20
	generateProgressEnd   = 90
)

// Generator 内容生成阶段
// 唯一的流式阶段，也是唯一失败即终止任务的阶段。
type Generator struct {
	text  provider.TextGenerator
	image provider.ImageSynthesizer
}

// NewGenerator 创建内容生成阶段
func NewGenerator(text provider.TextGenerator, image provider.ImageSynthesizer) *Generator {
	return &Generator{text: text, image: image}
}

func (s *Generator) Name() string             { return "generator" }
func (s *Generator) Status() entity.JobStatus { return entity.JobStatusGenerating }
func (s *Generator) Fatal() bool              { return true }

// Run 按请求类型打开供应商流并逐块消费
// 每收到一块检查一次取消，取消延迟以一块为上界。
func (s *Generator) Run(ctx context.Context, exec *Execution) error {
	stream, err := s.open(ctx, exec)
	if err != nil {
		return fmt.Errorf("failed to open provider stream: %w", err)
	}
	defer stream.Close()

	expectedWords := expectedOutputWords(exec.Request)
	emittedWords := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// 提前收流错误：已流出的内容保留，任务按失败结算
			return fmt.Errorf("provider stream error: %w", err)
		}

		if chunk.Usage != nil {
			exec.Usage.PromptTokens += chunk.Usage.PromptTokens
			exec.Usage.CompletionTokens += chunk.Usage.CompletionTokens
		}
		if chunk.Delta != "" {
			exec.EmitChunk(chunk.Delta)
			emittedWords += len(strings.Fields(chunk.Delta))
			exec.ReportProgress(scaleProgress(emittedWords, expectedWords))
		}
	}

	if strings.TrimSpace(exec.Output) == "" {
		return fmt.Errorf("provider returned empty output")
	}

	// 供应商未上报用量时按产出字数兜底
	if exec.Usage.CompletionTokens == 0 {
		exec.Usage.CompletionTokens = credit.EstimateTokens(len(strings.Fields(exec.Output)))
	}
	exec.ReportProgress(generateProgressEnd)
	return nil
}

// open 为请求类型选择供应商能力
func (s *Generator) open(ctx context.Context, exec *Execution) (provider.ChunkStream, error) {
	req := exec.Request

	switch req.Kind {
	case entity.KindText:
		if s.text == nil {
			return nil, fmt.Errorf("text generator not configured")
		}
		p := paramsFor(req)
		return s.text.Stream(ctx, provider.TextParams{
			SystemPrompt:     buildTextSystemPrompt(p.SystemPrompt, exec.StoryContext),
			Prompt:           exec.Prompt,
			MaxWords:         req.LengthWords,
			Temperature:      p.Temperature,
			TopP:             p.TopP,
			FrequencyPenalty: p.FrequencyPenalty,
			PresencePenalty:  p.PresencePenalty,
		})

	case entity.KindImage:
		if s.image == nil {
			return nil, fmt.Errorf("image synthesizer not configured")
		}
		return s.image.Synthesize(ctx, provider.ImageParams{
			Prompt:     exec.Prompt,
			Resolution: string(req.Resolution),
		})

	case entity.KindBrainstorm:
		if s.text == nil {
			return nil, fmt.Errorf("text generator not configured")
		}
		return s.text.Stream(ctx, provider.TextParams{
			SystemPrompt: buildTextSystemPrompt(brainstormSystemPrompt(req), exec.StoryContext),
			Prompt:       exec.Prompt,
			Temperature:  brainstormTemperature(req.CreativityLevel),
			TopP:         0.95,
		})

	case entity.KindStyleAnalysis:
		// 风格分析在本地完成，包装为静态流以复用同一条消费路径
		report := AnalyzeStyle(req.StyleExample)
		target := AnalyzeStyle(req.Prompt)
		return provider.NewStaticChunkStream(provider.Chunk{
			Delta: renderStyleAnalysis(target, report),
		}), nil

	default:
		return nil, fmt.Errorf("unsupported request kind: %s", req.Kind)
	}
}

func buildTextSystemPrompt(base, storyContext string) string {
	if storyContext == "" {
		return base
	}
	return base + "\n\nStory bible for this project:\n" + storyContext
}

func brainstormSystemPrompt(req *entity.GenerationRequest) string {
	return fmt.Sprintf(
		"You are a brainstorming partner for a fiction writer. Generate %d distinct, numbered ideas. Creativity level %d of 10: higher means wilder, less conventional ideas.",
		req.NumIdeas, req.CreativityLevel,
	)
}

// brainstormTemperature 创意等级线性映射到采样温度
func brainstormTemperature(level int) float64 {
	t := 0.5 + float64(level)*0.05
	if t > 1.0 {
		t = 1.0
	}
	return t
}

// expectedOutputWords 进度估算用的期望产出字数
func expectedOutputWords(req *entity.GenerationRequest) int {
	switch req.Kind {
	case entity.KindText:
		return req.LengthWords
	case entity.KindBrainstorm:
		return req.NumIdeas * 40
	default:
		return 0
	}
}

// scaleProgress 把产出比例映射到生成阶段的进度区间
// 期望未知时停在区间中点，由收流结束统一推到区间末端。
func scaleProgress(emitted, expected int) int {
	if expected <= 0 {
		return (generateProgressStart + generateProgressEnd) / 2
	}
	ratio := float64(emitted) / float64(expected)
	if ratio > 1 {
		ratio = 1
	}
	return generateProgressStart + int(ratio*float64(generateProgressEnd-generateProgressStart))
}
