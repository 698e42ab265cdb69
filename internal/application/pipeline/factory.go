package pipeline

import (
	"inkwell-ai-api/internal/domain/entity"
	"inkwell-ai-api/internal/application/provider"
)

// Factory 按请求组装流水线
type Factory struct {
	text   provider.TextGenerator
	image  provider.ImageSynthesizer
	source ContextSource

	contextTokenBudget int
}

// NewFactory 创建流水线工厂
// source 可为 nil，此时带 use_context 的请求会以降级方式继续。
func NewFactory(text provider.TextGenerator, image provider.ImageSynthesizer, source ContextSource, contextTokenBudget int) *Factory {
	return &Factory{
		text:               text,
		image:              image,
		source:             source,
		contextTokenBudget: contextTokenBudget,
	}
}

// Build 按请求的类型与开关返回有序阶段列表
// 固定顺序：上下文构建 -> 提示词增强 -> 内容生成 -> 后处理。
func (f *Factory) Build(req *entity.GenerationRequest) []Stage {
	var stages []Stage

	if req.UseContext && req.Kind != entity.KindStyleAnalysis {
		stages = append(stages, NewContextBuilder(f.source, f.contextTokenBudget))
	}
	if req.EnhancePrompt && (req.Kind == entity.KindText || req.Kind == entity.KindImage) {
		stages = append(stages, NewPromptEnhancer(f.text))
	}

	stages = append(stages, NewGenerator(f.text, f.image))

	if req.DetectCliches && req.Kind == entity.KindText {
		stages = append(stages, NewClicheDetector())
	}
	if req.CompareStyle && req.Kind == entity.KindText && req.StyleExample != "" {
		stages = append(stages, NewStyleComparator())
	}

	return stages
}
