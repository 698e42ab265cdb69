package pipeline

import "inkwell-ai-api/internal/domain/entity"

// modeParams 各文笔模式的采样参数
type modeParams struct {
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	SystemPrompt     string
}

var proseModeParams = map[entity.ProseMode]modeParams{
	entity.ProseModeMuse: {
		Temperature:      0.8,
		TopP:             0.9,
		FrequencyPenalty: 0.1,
		PresencePenalty:  0.1,
		SystemPrompt:     "Focus on literary quality, rich descriptions, and sophisticated prose. Maintain consistent character voice and narrative style.",
	},
	entity.ProseModeExcellent: {
		Temperature:      0.7,
		TopP:             0.85,
		FrequencyPenalty: 0.05,
		PresencePenalty:  0.05,
		SystemPrompt:     "Produce well-structured, engaging prose with good pacing and character development.",
	},
	entity.ProseModeBasic: {
		Temperature:  0.6,
		TopP:         0.8,
		SystemPrompt: "Write clear, readable prose that continues the story naturally.",
	},
	entity.ProseModeExperimental: {
		Temperature:      0.9,
		TopP:             0.95,
		FrequencyPenalty: 0.2,
		PresencePenalty:  0.15,
		SystemPrompt:     "Experiment with voice, structure and imagery while keeping the narrative coherent.",
	},
}

const ultraCreativeInstructions = "\n\nULTRA-CREATIVE MODE: Push creative boundaries, explore unconventional narrative techniques, experiment with unique perspectives and innovative storytelling approaches. Avoid clichés and predictable patterns."

// paramsFor 解析请求的采样参数；ultra-creative 在模式基础上加强
func paramsFor(req *entity.GenerationRequest) modeParams {
	p, ok := proseModeParams[req.ProseMode]
	if !ok {
		p = proseModeParams[entity.ProseModeExcellent]
	}
	if req.UltraCreative {
		p.Temperature = min1(p.Temperature * 1.3)
		p.TopP = min1(p.TopP * 1.1)
		p.FrequencyPenalty = minf(p.FrequencyPenalty+0.2, 2.0)
		p.PresencePenalty = minf(p.PresencePenalty+0.1, 2.0)
		p.SystemPrompt += ultraCreativeInstructions
	}
	return p
}

func min1(v float64) float64 { return minf(v, 1.0) }

func minf(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}
