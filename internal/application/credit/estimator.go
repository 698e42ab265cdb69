// Package credit 提供项目额度的预估、预留与结算能力
package credit

import (
	"fmt"

	"inkwell-ai-api/internal/domain/entity"
)

// 文本计费：先按字数折算 token（1 token ≈ 0.75 词），再按文笔模式加权。
const tokensPerWordNum = 4
const tokensPerWordDen = 3

// 图像计费：按分辨率一口价
const (
	creditsImageSquare    = 2500
	creditsImagePortrait  = 3500
	creditsImageLandscape = 3500
)

// 头脑风暴计费
const (
	creditsBrainstormBase    = 100
	creditsBrainstormPerIdea = 10
	// 创意等级超过该阈值时整单翻倍
	brainstormCreativityThreshold = 7
)

// 风格分析计费：本地统计为主，收固定小额
const creditsStyleAnalysis = 50

// Estimate 预估一次请求的额度消耗
// 这是唯一的计费估算入口：纯函数，仅由请求参数决定，
// 保证准入控制可以在任何阶段执行前完成。
func Estimate(req *entity.GenerationRequest) (int64, error) {
	switch req.Kind {
	case entity.KindText:
		return estimateText(req.ProseMode, req.LengthWords), nil
	case entity.KindImage:
		return estimateImage(req.Resolution)
	case entity.KindBrainstorm:
		return estimateBrainstorm(req.NumIdeas, req.CreativityLevel), nil
	case entity.KindStyleAnalysis:
		return creditsStyleAnalysis, nil
	default:
		return 0, fmt.Errorf("cannot estimate unknown kind: %s", req.Kind)
	}
}

// EstimateTokens 按字数估算 token 数
func EstimateTokens(words int) int {
	return words * tokensPerWordNum / tokensPerWordDen
}

func estimateText(mode entity.ProseMode, lengthWords int) int64 {
	tokens := int64(EstimateTokens(lengthWords))

	var credits int64
	switch mode {
	case entity.ProseModeMuse:
		credits = tokens * 3
	case entity.ProseModeExcellent:
		credits = tokens * 2
	case entity.ProseModeExperimental:
		credits = tokens / 2
	default: // basic
		credits = tokens
	}
	if credits < 1 {
		credits = 1
	}
	return credits
}

func estimateImage(res entity.ImageResolution) (int64, error) {
	switch res {
	case entity.ResolutionSquare:
		return creditsImageSquare, nil
	case entity.ResolutionPortrait:
		return creditsImagePortrait, nil
	case entity.ResolutionLandscape:
		return creditsImageLandscape, nil
	default:
		return 0, fmt.Errorf("cannot estimate unknown resolution: %s", res)
	}
}

func estimateBrainstorm(numIdeas, creativityLevel int) int64 {
	credits := int64(creditsBrainstormBase + creditsBrainstormPerIdea*numIdeas)
	if creativityLevel > brainstormCreativityThreshold {
		credits *= 2
	}
	return credits
}

// ActualTextCredits 按实际 token 用量折算文本消耗
// 供应商未上报用量时，调用方以产出字数经 EstimateTokens 兜底。
func ActualTextCredits(mode entity.ProseMode, totalTokens int) int64 {
	tokens := int64(totalTokens)

	var credits int64
	switch mode {
	case entity.ProseModeMuse:
		credits = tokens * 3
	case entity.ProseModeExcellent:
		credits = tokens * 2
	case entity.ProseModeExperimental:
		credits = tokens / 2
	default:
		credits = tokens
	}
	if credits < 1 {
		credits = 1
	}
	return credits
}
