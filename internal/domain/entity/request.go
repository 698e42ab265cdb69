// Package entity 定义领域实体
package entity

import (
	"fmt"
	"strings"
	"time"
)

// RequestKind 生成请求类型
type RequestKind string

const (
	KindText          RequestKind = "text"
	KindImage         RequestKind = "image"
	KindBrainstorm    RequestKind = "brainstorm"
	KindStyleAnalysis RequestKind = "style_analysis"
)

// ProseMode 文笔模式，决定生成参数与计费倍率
type ProseMode string

const (
	ProseModeMuse         ProseMode = "muse"
	ProseModeExcellent    ProseMode = "excellent"
	ProseModeBasic        ProseMode = "basic"
	ProseModeExperimental ProseMode = "experimental"
)

// ImageResolution 图像分辨率
type ImageResolution string

const (
	ResolutionSquare    ImageResolution = "1024x1024"
	ResolutionPortrait  ImageResolution = "1024x1792"
	ResolutionLandscape ImageResolution = "1792x1024"
)

// ContextPriority 故事圣经上下文的预算倾斜方向
type ContextPriority string

const (
	PriorityBalanced   ContextPriority = "balanced"
	PriorityCharacters ContextPriority = "characters"
	PriorityLocations  ContextPriority = "locations"
	PriorityLore       ContextPriority = "lore"
)

// GenerationRequest 一次生成请求的不可变输入
// 由调用方创建，提交后不再修改。
type GenerationRequest struct {
	Kind      RequestKind `json:"kind"`
	ProjectID string      `json:"project_id"`
	Prompt    string      `json:"prompt"`

	// 阶段开关
	UseContext    bool `json:"use_context"`
	EnhancePrompt bool `json:"enhance_prompt"`
	DetectCliches bool `json:"detect_cliches"`
	CompareStyle  bool `json:"compare_style"`

	// 文本参数
	ProseMode       ProseMode       `json:"prose_mode,omitempty"`
	LengthWords     int             `json:"length_words,omitempty"`
	UltraCreative   bool            `json:"ultra_creative,omitempty"`
	ContextPriority ContextPriority `json:"context_priority,omitempty"`

	// 图像参数
	Resolution ImageResolution `json:"resolution,omitempty"`

	// 头脑风暴参数
	NumIdeas        int `json:"num_ideas,omitempty"`
	CreativityLevel int `json:"creativity_level,omitempty"` // 1-10

	// 风格分析参数
	StyleExample string `json:"style_example,omitempty"`

	RequestedAt time.Time `json:"requested_at"`
}

// Validate 校验请求参数，错误属于准入失败（不创建任务）
func (r *GenerationRequest) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return fmt.Errorf("project_id is required")
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("prompt is required")
	}

	switch r.Kind {
	case KindText:
		if r.ProseMode != "" && !r.ProseMode.valid() {
			return fmt.Errorf("unknown prose mode: %s", r.ProseMode)
		}
		if r.LengthWords < 0 || r.LengthWords > 10000 {
			return fmt.Errorf("length_words out of range: %d", r.LengthWords)
		}
	case KindImage:
		if r.Resolution != "" && !r.Resolution.valid() {
			return fmt.Errorf("unknown resolution: %s", r.Resolution)
		}
	case KindBrainstorm:
		if r.NumIdeas < 0 || r.NumIdeas > 50 {
			return fmt.Errorf("num_ideas out of range: %d", r.NumIdeas)
		}
		if r.CreativityLevel < 0 || r.CreativityLevel > 10 {
			return fmt.Errorf("creativity_level out of range: %d", r.CreativityLevel)
		}
	case KindStyleAnalysis:
		if strings.TrimSpace(r.StyleExample) == "" {
			return fmt.Errorf("style_example is required for style analysis")
		}
	default:
		return fmt.Errorf("unknown request kind: %s", r.Kind)
	}
	return nil
}

// Normalized 返回填充了默认参数的副本
func (r GenerationRequest) Normalized() GenerationRequest {
	if r.Kind == KindText {
		if r.ProseMode == "" {
			r.ProseMode = ProseModeExcellent
		}
		if r.LengthWords == 0 {
			r.LengthWords = 500
		}
		if r.ContextPriority == "" {
			r.ContextPriority = PriorityBalanced
		}
	}
	if r.Kind == KindImage && r.Resolution == "" {
		r.Resolution = ResolutionSquare
	}
	if r.Kind == KindBrainstorm {
		if r.NumIdeas == 0 {
			r.NumIdeas = 10
		}
		if r.CreativityLevel == 0 {
			r.CreativityLevel = 5
		}
	}
	if r.RequestedAt.IsZero() {
		r.RequestedAt = time.Now()
	}
	return r
}

func (m ProseMode) valid() bool {
	switch m {
	case ProseModeMuse, ProseModeExcellent, ProseModeBasic, ProseModeExperimental:
		return true
	}
	return false
}

func (r ImageResolution) valid() bool {
	switch r {
	case ResolutionSquare, ResolutionPortrait, ResolutionLandscape:
		return true
	}
	return false
}
