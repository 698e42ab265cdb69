package dto

import (
	"time"

	"inkwell-ai-api/internal/domain/entity"
)

// SubmitGenerationRequest 提交生成请求
type SubmitGenerationRequest struct {
	Kind      string `json:"kind" binding:"required"`
	ProjectID string `json:"project_id" binding:"required"`
	Prompt    string `json:"prompt" binding:"required"`

	UseContext    bool `json:"use_context"`
	EnhancePrompt bool `json:"enhance_prompt"`
	DetectCliches bool `json:"detect_cliches"`
	CompareStyle  bool `json:"compare_style"`

	ProseMode       string `json:"prose_mode"`
	LengthWords     int    `json:"length_words"`
	UltraCreative   bool   `json:"ultra_creative"`
	ContextPriority string `json:"context_priority"`

	Resolution string `json:"resolution"`

	NumIdeas        int `json:"num_ideas"`
	CreativityLevel int `json:"creativity_level"`

	StyleExample string `json:"style_example"`
}

// ToEntity 转换为领域请求
func (r *SubmitGenerationRequest) ToEntity() entity.GenerationRequest {
	return entity.GenerationRequest{
		Kind:            entity.RequestKind(r.Kind),
		ProjectID:       r.ProjectID,
		Prompt:          r.Prompt,
		UseContext:      r.UseContext,
		EnhancePrompt:   r.EnhancePrompt,
		DetectCliches:   r.DetectCliches,
		CompareStyle:    r.CompareStyle,
		ProseMode:       entity.ProseMode(r.ProseMode),
		LengthWords:     r.LengthWords,
		UltraCreative:   r.UltraCreative,
		ContextPriority: entity.ContextPriority(r.ContextPriority),
		Resolution:      entity.ImageResolution(r.Resolution),
		NumIdeas:        r.NumIdeas,
		CreativityLevel: r.CreativityLevel,
		StyleExample:    r.StyleExample,
		RequestedAt:     time.Now(),
	}
}

// JobResponse 任务视图
type JobResponse struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`

	Content  string   `json:"content,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`

	ReservedCredits  int64 `json:"reserved_credits"`
	CommittedCredits int64 `json:"committed_credits"`
	TokensPrompt     int   `json:"tokens_prompt,omitempty"`
	TokensCompletion int   `json:"tokens_completion,omitempty"`

	ClicheReport *entity.ClicheReport `json:"cliche_report,omitempty"`
	StyleReport  *entity.StyleReport  `json:"style_report,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// NewJobResponse 由任务快照构建视图
func NewJobResponse(job *entity.Job) *JobResponse {
	return &JobResponse{
		ID:               job.ID,
		ProjectID:        job.Request.ProjectID,
		Kind:             string(job.Request.Kind),
		Status:           string(job.Status),
		Progress:         job.Progress,
		Content:          job.StreamedContent,
		Warnings:         job.Warnings,
		Error:            job.ErrorMessage,
		ReservedCredits:  job.ReservedCredits,
		CommittedCredits: job.CommittedCredits,
		TokensPrompt:     job.TokensPrompt,
		TokensCompletion: job.TokensCompletion,
		ClicheReport:     job.ClicheReport,
		StyleReport:      job.StyleReport,
		CreatedAt:        job.CreatedAt,
		StartedAt:        job.StartedAt,
		EndedAt:          job.EndedAt,
	}
}

// JobListResponse 任务列表
type JobListResponse struct {
	Jobs []*JobResponse `json:"jobs"`
}
