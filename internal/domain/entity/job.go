// Package entity 定义领域实体
package entity

import (
	"time"
)

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusQueued         JobStatus = "queued"
	JobStatusAdmitted       JobStatus = "admitted"
	JobStatusBuilding       JobStatus = "building"
	JobStatusEnhancing      JobStatus = "enhancing"
	JobStatusGenerating     JobStatus = "generating"
	JobStatusPostProcessing JobStatus = "post_processing"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusCancelled      JobStatus = "cancelled"
	JobStatusFailed         JobStatus = "failed"
)

// Terminal 是否为终态
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCancelled, JobStatusFailed:
		return true
	}
	return false
}

// Job 一次生成请求的运行时记录
// 仅编排器持有可变引用；观察者只能拿到 Snapshot。
type Job struct {
	ID      string            `json:"id"`
	Request GenerationRequest `json:"request"`
	Status  JobStatus         `json:"status"`

	// Progress 0-100，活跃期间单调不减
	Progress int `json:"progress"`

	// StreamedContent 只追加的流式内容缓冲
	StreamedContent string `json:"streamed_content"`

	// Warnings 非致命阶段失败的降级记录
	Warnings []string `json:"warnings,omitempty"`

	// 额度
	ReservedCredits  int64 `json:"reserved_credits"`
	CommittedCredits int64 `json:"committed_credits"`

	// 结果注解（后处理成功时填充）
	ClicheReport *ClicheReport `json:"cliche_report,omitempty"`
	StyleReport  *StyleReport  `json:"style_report,omitempty"`

	// 实际用量（生成阶段上报）
	TokensPrompt     int `json:"tokens_prompt,omitempty"`
	TokensCompletion int `json:"tokens_completion,omitempty"`

	ErrorMessage    string `json:"error_message,omitempty"`
	CancelRequested bool   `json:"cancel_requested"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// NewJob 创建排队中的任务
func NewJob(id string, req GenerationRequest, reserved int64) *Job {
	return &Job{
		ID:              id,
		Request:         req,
		Status:          JobStatusQueued,
		ReservedCredits: reserved,
		CreatedAt:       time.Now(),
	}
}

// Admit 占到并发槽，开始执行
func (j *Job) Admit() {
	now := time.Now()
	j.Status = JobStatusAdmitted
	j.StartedAt = &now
}

// EnterStage 进入流水线阶段
func (j *Job) EnterStage(status JobStatus) {
	if j.Status.Terminal() {
		return
	}
	j.Status = status
}

// UpdateProgress 更新进度，保持单调不减并夹在 [0,100]
func (j *Job) UpdateProgress(progress int) {
	if progress < j.Progress {
		return
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
}

// AppendContent 追加流式内容
func (j *Job) AppendContent(delta string) {
	j.StreamedContent += delta
}

// AddWarning 记录降级警告
func (j *Job) AddWarning(warning string) {
	j.Warnings = append(j.Warnings, warning)
}

// RequestCancel 置取消标记，只置位不清除
func (j *Job) RequestCancel() {
	j.CancelRequested = true
}

// Complete 任务完成
func (j *Job) Complete(committed int64) {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CommittedCredits = committed
	j.Progress = 100
	j.EndedAt = &now
}

// Fail 任务失败
func (j *Job) Fail(errMsg string, committed int64) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.CommittedCredits = committed
	j.EndedAt = &now
}

// Cancel 任务取消；已流出的内容保留在快照中
func (j *Job) Cancel() {
	now := time.Now()
	j.Status = JobStatusCancelled
	j.EndedAt = &now
}

// Duration 任务执行时长
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if j.EndedAt != nil {
		end = *j.EndedAt
	}
	return end.Sub(*j.StartedAt)
}

// Snapshot 返回只读深拷贝，供观察者使用
func (j *Job) Snapshot() Job {
	cp := *j
	if j.Warnings != nil {
		cp.Warnings = append([]string(nil), j.Warnings...)
	}
	if j.ClicheReport != nil {
		r := *j.ClicheReport
		r.Detected = append([]string(nil), j.ClicheReport.Detected...)
		r.Suggestions = append([]string(nil), j.ClicheReport.Suggestions...)
		cp.ClicheReport = &r
	}
	if j.StyleReport != nil {
		r := *j.StyleReport
		cp.StyleReport = &r
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.EndedAt != nil {
		t := *j.EndedAt
		cp.EndedAt = &t
	}
	return cp
}
