// Package pipeline 提供生成流水线的阶段抽象与内置阶段
//
// 失败策略是非对称的：上下文构建与提示词增强失败只降级，
// 内容生成失败终止任务，后处理失败只丢注解。
package pipeline

import (
	"context"

	"inkwell-ai-api/internal/domain/entity"
	"inkwell-ai-api/internal/application/provider"
)

// Stage 流水线阶段
type Stage interface {
	// Name 阶段名，用于日志与警告
	Name() string
	// Status 阶段执行期间任务应处的状态
	Status() entity.JobStatus
	// Fatal 阶段失败是否终止任务
	Fatal() bool
	// Run 执行阶段；通过 exec 读取输入、写入输出与进度
	Run(ctx context.Context, exec *Execution) error
}

// Execution 一次任务执行的可变载体，在阶段间传递
// 回调由编排器注入，约定不阻塞调用方。
type Execution struct {
	Request *entity.GenerationRequest

	// StoryContext 上下文构建阶段的产出（可为空）
	StoryContext string
	// Prompt 生效的提示词；增强阶段可替换
	Prompt string
	// Output 生成阶段累计的产出
	Output string
	// Usage 供应商上报的 token 用量
	Usage provider.Usage

	// 注解（后处理成功时填充）
	ClicheReport *entity.ClicheReport
	StyleReport  *entity.StyleReport

	progress func(int)
	emit     func(string)
	warn     func(stage, msg string)
}

// NewExecution 创建执行载体
func NewExecution(req *entity.GenerationRequest, progress func(int), emit func(string), warn func(stage, msg string)) *Execution {
	return &Execution{
		Request:  req,
		Prompt:   req.Prompt,
		progress: progress,
		emit:     emit,
		warn:     warn,
	}
}

// ReportProgress 上报进度（0-100），编排器侧保证单调
func (e *Execution) ReportProgress(p int) {
	if e.progress != nil {
		e.progress(p)
	}
}

// EmitChunk 推送一个内容增量并累计到 Output
func (e *Execution) EmitChunk(delta string) {
	if delta == "" {
		return
	}
	e.Output += delta
	if e.emit != nil {
		e.emit(delta)
	}
}

// Warn 记录降级警告
func (e *Execution) Warn(stage, msg string) {
	if e.warn != nil {
		e.warn(stage, msg)
	}
}
