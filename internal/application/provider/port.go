// Package provider 定义 AI Provider 能力端口
// 供应商协议在适配层实现，编排器与流水线只依赖这里的窄接口。
package provider

import (
	"context"
	"io"
)

// Usage 一次调用的 token 用量
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Total 总 token 数
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Chunk 流式输出的一个增量
// 约定：流可能在最后返回一个 Delta 为空但携带 Usage 的块，用于用量统计。
type Chunk struct {
	Delta string
	Usage *Usage
}

// ChunkStream 供应商返回的增量流；读到 io.EOF 表示正常结束。
// 调用方负责 Close。
type ChunkStream interface {
	Recv() (*Chunk, error)
	Close()
}

// TextParams 文本生成参数
type TextParams struct {
	Prompt           string
	SystemPrompt     string
	MaxWords         int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// TextGenerator 文本生成能力（唯一的流式能力）
type TextGenerator interface {
	// Stream 流式生成；每个块在网络到达时立即返回
	Stream(ctx context.Context, params TextParams) (ChunkStream, error)
	// Complete 非流式生成，用于提示词增强等短调用
	Complete(ctx context.Context, params TextParams) (string, Usage, error)
}

// ImageParams 图像合成参数
type ImageParams struct {
	Prompt     string
	Resolution string
}

// ImageSynthesizer 图像合成能力
// 产物以增量块（base64 分片或进度性占位）流出，与文本流共用 ChunkStream。
type ImageSynthesizer interface {
	Synthesize(ctx context.Context, params ImageParams) (ChunkStream, error)
}

// Embedder 向量化能力，供故事圣经检索使用
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// StaticChunkStream 把既有内容包装为 ChunkStream，用于非流式产物
type StaticChunkStream struct {
	chunks []Chunk
	pos    int
}

// NewStaticChunkStream 创建静态流
func NewStaticChunkStream(chunks ...Chunk) *StaticChunkStream {
	return &StaticChunkStream{chunks: chunks}
}

// Recv 依次返回块，结束返回 io.EOF
func (s *StaticChunkStream) Recv() (*Chunk, error) {
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return &c, nil
}

// Close 无资源可释放
func (s *StaticChunkStream) Close() {}
