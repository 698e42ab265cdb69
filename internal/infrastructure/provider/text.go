package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"inkwell-ai-api/internal/application/provider"
	"inkwell-ai-api/pkg/metrics"
)

// 生成上限按每词 2 token 换算；经验比例约 4/3，
// 上限放宽以免在目标词数附近截断。
const maxTokensPerWord = 2

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Temperature      float64       `json:"temperature,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
	StreamOptions    *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

func (c *Client) buildChatRequest(params provider.TextParams, stream bool) *chatRequest {
	var messages []chatMessage
	if params.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: params.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: params.Prompt})

	req := &chatRequest{
		Model:            c.textModel,
		Messages:         messages,
		Temperature:      params.Temperature,
		TopP:             params.TopP,
		FrequencyPenalty: params.FrequencyPenalty,
		PresencePenalty:  params.PresencePenalty,
		Stream:           stream,
	}
	if params.MaxWords > 0 {
		req.MaxTokens = params.MaxWords * maxTokensPerWord
	}
	if stream {
		req.StreamOptions = &struct {
			IncludeUsage bool `json:"include_usage"`
		}{IncludeUsage: true}
	}
	return req
}

// Complete 非流式文本生成
func (c *Client) Complete(ctx context.Context, params provider.TextParams) (string, provider.Usage, error) {
	ctx, span := tracer.Start(ctx, "provider.Complete")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.ProviderCallDuration.WithLabelValues("complete").Observe(time.Since(start).Seconds())
	}()

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", c.buildChatRequest(params, false), &resp); err != nil {
		span.RecordError(err)
		return "", provider.Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", provider.Usage{}, fmt.Errorf("provider returned no choices")
	}

	var usage provider.Usage
	if resp.Usage != nil {
		usage = provider.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// Stream 流式文本生成
func (c *Client) Stream(ctx context.Context, params provider.TextParams) (provider.ChunkStream, error) {
	ctx, span := tracer.Start(ctx, "provider.Stream")
	defer span.End()

	resp, err := c.doPost(ctx, "/chat/completions", c.buildChatRequest(params, true))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		span.RecordError(err)
		return nil, err
	}

	return &sseStream{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
		started: time.Now(),
	}, nil
}

// sseStream 解析 text/event-stream 格式的增量流
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	started time.Time
	done    bool
}

// Recv 返回下一个增量；流正常结束返回 io.EOF
func (s *sseStream) Recv() (*provider.Chunk, error) {
	if s.done {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			return nil, fmt.Errorf("malformed stream line: %q", line)
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			s.finish()
			return nil, io.EOF
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, fmt.Errorf("malformed stream chunk: %w", err)
		}

		out := &provider.Chunk{}
		if len(chunk.Choices) > 0 {
			out.Delta = chunk.Choices[0].Delta.Content
		}
		if chunk.Usage != nil {
			out.Usage = &provider.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
			}
		}
		if out.Delta == "" && out.Usage == nil {
			continue
		}
		return out, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read failed: %w", err)
	}
	// 服务端直接关闭连接也视为正常结束
	s.finish()
	return nil, io.EOF
}

func (s *sseStream) finish() {
	if !s.done {
		s.done = true
		metrics.ProviderCallDuration.WithLabelValues("stream").Observe(time.Since(s.started).Seconds())
	}
}

// Close 释放底层连接
func (s *sseStream) Close() {
	s.finish()
	s.body.Close()
}

var _ provider.TextGenerator = (*Client)(nil)
