package provider

import (
	"context"
	"fmt"
	"time"

	"inkwell-ai-api/internal/application/provider"
	"inkwell-ai-api/pkg/metrics"
)

// base64 产物切成固定大小的块流出，观察者可以跟进进度
const imageChunkSize = 8192

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Size           string `json:"size"`
	N              int    `json:"n"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Synthesize 图像合成
// 协议本身不支持流式，拿到完整产物后切块包装为增量流。
func (c *Client) Synthesize(ctx context.Context, params provider.ImageParams) (provider.ChunkStream, error) {
	ctx, span := tracer.Start(ctx, "provider.Synthesize")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.ProviderCallDuration.WithLabelValues("image").Observe(time.Since(start).Seconds())
	}()

	var resp imageResponse
	err := c.post(ctx, "/images/generations", &imageRequest{
		Model:          c.imageModel,
		Prompt:         params.Prompt,
		Size:           params.Resolution,
		N:              1,
		ResponseFormat: "b64_json",
	}, &resp)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("provider returned no image data")
	}

	payload := "data:image/png;base64," + resp.Data[0].B64JSON
	var chunks []provider.Chunk
	for i := 0; i < len(payload); i += imageChunkSize {
		end := i + imageChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, provider.Chunk{Delta: payload[i:end]})
	}
	return provider.NewStaticChunkStream(chunks...), nil
}

var _ provider.ImageSynthesizer = (*Client)(nil)
