package provider

import (
	"context"
	"fmt"
	"time"

	"inkwell-ai-api/internal/application/provider"
	"inkwell-ai-api/pkg/metrics"
)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedQuery 把检索词向量化
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "provider.EmbedQuery")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.ProviderCallDuration.WithLabelValues("embedding").Observe(time.Since(start).Seconds())
	}()

	var resp embeddingResponse
	err := c.post(ctx, "/embeddings", &embeddingRequest{
		Model: c.embeddingModel,
		Input: []string{text},
	}, &resp)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("provider returned no embedding")
	}
	return resp.Data[0].Embedding, nil
}

var _ provider.Embedder = (*Client)(nil)
