// Package provider 提供 OpenAI 兼容协议的供应商适配
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"inkwell-ai-api/internal/config"
)

var tracer = otel.Tracer("provider")

// Client OpenAI 兼容接口的 HTTP 客户端
// 文本、图像与向量化共用同一套鉴权与出错处理。
type Client struct {
	baseURL        string
	apiKey         string
	textModel      string
	imageModel     string
	embeddingModel string
	httpClient     *http.Client
}

// NewClient 创建供应商客户端
func NewClient(cfg *config.ProviderConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		textModel:      cfg.TextModel,
		imageModel:     cfg.ImageModel,
		embeddingModel: cfg.EmbeddingModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// post 发送 JSON 请求并返回响应体
// 流式调用不经过这里，需要保持 Body 打开。
func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	resp, err := c.doPost(ctx, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}

func (c *Client) doPost(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("provider base url is empty")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	return resp, nil
}

// checkStatus 非 2xx 时读取错误体并包装
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("provider request failed: status=%d type=%s message=%s",
			resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
	}
	return fmt.Errorf("provider request failed: status=%d", resp.StatusCode)
}
