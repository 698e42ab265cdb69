package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"inkwell-ai-api/internal/application/provider"
	"inkwell-ai-api/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&config.ProviderConfig{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		TextModel:      "test-model",
		RequestTimeout: 5 * time.Second,
	})
}

func TestStreamParsesSSE(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Stream || req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Errorf("stream request missing usage option: %+v", req)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"Once "}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"upon"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[],"usage":{"prompt_tokens":7,"completion_tokens":3}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	stream, err := client.Stream(context.Background(), provider.TextParams{Prompt: "go"})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	defer stream.Close()

	var content strings.Builder
	var usage provider.Usage
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error: %v", err)
		}
		content.WriteString(chunk.Delta)
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
	}

	if content.String() != "Once upon" {
		t.Fatalf("content = %q, want %q", content.String(), "Once upon")
	}
	if usage.PromptTokens != 7 || usage.CompletionTokens != 3 {
		t.Fatalf("usage = %+v, want 7/3", usage)
	}
}

func TestStreamEOFWithoutDone(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"tail"}}]}`+"\n\n")
		// 服务端不发 [DONE] 直接断开
	})

	stream, err := client.Stream(context.Background(), provider.TextParams{Prompt: "go"})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	defer stream.Close()

	chunk, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv() error: %v", err)
	}
	if chunk.Delta != "tail" {
		t.Fatalf("delta = %q, want %q", chunk.Delta, "tail")
	}
	if _, err := stream.Recv(); err != io.EOF {
		t.Fatalf("Recv() after close = %v, want io.EOF", err)
	}
}

func TestStreamRejectsMalformedChunk(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {not json}\n\n")
	})

	stream, err := client.Stream(context.Background(), provider.TextParams{Prompt: "go"})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	defer stream.Close()

	if _, err := stream.Recv(); err == nil || !strings.Contains(err.Error(), "malformed") {
		t.Fatalf("Recv() error = %v, want malformed chunk error", err)
	}
}

func TestStreamSurfacesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limit exceeded","type":"rate_limit"}}`)
	})

	_, err := client.Stream(context.Background(), provider.TextParams{Prompt: "go"})
	if err == nil || !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Fatalf("Stream() error = %v, want provider error message", err)
	}
}

func TestComplete(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("Complete must not request streaming")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v, want system + user", req.Messages)
		}
		if req.MaxTokens != 600 {
			t.Errorf("max_tokens = %d, want 600", req.MaxTokens)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "rewritten prompt"}},
			},
			"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 9},
		})
	})

	out, usage, err := client.Complete(context.Background(), provider.TextParams{
		SystemPrompt: "rewrite",
		Prompt:       "original",
		MaxWords:     300,
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if out != "rewritten prompt" {
		t.Fatalf("output = %q", out)
	}
	if usage.PromptTokens != 5 || usage.CompletionTokens != 9 {
		t.Fatalf("usage = %+v, want 5/9", usage)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})
	if _, _, err := client.Complete(context.Background(), provider.TextParams{Prompt: "go"}); err == nil {
		t.Fatal("Complete() with no choices should fail")
	}
}
