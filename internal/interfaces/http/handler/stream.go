// Package handler 提供 HTTP 请求处理器
package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"inkwell-ai-api/internal/application/orchestrator"
	"inkwell-ai-api/internal/domain/entity"
)

// StreamHandler 任务事件流处理器
type StreamHandler struct {
	orch *orchestrator.Orchestrator
}

// NewStreamHandler 创建事件流处理器
func NewStreamHandler(orch *orchestrator.Orchestrator) *StreamHandler {
	return &StreamHandler{orch: orch}
}

// StreamJob 订阅任务事件流
// @Summary 订阅任务事件流
// @Description 通过 SSE 推送任务的进度、内容增量与终态；迟到订阅先重放已流出内容
// @Tags Generations
// @Produce text/event-stream
// @Param jid path string true "任务 ID"
// @Success 200 "SSE stream"
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/generations/{jid}/stream [get]
func (h *StreamHandler) StreamJob(c *gin.Context) {
	events, unsubscribe, err := h.orch.Subscribe(c.Param("jid"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer unsubscribe()

	// SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				// 终态事件已发出，扇出关闭
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			// 终态后通道随即关闭，这里继续等待即可
			return ev.Kind != entity.EventTerminal

		case <-c.Request.Context().Done():
			// 客户端断开；任务继续执行
			return false
		}
	})
}
