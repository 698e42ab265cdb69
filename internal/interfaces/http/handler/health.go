// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"inkwell-ai-api/internal/infrastructure/persistence/milvus"
	"inkwell-ai-api/internal/infrastructure/persistence/postgres"
	"inkwell-ai-api/internal/infrastructure/persistence/redis"
)

// HealthHandler 健康检查处理器
// 三个外部依赖都是可选的；未配置的依赖不参与就绪判定。
type HealthHandler struct {
	pg     *postgres.Client
	redis  *redis.Client
	milvus *milvus.Client
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(pg *postgres.Client, redisClient *redis.Client, milvusClient *milvus.Client) *HealthHandler {
	return &HealthHandler{
		pg:     pg,
		redis:  redisClient,
		milvus: milvusClient,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Health 健康检查接口
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
	})
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Ready 就绪检查接口
// @Summary 就绪检查
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Failure 503 {object} readinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]*readinessCheck{}
	ready := true

	probe := func(name string, checker healthChecker, required bool) {
		checks[name] = &readinessCheck{Status: "disabled"}
		if checker == nil {
			return
		}
		start := time.Now()
		err := checker.HealthCheck(ctx)
		checks[name].LatencyMs = time.Since(start).Milliseconds()
		if err != nil {
			checks[name].Error = err.Error()
			if required {
				checks[name].Status = "error"
				ready = false
			} else {
				checks[name].Status = "degraded"
			}
			return
		}
		checks[name].Status = "ok"
	}

	// 归档与额度持久化依赖 Postgres；检索降级可接受
	var pg, rd, mv healthChecker
	if h.pg != nil {
		pg = h.pg
	}
	if h.redis != nil {
		rd = h.redis
	}
	if h.milvus != nil {
		mv = h.milvus
	}
	probe("postgres", pg, true)
	probe("redis", rd, true)
	probe("milvus", mv, false)

	resp := readinessResponse{Status: "ok", Checks: checks}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
	})
}
