package handler

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"inkwell-ai-api/internal/application/orchestrator"
	"inkwell-ai-api/internal/domain/entity"
	"inkwell-ai-api/internal/domain/repository"
	"inkwell-ai-api/internal/infrastructure/persistence/redis"
	"inkwell-ai-api/internal/interfaces/http/dto"
)

// 归档列表的缓存时长；列表只增不改，短缓存足够
const historyCacheTTL = 30 * time.Second

// GenerationHandler 生成任务处理器
type GenerationHandler struct {
	orch    *orchestrator.Orchestrator
	archive repository.ArchiveRepository
	cache   *redis.Cache
}

// NewGenerationHandler 创建生成任务处理器
// archive 与 cache 都可为 nil：没有归档时历史查询只覆盖进程内
// 保留的任务，没有缓存时每次都落库。
func NewGenerationHandler(orch *orchestrator.Orchestrator, archive repository.ArchiveRepository, cache *redis.Cache) *GenerationHandler {
	return &GenerationHandler{orch: orch, archive: archive, cache: cache}
}

// Submit 提交生成任务
// @Summary 提交生成任务
// @Description 通过准入控制后创建异步生成任务
// @Tags Generations
// @Accept json
// @Produce json
// @Param request body dto.SubmitGenerationRequest true "生成请求"
// @Success 202 {object} dto.Response[dto.JobResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 402 {object} dto.ErrorResponse
// @Router /v1/generations [post]
func (h *GenerationHandler) Submit(c *gin.Context) {
	var req dto.SubmitGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	job, err := h.orch.Submit(c.Request.Context(), req.ToEntity())
	if err != nil {
		respondError(c, err)
		return
	}

	dto.Accepted(c, dto.NewJobResponse(&job))
}

// Get 查询任务快照
// @Summary 查询任务
// @Tags Generations
// @Produce json
// @Param jid path string true "任务 ID"
// @Success 200 {object} dto.Response[dto.JobResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/generations/{jid} [get]
func (h *GenerationHandler) Get(c *gin.Context) {
	job, err := h.orch.Snapshot(c.Param("jid"))
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.NewJobResponse(&job))
}

// List 列出在表任务
// @Summary 列出任务
// @Description 返回活跃任务与进程内保留的终态历史
// @Tags Generations
// @Produce json
// @Success 200 {object} dto.Response[dto.JobListResponse]
// @Router /v1/generations [get]
func (h *GenerationHandler) List(c *gin.Context) {
	jobs := h.orch.Jobs()

	resp := &dto.JobListResponse{Jobs: make([]*dto.JobResponse, 0, len(jobs))}
	for i := range jobs {
		resp.Jobs = append(resp.Jobs, dto.NewJobResponse(&jobs[i]))
	}
	dto.Success(c, resp)
}

// Cancel 取消任务
// @Summary 取消任务
// @Description 协作式取消；幂等，取消已终态任务为无操作
// @Tags Generations
// @Produce json
// @Param jid path string true "任务 ID"
// @Success 202 {object} dto.Response[dto.JobResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/generations/{jid}/cancel [post]
func (h *GenerationHandler) Cancel(c *gin.Context) {
	jid := c.Param("jid")
	if err := h.orch.Cancel(c.Request.Context(), jid); err != nil {
		respondError(c, err)
		return
	}

	job, err := h.orch.Snapshot(jid)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Accepted(c, dto.NewJobResponse(&job))
}

// History 查询项目的归档任务
// @Summary 查询项目归档
// @Tags Generations
// @Produce json
// @Param pid path string true "项目 ID"
// @Param limit query int false "返回条数"
// @Success 200 {object} dto.Response[dto.JobListResponse]
// @Router /v1/projects/{pid}/generations [get]
func (h *GenerationHandler) History(c *gin.Context) {
	if h.archive == nil {
		dto.ServiceUnavailable(c, "job archive not configured")
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	jobs, err := h.listArchived(c, c.Param("pid"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := &dto.JobListResponse{Jobs: make([]*dto.JobResponse, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, dto.NewJobResponse(job))
	}
	dto.Success(c, resp)
}

// listArchived 读归档列表，配置了缓存时走 read-through
func (h *GenerationHandler) listArchived(c *gin.Context, projectID string, limit int) ([]*entity.Job, error) {
	ctx := c.Request.Context()
	if h.cache == nil {
		return h.archive.ListRecent(ctx, projectID, limit)
	}

	key := fmt.Sprintf("%s:%d", redis.BuildHistoryKey(projectID), limit)
	data, err := h.cache.GetOrLoadSafe(ctx, key, historyCacheTTL, func() (interface{}, error) {
		return h.archive.ListRecent(ctx, projectID, limit)
	})
	if err != nil {
		return nil, err
	}

	var jobs []*entity.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to decode cached jobs: %w", err)
	}
	return jobs, nil
}
