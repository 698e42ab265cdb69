package handler

import (
	"github.com/gin-gonic/gin"

	"inkwell-ai-api/internal/application/credit"
	"inkwell-ai-api/internal/application/orchestrator"
	"inkwell-ai-api/internal/interfaces/http/dto"
	apperrors "inkwell-ai-api/pkg/errors"
)

// CreditHandler 额度处理器
type CreditHandler struct {
	orch *orchestrator.Orchestrator
}

// NewCreditHandler 创建额度处理器
func NewCreditHandler(orch *orchestrator.Orchestrator) *CreditHandler {
	return &CreditHandler{orch: orch}
}

// Balance 查询项目额度余额
// @Summary 查询项目额度
// @Tags Credits
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.CreditBalanceResponse]
// @Router /v1/credits/{pid} [get]
func (h *CreditHandler) Balance(c *gin.Context) {
	acc := h.orch.Balance(c.Param("pid"))
	dto.Success(c, dto.NewCreditBalanceResponse(acc))
}

// Estimate 预估请求的额度消耗
// @Summary 预估额度消耗
// @Description 只估算不创建任务，供前端在提交前展示
// @Tags Credits
// @Accept json
// @Produce json
// @Param request body dto.EstimateRequest true "生成请求"
// @Success 200 {object} dto.Response[dto.EstimateResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/credits/estimate [post]
func (h *CreditHandler) Estimate(c *gin.Context) {
	var req dto.EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	entityReq := req.ToEntity().Normalized()
	if err := entityReq.Validate(); err != nil {
		respondError(c, apperrors.New(apperrors.CodeMalformedRequest, "malformed generation request").
			WithDetail(err.Error()))
		return
	}

	estimated, err := credit.Estimate(&entityReq)
	if err != nil {
		respondError(c, apperrors.New(apperrors.CodeUnsupportedKind, "unsupported generation kind").
			WithDetail(err.Error()))
		return
	}

	dto.Success(c, &dto.EstimateResponse{
		Kind:             string(entityReq.Kind),
		EstimatedCredits: estimated,
	})
}
