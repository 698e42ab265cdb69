package dto

import (
	"inkwell-ai-api/internal/domain/entity"
)

// CreditBalanceResponse 项目额度余额
type CreditBalanceResponse struct {
	ProjectID string `json:"project_id"`
	Reserved  int64  `json:"reserved"`
	Committed int64  `json:"committed"`
	Limit     int64  `json:"limit"`
	// Available 剩余可用额度，-1 表示不限
	Available int64 `json:"available"`
}

// NewCreditBalanceResponse 由账户快照构建余额视图
func NewCreditBalanceResponse(acc entity.CreditAccount) *CreditBalanceResponse {
	return &CreditBalanceResponse{
		ProjectID: acc.ProjectID,
		Reserved:  acc.Reserved,
		Committed: acc.Committed,
		Limit:     acc.Limit,
		Available: acc.Available(),
	}
}

// EstimateRequest 额度预估请求
// 与提交生成请求同构，只做估算不创建任务。
type EstimateRequest = SubmitGenerationRequest

// EstimateResponse 额度预估结果
type EstimateResponse struct {
	Kind             string `json:"kind"`
	EstimatedCredits int64  `json:"estimated_credits"`
}
