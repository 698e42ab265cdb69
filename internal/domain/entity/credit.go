// Package entity 定义领域实体
package entity

// CreditAccount 项目额度账户
// 不变式：Reserved >= 0，Committed >= 0；
// 设置了 Limit 时 Reserved+Committed <= Limit。
type CreditAccount struct {
	ProjectID string `json:"project_id"`
	Reserved  int64  `json:"reserved"`
	Committed int64  `json:"committed"`
	// Limit 额度上限，0 表示不限
	Limit int64 `json:"limit"`
}

// Available 剩余可预留额度；无上限时返回 -1
func (a CreditAccount) Available() int64 {
	if a.Limit <= 0 {
		return -1
	}
	return a.Limit - a.Reserved - a.Committed
}
