// Package repository 定义持久化端口
package repository

import (
	"context"

	"inkwell-ai-api/internal/domain/entity"
)

// ArchiveRepository 终态任务归档
// 归档属于外部协作方的持久化职责，编排器只在终态时尽力写入。
type ArchiveRepository interface {
	Save(ctx context.Context, job *entity.Job) error
	ListRecent(ctx context.Context, projectID string, limit int) ([]*entity.Job, error)
}

// CreditStore 额度账户持久化
// 启动时读入余额，结算后写回。
type CreditStore interface {
	LoadAll(ctx context.Context) ([]entity.CreditAccount, error)
	Save(ctx context.Context, account entity.CreditAccount) error
}
