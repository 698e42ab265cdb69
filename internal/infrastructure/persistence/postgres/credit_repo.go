package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"inkwell-ai-api/internal/domain/entity"
)

// creditAccountRecord 项目额度账户行
// 只持久化已提交额与上限；预留额是进程内状态，不落库。
type creditAccountRecord struct {
	ProjectID string `gorm:"primaryKey;type:varchar(64)"`
	Committed int64
	Limit     int64 `gorm:"column:credit_limit"`
	UpdatedAt time.Time
}

func (creditAccountRecord) TableName() string {
	return "credit_accounts"
}

// CreditRepository 额度账户持久化仓储
type CreditRepository struct {
	client *Client
}

// NewCreditRepository 创建额度仓储
func NewCreditRepository(client *Client) *CreditRepository {
	return &CreditRepository{client: client}
}

// LoadAll 加载全部账户
func (r *CreditRepository) LoadAll(ctx context.Context) ([]entity.CreditAccount, error) {
	ctx, span := tracer.Start(ctx, "postgres.CreditRepository.LoadAll")
	defer span.End()

	var records []creditAccountRecord
	db := r.client.db.WithContext(ctx)
	if err := db.Find(&records).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load credit accounts: %w", err)
	}

	accounts := make([]entity.CreditAccount, 0, len(records))
	for _, rec := range records {
		accounts = append(accounts, entity.CreditAccount{
			ProjectID: rec.ProjectID,
			Committed: rec.Committed,
			Limit:     rec.Limit,
		})
	}
	return accounts, nil
}

// Save 写回账户余额
func (r *CreditRepository) Save(ctx context.Context, account entity.CreditAccount) error {
	ctx, span := tracer.Start(ctx, "postgres.CreditRepository.Save")
	defer span.End()

	record := creditAccountRecord{
		ProjectID: account.ProjectID,
		Committed: account.Committed,
		Limit:     account.Limit,
		UpdatedAt: time.Now(),
	}

	db := r.client.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"committed", "credit_limit", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save credit account: %w", err)
	}
	return nil
}
