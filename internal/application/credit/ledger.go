// Package credit 提供项目额度的预估、预留与结算能力
package credit

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"inkwell-ai-api/internal/domain/entity"
	"inkwell-ai-api/internal/domain/repository"
	"inkwell-ai-api/pkg/logger"
)

var tracer = otel.Tracer("credit")

// InsufficientCreditsError 项目额度不足
type InsufficientCreditsError struct {
	ProjectID string
	Requested int64
	Available int64
}

func (e InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: project=%s requested=%d available=%d",
		e.ProjectID, e.Requested, e.Available)
}

// ErrAlreadySettled 预留已结算，重复结算是无操作错误，不会二次划转
var ErrAlreadySettled = fmt.Errorf("reservation already settled")

// Reservation 一次额度预留的句柄
// 结算（Commit/PartialCommit/Release）互斥且只生效一次。
type Reservation struct {
	ledger    *Ledger
	projectID string
	amount    int64

	mu      sync.Mutex
	settled bool
}

// Amount 预留的额度数
func (r *Reservation) Amount() int64 {
	return r.amount
}

// Ledger 项目额度账本
// 同一项目的并发任务通过 per-project 账户锁线性化；
// 账户表本身由 mu 保护。
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*projectAccount

	// defaultLimit 新项目账户的默认上限，0 表示不限
	defaultLimit int64

	// store 可选的持久化端口；启动时读入，结算后尽力写回
	store repository.CreditStore
}

type projectAccount struct {
	mu  sync.Mutex
	acc entity.CreditAccount
}

// NewLedger 创建账本
func NewLedger(defaultLimit int64, store repository.CreditStore) *Ledger {
	return &Ledger{
		accounts:     make(map[string]*projectAccount),
		defaultLimit: defaultLimit,
		store:        store,
	}
}

// LoadFromStore 启动时从持久化端口加载账户余额
func (l *Ledger) LoadFromStore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	accounts, err := l.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load credit accounts: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, acc := range accounts {
		// 进程内没有存活的预留，启动时全部清零
		acc.Reserved = 0
		l.accounts[acc.ProjectID] = &projectAccount{acc: acc}
	}
	return nil
}

// Reserve 为任务预留额度，准入控制在这里完成
func (l *Ledger) Reserve(ctx context.Context, projectID string, amount int64) (*Reservation, error) {
	_, span := tracer.Start(ctx, "credit.Reserve")
	span.SetAttributes(
		attribute.String("project_id", projectID),
		attribute.Int64("credits.amount", amount),
	)
	defer span.End()

	if amount <= 0 {
		return nil, fmt.Errorf("reserve amount must be positive: %d", amount)
	}

	pa := l.account(projectID)
	pa.mu.Lock()
	defer pa.mu.Unlock()

	if pa.acc.Limit > 0 {
		available := pa.acc.Limit - pa.acc.Reserved - pa.acc.Committed
		if amount > available {
			err := InsufficientCreditsError{
				ProjectID: projectID,
				Requested: amount,
				Available: available,
			}
			span.RecordError(err)
			return nil, err
		}
	}

	pa.acc.Reserved += amount
	return &Reservation{
		ledger:    l,
		projectID: projectID,
		amount:    amount,
	}, nil
}

// Commit 全额提交预留
func (l *Ledger) Commit(ctx context.Context, res *Reservation) error {
	return l.settle(ctx, res, res.amount)
}

// PartialCommit 按实际用量提交，差额退回
// actual 超出预留时按预留封顶：准入只担保到预留额。
func (l *Ledger) PartialCommit(ctx context.Context, res *Reservation, actual int64) error {
	if actual < 0 {
		actual = 0
	}
	if actual > res.amount {
		actual = res.amount
	}
	return l.settle(ctx, res, actual)
}

// Release 全额退回预留，用于取消或未产生计费的失败
func (l *Ledger) Release(ctx context.Context, res *Reservation) error {
	return l.settle(ctx, res, 0)
}

// settle 结算预留：提交 commit 数额，其余退回
func (l *Ledger) settle(ctx context.Context, res *Reservation, commit int64) error {
	if res == nil {
		return fmt.Errorf("nil reservation")
	}

	res.mu.Lock()
	if res.settled {
		res.mu.Unlock()
		return ErrAlreadySettled
	}
	res.settled = true
	res.mu.Unlock()

	pa := l.account(res.projectID)
	pa.mu.Lock()
	pa.acc.Reserved -= res.amount
	pa.acc.Committed += commit
	snapshot := pa.acc
	pa.mu.Unlock()

	if l.store != nil {
		if err := l.store.Save(ctx, snapshot); err != nil {
			// 写回失败不阻塞结算，余额仍在进程内生效
			logger.Warn(ctx, "failed to persist credit account",
				"project_id", res.projectID, "error", err.Error())
		}
	}
	return nil
}

// Balance 账户快照
func (l *Ledger) Balance(projectID string) entity.CreditAccount {
	pa := l.account(projectID)
	pa.mu.Lock()
	defer pa.mu.Unlock()
	return pa.acc
}

// SetLimit 设置项目上限（配置输入，运行期亦可调整）
func (l *Ledger) SetLimit(projectID string, limit int64) {
	pa := l.account(projectID)
	pa.mu.Lock()
	defer pa.mu.Unlock()
	pa.acc.Limit = limit
}

func (l *Ledger) account(projectID string) *projectAccount {
	l.mu.Lock()
	defer l.mu.Unlock()
	pa, ok := l.accounts[projectID]
	if !ok {
		pa = &projectAccount{acc: entity.CreditAccount{
			ProjectID: projectID,
			Limit:     l.defaultLimit,
		}}
		l.accounts[projectID] = pa
	}
	return pa
}
