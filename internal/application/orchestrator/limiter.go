// Package orchestrator 提供生成任务的准入、编排与事件分发
package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"inkwell-ai-api/pkg/metrics"
)

// Limiter 并发槽限制器
// 在途任务不超过槽数上限；等待者按先到先得的顺序获得槽，
// 等待可被任务自身的取消信号打断。
type Limiter struct {
	sem *semaphore.Weighted
	max int
}

// NewLimiter 创建限制器
func NewLimiter(max int) *Limiter {
	if max <= 0 {
		max = 3
	}
	return &Limiter{
		sem: semaphore.NewWeighted(int64(max)),
		max: max,
	}
}

// Max 槽数上限
func (l *Limiter) Max() int {
	return l.max
}

// Acquire 阻塞获取一个并发槽；ctx 取消时返回其错误
func (l *Limiter) Acquire(ctx context.Context) (*Slot, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	metrics.ActiveJobs.Inc()
	return &Slot{limiter: l}, nil
}

// Slot 并发槽句柄，释放只生效一次
type Slot struct {
	limiter *Limiter
	once    sync.Once
}

// Release 归还并发槽
func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.limiter.sem.Release(1)
		metrics.ActiveJobs.Dec()
	})
}
