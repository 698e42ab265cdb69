package orchestrator

import (
	"sync"

	"inkwell-ai-api/internal/domain/entity"
)

// managedJob 编排器内部的任务运行时
type managedJob struct {
	// mu 保护 job 的全部可变字段
	mu  sync.Mutex
	job *entity.Job

	cancel func()
	bcast  *broadcaster
}

// snapshot 取只读快照
func (m *managedJob) snapshot() entity.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job.Snapshot()
}

// registry 任务注册表
// 活跃任务全部保留；终态任务保留有限条历史，
// 支持"按相同设置重新生成"，超出上限按结束时间淘汰。
type registry struct {
	mu      sync.RWMutex
	jobs    map[string]*managedJob
	history []string // 终态任务 ID，按进入终态的顺序
	limit   int
}

func newRegistry(historyLimit int) *registry {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &registry{
		jobs:  make(map[string]*managedJob),
		limit: historyLimit,
	}
}

func (r *registry) add(m *managedJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[m.job.ID] = m
}

func (r *registry) get(id string) (*managedJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.jobs[id]
	return m, ok
}

// markTerminal 把任务移入历史并淘汰最旧的终态任务
func (r *registry) markTerminal(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, id)
	for len(r.history) > r.limit {
		evict := r.history[0]
		r.history = r.history[1:]
		delete(r.jobs, evict)
	}
}

// list 所有在表任务的快照
func (r *registry) list() []entity.Job {
	r.mu.RLock()
	managed := make([]*managedJob, 0, len(r.jobs))
	for _, m := range r.jobs {
		managed = append(managed, m)
	}
	r.mu.RUnlock()

	out := make([]entity.Job, 0, len(managed))
	for _, m := range managed {
		out = append(out, m.snapshot())
	}
	return out
}
