package orchestrator

import (
	"sync"

	"inkwell-ai-api/internal/domain/entity"
	"inkwell-ai-api/pkg/metrics"
)

// broadcaster 单个任务的事件扇出
//
// 事件由任务 worker 单线程发布，对每个订阅者保持发布顺序；
// 订阅者通道写满时丢弃其最旧事件，慢观察者不会阻塞生成。
// 内容块事件会进入重放缓冲，迟到的订阅者先收到已流出的内容。
type broadcaster struct {
	mu sync.Mutex

	jobID   string
	bufSize int

	// replay 内容块的重放缓冲（只追加）
	replay []entity.StreamEvent
	// lastStatus / lastProgress 供迟到订阅者对齐当前状态
	lastStatus   entity.StreamEvent
	hasStatus    bool
	terminal     *entity.StreamEvent
	closed       bool

	subscribers map[chan entity.StreamEvent]struct{}
}

func newBroadcaster(jobID string, bufSize int) *broadcaster {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &broadcaster{
		jobID:       jobID,
		bufSize:     bufSize,
		subscribers: make(map[chan entity.StreamEvent]struct{}),
	}
}

// Publish 发布一个事件
func (b *broadcaster) Publish(ev entity.StreamEvent) {
	metrics.StreamEventsTotal.WithLabelValues(string(ev.Kind)).Inc()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	switch ev.Kind {
	case entity.EventChunk:
		b.replay = append(b.replay, ev)
	case entity.EventStageChange, entity.EventProgress:
		b.lastStatus = ev
		b.hasStatus = true
	case entity.EventTerminal:
		b.terminal = &ev
	}

	for ch := range b.subscribers {
		b.send(ch, ev)
	}
}

// send 非阻塞投递；通道满时丢最旧再投
func (b *broadcaster) send(ch chan entity.StreamEvent, ev entity.StreamEvent) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
			metrics.StreamEventsDropped.Inc()
		default:
		}
	}
}

// Subscribe 订阅事件流
// 返回通道与退订函数；先按序重放缓冲内容，再补一个状态对齐事件，
// 之后接续实时事件。任务已终态时返回重放加终态事件后即关闭的通道。
//
// 对齐事件排在重放之后且进度抬升到重放的最高水位，
// 保证单个订阅者收到的进度序列不回退。
func (b *broadcaster) Subscribe() (<-chan entity.StreamEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// 缓冲需容纳完整重放，避免订阅瞬间就丢事件
	size := b.bufSize
	if need := len(b.replay) + 4; need > size {
		size = need
	}
	ch := make(chan entity.StreamEvent, size)

	for _, ev := range b.replay {
		ch <- ev
	}
	if b.hasStatus {
		status := b.lastStatus
		if n := len(b.replay); n > 0 && b.replay[n-1].Progress > status.Progress {
			status.Progress = b.replay[n-1].Progress
		}
		ch <- status
	}
	if b.terminal != nil {
		ch <- *b.terminal
	}

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	b.subscribers[ch] = struct{}{}
	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Close 终止扇出并关闭所有订阅通道
// 调用前应已发布终态事件。
func (b *broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}
