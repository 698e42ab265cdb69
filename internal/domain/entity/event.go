// Package entity 定义领域实体
package entity

import "time"

// EventKind 流式事件类型
type EventKind string

const (
	EventProgress    EventKind = "progress"
	EventChunk       EventKind = "chunk"
	EventStageChange EventKind = "stage_change"
	EventWarning     EventKind = "warning"
	EventTerminal    EventKind = "terminal"
)

// StreamEvent 推送给观察者的事件，仅用于观测，不持久化
type StreamEvent struct {
	JobID        string    `json:"job_id"`
	Kind         EventKind `json:"kind"`
	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	ContentDelta string    `json:"content_delta,omitempty"`
	Warning      string    `json:"warning,omitempty"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}
