package monitor

import (
	"time"

	"GameBenchDesktop/internal/stats"
)

// EventType 监测事件类型
type EventType string

const (
	// EventStarted 监测成功启动
	EventStarted EventType = "monitoring-started"
	// EventSnapshot 实时帧率快照（约每秒一次）
	EventSnapshot EventType = "fps-update"
	// EventStopped 监测结束
	EventStopped EventType = "monitoring-stopped"
	// EventSessionComplete 会话汇总（每次完整监测恰好一次）
	EventSessionComplete EventType = "session-complete"
	// EventError 监测错误
	EventError EventType = "monitoring-error"
)

// ErrorKind 错误分类，调用方据此决定提示方式
type ErrorKind string

const (
	ErrorKindNone             ErrorKind = ""
	ErrorKindToolMissing      ErrorKind = "capture_tool_missing"
	ErrorKindSpawnFailed      ErrorKind = "spawn_failed"
	ErrorKindPermissionDenied ErrorKind = "permission_denied"
	ErrorKindDecodeFailed     ErrorKind = "decode_failed"
	ErrorKindUnexpectedExit   ErrorKind = "unexpected_exit"
)

// Event 引擎推送给外部的事件。同一条通道上按发生顺序投递的
// 带标签变体，由 Type 决定哪个载荷字段有效。
type Event struct {
	Type        EventType          `json:"type"`
	ProcessName string             `json:"process_name,omitempty"`
	Snapshot    *stats.FpsSnapshot `json:"snapshot,omitempty"`
	Session     *stats.FpsSession  `json:"session,omitempty"`
	ErrorKind   ErrorKind          `json:"error_kind,omitempty"`
	Error       string             `json:"error,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// Status 当前监测状态
type Status struct {
	Running     bool     `json:"running"`
	ProcessName string   `json:"process_name,omitempty"`
	CurrentFps  *float64 `json:"current_fps,omitempty"`
}
