package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// LogMessage 一条结构化日志
type LogMessage struct {
	Level     string    `json:"level"`
	Module    string    `json:"module"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Store 内存日志存储：固定容量的环形缓冲区，支撑前端日志页的
// 读取/清空，并可注册订阅者实时接收新日志（由 API 层推送给 UI）。
// 所有日志同时输出到标准 log。
type Store struct {
	mu       sync.RWMutex
	entries  []LogMessage
	capacity int
	subs     []func(LogMessage)
}

// NewStore 创建日志存储，capacity <= 0 时使用 2000
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 2000
	}
	return &Store{
		entries:  make([]LogMessage, 0, capacity),
		capacity: capacity,
	}
}

// Subscribe 注册日志订阅者，回调在记录日志的协程上执行
func (s *Store) Subscribe(fn func(LogMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Info 记录信息日志
func (s *Store) Info(module, format string, args ...interface{}) {
	s.append("INFO", module, format, args...)
}

// Warn 记录警告日志
func (s *Store) Warn(module, format string, args ...interface{}) {
	s.append("WARNING", module, format, args...)
}

// Error 记录错误日志
func (s *Store) Error(module, format string, args ...interface{}) {
	s.append("ERROR", module, format, args...)
}

// Entries 返回当前缓冲区内的全部日志，从旧到新
func (s *Store) Entries() []LogMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LogMessage, len(s.entries))
	copy(out, s.entries)
	return out
}

// Dump 把缓冲区日志拼成文本，给日志页展示
func (s *Store) Dump() string {
	entries := s.Entries()
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Timestamp.Format("2006-01-02 15:04:05"))
		b.WriteString(" [")
		b.WriteString(e.Level)
		b.WriteString("] ")
		b.WriteString(e.Module)
		b.WriteString(": ")
		b.WriteString(e.Message)
		b.WriteString("\n")
	}
	return b.String()
}

// Clear 清空缓冲区
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = s.entries[:0]
}

func (s *Store) append(level, module, format string, args ...interface{}) {
	msg := LogMessage{
		Level:     level,
		Module:    module,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}

	log.Printf("[%s] %s: %s", msg.Level, msg.Module, msg.Message)

	s.mu.Lock()
	if len(s.entries) >= s.capacity {
		// 淘汰最旧的一批，避免每条日志都搬移
		drop := s.capacity / 10
		if drop < 1 {
			drop = 1
		}
		s.entries = append(s.entries[:0], s.entries[drop:]...)
	}
	s.entries = append(s.entries, msg)
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}
}

// Init 设置标准 log 的输出格式
func Init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
