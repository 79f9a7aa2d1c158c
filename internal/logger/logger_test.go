package logger

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStoreLevels 三个级别的日志都进入缓冲区
func TestStoreLevels(t *testing.T) {
	s := NewStore(100)

	s.Info("monitor", "开始监测 %s", "game.exe")
	s.Warn("capture", "跳过 %d 行", 3)
	s.Error("server", "端口被占用")

	entries := s.Entries()
	require.Len(t, entries, 3)

	assert.Equal(t, "INFO", entries[0].Level)
	assert.Equal(t, "monitor", entries[0].Module)
	assert.Equal(t, "开始监测 game.exe", entries[0].Message)
	assert.Equal(t, "WARNING", entries[1].Level)
	assert.Equal(t, "ERROR", entries[2].Level)
	assert.False(t, entries[0].Timestamp.IsZero())
}

// TestStoreEviction 超容量时淘汰最旧的一批
func TestStoreEviction(t *testing.T) {
	s := NewStore(50)
	for i := 0; i < 60; i++ {
		s.Info("test", "第 %d 条", i)
	}

	entries := s.Entries()
	assert.LessOrEqual(t, len(entries), 50)
	// 最新的一条一定还在，最旧的一批已被淘汰
	assert.Equal(t, "第 59 条", entries[len(entries)-1].Message)
	assert.NotEqual(t, "第 0 条", entries[0].Message)
}

// TestStoreDump 文本形式包含级别、模块和内容
func TestStoreDump(t *testing.T) {
	s := NewStore(10)
	s.Info("monitor", "开始监测")

	dump := s.Dump()
	assert.Contains(t, dump, "[INFO]")
	assert.Contains(t, dump, "monitor: 开始监测")
}

// TestStoreClear 清空后缓冲区为空
func TestStoreClear(t *testing.T) {
	s := NewStore(10)
	s.Info("test", "一条日志")
	s.Clear()

	assert.Empty(t, s.Entries())
	assert.Empty(t, s.Dump())
}

// TestStoreSubscribe 订阅者逐条收到新日志
func TestStoreSubscribe(t *testing.T) {
	s := NewStore(10)

	var received []LogMessage
	s.Subscribe(func(msg LogMessage) {
		received = append(received, msg)
	})

	for i := 0; i < 3; i++ {
		s.Info("test", fmt.Sprintf("msg-%d", i))
	}

	require.Len(t, received, 3)
	assert.Equal(t, "msg-0", received[0].Message)
	assert.Equal(t, "msg-2", received[2].Message)
}

// TestStoreDefaultCapacity capacity <= 0 时退回默认值
func TestStoreDefaultCapacity(t *testing.T) {
	s := NewStore(0)
	s.Info("test", "ok")
	assert.Len(t, s.Entries(), 1)
}
