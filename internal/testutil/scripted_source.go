package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"GameBenchDesktop/internal/capture"
)

// ScriptedSource 脚本化帧数据源：按序回放固定的行序列，
// 替代真实的 PresentMon 子进程，让监测管线的测试完全确定。
// 实现 capture.Source。
type ScriptedSource struct {
	mu    sync.Mutex
	lines []string
	pos   int

	// Launch 时返回的错误（模拟启动失败）
	LaunchErr error

	launched   atomic.Bool
	terminated atomic.Bool

	// 读完所有行之后是否阻塞等待 Terminate（模拟仍在运行的采集），
	// false 时直接返回 EndOfStream（模拟目标进程退出）
	HoldOpen bool
	holdCh   chan struct{}
}

// NewScriptedSource 创建脚本化数据源
func NewScriptedSource(lines ...string) *ScriptedSource {
	return &ScriptedSource{
		lines:  lines,
		holdCh: make(chan struct{}),
	}
}

// Launch 实现 capture.Source
func (s *ScriptedSource) Launch(ctx context.Context, processName string) error {
	if s.LaunchErr != nil {
		return s.LaunchErr
	}
	s.launched.Store(true)
	return nil
}

// ReadLine 实现 capture.Source
func (s *ScriptedSource) ReadLine() (string, error) {
	s.mu.Lock()
	if s.pos < len(s.lines) {
		line := s.lines[s.pos]
		s.pos++
		s.mu.Unlock()
		return line, nil
	}
	s.mu.Unlock()

	if s.HoldOpen {
		<-s.holdCh
	}
	return "", capture.EndOfStream
}

// Terminate 实现 capture.Source，幂等
func (s *ScriptedSource) Terminate() error {
	if s.terminated.CompareAndSwap(false, true) {
		close(s.holdCh)
	}
	return nil
}

// Launched 是否已启动
func (s *ScriptedSource) Launched() bool {
	return s.launched.Load()
}

// Terminated 是否已被终止
func (s *ScriptedSource) Terminated() bool {
	return s.terminated.Load()
}

// CaptureHeader 典型的 PresentMon v2 输出表头
const CaptureHeader = "Application,ProcessID,SwapChainAddress,Runtime,SyncInterval,FrameTime,CPUBusy,GPUBusy"

// DataRow 按 CaptureHeader 的列序构造一条数据行
func DataRow(app string, frameTimeMs, cpuBusyMs, gpuBusyMs float64) string {
	return fmt.Sprintf("%s,1234,0x0000,DXGI,1,%.4f,%.4f,%.4f", app, frameTimeMs, cpuBusyMs, gpuBusyMs)
}

// CaptureOutput 构造完整的采集输出：表头 + 每个帧时间一条数据行
func CaptureOutput(app string, frameTimesMs ...float64) []string {
	lines := make([]string, 0, len(frameTimesMs)+1)
	lines = append(lines, CaptureHeader)
	for _, ft := range frameTimesMs {
		lines = append(lines, DataRow(app, ft, ft*0.4, ft*0.6))
	}
	return lines
}

// RepeatFrames 生成 n 个相同帧时间
func RepeatFrames(frameTimeMs float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = frameTimeMs
	}
	return out
}
