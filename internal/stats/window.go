package stats

import (
	"time"
)

// windowFrame 窗口内保留的单帧数据
type windowFrame struct {
	frameTimeMs float64
	cpuBusyMs   float64
	gpuBusyMs   float64
}

// WindowCalculator 滑动窗口 FPS 计算器。
// 窗口与快照节奏都以输入帧的帧时间累计值为时钟，而不是采样时的
// 墙钟时间，因此对同一输入流结果完全确定。
// 状态演进：Idle（无帧）→ Accumulating（累积中）→ 每当自上次
// 快照起累计满一个快照间隔就产出一次 FpsSnapshot。
type WindowCalculator struct {
	processName string

	windowMs   float64 // 滑动窗口长度 (ms)
	intervalMs float64 // 快照间隔 (ms)

	frames      []windowFrame
	windowSumMs float64 // 窗口内帧时间之和

	elapsedMs   float64 // 监测开始以来的帧时间累计
	sinceEmitMs float64 // 距上次快照的帧时间累计
}

// NewWindowCalculator 创建滑动窗口计算器。
// window/interval 不合法时回退到 1 秒。
func NewWindowCalculator(processName string, window, interval time.Duration) *WindowCalculator {
	if window <= 0 {
		window = time.Second
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &WindowCalculator{
		processName: processName,
		windowMs:    float64(window.Milliseconds()),
		intervalMs:  float64(interval.Milliseconds()),
		frames:      make([]windowFrame, 0, 256),
	}
}

// Push 输入一帧。窗口淘汰超龄帧后，如果距上次快照已累计满一个
// 快照间隔，返回 (snapshot, true)，否则返回 (nil, false)。
func (w *WindowCalculator) Push(frameTimeMs, cpuBusyMs, gpuBusyMs float64) (*FpsSnapshot, bool) {
	w.frames = append(w.frames, windowFrame{frameTimeMs, cpuBusyMs, gpuBusyMs})
	w.windowSumMs += frameTimeMs
	w.elapsedMs += frameTimeMs
	w.sinceEmitMs += frameTimeMs

	// 淘汰窗口外的旧帧，但保证剩余帧仍覆盖整个窗口
	evict := 0
	for evict < len(w.frames)-1 &&
		w.windowSumMs-w.frames[evict].frameTimeMs >= w.windowMs {
		w.windowSumMs -= w.frames[evict].frameTimeMs
		evict++
	}
	if evict > 0 {
		w.frames = append(w.frames[:0], w.frames[evict:]...)
	}

	if w.sinceEmitMs < w.intervalMs {
		return nil, false
	}
	w.sinceEmitMs = 0

	return w.snapshot(), true
}

// StallSnapshot 在快照间隔内没有任何帧到达时产出的空快照，
// FPS 为 0，让调用方能区分"卡死"和"未运行"。
func (w *WindowCalculator) StallSnapshot() *FpsSnapshot {
	return &FpsSnapshot{
		ProcessName: w.processName,
		ElapsedSecs: round1(w.elapsedMs / 1000.0),
	}
}

// ElapsedSecs 监测开始以来的帧时间累计（秒）
func (w *WindowCalculator) ElapsedSecs() float64 {
	return w.elapsedMs / 1000.0
}

func (w *WindowCalculator) snapshot() *FpsSnapshot {
	n := len(w.frames)
	if n == 0 || w.windowSumMs <= 0 {
		return w.StallSnapshot()
	}

	times := make([]float64, n)
	var cpuSum, gpuSum float64
	for i, f := range w.frames {
		times[i] = f.frameTimeMs
		cpuSum += f.cpuBusyMs
		gpuSum += f.gpuBusyMs
	}

	return &FpsSnapshot{
		Fps:         round1(1000.0 * float64(n) / w.windowSumMs),
		Fps1Low:     round1(PercentileLowFPS(times, 1.0)),
		Fps01Low:    round1(PercentileLowFPS(times, 0.1)),
		FrametimeMs: round2(w.windowSumMs / float64(n)),
		CpuBusyMs:   round2(cpuSum / float64(n)),
		GpuBusyMs:   round2(gpuSum / float64(n)),
		ProcessName: w.processName,
		ElapsedSecs: round1(w.elapsedMs / 1000.0),
	}
}
