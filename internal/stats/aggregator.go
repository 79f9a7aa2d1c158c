package stats

import (
	"container/heap"
	"math"
	"sort"
	"time"
)

// DefaultWorstSampleLimit 会话级 low 指标保留的最差帧数量上限。
// 8192 帧足以覆盖约 80 万帧（100 FPS 下两个多小时）的最差 1%。
const DefaultWorstSampleLimit = 8192

// worstHeap 小顶堆，堆顶是"已保留的最差帧"里最快的一帧，
// 便于用更慢的帧将其替换出去。
type worstHeap []float64

func (h worstHeap) Len() int            { return len(h) }
func (h worstHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h worstHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *worstHeap) Push(x interface{}) { *h = append(*h, x.(float64)) }
func (h *worstHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// WorstTracker 有界地追踪整个会话中最慢的 k 帧，
// 避免长时间监测时无限保留所有帧时间。
type WorstTracker struct {
	limit int
	h     worstHeap
}

// NewWorstTracker 创建最差帧追踪器，limit <= 0 时使用默认上限
func NewWorstTracker(limit int) *WorstTracker {
	if limit <= 0 {
		limit = DefaultWorstSampleLimit
	}
	return &WorstTracker{
		limit: limit,
		h:     make(worstHeap, 0, 64),
	}
}

// Observe 输入一个帧时间
func (t *WorstTracker) Observe(frameTimeMs float64) {
	if len(t.h) < t.limit {
		heap.Push(&t.h, frameTimeMs)
		return
	}
	if frameTimeMs > t.h[0] {
		t.h[0] = frameTimeMs
		heap.Fix(&t.h, 0)
	}
}

// Worst 返回已保留的最差帧时间，降序排列
func (t *WorstTracker) Worst() []float64 {
	out := make([]float64, len(t.h))
	copy(out, t.h)
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out
}

// SessionAggregator 会话聚合器。
// 累计一次监测的全部帧：总帧数、帧时间总和、逐帧瞬时 FPS 的
// 极值，以及用于会话级 1%/0.1% Low 的最差帧集合。
type SessionAggregator struct {
	processName string
	startTime   time.Time

	totalFrames uint64
	sumMs       float64
	minFtMs     float64
	maxFtMs     float64

	worst *WorstTracker
}

// NewSessionAggregator 创建会话聚合器
func NewSessionAggregator(processName string, worstLimit int) *SessionAggregator {
	return &SessionAggregator{
		processName: processName,
		startTime:   time.Now(),
		minFtMs:     math.Inf(1),
		worst:       NewWorstTracker(worstLimit),
	}
}

// Add 记录一帧
func (a *SessionAggregator) Add(frameTimeMs float64) {
	if frameTimeMs <= 0 {
		return
	}
	a.totalFrames++
	a.sumMs += frameTimeMs
	if frameTimeMs < a.minFtMs {
		a.minFtMs = frameTimeMs
	}
	if frameTimeMs > a.maxFtMs {
		a.maxFtMs = frameTimeMs
	}
	a.worst.Observe(frameTimeMs)
}

// TotalFrames 已记录的总帧数
func (a *SessionAggregator) TotalFrames() uint64 {
	return a.totalFrames
}

// Finalize 生成会话汇总。没有任何帧时返回全零统计而不是报错。
func (a *SessionAggregator) Finalize() *FpsSession {
	duration := time.Since(a.startTime).Seconds()

	if a.totalFrames == 0 {
		return &FpsSession{
			ProcessName:  a.processName,
			DurationSecs: round1(duration),
		}
	}

	avgFt := a.sumMs / float64(a.totalFrames)
	worst := a.worst.Worst()

	return &FpsSession{
		ProcessName:  a.processName,
		AvgFps:       round1(1000.0 / avgFt),
		Fps1Low:      round1(lowFPSFromSorted(worst, int(a.totalFrames), 1.0)),
		Fps01Low:     round1(lowFPSFromSorted(worst, int(a.totalFrames), 0.1)),
		MaxFps:       round1(1000.0 / a.minFtMs),
		MinFps:       round1(1000.0 / a.maxFtMs),
		TotalFrames:  a.totalFrames,
		DurationSecs: round1(duration),
	}
}
