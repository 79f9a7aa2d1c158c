package stats

import (
	"math"
	"sort"
)

// PercentileLowFPS 计算 percentile low FPS。
// 行业惯例的 "1% Low"/"0.1% Low" 指标：取最慢的 ceil(n*p) 帧
// （最少 1 帧），对这部分帧时间求均值，再换算成 FPS。
// percent 取百分数，如 1.0 表示 1% Low，0.1 表示 0.1% Low。
func PercentileLowFPS(frameTimes []float64, percent float64) float64 {
	if len(frameTimes) == 0 {
		return 0
	}

	sorted := make([]float64, len(frameTimes))
	copy(sorted, frameTimes)
	// 降序：最慢的帧排在前面
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	return lowFPSFromSorted(sorted, len(sorted), percent)
}

// lowFPSFromSorted 在已降序排序的帧时间上计算 percentile low。
// totalFrames 是样本所属的总帧数，可能大于 len(sorted)
// （会话汇总只保留最差的 k 帧，见 WorstTracker）。
func lowFPSFromSorted(sorted []float64, totalFrames int, percent float64) float64 {
	if len(sorted) == 0 || totalFrames <= 0 {
		return 0
	}

	count := int(math.Ceil(percent / 100.0 * float64(totalFrames)))
	if count < 1 {
		count = 1
	}
	if count > len(sorted) {
		count = len(sorted)
	}

	var sum float64
	for _, t := range sorted[:count] {
		sum += t
	}
	avgWorst := sum / float64(count)

	if avgWorst <= 0 {
		return 0
	}
	return 1000.0 / avgWorst
}
