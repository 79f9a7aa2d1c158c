package stats

import "math"

// FpsSnapshot 实时帧率快照（约每秒推送一次）
type FpsSnapshot struct {
	// 当前 FPS（滑动窗口内 1000*n/sum(frametime)）
	Fps float64 `json:"fps"`
	// 1% Low FPS
	Fps1Low float64 `json:"fps_1_low"`
	// 0.1% Low FPS
	Fps01Low float64 `json:"fps_01_low"`
	// 平均帧时间 (ms)
	FrametimeMs float64 `json:"frametime_ms"`
	// CPU 占用时间 (ms)
	CpuBusyMs float64 `json:"cpu_busy_ms"`
	// GPU 占用时间 (ms)
	GpuBusyMs float64 `json:"gpu_busy_ms"`
	// 监测的进程名
	ProcessName string `json:"process_name"`
	// 从开始监测到现在的秒数（按帧时间累计，确定性）
	ElapsedSecs float64 `json:"elapsed_secs"`
}

// FpsSession 一次完整监测的汇总报告，在监测结束时生成一次
type FpsSession struct {
	// 游戏进程名
	ProcessName string `json:"process_name"`
	// 平均 FPS
	AvgFps float64 `json:"avg_fps"`
	// 1% Low
	Fps1Low float64 `json:"fps_1_low"`
	// 0.1% Low
	Fps01Low float64 `json:"fps_01_low"`
	// 最大 FPS
	MaxFps float64 `json:"max_fps"`
	// 最小 FPS
	MinFps float64 `json:"min_fps"`
	// 总帧数
	TotalFrames uint64 `json:"total_frames"`
	// 监测时长 (秒)
	DurationSecs float64 `json:"duration_secs"`
}

// round1 保留一位小数（FPS 类指标）
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// round2 保留两位小数（帧时间类指标）
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
