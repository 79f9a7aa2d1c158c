package capture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// 合法帧时间的上界 (ms)，超过视为采集工具输出异常
const maxFrameTimeMs = 1000.0

// 数据行至少应有的字段数
const minFieldCount = 5

var (
	// ErrBadRow 数据行格式非法（字段数不足、必需字段非数字等）
	ErrBadRow = errors.New("capture: malformed data row")
	// ErrMissingColumn 表头缺少必需列
	ErrMissingColumn = errors.New("capture: required column missing")
)

// FrameRecord 采集工具输出的一帧数据
type FrameRecord struct {
	// 目标进程镜像名
	Application string
	// 帧时间 (ms)
	FrameTimeMs float64
	// CPU 占用时间 (ms)
	CpuBusyMs float64
	// GPU 占用时间 (ms)
	GpuBusyMs float64
}

// Decoder 逐行解析采集工具的 CSV 输出。
// 第一条非空行作为表头，必需列按列名定位而不是按位置，
// 以兼容不同版本采集工具的列集合差异：
//   - Application        目标进程名
//   - FrameTime          帧时间；旧版工具为 MsBetweenPresents
//   - CPUBusy / GPUBusy  可选；GPUBusy 旧版为 GPUTime
//
// 未知列一律忽略。
type Decoder struct {
	header []string

	appIdx int
	ftIdx  int
	cpuIdx int
	gpuIdx int

	// 解码失败被跳过的行数
	skipped uint64
}

// NewDecoder 创建解码器，表头在第一条非空输入行到达时捕获
func NewDecoder() *Decoder {
	return &Decoder{appIdx: -1, ftIdx: -1, cpuIdx: -1, gpuIdx: -1}
}

// Decode 解析一行输出。
// 返回 (nil, nil) 表示该行不是数据行（空行或表头行）；
// 返回 (nil, err) 表示该行非法，应跳过但不中断流；
// 返回 (rec, nil) 表示解析出一帧。
func (d *Decoder) Decode(line string) (*FrameRecord, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, nil
	}

	if d.header == nil {
		return nil, d.captureHeader(trimmed)
	}

	fields := strings.Split(trimmed, ",")
	if len(fields) < minFieldCount {
		d.skipped++
		return nil, fmt.Errorf("%w: %d fields", ErrBadRow, len(fields))
	}

	app, ok := fieldAt(fields, d.appIdx)
	if !ok {
		d.skipped++
		return nil, fmt.Errorf("%w: application field out of range", ErrBadRow)
	}

	raw, ok := fieldAt(fields, d.ftIdx)
	if !ok {
		d.skipped++
		return nil, fmt.Errorf("%w: frame time field out of range", ErrBadRow)
	}
	frameTime, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		d.skipped++
		return nil, fmt.Errorf("%w: frame time %q", ErrBadRow, raw)
	}
	if frameTime <= 0 || frameTime >= maxFrameTimeMs {
		d.skipped++
		return nil, fmt.Errorf("%w: frame time %.3fms out of range", ErrBadRow, frameTime)
	}

	return &FrameRecord{
		Application: app,
		FrameTimeMs: frameTime,
		CpuBusyMs:   optionalFloat(fields, d.cpuIdx),
		GpuBusyMs:   optionalFloat(fields, d.gpuIdx),
	}, nil
}

// SkippedRows 因格式非法被跳过的行数
func (d *Decoder) SkippedRows() uint64 {
	return d.skipped
}

// captureHeader 捕获表头并定位必需列
func (d *Decoder) captureHeader(line string) error {
	cols := strings.Split(line, ",")
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = strings.TrimSpace(c)
	}

	d.appIdx = indexOf(header, "Application")
	d.ftIdx = indexOf(header, "FrameTime", "MsBetweenPresents")
	d.cpuIdx = indexOf(header, "CPUBusy")
	d.gpuIdx = indexOf(header, "GPUBusy", "GPUTime")

	if d.appIdx < 0 || d.ftIdx < 0 {
		return fmt.Errorf("%w: header %v", ErrMissingColumn, header)
	}

	d.header = header
	return nil
}

func indexOf(header []string, names ...string) int {
	for i, h := range header {
		for _, name := range names {
			if h == name {
				return i
			}
		}
	}
	return -1
}

func fieldAt(fields []string, idx int) (string, bool) {
	if idx < 0 || idx >= len(fields) {
		return "", false
	}
	return strings.TrimSpace(fields[idx]), true
}

func optionalFloat(fields []string, idx int) float64 {
	s, ok := fieldAt(fields, idx)
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
