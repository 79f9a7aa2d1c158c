package hwinfo

import (
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// CpuInfo CPU 信息
type CpuInfo struct {
	// 型号名 (e.g., "Intel Core i5-12400")
	Name string `json:"name"`
	// 物理核心数
	Cores int `json:"cores"`
	// 逻辑线程数
	Threads int `json:"threads"`
	// 基础频率 (GHz)
	BaseClockGhz float64 `json:"base_clock_ghz"`
	// CPU 架构
	Arch string `json:"arch"`
}

// GpuInfo GPU 信息
type GpuInfo struct {
	// 型号名 (e.g., "NVIDIA GeForce RTX 3060")
	Name string `json:"name"`
	// 显存大小 (GB)
	VramGb float64 `json:"vram_gb"`
	// 驱动版本
	DriverVersion string `json:"driver_version"`
}

// RamInfo 内存信息
type RamInfo struct {
	TotalGb     float64 `json:"total_gb"`
	UsedGb      float64 `json:"used_gb"`
	AvailableGb float64 `json:"available_gb"`
}

// HardwareInfo 主机硬件概览
type HardwareInfo struct {
	Cpu  CpuInfo   `json:"cpu"`
	Gpus []GpuInfo `json:"gpus"`
	Ram  RamInfo   `json:"ram"`
	OS   string    `json:"os"`
}

// Detect 枚举主机硬件。单项检测失败不会让整体失败，
// 对应字段降级为零值/Unknown。
func Detect() *HardwareInfo {
	return &HardwareInfo{
		Cpu:  DetectCpu(),
		Gpus: DetectGpus(),
		Ram:  DetectRam(),
		OS:   detectOS(),
	}
}

// DetectCpu 枚举 CPU 信息
func DetectCpu() CpuInfo {
	info := CpuInfo{
		Name: "Unknown CPU",
		Arch: runtime.GOARCH,
	}

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		info.Name = cleanCpuName(infos[0].ModelName)
		info.BaseClockGhz = infos[0].Mhz / 1000.0
	}
	if physical, err := cpu.Counts(false); err == nil {
		info.Cores = physical
	}
	if logical, err := cpu.Counts(true); err == nil {
		info.Threads = logical
		if info.Cores == 0 {
			info.Cores = logical / 2
		}
	}
	return info
}

// DetectRam 枚举内存信息
func DetectRam() RamInfo {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return RamInfo{}
	}
	const gb = 1024 * 1024 * 1024
	return RamInfo{
		TotalGb:     roundGb(float64(vm.Total) / gb),
		UsedGb:      roundGb(float64(vm.Used) / gb),
		AvailableGb: roundGb(float64(vm.Available) / gb),
	}
}

// DetectGpus 枚举 GPU。优先 nvidia-smi，Windows 下回退 wmic，
// 都不可用时返回单个 Unknown 占位。
func DetectGpus() []GpuInfo {
	if gpus := detectGpusNvidiaSmi(); len(gpus) > 0 {
		return gpus
	}
	if runtime.GOOS == "windows" {
		if gpus := detectGpusWmic(); len(gpus) > 0 {
			return gpus
		}
	}
	return []GpuInfo{{Name: "Unknown GPU"}}
}

func detectOS() string {
	info, err := host.Info()
	if err != nil {
		return runtime.GOOS
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion))
}

// cleanCpuName 去掉商标符号、重复空格和尾部频率后缀
func cleanCpuName(raw string) string {
	name := strings.NewReplacer("(R)", "", "(TM)", "", "(tm)", "").Replace(raw)
	name = strings.Join(strings.Fields(name), " ")
	if idx := strings.Index(name, " @ "); idx >= 0 {
		name = name[:idx]
	}
	return strings.TrimSpace(name)
}

// detectGpusNvidiaSmi 通过 nvidia-smi 查询 NVIDIA GPU
func detectGpusNvidiaSmi() []GpuInfo {
	out, err := exec.Command("nvidia-smi",
		"--query-gpu=name,memory.total,driver_version",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil
	}

	var gpus []GpuInfo
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			continue
		}
		vramMb, _ := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		gpus = append(gpus, GpuInfo{
			Name:          strings.TrimSpace(fields[0]),
			VramGb:        roundGb(vramMb / 1024.0),
			DriverVersion: strings.TrimSpace(fields[2]),
		})
	}
	return gpus
}

// detectGpusWmic 通过 wmic 查询显卡（Windows 备用方案）
func detectGpusWmic() []GpuInfo {
	out, err := exec.Command("wmic", "path", "win32_VideoController",
		"get", "Name,AdapterRAM,DriverVersion", "/format:csv").Output()
	if err != nil {
		return nil
	}

	var gpus []GpuInfo
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Split(strings.TrimSpace(line), ",")
		// CSV 格式: Node,AdapterRAM,DriverVersion,Name
		if len(fields) < 4 || fields[0] == "Node" || fields[3] == "" {
			continue
		}
		vramBytes, _ := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		gpus = append(gpus, GpuInfo{
			Name:          strings.TrimSpace(fields[3]),
			VramGb:        roundGb(vramBytes / (1024 * 1024 * 1024)),
			DriverVersion: strings.TrimSpace(fields[2]),
		})
	}
	return gpus
}

func roundGb(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
