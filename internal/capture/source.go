package capture

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrToolMissing 找不到采集工具可执行文件
	ErrToolMissing = errors.New("capture: capture tool not found")
	// ErrPermissionDenied 系统拒绝启动采集工具（通常需要管理员权限）
	ErrPermissionDenied = errors.New("capture: permission denied, run elevated")
	// ErrSpawnFailed 采集工具启动失败
	ErrSpawnFailed = errors.New("capture: failed to spawn capture tool")
	// ErrNotLaunched 在 Launch 成功前调用了 ReadLine
	ErrNotLaunched = errors.New("capture: source not launched")
)

// EndOfStream 输出流结束（被监测进程退出或采集工具终止）
var EndOfStream = io.EOF

// Source 帧数据源的能力接口。
// 生产实现包装 PresentMon 子进程；测试用脚本化数据源替代，
// 回放固定的行序列而不真正拉起外部程序。
type Source interface {
	// Launch 启动针对指定进程的采集
	Launch(ctx context.Context, processName string) error
	// ReadLine 阻塞读取下一行输出，流结束返回 EndOfStream
	ReadLine() (string, error)
	// Terminate 请求停止采集，幂等，保证有界时间内返回
	Terminate() error
}
