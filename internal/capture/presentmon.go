package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// DefaultTerminateGrace 请求子进程退出后的宽限时间，超时强杀
const DefaultTerminateGrace = 3 * time.Second

// presentMonExecutable 采集工具可执行文件名
func presentMonExecutable() string {
	if runtime.GOOS == "windows" {
		return "PresentMon.exe"
	}
	return "PresentMon"
}

// PresentMonConfig PresentMon 数据源配置
type PresentMonConfig struct {
	// 可执行文件路径，为空时依次尝试 ./bin 和 PATH
	ToolPath string
	// 终止宽限时间
	TerminateGrace time.Duration
}

// DefaultPresentMonConfig 返回默认配置
func DefaultPresentMonConfig() *PresentMonConfig {
	return &PresentMonConfig{
		TerminateGrace: DefaultTerminateGrace,
	}
}

// PresentMonSource 包装 PresentMon 子进程的帧数据源。
// 启动参数：输出到 stdout、接管已存在的采集会话、目标进程退出时
// 自动结束、只采集指定进程。stderr 内容保留用于诊断。
type PresentMonSource struct {
	config *PresentMonConfig

	mu      sync.Mutex
	cmd     *exec.Cmd
	scanner *bufio.Scanner
	stderr  *bytes.Buffer

	waitCh   chan error
	termOnce sync.Once
}

// NewPresentMonSource 创建 PresentMon 数据源
func NewPresentMonSource(config *PresentMonConfig) *PresentMonSource {
	if config == nil {
		config = DefaultPresentMonConfig()
	}
	if config.TerminateGrace <= 0 {
		config.TerminateGrace = DefaultTerminateGrace
	}
	return &PresentMonSource{config: config}
}

// resolveToolPath 定位 PresentMon 可执行文件
func (s *PresentMonSource) resolveToolPath() (string, error) {
	if s.config.ToolPath != "" {
		if _, err := os.Stat(s.config.ToolPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrToolMissing, s.config.ToolPath)
		}
		return s.config.ToolPath, nil
	}

	local := filepath.Join("bin", presentMonExecutable())
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	path, err := exec.LookPath(presentMonExecutable())
	if err != nil {
		return "", fmt.Errorf("%w: 请下载 PresentMon 并放入 bin/ 目录或 PATH", ErrToolMissing)
	}
	return path, nil
}

// Launch 启动针对指定进程的采集子进程
func (s *PresentMonSource) Launch(ctx context.Context, processName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return fmt.Errorf("%w: already launched", ErrSpawnFailed)
	}

	toolPath, err := s.resolveToolPath()
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, toolPath,
		"--output_stdout",
		"--stop_existing_session",
		"--terminate_on_proc_exit",
		"--process_name", processName,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", ErrSpawnFailed, err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	log.Printf("启动 PresentMon: %s --process_name %s", toolPath, processName)

	if err := cmd.Start(); err != nil {
		if isPermissionError(err) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	s.cmd = cmd
	s.scanner = scanner
	s.stderr = stderr
	s.waitCh = waitCh
	return nil
}

// ReadLine 阻塞读取下一行输出。子进程关闭 stdout（正常退出或
// 崩溃）时返回 EndOfStream，由调用方结束会话。
func (s *PresentMonSource) ReadLine() (string, error) {
	s.mu.Lock()
	scanner := s.scanner
	s.mu.Unlock()

	if scanner == nil {
		return "", ErrNotLaunched
	}

	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		log.Printf("PresentMon 输出流读取错误: %v", err)
	}
	return "", EndOfStream
}

// Terminate 请求子进程退出，幂等。宽限时间内未退出则强杀，
// 保证调用方的 stop 在有界时间内完成。
func (s *PresentMonSource) Terminate() error {
	s.termOnce.Do(func() {
		s.mu.Lock()
		cmd := s.cmd
		waitCh := s.waitCh
		s.mu.Unlock()

		if cmd == nil || cmd.Process == nil {
			return
		}

		// Windows 下没有可靠的温和退出信号，直接走 Kill；
		// 其他平台先尝试 Interrupt 再升级。
		if runtime.GOOS != "windows" {
			_ = cmd.Process.Signal(os.Interrupt)
			select {
			case <-waitCh:
				return
			case <-time.After(s.config.TerminateGrace):
			}
		}

		_ = cmd.Process.Kill()
		select {
		case <-waitCh:
		case <-time.After(s.config.TerminateGrace):
			log.Printf("PresentMon 进程在宽限时间内未退出")
		}
	})
	return nil
}

// ExitDiagnostics 子进程退出码与 stderr 内容，用于诊断日志
func (s *PresentMonSource) ExitDiagnostics() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return ""
	}
	var parts []string
	if state := s.cmd.ProcessState; state != nil {
		parts = append(parts, fmt.Sprintf("exit=%d", state.ExitCode()))
	}
	if s.stderr != nil {
		if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
			parts = append(parts, "stderr="+msg)
		}
	}
	return strings.Join(parts, " ")
}

// isPermissionError 判断启动失败是否因权限不足
func isPermissionError(err error) bool {
	if os.IsPermission(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "access is denied") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "elevation")
}
