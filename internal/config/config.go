package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AppConfig 应用配置
type AppConfig struct {
	Capture CaptureConfig `mapstructure:"capture"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Detect  DetectConfig  `mapstructure:"detect"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CaptureConfig 采集工具配置
type CaptureConfig struct {
	// PresentMon 可执行文件路径，为空时自动查找
	ToolPath string `mapstructure:"tool_path"`
	// 终止宽限时间，超时强杀
	TerminateGrace time.Duration `mapstructure:"terminate_grace"`
}

// MonitorConfig 监测引擎配置
type MonitorConfig struct {
	// 滑动窗口长度
	Window time.Duration `mapstructure:"window"`
	// 快照间隔
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	// 会话级 low 指标保留的最差帧数量上限
	WorstSampleLimit int `mapstructure:"worst_sample_limit"`
	// 无帧告警阈值（墙钟）
	StallTimeout time.Duration `mapstructure:"stall_timeout"`
	// 事件通道缓冲
	EventBuffer int `mapstructure:"event_buffer"`
}

// ServerConfig 本地 API 服务配置
type ServerConfig struct {
	// 监听地址，桌面端默认只绑定回环
	Addr string `mapstructure:"addr"`
	// CORS 允许的来源
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StorageConfig 会话历史存储配置
type StorageConfig struct {
	// SQLite 数据库路径
	DatabasePath string `mapstructure:"database_path"`
}

// DetectConfig 游戏进程扫描配置
type DetectConfig struct {
	// 后台扫描间隔
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	// 扫描失败重试的最大退避时间
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	// 内存日志环形缓冲区容量（条数）
	BufferSize int `mapstructure:"buffer_size"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Capture: CaptureConfig{
			TerminateGrace: 3 * time.Second,
		},
		Monitor: MonitorConfig{
			Window:           time.Second,
			SnapshotInterval: time.Second,
			WorstSampleLimit: 8192,
			StallTimeout:     2 * time.Second,
			EventBuffer:      256,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8765",
			AllowedOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			DatabasePath: "gamebench.db",
		},
		Detect: DetectConfig{
			ScanInterval:    5 * time.Second,
			MaxRetryBackoff: time.Minute,
		},
		Logging: LoggingConfig{
			BufferSize: 2000,
		},
	}
}

// Validate 校验配置合法性
func (c *AppConfig) Validate() error {
	if c.Monitor.Window <= 0 {
		return fmt.Errorf("monitor.window 必须为正值")
	}
	if c.Monitor.SnapshotInterval <= 0 {
		return fmt.Errorf("monitor.snapshot_interval 必须为正值")
	}
	if c.Monitor.WorstSampleLimit < 0 {
		return fmt.Errorf("monitor.worst_sample_limit 不能为负")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr 不能为空")
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path 不能为空")
	}
	return nil
}

// Manager 配置管理器：默认值 + yaml 文件 + GAMEBENCH_ 环境变量，
// 可选 fsnotify 热加载。
type Manager struct {
	mu         sync.RWMutex
	config     *AppConfig
	v          *viper.Viper
	configPath string
	watch      bool
	onChange   func(*AppConfig)
}

// ManagerOption 配置管理器选项
type ManagerOption func(*Manager)

// WithConfigPath 指定配置文件路径
func WithConfigPath(path string) ManagerOption {
	return func(m *Manager) {
		m.configPath = path
	}
}

// WithWatch 启用配置文件热加载
func WithWatch(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.watch = enabled
	}
}

// WithOnChange 配置热加载后的回调
func WithOnChange(fn func(*AppConfig)) ManagerOption {
	return func(m *Manager) {
		m.onChange = fn
	}
}

// NewManager 创建配置管理器
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load 加载配置。配置文件不存在不算错误，使用默认值。
func (m *Manager) Load() (*AppConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GAMEBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if m.configPath != "" {
		v.SetConfigFile(m.configPath)
	} else {
		v.SetConfigName("gamebench")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	config := DefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}

	m.v = v
	m.config = config

	if m.watch {
		v.WatchConfig()
		v.OnConfigChange(func(fsnotify.Event) {
			m.reload()
		})
	}

	return config, nil
}

// Get 获取当前配置（未加载时自动加载）
func (m *Manager) Get() (*AppConfig, error) {
	m.mu.RLock()
	if m.config != nil {
		defer m.mu.RUnlock()
		return m.config, nil
	}
	m.mu.RUnlock()

	return m.Load()
}

// reload 配置文件变化时重新解析，非法配置保留旧值
func (m *Manager) reload() {
	m.mu.Lock()

	config := DefaultConfig()
	if err := m.v.Unmarshal(config); err != nil {
		m.mu.Unlock()
		return
	}
	if err := config.Validate(); err != nil {
		m.mu.Unlock()
		return
	}
	m.config = config
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(config)
	}
}

// setDefaults 把默认配置注册给 viper，保证部分覆盖时其余字段完整
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("capture.tool_path", d.Capture.ToolPath)
	v.SetDefault("capture.terminate_grace", d.Capture.TerminateGrace)
	v.SetDefault("monitor.window", d.Monitor.Window)
	v.SetDefault("monitor.snapshot_interval", d.Monitor.SnapshotInterval)
	v.SetDefault("monitor.worst_sample_limit", d.Monitor.WorstSampleLimit)
	v.SetDefault("monitor.stall_timeout", d.Monitor.StallTimeout)
	v.SetDefault("monitor.event_buffer", d.Monitor.EventBuffer)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("storage.database_path", d.Storage.DatabasePath)
	v.SetDefault("detect.scan_interval", d.Detect.ScanInterval)
	v.SetDefault("detect.max_retry_backoff", d.Detect.MaxRetryBackoff)
	v.SetDefault("logging.buffer_size", d.Logging.BufferSize)
}
