package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"GameBenchDesktop/internal/capture"
	"GameBenchDesktop/internal/config"
	"GameBenchDesktop/internal/logger"
	"GameBenchDesktop/internal/monitor"
	"GameBenchDesktop/internal/server"
	"GameBenchDesktop/internal/storage"
	"GameBenchDesktop/internal/wsclient"
)

func main() {
	var (
		mode       = flag.String("mode", "serve", "运行模式: serve, monitor, watch")
		configPath = flag.String("config", "", "配置文件路径（默认查找 ./gamebench.yaml）")
		process    = flag.String("process", "", "monitor 模式: 要监测的进程名，如 GTA5.exe")
		duration   = flag.Duration("duration", 0, "monitor 模式: 监测时长，0 表示直到采集结束")
		url        = flag.String("url", "ws://127.0.0.1:8765/ws", "watch 模式: 事件流地址")
	)
	flag.Parse()

	logger.Init()

	manager := config.NewManager(
		config.WithConfigPath(*configPath),
		config.WithWatch(*mode == "serve"),
	)
	cfg, err := manager.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	switch *mode {
	case "serve":
		runServe(cfg)
	case "monitor":
		runMonitor(cfg, *process, *duration)
	case "watch":
		runWatch(*url)
	default:
		fmt.Printf("未知模式: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// newEngine 按配置组装监测引擎
func newEngine(cfg *config.AppConfig) *monitor.Engine {
	engineCfg := &monitor.EngineConfig{
		Window:           cfg.Monitor.Window,
		SnapshotInterval: cfg.Monitor.SnapshotInterval,
		WorstSampleLimit: cfg.Monitor.WorstSampleLimit,
		StallTimeout:     cfg.Monitor.StallTimeout,
		EventBuffer:      cfg.Monitor.EventBuffer,
	}
	return monitor.NewEngine(engineCfg, func() capture.Source {
		return capture.NewPresentMonSource(&capture.PresentMonConfig{
			ToolPath:       cfg.Capture.ToolPath,
			TerminateGrace: cfg.Capture.TerminateGrace,
		})
	})
}

// runServe 桌面端后台服务：监测引擎 + 游戏扫描 + 本地 API
func runServe(cfg *config.AppConfig) {
	logs := logger.NewStore(cfg.Logging.BufferSize)
	logs.Info("main", "GameBench 桌面端启动")

	store, err := storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		log.Fatalf("打开会话历史数据库失败: %v", err)
	}
	defer store.Close()

	engine := newEngine(cfg)

	srv := server.New(&cfg.Server, engine, store, logs)
	if err := srv.Start(&cfg.Detect); err != nil {
		log.Fatalf("启动本地 API 服务失败: %v", err)
	}
	logs.Info("main", "本地 API 服务就绪: http://%s", cfg.Server.Addr)

	// 优雅关闭
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	fmt.Println("\n正在关闭...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("服务关闭错误: %v", err)
	}
}

// runMonitor 无界面监测：直接驱动引擎并把事件打到终端
func runMonitor(cfg *config.AppConfig, process string, duration time.Duration) {
	if process == "" {
		fmt.Println("monitor 模式需要 -process 参数，如 -process GTA5.exe")
		os.Exit(1)
	}

	engine := newEngine(cfg)
	if err := engine.Start(process); err != nil {
		log.Fatalf("启动监测失败: %v", err)
	}

	var timeout <-chan time.Time
	if duration > 0 {
		timeout = time.After(duration)
	}
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sig:
			_ = engine.Stop()
		case <-timeout:
			_ = engine.Stop()
			timeout = nil
		case ev := <-engine.Events():
			switch ev.Type {
			case monitor.EventStarted:
				fmt.Printf("== 开始监测 %s ==\n", ev.ProcessName)
			case monitor.EventSnapshot:
				s := ev.Snapshot
				fmt.Printf("[%6.1fs] %6.1f FPS | 1%% Low %6.1f | 0.1%% Low %6.1f | %.2f ms\n",
					s.ElapsedSecs, s.Fps, s.Fps1Low, s.Fps01Low, s.FrametimeMs)
			case monitor.EventError:
				fmt.Printf("错误 [%s]: %s\n", ev.ErrorKind, ev.Error)
			case monitor.EventSessionComplete:
				r := ev.Session
				fmt.Printf("== 会话汇总 ==\n进程: %s\n平均 FPS: %.1f\n1%% Low: %.1f\n0.1%% Low: %.1f\n最高/最低: %.1f / %.1f\n总帧数: %d\n时长: %.1fs\n",
					r.ProcessName, r.AvgFps, r.Fps1Low, r.Fps01Low, r.MaxFps, r.MinFps, r.TotalFrames, r.DurationSecs)
			case monitor.EventStopped:
				fmt.Println("== 监测结束 ==")
				return
			}
		}
	}
}

// runWatch 连接本地服务的事件流并打印（调试前端推送用）
func runWatch(url string) {
	client := wsclient.New(wsclient.DefaultClientConfig(url))
	client.SetStateChangeHandler(func(oldState, newState wsclient.ClientState) {
		log.Printf("连接状态: %s -> %s", oldState, newState)
	})
	client.SetMessageHandler(func(msg wsclient.PushMessage) {
		fmt.Printf("[%s] %s\n", msg.Channel, string(msg.Payload))
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	if err := client.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("事件流客户端退出: %v", err)
	}
}
