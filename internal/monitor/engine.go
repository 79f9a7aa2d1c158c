package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"GameBenchDesktop/internal/capture"
	"GameBenchDesktop/internal/stats"
)

// EngineState 引擎状态
type EngineState int32

const (
	StateStopped EngineState = iota
	StateStarting
	StateRunning
	StateStopping
	StateFaulted
)

func (s EngineState) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateFaulted:
		return "FAULTED"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrInvalidInput 进程名为空或非法
	ErrInvalidInput = errors.New("monitor: process name must not be empty")
	// ErrAlreadyRunning 已有监测会话在运行
	ErrAlreadyRunning = errors.New("monitor: a monitoring session is already active")
)

// EngineConfig 引擎配置
type EngineConfig struct {
	// 滑动窗口长度
	Window time.Duration
	// 快照间隔
	SnapshotInterval time.Duration
	// 会话级 low 指标保留的最差帧数量上限
	WorstSampleLimit int
	// 超过该墙钟时间没有任何快照则推送一次零 FPS 快照
	StallTimeout time.Duration
	// 事件通道缓冲大小
	EventBuffer int
}

// DefaultEngineConfig 返回默认配置
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Window:           time.Second,
		SnapshotInterval: time.Second,
		WorstSampleLimit: stats.DefaultWorstSampleLimit,
		StallTimeout:     2 * time.Second,
		EventBuffer:      256,
	}
}

// SourceFactory 为每次监测创建新的帧数据源
type SourceFactory func() capture.Source

// monitoringSession 一次监测运行的内部状态。
// 子进程句柄、输出流、窗口计算器和会话聚合器都由它独占，
// 只在引擎的读取协程里被访问（stall 协程通过 mu 共享窗口）。
type monitoringSession struct {
	processName string
	source      capture.Source
	decoder     *capture.Decoder

	mu     sync.Mutex
	window *stats.WindowCalculator
	agg    *stats.SessionAggregator

	stopRequested atomic.Bool
	lastEmitNano  atomic.Int64
	done          chan struct{}
}

// Engine FPS 监测引擎。
// 同一时刻至多允许一个监测会话；Start/Stop 立即返回，
// 进展通过事件通道异步投递。
type Engine struct {
	config    *EngineConfig
	newSource SourceFactory

	state  atomic.Int32
	events chan Event

	mu       sync.Mutex
	session  *monitoringSession
	lastSnap *stats.FpsSnapshot

	// 事件通道写满被丢弃的事件数
	droppedEvents atomic.Uint64
}

// NewEngine 创建监测引擎
func NewEngine(config *EngineConfig, newSource SourceFactory) *Engine {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 256
	}
	if newSource == nil {
		newSource = func() capture.Source {
			return capture.NewPresentMonSource(nil)
		}
	}
	return &Engine{
		config:    config,
		newSource: newSource,
		events:    make(chan Event, config.EventBuffer),
	}
}

// Events 引擎的事件流，按发生顺序投递。调用方需要持续消费：
// 缓冲写满时快照会被丢弃，终态事件会等待缓冲腾出空间。
func (e *Engine) Events() <-chan Event {
	return e.events
}

// State 当前引擎状态
func (e *Engine) State() EngineState {
	return EngineState(e.state.Load())
}

// Start 启动对指定进程的监测。只在 Stopped 状态下有效，
// 否则返回 ErrAlreadyRunning；进程名为空返回 ErrInvalidInput。
// 调用立即返回，后续进展通过事件流投递。
func (e *Engine) Start(processName string) error {
	processName = strings.TrimSpace(processName)
	if processName == "" {
		return ErrInvalidInput
	}

	if !e.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrAlreadyRunning
	}

	sess := &monitoringSession{
		processName: processName,
		source:      e.newSource(),
		decoder:     capture.NewDecoder(),
		window:      stats.NewWindowCalculator(processName, e.config.Window, e.config.SnapshotInterval),
		agg:         stats.NewSessionAggregator(processName, e.config.WorstSampleLimit),
		done:        make(chan struct{}),
	}
	sess.lastEmitNano.Store(time.Now().UnixNano())

	e.mu.Lock()
	e.session = sess
	e.lastSnap = nil
	e.mu.Unlock()

	log.Printf("开始监测: %s", processName)
	go e.run(sess)
	return nil
}

// Stop 停止当前监测。已停止时是无操作而不是错误；
// 通过终止子进程解除阻塞中的读取，立即返回。
func (e *Engine) Stop() error {
	if e.state.CompareAndSwap(int32(StateFaulted), int32(StateStopped)) {
		return nil
	}

	// 进入 Stopping 必须赢得 CAS：自然结束的会话随时可能把状态
	// 落回 Stopped，输掉竞争时不能再写状态字，否则引擎会卡死在
	// Stopping 且无人负责复位
	if !e.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) &&
		!e.state.CompareAndSwap(int32(StateStarting), int32(StateStopping)) {
		return nil
	}

	e.mu.Lock()
	sess := e.session
	e.mu.Unlock()
	if sess == nil {
		// Start 还没来得及登记 session，读取协程会在 Launch 后
		// 看到 Stopping 并自行收尾
		return nil
	}

	sess.stopRequested.Store(true)
	// 终止子进程会关闭其输出流，读取协程随之收到 EndOfStream
	go func() { _ = sess.source.Terminate() }()
	return nil
}

// Status 当前监测状态
func (e *Engine) Status() Status {
	state := e.State()
	running := state == StateStarting || state == StateRunning

	e.mu.Lock()
	defer e.mu.Unlock()

	status := Status{Running: running}
	if running && e.session != nil {
		status.ProcessName = e.session.processName
	}
	if running && e.lastSnap != nil {
		fps := e.lastSnap.Fps
		status.CurrentFps = &fps
	}
	return status
}

// DroppedEvents 因事件通道写满被丢弃的事件数
func (e *Engine) DroppedEvents() uint64 {
	return e.droppedEvents.Load()
}

// run 监测主循环：拉起采集子进程，逐行解码并驱动窗口计算器
// 和会话聚合器，结束时产出会话汇总。独立协程执行。
func (e *Engine) run(sess *monitoringSession) {
	defer close(sess.done)

	if err := sess.source.Launch(context.Background(), sess.processName); err != nil {
		log.Printf("启动采集失败: %v", err)
		e.emit(Event{
			Type:        EventError,
			ProcessName: sess.processName,
			ErrorKind:   classifyLaunchError(err),
			Error:       err.Error(),
		})
		e.fault(sess, false)
		return
	}

	if sess.stopRequested.Load() || e.State() == StateStopping {
		// stop() 赶在 Launch 完成前到达，可能早到 session 还没登记
		sess.stopRequested.Store(true)
		_ = sess.source.Terminate()
		e.finalize(sess, true)
		return
	}

	e.state.CompareAndSwap(int32(StateStarting), int32(StateRunning))
	e.emit(Event{Type: EventStarted, ProcessName: sess.processName})

	stallDone := make(chan struct{})
	go e.stallWatcher(sess, stallDone)

	decodeFault := e.consume(sess)

	close(stallDone)
	_ = sess.source.Terminate()

	if decodeFault {
		e.fault(sess, true)
		return
	}
	e.finalize(sess, sess.stopRequested.Load())
}

// consume 逐行读取并解码输出流，返回是否遇到不可恢复的解码错误
func (e *Engine) consume(sess *monitoringSession) bool {
	for {
		line, err := sess.source.ReadLine()
		if err != nil {
			if !errors.Is(err, capture.EndOfStream) {
				log.Printf("读取采集输出失败: %v", err)
			}
			return false
		}

		rec, err := sess.decoder.Decode(line)
		if err != nil {
			if errors.Is(err, capture.ErrMissingColumn) {
				// 表头不含必需列，整个流都无法解析
				e.emit(Event{
					Type:        EventError,
					ProcessName: sess.processName,
					ErrorKind:   ErrorKindDecodeFailed,
					Error:       err.Error(),
				})
				return true
			}
			// 单行坏数据只跳过，不中断监测
			log.Printf("跳过非法数据行: %v", err)
			continue
		}
		if rec == nil {
			continue
		}

		sess.mu.Lock()
		snap, ok := sess.window.Push(rec.FrameTimeMs, rec.CpuBusyMs, rec.GpuBusyMs)
		sess.agg.Add(rec.FrameTimeMs)
		sess.mu.Unlock()

		if ok {
			e.publishSnapshot(sess, snap)
		}

		if sess.stopRequested.Load() {
			return false
		}
	}
}

// stallWatcher 游戏卡死时输出流会长时间无帧，定期补发零 FPS
// 快照，让调用方能区分"卡死"和"未运行"。
func (e *Engine) stallWatcher(sess *monitoringSession, done <-chan struct{}) {
	timeout := e.config.StallTimeout
	if timeout <= 0 {
		return
	}
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			last := time.Unix(0, sess.lastEmitNano.Load())
			if now.Sub(last) < timeout || e.State() != StateRunning {
				continue
			}
			sess.mu.Lock()
			snap := sess.window.StallSnapshot()
			sess.mu.Unlock()
			e.publishSnapshot(sess, snap)
		}
	}
}

func (e *Engine) publishSnapshot(sess *monitoringSession, snap *stats.FpsSnapshot) {
	sess.lastEmitNano.Store(time.Now().UnixNano())

	e.mu.Lock()
	e.lastSnap = snap
	e.mu.Unlock()

	e.emit(Event{
		Type:        EventSnapshot,
		ProcessName: sess.processName,
		Snapshot:    snap,
	})
}

// finalize 正常结束：恰好一次产出会话汇总，然后回到 Stopped。
// 未经 stop() 且一帧未收就结束的流额外上报 UnexpectedExit。
func (e *Engine) finalize(sess *monitoringSession, stopRequested bool) {
	sess.mu.Lock()
	summary := sess.agg.Finalize()
	sess.mu.Unlock()

	if !stopRequested && summary.TotalFrames == 0 {
		e.emit(Event{
			Type:        EventError,
			ProcessName: sess.processName,
			ErrorKind:   ErrorKindUnexpectedExit,
			Error:       fmt.Sprintf("采集流在收到任何帧之前就结束了，进程 %s 可能并未运行", sess.processName),
		})
	}

	log.Printf("FPS Session 结束: %s | 平均 %.1f FPS | 1%% Low %.1f | 共 %d 帧",
		summary.ProcessName, summary.AvgFps, summary.Fps1Low, summary.TotalFrames)

	e.emit(Event{Type: EventSessionComplete, ProcessName: sess.processName, Session: summary})
	e.settle(sess, true)
}

// fault 不可恢复错误：经由 Faulted 回到 Stopped，不自动重启，
// 调用方随后可以重新 Start。错误事件已由调用处发出；
// started 为真时（监测已对外宣告开始）补发 stopped 事件。
func (e *Engine) fault(sess *monitoringSession, started bool) {
	e.state.Store(int32(StateFaulted))
	e.settle(sess, started)
}

func (e *Engine) settle(sess *monitoringSession, emitStopped bool) {
	e.mu.Lock()
	if e.session == sess {
		e.session = nil
	}
	e.mu.Unlock()

	if emitStopped {
		e.emit(Event{Type: EventStopped, ProcessName: sess.processName})
	}
	e.state.Store(int32(StateStopped))
}

// emit 投递一个事件。快照等可再生事件在通道写满时丢弃并计数，
// 绝不阻塞监测循环；session-complete 和 stopped 每次会话恰好一次、
// 不可再生，即使消费方暂时跟不上也要送达。
func (e *Engine) emit(ev Event) {
	ev.Timestamp = time.Now()

	switch ev.Type {
	case EventSessionComplete, EventStopped:
		e.events <- ev
		return
	}

	select {
	case e.events <- ev:
	default:
		e.droppedEvents.Add(1)
		log.Printf("事件通道已满，丢弃事件: %s", ev.Type)
	}
}

// classifyLaunchError 把启动错误映射到错误分类
func classifyLaunchError(err error) ErrorKind {
	switch {
	case errors.Is(err, capture.ErrToolMissing):
		return ErrorKindToolMissing
	case errors.Is(err, capture.ErrPermissionDenied):
		return ErrorKindPermissionDenied
	default:
		return ErrorKindSpawnFailed
	}
}
