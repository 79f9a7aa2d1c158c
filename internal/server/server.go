package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"GameBenchDesktop/internal/config"
	"GameBenchDesktop/internal/gamedetect"
	"GameBenchDesktop/internal/hwinfo"
	"GameBenchDesktop/internal/logger"
	"GameBenchDesktop/internal/monitor"
	"GameBenchDesktop/internal/storage"
)

// APIResponse 统一 API 响应结构
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Server 桌面端本地 API 服务：HTTP 命令面 + WebSocket 事件推送。
// 前端通过 HTTP 下发 start/stop 等命令，通过 /ws 接收监测快照、
// 游戏检测通知和日志流。
type Server struct {
	config *config.ServerConfig
	router *mux.Router
	server *http.Server
	hub    *Hub

	engine  *monitor.Engine
	store   *storage.SessionStore
	logs    *logger.Store
	scanner *gamedetect.Scanner

	pumpCancel context.CancelFunc
}

// New 创建本地 API 服务
func New(cfg *config.ServerConfig, engine *monitor.Engine, store *storage.SessionStore, logs *logger.Store) *Server {
	s := &Server{
		config: cfg,
		router: mux.NewRouter(),
		hub:    NewHub(),
		engine: engine,
		store:  store,
		logs:   logs,
	}

	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      c.Handler(s.router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/monitor/start", s.handleMonitorStart).Methods("POST")
	api.HandleFunc("/monitor/stop", s.handleMonitorStop).Methods("POST")
	api.HandleFunc("/monitor/status", s.handleMonitorStatus).Methods("GET")

	api.HandleFunc("/hardware", s.handleHardware).Methods("GET")
	api.HandleFunc("/games/running", s.handleRunningGames).Methods("GET")
	api.HandleFunc("/games/known", s.handleKnownGames).Methods("GET")

	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions", s.handleClearSessions).Methods("DELETE")
	api.HandleFunc("/sessions/{id:[0-9]+}", s.handleGetSession).Methods("GET")

	api.HandleFunc("/logs", s.handleGetLogs).Methods("GET")
	api.HandleFunc("/logs", s.handleClearLogs).Methods("DELETE")

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/ws", s.hub.HandleWS)
}

// Handler 完整的 HTTP 处理链（含 CORS 与路由）
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start 启动服务：事件泵、推送中心、后台游戏扫描器和 HTTP 监听
func (s *Server) Start(scanCfg *config.DetectConfig) error {
	go s.hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	s.pumpCancel = cancel

	go s.pumpEngineEvents(ctx)

	if s.logs != nil {
		s.logs.Subscribe(func(msg logger.LogMessage) {
			s.hub.Publish("log", msg)
		})
	}

	s.scanner = gamedetect.NewScanner(scanCfg.ScanInterval, scanCfg.MaxRetryBackoff,
		func(n gamedetect.Notification) {
			s.hub.Publish("game", n)
		})
	go s.scanner.Run(ctx)

	ln, err := newListener(s.server.Addr)
	if err != nil {
		return err
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP 服务异常退出: %v", err)
		}
	}()

	log.Printf("本地 API 服务已启动: http://%s", s.server.Addr)
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	if s.pumpCancel != nil {
		s.pumpCancel()
	}
	s.hub.Stop()
	_ = s.engine.Stop()
	return s.server.Shutdown(ctx)
}

// pumpEngineEvents 把引擎事件转发给前端；会话汇总顺带入库
func (s *Server) pumpEngineEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.engine.Events():
			s.hub.Publish("monitor", ev)

			if ev.Type == monitor.EventSessionComplete && ev.Session != nil && s.store != nil {
				saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if _, err := s.store.Save(saveCtx, ev.Session); err != nil {
					log.Printf("保存会话历史失败: %v", err)
				}
				cancel()
			}
		}
	}
}

// ==================== 监测命令 ====================

type startRequest struct {
	ProcessName string `json:"process_name"`
}

func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_BODY", "请求体不是合法 JSON")
		return
	}

	switch err := s.engine.Start(req.ProcessName); err {
	case nil:
		s.writeJSON(w, http.StatusOK, APIResponse{
			Success:   true,
			Message:   "监测已启动",
			Data:      map[string]string{"process_name": req.ProcessName},
			Timestamp: time.Now().Unix(),
		})
	case monitor.ErrInvalidInput:
		s.writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case monitor.ErrAlreadyRunning:
		s.writeError(w, http.StatusConflict, "ALREADY_RUNNING", err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}

func (s *Server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	_ = s.engine.Stop()
	s.writeJSON(w, http.StatusOK, APIResponse{
		Success:   true,
		Message:   "停止请求已受理",
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, s.engine.Status())
}

// ==================== 硬件与游戏检测 ====================

func (s *Server) handleHardware(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, hwinfo.Detect())
}

func (s *Server) handleRunningGames(w http.ResponseWriter, r *http.Request) {
	games, err := gamedetect.Scan()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "SCAN_FAILED", err.Error())
		return
	}
	s.writeData(w, games)
}

func (s *Server) handleKnownGames(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, gamedetect.KnownGames())
}

// ==================== 会话历史 ====================

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "STORAGE_FAILED", err.Error())
		return
	}
	if records == nil {
		records = []storage.SessionRecord{}
	}
	s.writeData(w, records)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_ID", "非法的会话 ID")
		return
	}
	record, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "STORAGE_FAILED", err.Error())
		return
	}
	if record == nil {
		s.writeError(w, http.StatusNotFound, "NOT_FOUND", "会话不存在")
		return
	}
	s.writeData(w, record)
}

func (s *Server) handleClearSessions(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "STORAGE_FAILED", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "会话历史已清空", Timestamp: time.Now().Unix()})
}

// ==================== 日志 ====================

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, map[string]string{"logs": s.logs.Dump()})
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	s.logs.Clear()
	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "日志已清空", Timestamp: time.Now().Unix()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, map[string]interface{}{
		"status":     "ok",
		"state":      s.engine.State().String(),
		"ws_clients": s.hub.ClientCount(),
	})
}

// ==================== 响应辅助 ====================

func (s *Server) writeData(w http.ResponseWriter, data interface{}) {
	s.writeJSON(w, http.StatusOK, APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, APIResponse{
		Success:   false,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("写响应失败: %v", err)
	}
}
