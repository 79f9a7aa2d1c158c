package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GameBenchDesktop/internal/capture"
	"GameBenchDesktop/internal/config"
	"GameBenchDesktop/internal/logger"
	"GameBenchDesktop/internal/monitor"
	"GameBenchDesktop/internal/stats"
	"GameBenchDesktop/internal/storage"
	"GameBenchDesktop/internal/testutil"
)

type serverFixture struct {
	server *Server
	ts     *httptest.Server
	store  *storage.SessionStore
	logs   *logger.Store
}

// newFixture 组装一个走脚本化数据源的完整服务，HTTP 层用 httptest 承载
func newFixture(t *testing.T, newSource monitor.SourceFactory) *serverFixture {
	t.Helper()

	if newSource == nil {
		newSource = func() capture.Source {
			return testutil.NewScriptedSource(
				testutil.CaptureOutput("game.exe", testutil.RepeatFrames(16.667, 30)...)...,
			)
		}
	}

	engineCfg := monitor.DefaultEngineConfig()
	engineCfg.StallTimeout = 0
	engine := monitor.NewEngine(engineCfg, newSource)

	store, err := storage.Open(filepath.Join(t.TempDir(), "server_test.db"))
	require.NoError(t, err)

	logs := logger.NewStore(100)

	srv := New(&config.ServerConfig{
		Addr:           "127.0.0.1:0",
		AllowedOrigins: []string{"*"},
	}, engine, store, logs)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = engine.Stop()
		store.Close()
	})

	return &serverFixture{server: srv, ts: ts, store: store, logs: logs}
}

func (f *serverFixture) get(t *testing.T, path string) (*http.Response, APIResponse) {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	require.NoError(t, err)
	return resp, decodeAPI(t, resp)
}

func (f *serverFixture) post(t *testing.T, path string, body interface{}) (*http.Response, APIResponse) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp, decodeAPI(t, resp)
}

func (f *serverFixture) delete(t *testing.T, path string) (*http.Response, APIResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, f.ts.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp, decodeAPI(t, resp)
}

func decodeAPI(t *testing.T, resp *http.Response) APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var out APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// TestHealthEndpoint 健康检查返回引擎状态和连接数
func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.get(t, "/api/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)

	data := body.Data.(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "STOPPED", data["state"])
	assert.Equal(t, float64(0), data["ws_clients"])
}

// TestMonitorStartStop 启停命令的完整闭环
func TestMonitorStartStop(t *testing.T) {
	src := testutil.NewScriptedSource(
		testutil.CaptureOutput("game.exe", testutil.RepeatFrames(16.667, 30)...)...,
	)
	src.HoldOpen = true
	f := newFixture(t, func() capture.Source { return src })

	resp, body := f.post(t, "/api/monitor/start", map[string]string{"process_name": "game.exe"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)

	// 启动是异步的，等引擎进入运行态
	require.Eventually(t, func() bool {
		_, status := f.get(t, "/api/monitor/status")
		return status.Data.(map[string]interface{})["running"] == true
	}, 5*time.Second, 20*time.Millisecond)

	// 第二次启动冲突
	resp, body = f.post(t, "/api/monitor/start", map[string]string{"process_name": "other.exe"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ALREADY_RUNNING", body.Code)

	resp, body = f.post(t, "/api/monitor/stop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)

	require.Eventually(t, func() bool {
		_, status := f.get(t, "/api/monitor/status")
		return status.Data.(map[string]interface{})["running"] == false
	}, 5*time.Second, 20*time.Millisecond)
}

// TestMonitorStartValidation 非法请求的状态码与错误码
func TestMonitorStartValidation(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Post(f.ts.URL+"/api/monitor/start", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	body := decodeAPI(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_BODY", body.Code)

	resp2, body2 := f.post(t, "/api/monitor/start", map[string]string{"process_name": "  "})
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	assert.Equal(t, "INVALID_INPUT", body2.Code)
}

// TestMonitorStopIdempotent 未运行时 stop 也返回成功
func TestMonitorStopIdempotent(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.post(t, "/api/monitor/stop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
}

// TestSessionEndpoints 会话历史的增查删
func TestSessionEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	id, err := f.store.Save(ctx, &stats.FpsSession{
		ProcessName: "game.exe", AvgFps: 60.0, Fps1Low: 48.0,
		TotalFrames: 3600, DurationSecs: 60.0,
	})
	require.NoError(t, err)

	resp, body := f.get(t, "/api/sessions")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	records := body.Data.([]interface{})
	require.Len(t, records, 1)

	resp, body = f.get(t, fmt.Sprintf("/api/sessions/%d", id))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	record := body.Data.(map[string]interface{})
	session := record["session"].(map[string]interface{})
	assert.Equal(t, "game.exe", session["process_name"])
	assert.Equal(t, 60.0, session["avg_fps"])

	resp, body = f.get(t, "/api/sessions/99999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body.Code)

	resp, _ = f.delete(t, "/api/sessions")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = f.get(t, "/api/sessions")
	assert.Empty(t, body.Data.([]interface{}))
}

// TestLogEndpoints 日志查看与清空
func TestLogEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	f.logs.Info("test", "第 %d 条日志", 1)

	resp, body := f.get(t, "/api/logs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	dump := body.Data.(map[string]interface{})["logs"].(string)
	assert.Contains(t, dump, "第 1 条日志")

	resp, _ = f.delete(t, "/api/logs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = f.get(t, "/api/logs")
	assert.Empty(t, body.Data.(map[string]interface{})["logs"])
}

// TestKnownGamesEndpoint 内置游戏库非空且有序
func TestKnownGamesEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.get(t, "/api/games/known")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	games := body.Data.([]interface{})
	assert.NotEmpty(t, games)
}

// TestHubBroadcast 推送中心把消息广播给所有 WebSocket 连接
func TestHubBroadcast(t *testing.T) {
	f := newFixture(t, nil)
	go f.server.hub.Run()
	defer f.server.hub.Stop()

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return f.server.hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.server.hub.Publish("monitor", map[string]string{"type": "fps-update"})

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg PushMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "monitor", msg.Channel)
	payload := msg.Payload.(map[string]interface{})
	assert.Equal(t, "fps-update", payload["type"])

	t.Logf("✅ WebSocket 推送: channel=%s", msg.Channel)
}

// TestHubStopDisconnectsClients Stop 断开所有连接
func TestHubStopDisconnectsClients(t *testing.T) {
	f := newFixture(t, nil)
	go f.server.hub.Run()

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return f.server.hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.server.hub.Stop()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "服务端关闭后读取应失败")
	assert.Eventually(t, func() bool {
		return f.server.hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
