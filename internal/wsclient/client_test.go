package wsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newPushServer 起一个每次连接都执行 session 的 WebSocket 服务
func newPushServer(t *testing.T, session func(conn *websocket.Conn)) string {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		session(conn)
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func pushJSON(conn *websocket.Conn, channel string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := PushMessage{Channel: channel, Payload: raw, Timestamp: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// TestClientReceivesMessages 连接后按序收到服务端推送
func TestClientReceivesMessages(t *testing.T) {
	url := newPushServer(t, func(conn *websocket.Conn) {
		for i := 0; i < 3; i++ {
			if err := pushJSON(conn, "monitor", map[string]int{"seq": i}); err != nil {
				return
			}
		}
		// 挂住连接直到客户端关闭
		conn.ReadMessage()
	})

	client := New(DefaultClientConfig(url))
	received := make(chan PushMessage, 16)
	client.SetMessageHandler(func(msg PushMessage) {
		received <- msg
	})

	go client.Run(context.Background())
	defer client.Close()

	for i := 0; i < 3; i++ {
		select {
		case msg := <-received:
			assert.Equal(t, "monitor", msg.Channel)
			var payload map[string]int
			require.NoError(t, json.Unmarshal(msg.Payload, &payload))
			assert.Equal(t, i, payload["seq"])
		case <-time.After(3 * time.Second):
			t.Fatalf("等待第 %d 条推送超时", i)
		}
	}

	assert.Equal(t, StateConnected, client.State())
	t.Log("✅ 事件流客户端收到全部推送")
}

// TestClientReconnects 服务端断开后自动重连并继续收消息
func TestClientReconnects(t *testing.T) {
	url := newPushServer(t, func(conn *websocket.Conn) {
		_ = pushJSON(conn, "monitor", map[string]string{"type": "hello"})
		// 直接断开，触发客户端重连
	})

	cfg := DefaultClientConfig(url)
	cfg.ReconnectInterval = 10 * time.Millisecond
	cfg.MaxReconnectWait = 50 * time.Millisecond
	client := New(cfg)

	received := make(chan PushMessage, 16)
	client.SetMessageHandler(func(msg PushMessage) {
		received <- msg
	})

	go client.Run(context.Background())
	defer client.Close()

	for i := 0; i < 3; i++ {
		select {
		case <-received:
		case <-time.After(3 * time.Second):
			t.Fatalf("第 %d 次连接没有收到推送", i+1)
		}
	}

	assert.GreaterOrEqual(t, client.Reconnects(), int32(2))
}

// TestClientStateTransitions 状态机经历连接、断开与关闭
func TestClientStateTransitions(t *testing.T) {
	url := newPushServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})

	client := New(DefaultClientConfig(url))

	var mu sync.Mutex
	var transitions []ClientState
	client.SetStateChangeHandler(func(_, newState ClientState) {
		mu.Lock()
		transitions = append(transitions, newState)
		mu.Unlock()
	})

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return client.State() == StateConnected
	}, 3*time.Second, 10*time.Millisecond)

	client.Close()

	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(3 * time.Second):
		t.Fatal("等待 Run 退出超时")
	}

	assert.Equal(t, StateClosed, client.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, transitions, StateConnecting)
	assert.Contains(t, transitions, StateConnected)
	assert.Equal(t, StateClosed, transitions[len(transitions)-1])
}

// TestClientContextCancel ctx 取消后 Run 返回
func TestClientContextCancel(t *testing.T) {
	url := newPushServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})

	client := New(DefaultClientConfig(url))
	ctx, cancel := context.WithCancel(context.Background())

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	require.Eventually(t, func() bool {
		return client.State() == StateConnected
	}, 3*time.Second, 10*time.Millisecond)

	cancel()

	// ReadMessage 阻塞中，需要 Close 唤醒
	client.Close()
	select {
	case err := <-runErr:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("等待 Run 退出超时")
	}
}

// TestClientStateString 状态名
func TestClientStateString(t *testing.T) {
	assert.Equal(t, "DISCONNECTED", StateDisconnected.String())
	assert.Equal(t, "CONNECTED", StateConnected.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "UNKNOWN", ClientState(42).String())
}
