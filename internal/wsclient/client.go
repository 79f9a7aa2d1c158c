package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// ClientState 客户端连接状态
type ClientState int32

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ErrClosed 客户端已关闭
var ErrClosed = errors.New("wsclient: client closed")

// PushMessage 服务端推送的统一消息信封（与 server.PushMessage 对应）
type PushMessage struct {
	Channel   string          `json:"channel"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// MessageHandler 推送消息处理器
type MessageHandler func(msg PushMessage)

// StateChangeHandler 状态变化处理器
type StateChangeHandler func(oldState, newState ClientState)

// ClientConfig 客户端配置
type ClientConfig struct {
	// 事件流地址，如 ws://127.0.0.1:8765/ws
	URL string
	// 握手超时
	HandshakeTimeout time.Duration
	// 重连初始间隔
	ReconnectInterval time.Duration
	// 重连最大间隔
	MaxReconnectWait time.Duration
}

// DefaultClientConfig 返回默认配置
func DefaultClientConfig(url string) *ClientConfig {
	return &ClientConfig{
		URL:               url,
		HandshakeTimeout:  10 * time.Second,
		ReconnectInterval: time.Second,
		MaxReconnectWait:  30 * time.Second,
	}
}

// Client 事件流 WebSocket 客户端，断线后按指数退避自动重连。
// watch 模式和集成测试用它消费本地服务的事件推送。
type Client struct {
	config *ClientConfig
	dialer *websocket.Dialer

	state atomic.Int32

	onMessage     MessageHandler
	onStateChange StateChangeHandler

	mu       sync.Mutex
	conn     *websocket.Conn
	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}

	reconnects atomic.Int32
}

// New 创建事件流客户端
func New(config *ClientConfig) *Client {
	if config == nil {
		panic("config cannot be nil")
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = config.HandshakeTimeout

	c := &Client{
		config: config,
		dialer: &dialer,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// SetMessageHandler 设置推送消息处理器
func (c *Client) SetMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

// SetStateChangeHandler 设置状态变化处理器
func (c *Client) SetStateChangeHandler(handler StateChangeHandler) {
	c.onStateChange = handler
}

// State 当前连接状态
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

// Reconnects 重连次数
func (c *Client) Reconnects() int32 {
	return c.reconnects.Load()
}

// Run 连接并持续消费事件流直到 ctx 取消或 Close。
// 断线后自动重连，连接成功一次就重置退避。
func (c *Client) Run(ctx context.Context) error {
	defer close(c.doneCh)
	defer c.setState(StateClosed)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.ReconnectInterval
	policy.MaxInterval = c.config.MaxReconnectWait
	policy.MaxElapsedTime = 0

	first := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return ErrClosed
		default:
		}

		if first {
			c.setState(StateConnecting)
		} else {
			c.setState(StateReconnecting)
			c.reconnects.Add(1)
		}

		if err := c.connectAndConsume(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
				return err
			}
			wait := policy.NextBackOff()
			log.Printf("事件流连接断开: %v，%s 后重连", err, wait)
			c.setState(StateDisconnected)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.stopCh:
				return ErrClosed
			case <-time.After(wait):
			}
			first = false
			continue
		}
		// 正常关闭
		return nil
	}
}

// Close 关闭客户端并等待消费协程退出，幂等
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
	<-c.doneCh
}

// connectAndConsume 建立一次连接并消费到断开
func (c *Client) connectAndConsume(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected)

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		select {
		case <-c.stopCh:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return ErrClosed
			default:
			}
			return err
		}

		var msg PushMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("解析推送消息失败: %v", err)
			continue
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

func (c *Client) setState(newState ClientState) {
	oldState := ClientState(c.state.Swap(int32(newState)))
	if oldState != newState && c.onStateChange != nil {
		c.onStateChange(oldState, newState)
	}
}
