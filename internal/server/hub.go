package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// PushMessage 推送给前端的统一消息信封
type PushMessage struct {
	// 消息通道: monitor / game / log
	Channel string `json:"channel"`
	// 载荷（monitor.Event、gamedetect.Notification、logger.LogMessage）
	Payload interface{} `json:"payload"`
	// 推送时间
	Timestamp time.Time `json:"timestamp"`
}

// Hub WebSocket 推送中心：管理前端连接并向所有连接广播事件，
// 替代桌面框架的事件总线。慢客户端不会阻塞广播，写失败直接断开。
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*hubClient]bool

	broadcast chan PushMessage
	stopCh    chan struct{}
	stopOnce  sync.Once
}

type hubClient struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub 创建推送中心
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// 本地桌面服务，允许任意来源
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*hubClient]bool),
		broadcast: make(chan PushMessage, 256),
		stopCh:    make(chan struct{}),
	}
}

// Run 运行广播循环直到 Stop。独立协程执行。
func (h *Hub) Run() {
	for {
		select {
		case <-h.stopCh:
			h.closeAll()
			return
		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("序列化推送消息失败: %v", err)
				continue
			}
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// 发送缓冲满，视为死连接
					go h.drop(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop 停止广播并断开全部连接，幂等
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
}

// Publish 向所有已连接的前端广播一条消息，不阻塞调用方
func (h *Hub) Publish(channel string, payload interface{}) {
	msg := PushMessage{Channel: channel, Payload: payload, Timestamp: time.Now()}
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("推送队列已满，丢弃 %s 消息", channel)
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS 处理 /ws 连接升级
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket 升级失败: %v", err)
		return
	}

	client := &hubClient{
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("前端已连接，当前连接数: %d", count)

	go h.writeLoop(client)
	go h.readLoop(client)
}

// writeLoop 把广播数据写给单个连接
func (h *Hub) writeLoop(c *hubClient) {
	defer h.drop(c)
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// readLoop 只为感知断开而读，前端不上行数据
func (h *Hub) readLoop(c *hubClient) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket 连接错误: %v", err)
			}
			return
		}
	}
}

// drop 注销并关闭一个连接，幂等
func (h *Hub) drop(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	c.closeOnce.Do(func() { close(c.done) })
	c.conn.Close()
	log.Printf("前端已断开，当前连接数: %d", count)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.closeOnce.Do(func() { close(client.done) })
		client.conn.Close()
		delete(h.clients, client)
	}
}
