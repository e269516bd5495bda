package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType 消息类型
type MessageType string

const (
	KPIUpdate    MessageType = "kpi_update"
	ModelUpdate  MessageType = "model_update"
	SystemStatus MessageType = "system_status"
	Heartbeat    MessageType = "heartbeat"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Message 推送给仪表盘的消息
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// ClientMessage 客户端发来的控制消息
type ClientMessage struct {
	Type  string `json:"type"` // subscribe, unsubscribe, ping
	Topic string `json:"topic,omitempty"`
}

// Client WebSocket客户端
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string

	mu            sync.RWMutex
	subscriptions map[MessageType]bool // 为空表示接收全部
	lastPing      time.Time
}

func (c *Client) wants(t MessageType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[t]
}

type envelope struct {
	kind    MessageType
	payload []byte
}

// Greeting 新连接建立时发送的首条消息
type Greeting func() (MessageType, interface{}, bool)

// Hub WebSocket中心
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu       sync.RWMutex
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *Metrics
	greeting Greeting

	stats HubStats
}

// HubStats 推送统计
type HubStats struct {
	MessagesSent    int64     `json:"messages_sent"`
	MessagesDropped int64     `json:"messages_dropped"`
	LastMessageTime time.Time `json:"last_message_time"`
}

// NewHub 创建WebSocket中心；allowedOrigins 为空或含 "*" 时不检查来源
func NewHub(logger *zap.Logger, metrics *Metrics, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.Named("ws"),
		metrics:    metrics,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     originChecker(allowedOrigins),
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// SetGreeting 设置连接建立时的首条消息，须在 Run 之前调用
func (h *Hub) SetGreeting(g Greeting) {
	h.greeting = g
}

// Run 运行事件循环直到 ctx 取消
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.logger.Info("websocket hub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.reportClients(n)
			h.logger.Debug("client connected", zap.String("client", client.clientID), zap.Int("total", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.reportClients(n)
			h.logger.Debug("client disconnected", zap.String("client", client.clientID), zap.Int("total", n))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg.kind) {
					continue
				}
				select {
				case client.send <- msg.payload:
					h.stats.MessagesSent++
				default:
					// 慢客户端直接断开
					close(client.send)
					delete(h.clients, client)
					h.stats.MessagesDropped++
				}
			}
			h.stats.LastMessageTime = time.Now()
			n := len(h.clients)
			h.mu.Unlock()
			h.reportClients(n)

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.reportClients(0)
			return
		}
	}
}

func (h *Hub) reportClients(n int) {
	if h.metrics != nil {
		h.metrics.SetClients(n)
	}
}

// Done 在 Run 退出后关闭
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats 返回推送统计的副本
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// HandleWebSocket 处理WebSocket连接
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		clientID:      uuid.NewString(),
		subscriptions: make(map[MessageType]bool),
	}

	if h.greeting != nil {
		if kind, data, ok := h.greeting(); ok {
			if payload, err := encode(kind, data); err == nil {
				client.send <- payload
			}
		}
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump(h.logger)
	go client.readPump(h)
}

// Broadcast 广播消息，队列满时丢弃
func (h *Hub) Broadcast(kind MessageType, data interface{}) error {
	payload, err := encode(kind, data)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- envelope{kind: kind, payload: payload}:
		return nil
	default:
		h.mu.Lock()
		h.stats.MessagesDropped++
		h.mu.Unlock()
		h.logger.Warn("broadcast queue is full, dropping message", zap.String("type", string(kind)))
		return fmt.Errorf("broadcast queue full")
	}
}

func encode(kind MessageType, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", kind, err)
	}
	return json.Marshal(Message{
		Type:      kind,
		Timestamp: time.Now(),
		Data:      raw,
		ID:        uuid.NewString(),
	})
}

// writePump WebSocket写入泵
func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("websocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump WebSocket读取泵
func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("bad client message", zap.String("client", c.clientID), zap.Error(err))
			continue
		}
		c.handleClientMessage(msg)
	}
}

// handleClientMessage 处理客户端消息
func (c *Client) handleClientMessage(msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		c.mu.Lock()
		c.subscriptions[MessageType(msg.Topic)] = true
		c.mu.Unlock()
	case "unsubscribe":
		c.mu.Lock()
		delete(c.subscriptions, MessageType(msg.Topic))
		c.mu.Unlock()
	case "ping":
		c.mu.Lock()
		c.lastPing = time.Now()
		c.mu.Unlock()
	}
}
