package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub 状态推送中心
//
// 维护全部已连接的状态页客户端，客户端状态每次翻转时向所有
// 连接广播一条快照消息。
type Hub struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client

	logger *zap.Logger
}

// Message 推送消息
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// 消息类型
const (
	MessageTypeConnected = "connected"
	MessageTypeStatus    = "status"
)

// NewHub 创建推送中心
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run 运行推送循环，直到ctx取消
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case message := <-h.broadcast:
			h.broadcastMessage(message)
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// registerClient 注册客户端并推送欢迎消息
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	welcome, _ := json.Marshal(&Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().Unix(),
	})
	select {
	case client.Send <- welcome:
	default:
	}

	h.logger.Info("状态页连接建立",
		zap.String("client_id", client.ID),
		zap.Int("online", h.Count()))
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("状态页连接断开",
		zap.String("client_id", client.ID))
}

// broadcastMessage 向全部在线客户端广播
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化推送消息失败", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// 发送缓冲满的慢客户端直接跳过
			h.logger.Warn("客户端发送缓冲已满，跳过本条推送",
				zap.String("client_id", client.ID))
		}
	}
}

// closeAll 关闭全部连接
func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for id, client := range h.clients {
		close(client.Send)
		delete(h.clients, id)
	}
}

// PushStatus 广播一条状态快照
func (h *Hub) PushStatus(status interface{}) {
	data, err := json.Marshal(status)
	if err != nil {
		h.logger.Error("序列化状态快照失败", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- &Message{
		Type:      MessageTypeStatus,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}:
	default:
	}
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Count 在线连接数
func (h *Hub) Count() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
