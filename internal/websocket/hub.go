package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub WebSocket连接管理中心，向所有客户端广播AT跟踪与链路事件
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 消息广播通道
	broadcast chan []byte

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	dropped uint64
	logger  *zap.Logger
}

// Message WebSocket消息
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"` // 毫秒
}

// MessageType 消息类型
const (
	MessageTypeConnected = "connected"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"
	MessageTypeTrace     = "at_trace"
	MessageTypeLinkEvent = "link_event"
)

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		logger:     logger,
	}
}

// Run 运行Hub，直到 Stop
func (h *Hub) Run() {
	defer close(h.doneCh)

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case data := <-h.broadcast:
			h.broadcastMessage(data)

		case <-h.stopCh:
			h.clientsMu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.Send)
			}
			h.clientsMu.Unlock()
			return
		}
	}
}

// Stop 停止Hub并断开所有客户端，可重复调用
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	<-h.doneCh
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.String("subject", client.Subject))

	msg, _ := newMessage(MessageTypeConnected, map[string]string{"client_id": client.ID})
	select {
	case client.Send <- msg:
	default:
	}
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端断开", zap.String("client_id", client.ID))
}

// broadcastMessage 广播消息
func (h *Hub) broadcastMessage(data []byte) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("客户端发送缓冲区满，丢弃消息",
				zap.String("client_id", client.ID))
		}
	}
}

// publish 非阻塞投递，Hub 繁忙时丢弃，驱动线程不会被跟踪拖慢
func (h *Hub) publish(msgType string, payload interface{}) {
	data, err := newMessage(msgType, payload)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.clientsMu.Lock()
		h.dropped++
		h.clientsMu.Unlock()
	}
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Dropped 因广播队列满而丢弃的消息数
func (h *Hub) Dropped() uint64 {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return h.dropped
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.doneCh:
		close(client.Send)
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.doneCh:
	}
}

func newMessage(msgType string, payload interface{}) ([]byte, error) {
	msg := &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Data = data
	}
	return json.Marshal(msg)
}
