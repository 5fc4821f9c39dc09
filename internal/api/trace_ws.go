package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/loracam/internal/middleware"
	ws "github.com/wfunc/loracam/internal/websocket"
	"go.uber.org/zap"
)

// TraceHandler AT跟踪与链路事件的WebSocket推送
type TraceHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewTraceHandler 创建跟踪推送处理器
func NewTraceHandler(hub *ws.Hub, logger *zap.Logger) *TraceHandler {
	return &TraceHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// TraceWebSocket 建立跟踪推送连接
func (h *TraceHandler) TraceWebSocket(c *gin.Context) {
	subject, _ := middleware.GetSubject(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败", zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, subject)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("跟踪推送连接建立",
		zap.String("client_id", client.ID),
		zap.String("ip", c.ClientIP()))
}
