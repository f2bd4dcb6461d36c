package activity

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/jarvik/webclient/internal/service/activity"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Source 提供活动事件订阅。
type Source interface {
	Subscribe() (<-chan activity.Event, func())
}

// Handler pushes activity events to the page over a websocket so it can
// show a busy indicator.
type Handler struct {
	source   Source
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// New 创建活动推送处理器
func New(source Source, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		source: source,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log.With(zap.String("component", "handler.activity")),
	}
}

// RegisterRoutes 注册活动推送路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/activity/ws", h.handleWebSocket)
	r.Get("/activity/stream", h.handleStream)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := h.source.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	go h.readLoop(conn, stop)

	h.log.Debug("activity subscriber connected", zap.String("remote", r.RemoteAddr))
	h.writeLoop(ctx, conn, events)
}

// readLoop 只负责处理 pong 与关闭帧，页面不会发送业务消息。
func (h *Handler) readLoop(conn *websocket.Conn, stop context.CancelFunc) {
	defer stop()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("activity read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan activity.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug("activity write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
