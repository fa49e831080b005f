package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/callpanel-api/pkg/realtime"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

type eventSubscriber interface {
	Subscribe(topic string) (<-chan realtime.Event, func())
}

// RealtimeHandler streams unit events to browser displays over websockets.
type RealtimeHandler struct {
	hub      eventSubscriber
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewRealtimeHandler builds the handler. An empty allowedOrigins accepts every origin.
func NewRealtimeHandler(hub eventSubscriber, allowedOrigins []string, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &RealtimeHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Events godoc
// @Summary Subscribe to unit playback events
// @Tags Realtime
// @Param unitId path string true "Unit ID"
// @Param access_token query string true "Access token"
// @Success 101
// @Router /units/{unitId}/events [get]
func (h *RealtimeHandler) Events(c *gin.Context) {
	unitID := c.Param("unitId")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("unit_id", unitID), zap.Error(err))
		return
	}
	defer conn.Close() //nolint:errcheck

	events, unsubscribe := h.hub.Subscribe(realtime.UnitTopic(unitID))
	defer unsubscribe()
	h.logger.Info("display connected", zap.String("unit_id", unitID), zap.String("remote", c.ClientIP()))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			h.logger.Info("display disconnected", zap.String("unit_id", unitID))
			return
		case <-c.Request.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Warn("websocket write failed", zap.String("unit_id", unitID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
