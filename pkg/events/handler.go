package events

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"verdant/pkg/captable"
	"verdant/pkg/registry"
	"verdant/pkg/response"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler streams registry events over websockets. It is a registry.Listener.
type Handler struct {
	hub    *Hub
	logger zerolog.Logger
	now    func() time.Time
}

func NewHandler(hub *Hub, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, logger: logger, now: time.Now}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws/registry", h.HandleWebSocket)
}

// HandleWebSocket upgrades the request. An optional startup_id query
// parameter restricts the stream to one startup.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	var filter *uint64
	if raw := c.Query("startup_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid startup_id", nil)
			return
		}
		filter = &id
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := h.hub.AddClient(conn, filter)
	h.logger.Info().Str("client_id", client.ID).Msg("registry subscriber connected")

	go h.readLoop(client)
	go h.writeLoop(client)
}

// readLoop only watches for pongs and close frames.
func (h *Handler) readLoop(client *Client) {
	defer func() {
		h.hub.RemoveClient(client.ID)
		client.Conn.Close()
		h.logger.Info().Str("client_id", client.ID).Msg("registry subscriber disconnected")
	}()

	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("client_id", client.ID).Msg("websocket read failed")
			}
			return
		}
	}
}

// writeLoop closes the connection when a write fails so readLoop unwinds
// and drops the client.
func (h *Handler) writeLoop(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.Done:
			return

		case message := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteJSON(message); err != nil {
				h.logger.Warn().Err(err).Str("client_id", client.ID).Msg("websocket write failed")
				client.Conn.Close()
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Conn.Close()
				return
			}
		}
	}
}

func (h *Handler) StartupRegistered(ctx context.Context, s registry.Startup) {
	startup := s
	n := h.hub.Broadcast(Event{
		ID:         uuid.NewString(),
		Type:       TypeStartupRegistered,
		StartupID:  s.ID,
		Startup:    &startup,
		OccurredAt: h.now().UTC(),
	})
	h.logger.Debug().Uint64("startup_id", s.ID).Int("subscribers", n).Msg("registration event published")
}

func (h *Handler) CapTableUpdated(ctx context.Context, table registry.CapTable) {
	summary := captable.Breakdown(table.Holders(), table.Shares())
	n := h.hub.Broadcast(Event{
		ID:         uuid.NewString(),
		Type:       TypeCapTableUpdated,
		StartupID:  table.StartupID,
		CapTable:   &summary,
		OccurredAt: h.now().UTC(),
	})
	h.logger.Debug().Uint64("startup_id", table.StartupID).Int("subscribers", n).Msg("cap table event published")
}
