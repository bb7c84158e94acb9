package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/weiawesome/emergency-chat-relay/internal/audit"
	"github.com/weiawesome/emergency-chat-relay/internal/config"
	"github.com/weiawesome/emergency-chat-relay/internal/domain"
	"github.com/weiawesome/emergency-chat-relay/internal/hub"
	"github.com/weiawesome/emergency-chat-relay/internal/service"
	"github.com/weiawesome/emergency-chat-relay/pkg/log"
)

type WSHandler struct {
	service  service.RelayService
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(svc service.RelayService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		service: svc,
		wsCfg:   wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(wsCfg.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWebSocket joins the caller to ?emergencyId= as ?userId=. It blocks for
// the lifetime of the connection.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	emergencyID := strings.TrimSpace(c.Query("emergencyId"))
	userID := strings.TrimSpace(c.Query("userId"))
	if emergencyID == "" || userID == "" {
		audit.Reject(ctx, emergencyID, userID, domain.ReasonMissingJoin)
		hub.Reject(conn, domain.CloseRejected, domain.ReasonMissingJoin, h.wsCfg.WriteWait)
		return
	}

	client := hub.NewClient(ctx, uuid.New().String(), emergencyID, userID, conn, h.wsCfg)
	if err := h.service.HandleJoin(client.Context(), client); err != nil {
		l.Error().Err(err).Msg("join failed")
		hub.Reject(conn, websocket.CloseInternalServerErr, "join failed", h.wsCfg.WriteWait)
		return
	}
	client.MarkJoined()

	go client.WritePump()
	client.ReadPump(h.handleMessage, h.handleClose)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	ctx := client.Context()
	if err := h.service.HandleMessage(ctx, client, message); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Msg("chat message not relayed")
	}
}

func (h *WSHandler) handleClose(client *hub.Client) {
	ctx := client.Context()
	if err := h.service.HandleDisconnect(ctx, client); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("disconnect failed")
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/chat/ws", h.HandleWebSocket)
}
