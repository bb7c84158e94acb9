package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weiawesome/emergency-chat-relay/internal/domain"
	"github.com/weiawesome/emergency-chat-relay/internal/service"
	"github.com/weiawesome/emergency-chat-relay/pkg/log"
	"github.com/weiawesome/emergency-chat-relay/pkg/response"
)

// Pinger reports backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPHandler struct {
	history service.HistoryService
	relay   service.RelayService
	pinger  Pinger
}

func NewHTTPHandler(history service.HistoryService, relay service.RelayService, pinger Pinger) *HTTPHandler {
	return &HTTPHandler{
		history: history,
		relay:   relay,
		pinger:  pinger,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/chat/messages/:emergencyId", h.GetMessages)

	api := r.Group("/api/v1")
	{
		api.GET("/emergencies/:emergencyId/participants", h.GetParticipants)
	}

	r.GET("/health", h.HealthCheck)
}

// GetMessages returns the emergency's full history as a bare JSON array.
func (h *HTTPHandler) GetMessages(c *gin.Context) {
	emergencyID := strings.TrimSpace(c.Param("emergencyId"))
	if emergencyID == "" {
		c.JSON(http.StatusBadRequest, domain.NewErrorMessage("emergencyId is required"))
		return
	}

	messages, err := h.history.GetHistory(c.Request.Context(), emergencyID)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldEmergencyID, emergencyID).Msg("failed to get chat history")

		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrStoreUnavailable) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, domain.NewErrorMessage("failed to fetch messages"))
		return
	}

	c.JSON(http.StatusOK, messages)
}

type participantsResponse struct {
	EmergencyID  string   `json:"emergencyId"`
	Participants []string `json:"participants"`
	Count        int      `json:"count"`
}

func (h *HTTPHandler) GetParticipants(c *gin.Context) {
	emergencyID := strings.TrimSpace(c.Param("emergencyId"))
	if emergencyID == "" {
		response.BadRequest(c, "emergencyId is required")
		return
	}

	ids := h.relay.Participants(emergencyID)
	response.Success(c, participantsResponse{
		EmergencyID:  emergencyID,
		Participants: ids,
		Count:        len(ids),
	})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			response.ServiceUnavailable(c, "message store unavailable")
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
