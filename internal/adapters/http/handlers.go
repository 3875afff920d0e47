package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/barkeep/voicelink/internal/bridge"
	"github.com/barkeep/voicelink/internal/core"
	"github.com/barkeep/voicelink/internal/protocol"
	"github.com/barkeep/voicelink/internal/session"
)

type sessionHandlers struct {
	ctrl  *session.Controller
	relay *bridge.Relay
}

type statusResponse struct {
	State       string          `json:"state"`
	Active      bool            `json:"active"`
	ActiveLinks int             `json:"active_ws_links"`
	AudioHealth *session.Report `json:"audio_health,omitempty"`
}

func (h *sessionHandlers) start(c *gin.Context) {
	if err := h.ctrl.Start(); err != nil {
		if errors.Is(err, session.ErrSessionBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"state": h.ctrl.State().String()})
}

func (h *sessionHandlers) stop(c *gin.Context) {
	h.ctrl.Stop()
	c.JSON(http.StatusOK, gin.H{"state": h.ctrl.State().String()})
}

// sendEvent forwards a caller-built protocol event to the live session.
func (h *sessionHandlers) sendEvent(c *gin.Context) {
	var ev protocol.ClientEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload"})
		return
	}
	if err := h.ctrl.SendEvent(ev); err != nil {
		if errors.Is(err, core.ErrChannelNotReady) {
			c.JSON(http.StatusConflict, gin.H{"error": "no active session"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

func (h *sessionHandlers) status(c *gin.Context) {
	resp := statusResponse{
		State:       h.ctrl.State().String(),
		Active:      h.ctrl.Active(),
		ActiveLinks: h.relay.ActiveLinks(),
	}
	if report, ok := h.ctrl.Health(); ok {
		resp.AudioHealth = &report
	}
	c.JSON(http.StatusOK, resp)
}
