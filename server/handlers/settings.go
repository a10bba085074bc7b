package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/helmet-cv/server/middleware"
	"github.com/san-kum/helmet-cv/server/models"
	"github.com/san-kum/helmet-cv/server/session"
	"go.uber.org/zap"
)

type SettingsHandler struct {
	logger *zap.Logger
}

func NewSettingsHandler(logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{logger: logger}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	start := time.Now()
	sess := middleware.CurrentSession(c)
	if sess == nil {
		respondError(c, http.StatusInternalServerError, "NO_SESSION", "Session not available", nil)
		return
	}
	respond(c, http.StatusOK, sess.Thresholds(), start)
}

func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	start := time.Now()
	sess := middleware.CurrentSession(c)
	if sess == nil {
		respondError(c, http.StatusInternalServerError, "NO_SESSION", "Session not available", nil)
		return
	}

	var th models.Thresholds
	if err := c.ShouldBindJSON(&th); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", nil)
		return
	}
	if err := sess.SetThresholds(th); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_THRESHOLD", err.Error(), nil)
		return
	}

	h.logger.Debug("Thresholds updated",
		zap.String("session_id", sess.ID),
		zap.Float64("confidence", th.Confidence),
		zap.Float64("overlap", th.Overlap))
	sess.Hub.Publish(session.Event{Type: session.EventStatus, Data: "Settings updated"})
	respond(c, http.StatusOK, th, start)
}
