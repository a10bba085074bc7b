package handlers

import (
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/helmet-cv/server/models"
)

const apiVersion = "1.0.0"

var (
	imageExtensions = []string{".jpg", ".jpeg", ".png"}
	videoExtensions = []string{".mp4", ".mov", ".avi"}
)

func respond(c *gin.Context, status int, data any, start time.Time) {
	c.JSON(status, models.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta(start),
	})
}

func respondError(c *gin.Context, status int, code, message string, details map[string]any) {
	c.JSON(status, models.APIResponse{
		Success: false,
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: meta(time.Time{}),
	})
}

func meta(start time.Time) *models.ResponseMeta {
	m := &models.ResponseMeta{
		Timestamp: time.Now(),
		Version:   apiVersion,
	}
	if !start.IsZero() {
		m.ProcessingTime = float64(time.Since(start).Microseconds()) / 1000
	}
	return m
}

func hasExtension(filename string, allowed []string) bool {
	return slices.Contains(allowed, strings.ToLower(filepath.Ext(filename)))
}
