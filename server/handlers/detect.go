package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/san-kum/helmet-cv/server/annotate"
	"github.com/san-kum/helmet-cv/server/middleware"
	"github.com/san-kum/helmet-cv/server/models"
	"github.com/san-kum/helmet-cv/server/processor"
	"go.uber.org/zap"
)

type DetectConfig struct {
	UploadDir    string
	VideoTimeout time.Duration
	JPEGQuality  int
}

// DetectHandler serves the image and video upload endpoints. Both run
// synchronously and record their summary in the caller's session.
type DetectHandler struct {
	processor *processor.FrameProcessor
	config    DetectConfig
	logger    *zap.Logger
}

func NewDetectHandler(fp *processor.FrameProcessor, config DetectConfig, logger *zap.Logger) *DetectHandler {
	if config.JPEGQuality <= 0 {
		config.JPEGQuality = annotate.DefaultJPEGQuality
	}
	return &DetectHandler{
		processor: fp,
		config:    config,
		logger:    logger,
	}
}

func (h *DetectHandler) DetectImage(c *gin.Context) {
	start := time.Now()
	sess := middleware.CurrentSession(c)
	if sess == nil {
		respondError(c, http.StatusInternalServerError, "NO_SESSION", "Session not available", nil)
		return
	}

	file, header, ok := h.formFile(c, imageExtensions)
	if !ok {
		return
	}
	defer file.Close()

	img, err := imaging.Decode(file, imaging.AutoOrientation(true))
	if err != nil {
		h.logger.Warn("Failed to decode uploaded image", zap.String("filename", header.Filename), zap.Error(err))
		respondError(c, http.StatusBadRequest, "INVALID_IMAGE", "Could not decode image", nil)
		return
	}

	outcome, err := h.processor.ProcessImage(c.Request.Context(), sess, img, header.Filename, sess.Thresholds())
	if err != nil {
		h.logger.Info("Image request cancelled", zap.String("session_id", sess.ID), zap.Error(err))
		respondError(c, http.StatusServiceUnavailable, "CANCELLED", "Request cancelled", nil)
		return
	}

	url, err := annotate.DataURL(outcome.Annotated, h.config.JPEGQuality)
	if err != nil {
		h.logger.Error("Failed to encode annotated image", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "ENCODE_FAILED", "Failed to encode result image", nil)
		return
	}

	result := models.ImageResult{
		Image:      url,
		Detections: models.DetectionsJSON(outcome.Detections),
		Stats:      outcome.Stats,
		Summary:    outcome.Summary,
		SafetyRate: outcome.Summary.SafetyRateString(),
	}
	if outcome.Err != nil {
		result.Error = "Detection failed: " + outcome.Err.Error()
	}
	respond(c, http.StatusOK, result, start)
}

func (h *DetectHandler) DetectVideo(c *gin.Context) {
	start := time.Now()
	sess := middleware.CurrentSession(c)
	if sess == nil {
		respondError(c, http.StatusInternalServerError, "NO_SESSION", "Session not available", nil)
		return
	}

	file, header, ok := h.formFile(c, videoExtensions)
	if !ok {
		return
	}
	path, err := h.saveUpload(file, filepath.Ext(header.Filename))
	file.Close()
	if err != nil {
		h.logger.Error("Failed to store uploaded video", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to store uploaded file", nil)
		return
	}
	defer h.removeUpload(path)

	ctx := c.Request.Context()
	if h.config.VideoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.VideoTimeout)
		defer cancel()
	}

	summary, err := h.processor.ProcessVideo(ctx, sess, path, header.Filename, sess.Thresholds())
	switch {
	case errors.Is(err, processor.ErrOpenVideo):
		respondError(c, http.StatusUnprocessableEntity, "OPEN_FAILED", "Failed to open video file", nil)
		return
	case errors.Is(err, context.DeadlineExceeded):
		respondError(c, http.StatusGatewayTimeout, "TIMEOUT", "Video processing timed out", nil)
		return
	case err != nil:
		respondError(c, http.StatusServiceUnavailable, "CANCELLED", "Request cancelled", nil)
		return
	}

	respond(c, http.StatusOK, models.VideoResult{
		Summary:    summary,
		SafetyRate: summary.SafetyRateString(),
		Elapsed:    time.Since(start).Seconds(),
	}, start)
}

// formFile pulls the "file" part and checks its extension. On failure the
// error response has already been written.
func (h *DetectHandler) formFile(c *gin.Context, allowed []string) (multipart.File, *multipart.FileHeader, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Uploaded file is too large",
				map[string]any{"limit": tooLarge.Limit})
			return nil, nil, false
		}
		h.logger.Debug("No file in upload", zap.Error(err))
		respondError(c, http.StatusBadRequest, "NO_FILE", "No file uploaded", nil)
		return nil, nil, false
	}

	if !hasExtension(header.Filename, allowed) {
		file.Close()
		respondError(c, http.StatusBadRequest, "INVALID_FILE_TYPE", "Invalid file type",
			map[string]any{"allowed": allowed})
		return nil, nil, false
	}
	return file, header, true
}

func (h *DetectHandler) saveUpload(src io.Reader, ext string) (string, error) {
	tmp, err := os.CreateTemp(h.config.UploadDir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return tmp.Name(), nil
}

func (h *DetectHandler) removeUpload(path string) {
	if err := os.Remove(path); err != nil {
		h.logger.Debug("Failed to remove temp file", zap.String("path", path), zap.Error(err))
	}
}
