package ml

import (
	"context"
	"errors"
	"image"

	"github.com/san-kum/helmet-cv/server/models"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("detector pool is shut down")

// Detector finds helmet / no-helmet boxes in one image. Boxes are returned in
// the coordinate space of img.Bounds().
type Detector interface {
	Detect(ctx context.Context, img image.Image, th models.Thresholds) ([]models.Detection, error)
}

// DetectorFunc adapts a plain function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image, th models.Thresholds) ([]models.Detection, error)

func (f DetectorFunc) Detect(ctx context.Context, img image.Image, th models.Thresholds) ([]models.Detection, error) {
	return f(ctx, img, th)
}

// DetectOrEmpty runs one detection call. A failed call is logged and yields
// an empty list so the caller can keep going with the next frame.
func DetectOrEmpty(ctx context.Context, detector Detector, img image.Image, th models.Thresholds, logger *zap.Logger) ([]models.Detection, error) {
	detections, err := detector.Detect(ctx, img, th)
	if err != nil {
		logger.Warn("Detection failed", zap.Error(err))
		return []models.Detection{}, err
	}
	if detections == nil {
		detections = []models.Detection{}
	}
	return detections, nil
}
