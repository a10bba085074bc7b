package ml

import (
	"image"

	"github.com/san-kum/helmet-cv/server/models"
)

// anchorCount is the number of predictions a YOLOv8-style head emits for a
// width x height input (strides 8, 16 and 32).
func anchorCount(width, height int) int {
	total := 0
	for _, stride := range []int{8, 16, 32} {
		total += (width / stride) * (height / stride)
	}
	return total
}

// decodeOutput parses a [1, 4+nc, anchors] tensor laid out feature-major.
// Each anchor holds cx, cy, w, h in model-input pixels followed by one score
// per class. Boxes are scaled by scaleX/scaleY, shifted into bounds and
// clamped to it.
func decodeOutput(data []float32, features, anchors int, classes ClassNames, confidence, scaleX, scaleY float64, bounds image.Rectangle) []models.Detection {
	numClasses := features - 4
	if numClasses <= 0 || len(data) < features*anchors {
		return []models.Detection{}
	}

	detections := make([]models.Detection, 0, 32)
	for i := 0; i < anchors; i++ {
		bestID := -1
		var bestScore float32
		for c := 0; c < numClasses; c++ {
			score := data[(4+c)*anchors+i]
			if score > bestScore {
				bestScore = score
				bestID = c
			}
		}
		if bestID < 0 || float64(bestScore) < confidence {
			continue
		}

		cx := float64(data[0*anchors+i])
		cy := float64(data[1*anchors+i])
		w := float64(data[2*anchors+i])
		h := float64(data[3*anchors+i])

		x1 := (cx-w/2)*scaleX + float64(bounds.Min.X)
		y1 := (cy-h/2)*scaleY + float64(bounds.Min.Y)
		x2 := (cx+w/2)*scaleX + float64(bounds.Min.X)
		y2 := (cy+h/2)*scaleY + float64(bounds.Min.Y)

		box, ok := clampBox(x1, y1, x2, y2, bounds)
		if !ok {
			continue
		}

		detections = append(detections, models.Detection{
			Box:        box,
			Confidence: float64(bestScore),
			ClassID:    bestID,
			Label:      classes.Label(bestID),
		})
	}
	return detections
}
