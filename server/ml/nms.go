package ml

import (
	"image"
	"math"
	"sort"

	"github.com/san-kum/helmet-cv/server/models"
)

func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

// NonMaxSuppression keeps the most confident box of every overlapping group
// of the same class. Boxes of different classes never suppress each other.
// The result is ordered by descending confidence.
func NonMaxSuppression(detections []models.Detection, overlap float64) []models.Detection {
	if len(detections) == 0 {
		return []models.Detection{}
	}

	sorted := make([]models.Detection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	keep := make([]models.Detection, 0, len(sorted))
	for _, current := range sorted {
		suppressed := false
		for _, kept := range keep {
			if kept.ClassID == current.ClassID && IoU(current.Box, kept.Box) > overlap {
				suppressed = true
				break
			}
		}
		if !suppressed {
			keep = append(keep, current)
		}
	}
	return keep
}

// clampBox converts corner coordinates to an integer rectangle inside
// bounds. ok is false when nothing of the box is left.
func clampBox(x1, y1, x2, y2 float64, bounds image.Rectangle) (image.Rectangle, bool) {
	rect := image.Rect(
		int(math.Round(x1)), int(math.Round(y1)),
		int(math.Round(x2)), int(math.Round(y2)),
	).Intersect(bounds)
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return image.Rectangle{}, false
	}
	return rect, true
}
