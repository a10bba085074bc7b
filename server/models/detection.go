package models

import (
	"fmt"
	"image"
	"math"
	"strings"
	"time"
)

type Label string

const (
	LabelHelmet   Label = "helmet"
	LabelNoHelmet Label = "no_helmet"
	LabelUnknown  Label = "unknown"
)

// NormalizeLabel maps a raw model class name onto the canonical label set.
// Negative forms are checked first so "no-helmet" and "without_helmet" do
// not match the helmet rule.
func NormalizeLabel(raw string) Label {
	name := strings.ToLower(raw)
	switch {
	case strings.Contains(name, "no") || strings.Contains(name, "without"):
		return LabelNoHelmet
	case strings.Contains(name, "helmet") || strings.Contains(name, "with"):
		return LabelHelmet
	default:
		return LabelUnknown
	}
}

type Detection struct {
	Box        image.Rectangle `json:"-"`
	Confidence float64         `json:"confidence"`
	ClassID    int             `json:"class_id"`
	Label      Label           `json:"label"`
}

type BoxJSON struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (d Detection) BoxJSON() BoxJSON {
	return BoxJSON{X1: d.Box.Min.X, Y1: d.Box.Min.Y, X2: d.Box.Max.X, Y2: d.Box.Max.Y}
}

func (d Detection) Text() string {
	return fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
}

// FrameStatistics is derived from one frame's detections and is not mutated
// afterwards. Anything that is not a helmet counts as no_helmet so that
// Total == Helmet + NoHelmet always holds.
type FrameStatistics struct {
	Total       int       `json:"total"`
	Helmet      int       `json:"helmet"`
	NoHelmet    int       `json:"no_helmet"`
	Confidences []float64 `json:"confidences"`
}

func NewFrameStatistics(detections []Detection) FrameStatistics {
	stats := FrameStatistics{Confidences: make([]float64, 0, len(detections))}
	for _, d := range detections {
		stats.Total++
		if d.Label == LabelHelmet {
			stats.Helmet++
		} else {
			stats.NoHelmet++
		}
		stats.Confidences = append(stats.Confidences, d.Confidence)
	}
	return stats
}

type SourceType string

const (
	SourceImage SourceType = "image"
	SourceVideo SourceType = "video"
)

type RunSummary struct {
	ID             string        `json:"id"`
	Source         SourceType    `json:"source"`
	Filename       string        `json:"filename"`
	Timestamp      time.Time     `json:"timestamp"`
	Total          int           `json:"total"`
	Helmet         int           `json:"helmet"`
	NoHelmet       int           `json:"no_helmet"`
	SafetyRate     float64       `json:"safety_rate"`
	SampledFrames  int           `json:"sampled_frames,omitempty"`
	TotalFrames    int           `json:"total_frames,omitempty"`
	AvgFPS         float64       `json:"avg_fps,omitempty"`
	ProcessingTime time.Duration `json:"processing_time_ns,omitempty"`
}

// SafetyRate returns helmet/total as a percentage, or 0 when nothing was
// detected.
func SafetyRate(helmet, total int) float64 {
	if total <= 0 {
		return 0
	}
	rate := float64(helmet) / float64(total) * 100
	return math.Max(0, math.Min(100, rate))
}

// NewRunSummary fills the derived fields (Total, SafetyRate) from the
// helmet / no-helmet counts.
func NewRunSummary(id string, source SourceType, filename string, ts time.Time, helmet, noHelmet int) RunSummary {
	total := helmet + noHelmet
	return RunSummary{
		ID:         id,
		Source:     source,
		Filename:   filename,
		Timestamp:  ts,
		Total:      total,
		Helmet:     helmet,
		NoHelmet:   noHelmet,
		SafetyRate: SafetyRate(helmet, total),
	}
}

// SafetyRateString renders the rate the way the page shows it: one decimal
// for images, two for videos.
func (r RunSummary) SafetyRateString() string {
	if r.Source == SourceVideo {
		return fmt.Sprintf("%.2f%%", r.SafetyRate)
	}
	return fmt.Sprintf("%.1f%%", r.SafetyRate)
}

type Thresholds struct {
	Confidence float64 `json:"confidence"`
	Overlap    float64 `json:"overlap"`
}

type DetectionJSON struct {
	Label      Label   `json:"label"`
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	Box        BoxJSON `json:"box"`
}

func DetectionsJSON(detections []Detection) []DetectionJSON {
	out := make([]DetectionJSON, 0, len(detections))
	for _, d := range detections {
		out = append(out, DetectionJSON{
			Label:      d.Label,
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
			Box:        d.BoxJSON(),
		})
	}
	return out
}
