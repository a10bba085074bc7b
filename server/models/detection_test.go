package models

import (
	"image"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]Label{
		"helmet":         LabelHelmet,
		"Helmet":         LabelHelmet,
		"with_helmet":    LabelHelmet,
		"no_helmet":      LabelNoHelmet,
		"No-Helmet":      LabelNoHelmet,
		"without helmet": LabelNoHelmet,
		"head":           LabelUnknown,
		"person":         LabelUnknown,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeLabel(raw), raw)
	}
}

func TestFrameStatisticsCountsMatch(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	labels := []Label{LabelHelmet, LabelNoHelmet, LabelUnknown}

	for i := 0; i < 200; i++ {
		n := rng.Intn(25)
		dets := make([]Detection, n)
		for j := range dets {
			dets[j] = Detection{
				Box:        image.Rect(0, 0, 10, 10),
				Confidence: rng.Float64(),
				Label:      labels[rng.Intn(len(labels))],
			}
		}
		stats := NewFrameStatistics(dets)
		require.Equal(t, n, stats.Total)
		require.Equal(t, stats.Total, stats.Helmet+stats.NoHelmet)
		require.Len(t, stats.Confidences, n)
	}
}

func TestFrameStatisticsEmpty(t *testing.T) {
	stats := NewFrameStatistics(nil)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.Helmet)
	assert.Zero(t, stats.NoHelmet)
	assert.Empty(t, stats.Confidences)
}

func TestSafetyRateBounds(t *testing.T) {
	for total := 0; total < 30; total++ {
		for helmet := 0; helmet <= total; helmet++ {
			rate := SafetyRate(helmet, total)
			assert.GreaterOrEqual(t, rate, 0.0)
			assert.LessOrEqual(t, rate, 100.0)
			if total == 0 {
				assert.Zero(t, rate)
			}
		}
	}
	assert.Equal(t, 100.0, SafetyRate(4, 4))
}

func TestRunSummaryFromCounts(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	empty := NewRunSummary("a", SourceImage, "empty.jpg", ts, 0, 0)
	assert.Equal(t, 0, empty.Total)
	assert.Equal(t, "0.0%", empty.SafetyRateString())

	mixed := NewRunSummary("b", SourceImage, "street.jpg", ts, 2, 1)
	assert.Equal(t, 3, mixed.Total)
	assert.Equal(t, mixed.Total, mixed.Helmet+mixed.NoHelmet)
	assert.Equal(t, "66.7%", mixed.SafetyRateString())

	video := NewRunSummary("c", SourceVideo, "clip.mp4", ts, 2, 1)
	assert.Equal(t, "66.67%", video.SafetyRateString())
}

func TestDetectionText(t *testing.T) {
	d := Detection{Box: image.Rect(1, 2, 3, 4), Confidence: 0.876, Label: LabelHelmet}
	assert.Equal(t, "helmet 0.88", d.Text())
	assert.Equal(t, BoxJSON{X1: 1, Y1: 2, X2: 3, Y2: 4}, d.BoxJSON())
}
