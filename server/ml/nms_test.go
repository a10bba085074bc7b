package ml

import (
	"image"
	"testing"

	"github.com/san-kum/helmet-cv/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func det(classID int, conf float64, x1, y1, x2, y2 int) models.Detection {
	return models.Detection{
		Box:        image.Rect(x1, y1, x2, y2),
		Confidence: conf,
		ClassID:    classID,
		Label:      DefaultClassNames.Label(classID),
	}
}

func TestIoU(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)

	assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
	assert.Equal(t, 0.0, IoU(a, image.Rect(20, 20, 30, 30)))
	assert.InDelta(t, 50.0/150.0, IoU(a, image.Rect(5, 0, 15, 10)), 1e-9)
	assert.Equal(t, 0.0, IoU(image.Rectangle{}, image.Rectangle{}))
}

func TestNonMaxSuppression(t *testing.T) {
	tests := []struct {
		name    string
		input   []models.Detection
		overlap float64
		want    []float64
	}{
		{
			name:    "empty",
			input:   nil,
			overlap: 0.4,
			want:    []float64{},
		},
		{
			name: "same class overlapping keeps best",
			input: []models.Detection{
				det(0, 0.6, 0, 0, 100, 100),
				det(0, 0.9, 5, 5, 105, 105),
			},
			overlap: 0.4,
			want:    []float64{0.9},
		},
		{
			name: "different classes are kept",
			input: []models.Detection{
				det(0, 0.6, 0, 0, 100, 100),
				det(1, 0.9, 5, 5, 105, 105),
			},
			overlap: 0.4,
			want:    []float64{0.9, 0.6},
		},
		{
			name: "below overlap threshold kept",
			input: []models.Detection{
				det(0, 0.8, 0, 0, 100, 100),
				det(0, 0.7, 60, 0, 160, 100),
			},
			overlap: 0.4,
			want:    []float64{0.8, 0.7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NonMaxSuppression(tt.input, tt.overlap)
			confs := make([]float64, 0, len(got))
			for _, d := range got {
				confs = append(confs, d.Confidence)
			}
			assert.Equal(t, tt.want, confs)
		})
	}
}

func TestNonMaxSuppressionDoesNotReorderInput(t *testing.T) {
	input := []models.Detection{det(0, 0.1, 0, 0, 10, 10), det(0, 0.9, 50, 50, 60, 60)}
	NonMaxSuppression(input, 0.5)
	assert.Equal(t, 0.1, input[0].Confidence)
}

func TestClampBox(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 50)

	box, ok := clampBox(-10, -5, 40.4, 70, bounds)
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 40, 50), box)

	_, ok = clampBox(120, 10, 150, 20, bounds)
	assert.False(t, ok)

	_, ok = clampBox(10, 10, 10, 20, bounds)
	assert.False(t, ok)
}

func TestAnchorCount(t *testing.T) {
	assert.Equal(t, 8400, anchorCount(640, 640))
}

// output builds a feature-major [1, 4+nc, anchors] buffer.
func output(anchors [][]float32) ([]float32, int, int) {
	features := len(anchors[0])
	n := len(anchors)
	data := make([]float32, features*n)
	for i, a := range anchors {
		for f, v := range a {
			data[f*n+i] = v
		}
	}
	return data, features, n
}

func TestDecodeOutput(t *testing.T) {
	data, features, n := output([][]float32{
		{100, 100, 40, 40, 0.9, 0.1},  // helmet
		{300, 200, 20, 60, 0.2, 0.7},  // no_helmet
		{50, 50, 10, 10, 0.3, 0.2},    // below threshold
		{700, 700, 10, 10, 0.95, 0.0}, // outside image
		{0, 0, 20, 20, 0.8, 0.0},      // partly outside
	})

	bounds := image.Rect(0, 0, 1280, 720)
	got := decodeOutput(data, features, n, DefaultClassNames, 0.5, 2.0, 1.125, bounds)
	require.Len(t, got, 3)

	assert.Equal(t, models.LabelHelmet, got[0].Label)
	assert.Equal(t, image.Rect(160, 90, 240, 135), got[0].Box)
	assert.InDelta(t, 0.9, got[0].Confidence, 1e-6)

	assert.Equal(t, models.LabelNoHelmet, got[1].Label)
	assert.Equal(t, 1, got[1].ClassID)

	assert.Equal(t, image.Rect(0, 0, 20, 11), got[2].Box)
}

func TestDecodeOutputMalformed(t *testing.T) {
	assert.Empty(t, decodeOutput([]float32{1, 2, 3}, 4, 1, DefaultClassNames, 0.5, 1, 1, image.Rect(0, 0, 10, 10)))
	assert.Empty(t, decodeOutput([]float32{1, 2}, 6, 10, DefaultClassNames, 0.5, 1, 1, image.Rect(0, 0, 10, 10)))
}
