package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/san-kum/helmet-cv/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveInference(t *testing.T) {
	m := New()

	m.ObserveInference(20*time.Millisecond, nil)
	m.ObserveInference(30*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.InferenceErrors))
	assert.Equal(t, 1, testutil.CollectAndCount(m.InferenceDuration))
}

func TestObserveDetections(t *testing.T) {
	m := New()
	m.ObserveDetections(models.FrameStatistics{Total: 5, Helmet: 3, NoHelmet: 2})
	m.ObserveDetections(models.FrameStatistics{})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Detections.WithLabelValues("helmet")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Detections.WithLabelValues("no_helmet")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ImagesProcessed.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "helmet_images_processed_total 1")
}
