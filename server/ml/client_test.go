package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	_ "image/jpeg"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/san-kum/helmet-cv/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRemote(t *testing.T, handler http.HandlerFunc) *RemoteDetector {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := DefaultRemoteConfig()
	config.HealthCheckInterval = 0
	config.Timeout = 5 * time.Second
	client := NewRemoteDetector(server.URL, config, zap.NewNop())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRemoteDetect(t *testing.T) {
	var received DetectRequest
	client := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		assert.Equal(t, "/detect", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		json.NewEncoder(w).Encode(DetectResponse{
			Detections: []RemoteDetection{
				{Class: "helmet", ClassID: 0, Confidence: 0.9, Box: [4]float64{10, 10, 50, 50}},
				{Class: "no_helmet", ClassID: 1, Confidence: 0.3, Box: [4]float64{60, 60, 90, 90}},
				{Class: "Without Helmet", ClassID: 1, Confidence: 0.8, Box: [4]float64{70, 10, 200, 40}},
			},
		})
	})

	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	got, err := client.Detect(context.Background(), img, models.Thresholds{Confidence: 0.5, Overlap: 0.4})
	require.NoError(t, err)

	assert.Equal(t, 0.5, received.Confidence)
	assert.Equal(t, 0.4, received.Overlap)
	assert.Equal(t, 100, received.Width)
	require.NotEmpty(t, received.ImageData)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(received.ImageData))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 80, cfg.Height)

	require.Len(t, got, 2)
	assert.Equal(t, models.LabelHelmet, got[0].Label)
	assert.Equal(t, image.Rect(10, 10, 50, 50), got[0].Box)
	assert.Equal(t, models.LabelNoHelmet, got[1].Label)
	assert.Equal(t, image.Rect(70, 10, 100, 40), got[1].Box)
}

func TestRemoteDetectErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		calls.Add(1)
		http.Error(w, "model crashed", http.StatusInternalServerError)
	})

	_, err := client.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)), models.Thresholds{Confidence: 0.5, Overlap: 0.4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRemoteHealthCheck(t *testing.T) {
	client := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	assert.Error(t, client.HealthCheck(context.Background()))
	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}
