package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/san-kum/helmet-cv/server/annotate"
	"github.com/san-kum/helmet-cv/server/models"
	"go.uber.org/zap"
)

// RemoteDetector delegates inference to an HTTP model server. Each Detect is
// exactly one request; failures are returned to the caller as they are.
type RemoteDetector struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	config     *RemoteConfig
	stop       chan struct{}
	stopOnce   sync.Once
}

type RemoteConfig struct {
	Timeout             time.Duration
	HealthCheckInterval time.Duration
	JPEGQuality         int
}

func DefaultRemoteConfig() *RemoteConfig {
	return &RemoteConfig{
		Timeout:             30 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		JPEGQuality:         90,
	}
}

type DetectRequest struct {
	ImageData  []byte  `json:"image_data"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
	Overlap    float64 `json:"iou"`
	Timestamp  int64   `json:"timestamp"`
}

type DetectResponse struct {
	Detections     []RemoteDetection `json:"detections"`
	ProcessingTime float64           `json:"processing_time"`
	ModelVersion   string            `json:"model_version"`
}

type RemoteDetection struct {
	Class      string     `json:"class"`
	ClassID    int        `json:"class_id"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"`
}

func NewRemoteDetector(baseURL string, config *RemoteConfig, logger *zap.Logger) *RemoteDetector {
	if config == nil {
		config = DefaultRemoteConfig()
	}

	client := &RemoteDetector{
		baseURL: baseURL,
		logger:  logger,
		config:  config,
		stop:    make(chan struct{}),
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: true,
			},
		},
	}

	if err := client.HealthCheck(context.Background()); err != nil {
		logger.Warn("Model server not available at startup", zap.Error(err))
	}

	if config.HealthCheckInterval > 0 {
		go client.startHealthChecker()
	}

	return client
}

func (c *RemoteDetector) Detect(ctx context.Context, img image.Image, th models.Thresholds) ([]models.Detection, error) {
	encoded, err := annotate.EncodeJPEG(img, c.config.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	bounds := img.Bounds()
	request := &DetectRequest{
		ImageData:  encoded,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Confidence: th.Confidence,
		Overlap:    th.Overlap,
		Timestamp:  time.Now().UnixMilli(),
	}

	requestData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/detect", c.baseURL)
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("User-Agent", "helmet-cv/1.0")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return nil, fmt.Errorf("model server error (status %d): %s",
			response.StatusCode, string(bodyBytes))
	}

	var detectResponse DetectResponse
	if err := json.NewDecoder(response.Body).Decode(&detectResponse); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return convertRemote(detectResponse.Detections, th, bounds), nil
}

// convertRemote keeps remote boxes that pass the confidence threshold and
// fit inside bounds once clamped.
func convertRemote(remote []RemoteDetection, th models.Thresholds, bounds image.Rectangle) []models.Detection {
	detections := make([]models.Detection, 0, len(remote))
	for _, r := range remote {
		if r.Confidence < th.Confidence {
			continue
		}
		box, ok := clampBox(
			r.Box[0]+float64(bounds.Min.X), r.Box[1]+float64(bounds.Min.Y),
			r.Box[2]+float64(bounds.Min.X), r.Box[3]+float64(bounds.Min.Y),
			bounds)
		if !ok {
			continue
		}
		detections = append(detections, models.Detection{
			Box:        box,
			Confidence: r.Confidence,
			ClassID:    r.ClassID,
			Label:      models.NormalizeLabel(r.Class),
		})
	}
	return detections
}

func (c *RemoteDetector) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", c.baseURL)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("model server unhealthy (status %d)", response.StatusCode)
	}

	return nil
}

func (c *RemoteDetector) startHealthChecker() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.HealthCheck(context.Background()); err != nil {
				c.logger.Error("Model server health check failed", zap.Error(err))
			} else {
				c.logger.Debug("Model server health check passed")
			}
		case <-c.stop:
			return
		}
	}
}

func (c *RemoteDetector) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}
