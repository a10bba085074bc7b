package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Detector  DetectorConfig  `json:"detector"`
	Video     VideoConfig     `json:"video"`
	Detection DetectionConfig `json:"detection"`
	Session   SessionConfig   `json:"session"`
	Security  SecurityConfig  `json:"security"`
	Logging   LoggingConfig   `json:"logging"`
}

type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Environment  string        `json:"environment"`
	StaticDir    string        `json:"static_dir"`
}

type DetectorConfig struct {
	Backend             string        `json:"backend"`
	ModelPath           string        `json:"model_path"`
	LibraryPath         string        `json:"library_path"`
	ClassesPath         string        `json:"classes_path"`
	InputWidth          int           `json:"input_width"`
	InputHeight         int           `json:"input_height"`
	Threads             int           `json:"threads"`
	RemoteURL           string        `json:"remote_url"`
	Timeout             time.Duration `json:"timeout"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	Workers             int           `json:"workers"`
	QueueSize           int           `json:"queue_size"`
}

type VideoConfig struct {
	Stride         int           `json:"stride"`
	FrameWidth     int           `json:"frame_width"`
	FrameHeight    int           `json:"frame_height"`
	RedrawInterval time.Duration `json:"redraw_interval"`
	JPEGQuality    int           `json:"jpeg_quality"`
	UploadDir      string        `json:"upload_dir"`
	Timeout        time.Duration `json:"timeout"`
}

type DetectionConfig struct {
	Confidence float64 `json:"confidence"`
	Overlap    float64 `json:"overlap"`
}

type SessionConfig struct {
	MaxSessions     int           `json:"max_sessions"`
	TTL             time.Duration `json:"ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
	HubBuffer       int           `json:"hub_buffer"`
	CookieName      string        `json:"cookie_name"`
	CookieSecure    bool          `json:"cookie_secure"`
}

type SecurityConfig struct {
	AllowedOrigins []string      `json:"allowed_origins"`
	RateLimitRPS   int           `json:"rate_limit_rps"`
	RateLimitBurst int           `json:"rate_limit_burst"`
	MaxRequestSize int64         `json:"max_request_size"`
	MaxUploadSize  int64         `json:"max_upload_size"`
	RequestTimeout time.Duration `json:"request_timeout"`
	EnableHTTPS    bool          `json:"enable_https"`
	CertFile       string        `json:"cert_file"`
	KeyFile        string        `json:"key_file"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Output     string `json:"output"`
	MaxSize    int    `json:"max_size"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`
}

// LoadEnvFiles loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

func LoadConfig() *Config {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 60*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Minute),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
			StaticDir:    getEnv("STATIC_DIR", "./client"),
		},
		Detector: DetectorConfig{
			Backend:             getEnv("DETECTOR_BACKEND", BackendONNX),
			ModelPath:           getEnv("MODEL_PATH", "models/helmet.onnx"),
			LibraryPath:         getEnv("ONNXRUNTIME_LIB", ""),
			ClassesPath:         getEnv("MODEL_CLASSES", "models/classes.yaml"),
			InputWidth:          getEnvAsInt("MODEL_INPUT_WIDTH", 640),
			InputHeight:         getEnvAsInt("MODEL_INPUT_HEIGHT", 640),
			Threads:             getEnvAsInt("MODEL_THREADS", 0),
			RemoteURL:           getEnv("ML_BASE_URL", "http://localhost:5000"),
			Timeout:             getEnvAsDuration("ML_TIMEOUT", 30*time.Second),
			HealthCheckInterval: getEnvAsDuration("ML_HEALTH_CHECK_INTERVAL", 30*time.Second),
			Workers:             getEnvAsInt("DETECTOR_WORKERS", 2),
			QueueSize:           getEnvAsInt("DETECTOR_QUEUE_SIZE", 32),
		},
		Video: VideoConfig{
			Stride:         getEnvAsInt("VIDEO_FRAME_STRIDE", 5),
			FrameWidth:     getEnvAsInt("VIDEO_FRAME_WIDTH", 640),
			FrameHeight:    getEnvAsInt("VIDEO_FRAME_HEIGHT", 360),
			RedrawInterval: getEnvAsDuration("VIDEO_REDRAW_INTERVAL", 300*time.Millisecond),
			JPEGQuality:    getEnvAsInt("PREVIEW_JPEG_QUALITY", 80),
			UploadDir:      getEnv("UPLOAD_DIR", os.TempDir()),
			Timeout:        getEnvAsDuration("VIDEO_TIMEOUT", 10*time.Minute),
		},
		Detection: DetectionConfig{
			Confidence: getEnvAsFloat("DEFAULT_CONFIDENCE", 0.5),
			Overlap:    getEnvAsFloat("DEFAULT_IOU", 0.4),
		},
		Session: SessionConfig{
			MaxSessions:     getEnvAsInt("SESSION_MAX", 1000),
			TTL:             getEnvAsDuration("SESSION_TTL", 2*time.Hour),
			CleanupInterval: getEnvAsDuration("SESSION_CLEANUP_INTERVAL", time.Minute),
			HubBuffer:       getEnvAsInt("SESSION_HUB_BUFFER", 64),
			CookieName:      getEnv("SESSION_COOKIE", "helmet_session"),
			CookieSecure:    getEnvAsBool("SESSION_COOKIE_SECURE", false),
		},
		Security: SecurityConfig{
			AllowedOrigins: getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
			RateLimitRPS:   getEnvAsInt("RATE_LIMIT_RPS", 20),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 40),
			MaxRequestSize: getEnvAsInt64("MAX_REQUEST_SIZE", 10*1024*1024),  // 10MB
			MaxUploadSize:  getEnvAsInt64("MAX_UPLOAD_SIZE", 200*1024*1024), // 200MB
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
			EnableHTTPS:    getEnvAsBool("ENABLE_HTTPS", false),
			CertFile:       getEnv("CERT_FILE", ""),
			KeyFile:        getEnv("KEY_FILE", ""),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			MaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
			MaxAge:     getEnvAsInt("LOG_MAX_AGE", 28),
		},
	}

	return config
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) ValidateConfig(logger *zap.Logger) error {
	var errors []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "server port must be between 1 and 65535")
	}

	switch c.Detector.Backend {
	case BackendONNX:
		if c.Detector.ModelPath == "" {
			errors = append(errors, "model path is required for the onnx backend")
		}
	case BackendRemote:
		if c.Detector.RemoteURL == "" {
			errors = append(errors, "ML base URL is required for the remote backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("unknown detector backend %q", c.Detector.Backend))
	}

	if c.Detector.Workers < 1 {
		errors = append(errors, "detector workers must be at least 1")
	}

	if c.Video.Stride < 1 {
		errors = append(errors, "video frame stride must be at least 1")
	}

	if c.Video.JPEGQuality < 1 || c.Video.JPEGQuality > 100 {
		errors = append(errors, "preview JPEG quality must be between 1 and 100")
	}

	if !inUnitInterval(c.Detection.Confidence) {
		errors = append(errors, "default confidence must be in (0, 1]")
	}

	if !inUnitInterval(c.Detection.Overlap) {
		errors = append(errors, "default IoU must be in (0, 1]")
	}

	if c.Session.MaxSessions < 1 {
		errors = append(errors, "session max must be at least 1")
	}

	if c.Security.MaxRequestSize <= 0 || c.Security.MaxUploadSize <= 0 {
		errors = append(errors, "request and upload size limits must be positive")
	}

	if c.Security.EnableHTTPS && (c.Security.CertFile == "" || c.Security.KeyFile == "") {
		errors = append(errors, "cert and key files are required when HTTPS is enabled")
	}

	if c.Server.WriteTimeout < c.Video.Timeout {
		logger.Warn("Server write timeout is shorter than the video timeout, long videos may be cut off",
			zap.Duration("write_timeout", c.Server.WriteTimeout),
			zap.Duration("video_timeout", c.Video.Timeout))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, ", "))
	}

	return nil
}

func inUnitInterval(v float64) bool {
	return v > 0 && v <= 1
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
