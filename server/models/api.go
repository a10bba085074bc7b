package models

import "time"

type APIResponse struct {
	Success bool          `json:"success"`
	Data    any           `json:"data"`
	Error   *APIError     `json:"error"`
	Meta    *ResponseMeta `json:"meta"`
}

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ResponseMeta struct {
	RequestID      string    `json:"request_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	ProcessingTime float64   `json:"processing_time_ms"`
	Version        string    `json:"version"`
}

// ImageResult is returned by the image detection endpoint.
type ImageResult struct {
	Image      string          `json:"image"`
	Detections []DetectionJSON `json:"detections"`
	Stats      FrameStatistics `json:"stats"`
	Summary    RunSummary      `json:"summary"`
	SafetyRate string          `json:"safety_rate"`
	// Error is set when the detector call failed and the image was
	// recorded with zero detections.
	Error string `json:"error,omitempty"`
}

// VideoResult is returned by the video detection endpoint once the whole
// file has been processed.
type VideoResult struct {
	Summary    RunSummary `json:"summary"`
	SafetyRate string     `json:"safety_rate"`
	Elapsed    float64    `json:"elapsed_seconds"`
}

// Progress is pushed to the page while a video is being processed.
type Progress struct {
	Frame       int     `json:"frame"`
	TotalFrames int     `json:"total_frames"`
	Percent     float64 `json:"percent"`
	Sampled     int     `json:"sampled"`
	Helmet      int     `json:"helmet"`
	NoHelmet    int     `json:"no_helmet"`
	FPS         float64 `json:"fps"`
}

// Preview carries one annotated frame as a data URL.
type Preview struct {
	Frame int    `json:"frame"`
	Image string `json:"image"`
}
