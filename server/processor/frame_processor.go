package processor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/san-kum/helmet-cv/server/annotate"
	"github.com/san-kum/helmet-cv/server/metrics"
	"github.com/san-kum/helmet-cv/server/ml"
	"github.com/san-kum/helmet-cv/server/models"
	"github.com/san-kum/helmet-cv/server/session"
	"go.uber.org/zap"
)

type ProcessorConfig struct {
	Stride         int
	FrameWidth     int
	FrameHeight    int
	RedrawInterval time.Duration
	JPEGQuality    int
}

func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		Stride:         5,
		FrameWidth:     640,
		FrameHeight:    360,
		RedrawInterval: 300 * time.Millisecond,
		JPEGQuality:    annotate.DefaultJPEGQuality,
	}
}

// FrameProcessor runs the detector over uploaded images and videos and
// records one RunSummary per run in the caller's session.
type FrameProcessor struct {
	detector ml.Detector
	opener   Opener
	config   *ProcessorConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// ImageOutcome is the result of one image run.
type ImageOutcome struct {
	Annotated  *image.RGBA
	Detections []models.Detection
	Stats      models.FrameStatistics
	Summary    models.RunSummary
	Err        error
}

func NewFrameProcessor(detector ml.Detector, opener Opener, config *ProcessorConfig, m *metrics.Metrics, logger *zap.Logger) *FrameProcessor {
	if config == nil {
		config = DefaultProcessorConfig()
	}
	if opener == nil {
		opener = OpenVidio
	}
	return &FrameProcessor{
		detector: detector,
		opener:   opener,
		config:   config,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the wall clock used for timing and throttling.
func (fp *FrameProcessor) WithClock(now func() time.Time) *FrameProcessor {
	fp.now = now
	return fp
}

// ProcessImage makes exactly one detector call. A failed call is reported
// through the session hub and ImageOutcome.Err, and the run is still
// recorded with zero detections.
func (fp *FrameProcessor) ProcessImage(ctx context.Context, sess *session.Session, img image.Image, filename string, th models.Thresholds) (*ImageOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	detections, detectErr := fp.detect(ctx, sess, img, th)
	if errors.Is(detectErr, context.Canceled) {
		return nil, detectErr
	}

	annotated, frameStats := annotate.Annotate(img, detections, nil)
	fp.metrics.ImagesProcessed.Inc()
	fp.metrics.ObserveDetections(frameStats)

	summary := models.NewRunSummary(uuid.NewString(), models.SourceImage, filename, fp.now(), frameStats.Helmet, frameStats.NoHelmet)
	sess.Report.Append(summary)

	fp.logger.Info("Image processed",
		zap.String("session_id", sess.ID),
		zap.String("filename", filename),
		zap.Int("helmet", summary.Helmet),
		zap.Int("no_helmet", summary.NoHelmet))

	return &ImageOutcome{
		Annotated:  annotated,
		Detections: detections,
		Stats:      frameStats,
		Summary:    summary,
		Err:        detectErr,
	}, nil
}

// ProcessVideo walks every frame of the video at path. Sampled frames are
// resized, detected, annotated and pushed to the session hub; the rest only
// advance progress. One frame is read ahead so the final frame is known
// without trusting the container's frame count.
//
// An open failure returns ErrOpenVideo and leaves the report unchanged. A
// cancelled ctx stops the run without recording a summary. A read error
// ends the stream early and the frames read so far are summarized.
func (fp *FrameProcessor) ProcessVideo(ctx context.Context, sess *session.Session, path, filename string, th models.Thresholds) (models.RunSummary, error) {
	source, err := fp.opener(path)
	if err != nil {
		fp.metrics.VideosProcessed.WithLabelValues("open_failed").Inc()
		sess.Hub.Publish(session.Event{Type: session.EventError, Data: "Failed to open video file"})
		if !errors.Is(err, ErrOpenVideo) {
			err = fmt.Errorf("%w: %v", ErrOpenVideo, err)
		}
		return models.RunSummary{}, err
	}
	defer func() {
		if err := source.Close(); err != nil {
			fp.logger.Debug("Failed to close video source", zap.Error(err))
		}
	}()

	run := &videoRun{
		fp:          fp,
		sess:        sess,
		th:          th,
		totalFrames: source.Frames(),
		sampling:    SamplingPolicy{Stride: fp.config.Stride},
		preview:     NewRedrawPolicy(fp.config.RedrawInterval, fp.now),
		progress:    NewRedrawPolicy(fp.config.RedrawInterval, fp.now),
		rates:       make([]float64, 0, 64),
	}
	started := fp.now()

	sess.Hub.Publish(session.Event{Type: session.EventStatus, Data: "Processing " + filename})
	fp.logger.Info("Video processing started",
		zap.String("session_id", sess.ID),
		zap.String("filename", filename),
		zap.Int("frames", run.totalFrames),
		zap.Float64("fps", source.FPS()))

	next, readErr := source.Read()
	for readErr == nil {
		if err := ctx.Err(); err != nil {
			fp.metrics.VideosProcessed.WithLabelValues("cancelled").Inc()
			fp.logger.Info("Video processing cancelled", zap.String("session_id", sess.ID), zap.Int("frame", run.counter))
			return models.RunSummary{}, err
		}

		frame := next
		next, readErr = source.Read()
		last := readErr != nil

		if err := run.step(ctx, frame, last); err != nil {
			fp.metrics.VideosProcessed.WithLabelValues("cancelled").Inc()
			return models.RunSummary{}, err
		}
	}
	if !errors.Is(readErr, io.EOF) {
		fp.logger.Warn("Video read failed, summarizing frames read so far",
			zap.String("session_id", sess.ID),
			zap.Int("frames_read", run.counter),
			zap.Error(readErr))
	}

	avgFPS, err := stats.Mean(run.rates)
	if err != nil {
		avgFPS = 0
	}

	// video rows are stamped with the time the run started
	summary := models.NewRunSummary(uuid.NewString(), models.SourceVideo, filename, started, run.helmet, run.noHelmet)
	summary.SampledFrames = run.sampled
	summary.TotalFrames = run.counter
	summary.AvgFPS = avgFPS
	summary.ProcessingTime = fp.now().Sub(started)

	sess.Report.Append(summary)
	sess.Hub.Publish(session.Event{Type: session.EventSummary, Data: summary})
	fp.metrics.VideosProcessed.WithLabelValues("completed").Inc()

	fp.logger.Info("Video processing completed",
		zap.String("session_id", sess.ID),
		zap.String("filename", filename),
		zap.Int("frames", run.counter),
		zap.Int("sampled", run.sampled),
		zap.Int("helmet", run.helmet),
		zap.Int("no_helmet", run.noHelmet),
		zap.Float64("avg_fps", avgFPS))

	return summary, nil
}

// detect wraps one detector call with timing, metrics and error reporting.
func (fp *FrameProcessor) detect(ctx context.Context, sess *session.Session, img image.Image, th models.Thresholds) ([]models.Detection, error) {
	start := time.Now()
	detections, err := ml.DetectOrEmpty(ctx, fp.detector, img, th, fp.logger.With(zap.String("session_id", sess.ID)))
	fp.metrics.ObserveInference(time.Since(start), err)
	if err != nil && !errors.Is(err, context.Canceled) {
		sess.Hub.Publish(session.Event{Type: session.EventError, Data: "Detection failed: " + err.Error()})
	}
	return detections, err
}

// videoRun is the state of one ProcessVideo call.
type videoRun struct {
	fp          *FrameProcessor
	sess        *session.Session
	th          models.Thresholds
	totalFrames int
	sampling    SamplingPolicy
	preview     *RedrawPolicy
	progress    *RedrawPolicy

	counter  int
	sampled  int
	helmet   int
	noHelmet int
	rates    []float64
	latest   models.FrameStatistics
}

func (r *videoRun) step(ctx context.Context, frame image.Image, last bool) error {
	fp := r.fp
	r.counter++
	fp.metrics.FramesRead.Inc()

	var fps float64
	if r.sampling.ShouldSample(r.counter, last) {
		start := fp.now()
		working := fp.resize(frame)
		detections, err := fp.detect(ctx, r.sess, working, r.th)
		if errors.Is(err, context.Canceled) {
			return err
		}
		// rate covers resize and inference only
		if elapsed := fp.now().Sub(start); elapsed > 0 {
			fps = 1 / elapsed.Seconds()
			r.rates = append(r.rates, fps)
		}
		annotated, frameStats := annotate.Annotate(working, detections, &annotate.Overlay{FPS: fps})

		r.sampled++
		r.helmet += frameStats.Helmet
		r.noHelmet += frameStats.NoHelmet
		r.latest = frameStats
		fp.metrics.FramesSampled.Inc()
		fp.metrics.ObserveDetections(frameStats)

		if r.preview.Allow(last) {
			r.publishPreview(annotated)
		}
	}

	if r.progress.Allow(last) {
		r.publishProgress(last, fps)
	}
	return nil
}

func (r *videoRun) publishPreview(img image.Image) {
	url, err := annotate.DataURL(img, r.fp.config.JPEGQuality)
	if err != nil {
		r.fp.logger.Debug("Failed to encode preview", zap.Error(err))
		return
	}
	r.sess.Hub.Publish(session.Event{
		Type: session.EventPreview,
		Data: models.Preview{Frame: r.counter, Image: url},
	})
}

func (r *videoRun) publishProgress(last bool, fps float64) {
	percent := 0.0
	if r.totalFrames > 0 {
		percent = min(100, float64(r.counter)/float64(r.totalFrames)*100)
	}
	if last {
		percent = 100
	}
	r.sess.Hub.Publish(session.Event{
		Type: session.EventProgress,
		Data: models.Progress{
			Frame:       r.counter,
			TotalFrames: r.totalFrames,
			Percent:     percent,
			Sampled:     r.sampled,
			Helmet:      r.latest.Helmet,
			NoHelmet:    r.latest.NoHelmet,
			FPS:         fps,
		},
	})
}

// resize scales frame to the working resolution, or returns it unchanged
// when it already matches or no resolution is configured.
func (fp *FrameProcessor) resize(frame image.Image) image.Image {
	w, h := fp.config.FrameWidth, fp.config.FrameHeight
	if w <= 0 || h <= 0 {
		return frame
	}
	if b := frame.Bounds(); b.Dx() == w && b.Dy() == h {
		return frame
	}
	return imaging.Resize(frame, w, h, imaging.Linear)
}
