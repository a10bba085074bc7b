package ml

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/san-kum/helmet-cv/server/models"
	"go.uber.org/zap"
)

// Pool shares one Detector between concurrent requests through a bounded
// job queue drained by a fixed number of workers.
type Pool struct {
	detector  Detector
	jobs      chan *job
	workers   int
	wg        sync.WaitGroup
	shutdown  chan struct{}
	isRunning bool
	mutex     sync.RWMutex
	logger    *zap.Logger
}

type job struct {
	ctx    context.Context
	img    image.Image
	th     models.Thresholds
	result chan jobResult
}

type jobResult struct {
	detections []models.Detection
	err        error
}

type PoolStats struct {
	QueueSize          int     `json:"queue_size"`
	QueueCapacity      int     `json:"queue_capacity"`
	Workers            int     `json:"workers"`
	IsRunning          bool    `json:"is_running"`
	UtilizationPercent float64 `json:"utilization_percent"`
}

func NewPool(detector Detector, queueSize, workers int, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	pool := &Pool{
		detector:  detector,
		jobs:      make(chan *job, queueSize),
		workers:   workers,
		shutdown:  make(chan struct{}),
		isRunning: true,
		logger:    logger,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	return pool
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case j := <-p.jobs:
			p.run(id, j)
		case <-p.shutdown:
			return
		}
	}
}

func (p *Pool) run(id int, j *job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Detector panic", zap.Int("worker", id), zap.Any("panic", r))
			j.result <- jobResult{err: fmt.Errorf("worker panic: %v", r)}
		}
	}()

	if err := j.ctx.Err(); err != nil {
		j.result <- jobResult{err: err}
		return
	}

	detections, err := p.detector.Detect(j.ctx, j.img, j.th)
	j.result <- jobResult{detections: detections, err: err}
}

// Detect queues img and blocks until a worker has run it, ctx is done or the
// pool shuts down.
func (p *Pool) Detect(ctx context.Context, img image.Image, th models.Thresholds) ([]models.Detection, error) {
	if !p.IsRunning() {
		return nil, ErrPoolClosed
	}

	j := &job{ctx: ctx, img: img, th: th, result: make(chan jobResult, 1)}

	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.shutdown:
		return nil, ErrPoolClosed
	}

	select {
	case res := <-j.result:
		return res.detections, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.shutdown:
		return nil, ErrPoolClosed
	}
}

func (p *Pool) IsRunning() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.isRunning
}

func (p *Pool) Stats() PoolStats {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return PoolStats{
		QueueSize:          len(p.jobs),
		QueueCapacity:      cap(p.jobs),
		Workers:            p.workers,
		IsRunning:          p.isRunning,
		UtilizationPercent: float64(len(p.jobs)) / float64(cap(p.jobs)) * 100,
	}
}

func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mutex.Lock()
	if !p.isRunning {
		p.mutex.Unlock()
		return nil
	}
	p.isRunning = false
	p.mutex.Unlock()

	close(p.shutdown)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("detector pool shutdown timeout exceeded")
	}
}
