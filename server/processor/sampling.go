package processor

import (
	"sync"
	"time"
)

// SamplingPolicy picks which frames go to the detector: every Stride-th
// frame (1-based counter) plus the last frame of the stream.
type SamplingPolicy struct {
	Stride int
}

func (p SamplingPolicy) ShouldSample(counter int, last bool) bool {
	stride := p.Stride
	if stride < 1 {
		stride = 1
	}
	return counter%stride == 0 || last
}

// RedrawPolicy throttles page updates to at most one per MinInterval.
type RedrawPolicy struct {
	MinInterval time.Duration

	mutex sync.Mutex
	now   func() time.Time
	last  time.Time
	drawn bool
}

func NewRedrawPolicy(interval time.Duration, now func() time.Time) *RedrawPolicy {
	if now == nil {
		now = time.Now
	}
	return &RedrawPolicy{MinInterval: interval, now: now}
}

// Allow reports whether an update may be pushed now and records it if so.
// A forced update always passes.
func (p *RedrawPolicy) Allow(force bool) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	now := p.now()
	if force || !p.drawn || now.Sub(p.last) >= p.MinInterval {
		p.last = now
		p.drawn = true
		return true
	}
	return false
}
