package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSamplingPolicy(t *testing.T) {
	p := SamplingPolicy{Stride: 5}

	assert.False(t, p.ShouldSample(1, false))
	assert.False(t, p.ShouldSample(4, false))
	assert.True(t, p.ShouldSample(5, false))
	assert.True(t, p.ShouldSample(10, false))
	assert.True(t, p.ShouldSample(7, true))

	zero := SamplingPolicy{}
	assert.True(t, zero.ShouldSample(3, false))
}

func TestRedrawPolicy(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewRedrawPolicy(300*time.Millisecond, func() time.Time { return now })

	assert.True(t, p.Allow(false), "first update always passes")
	assert.False(t, p.Allow(false))

	now = now.Add(200 * time.Millisecond)
	assert.False(t, p.Allow(false))
	assert.True(t, p.Allow(true), "forced update passes")

	now = now.Add(299 * time.Millisecond)
	assert.False(t, p.Allow(false))

	now = now.Add(time.Millisecond)
	assert.True(t, p.Allow(false))
}
