package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/helmet-cv/server/middleware"
	"github.com/san-kum/helmet-cv/server/ml"
	"github.com/san-kum/helmet-cv/server/session"
)

// StatsHandler reports the state of the shared detector and the session
// store.
type StatsHandler struct {
	pool        *ml.Pool
	sessions    *session.Store
	rateLimiter *middleware.RateLimiter
	classes     ml.ClassNames
	startTime   time.Time
}

type SystemStats struct {
	Detector      ml.PoolStats       `json:"detector"`
	Classes       []string           `json:"classes"`
	Sessions      session.StoreStats `json:"sessions"`
	ActiveClients int                `json:"active_clients"`
	Uptime        float64            `json:"uptime_seconds"`
}

// NewStatsHandler takes the class names of the loaded model; nil when the
// backend does not expose them.
func NewStatsHandler(pool *ml.Pool, sessions *session.Store, rateLimiter *middleware.RateLimiter, classes ml.ClassNames) *StatsHandler {
	return &StatsHandler{
		pool:        pool,
		sessions:    sessions,
		rateLimiter: rateLimiter,
		classes:     classes,
		startTime:   time.Now(),
	}
}

func (h *StatsHandler) GetStats(c *gin.Context) {
	start := time.Now()

	classes := make([]string, 0, len(h.classes))
	classes = append(classes, h.classes...)

	stats := SystemStats{
		Detector: h.pool.Stats(),
		Classes:  classes,
		Sessions: h.sessions.Stats(),
		Uptime:   time.Since(h.startTime).Seconds(),
	}
	if h.rateLimiter != nil {
		stats.ActiveClients = h.rateLimiter.ActiveClients()
	}
	respond(c, http.StatusOK, stats, start)
}
