package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/san-kum/helmet-cv/server/models"
	"github.com/san-kum/helmet-cv/server/report"
)

var ErrInvalidThreshold = errors.New("threshold must be in (0, 1]")

var DefaultThresholds = models.Thresholds{Confidence: 0.5, Overlap: 0.4}

// Session holds everything that belongs to one browser: its report table,
// its threshold settings and the hub its live preview is published on.
type Session struct {
	ID        string
	CreatedAt time.Time
	Report    *report.Table
	Hub       *Hub

	mutex      sync.RWMutex
	thresholds models.Thresholds
}

func New(id string, thresholds models.Thresholds, hubBuffer int) *Session {
	return &Session{
		ID:         id,
		CreatedAt:  time.Now(),
		Report:     report.NewTable(),
		Hub:        NewHub(hubBuffer),
		thresholds: thresholds,
	}
}

func (s *Session) Thresholds() models.Thresholds {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.thresholds
}

func (s *Session) SetThresholds(th models.Thresholds) error {
	if err := ValidateThresholds(th); err != nil {
		return err
	}
	s.mutex.Lock()
	s.thresholds = th
	s.mutex.Unlock()
	return nil
}

func ValidateThresholds(th models.Thresholds) error {
	if th.Confidence <= 0 || th.Confidence > 1 {
		return fmt.Errorf("confidence %.2f: %w", th.Confidence, ErrInvalidThreshold)
	}
	if th.Overlap <= 0 || th.Overlap > 1 {
		return fmt.Errorf("overlap %.2f: %w", th.Overlap, ErrInvalidThreshold)
	}
	return nil
}
