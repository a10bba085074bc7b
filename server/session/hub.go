package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventPreview  = "preview"
	EventProgress = "progress"
	EventStatus   = "status"
	EventError    = "error"
	EventSummary  = "summary"
)

// DefaultFinalWait bounds how long Publish waits on a full subscriber for
// events that end a run.
const DefaultFinalWait = 250 * time.Millisecond

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// final reports whether losing the event would leave the page without the
// outcome of a run.
func (e Event) final() bool {
	return e.Type == EventSummary || e.Type == EventError
}

// Hub fans events out to every subscriber of a session. A subscriber whose
// buffer is full misses preview, progress and status events; summary and
// error events wait up to finalWait for room.
type Hub struct {
	mutex       sync.RWMutex
	subscribers map[string]chan Event
	bufferSize  int
	finalWait   time.Duration
	closed      bool
}

func NewHub(bufferSize int) *Hub {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Hub{
		subscribers: make(map[string]chan Event),
		bufferSize:  bufferSize,
		finalWait:   DefaultFinalWait,
	}
}

// Subscribe returns the subscription id and its event channel. The channel
// is closed by Unsubscribe or Close.
func (h *Hub) Subscribe() (string, <-chan Event) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	ch := make(chan Event, h.bufferSize)
	if h.closed {
		close(ch)
		return "", ch
	}

	id := uuid.NewString()
	h.subscribers[id] = ch
	return id, ch
}

func (h *Hub) Unsubscribe(id string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// Publish returns how many subscribers received the event.
func (h *Hub) Publish(event Event) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var deadline <-chan time.Time
	if event.final() && h.finalWait > 0 {
		timer := time.NewTimer(h.finalWait)
		defer timer.Stop()
		deadline = timer.C
	}

	delivered := 0
	for _, ch := range h.subscribers {
		select {
		case ch <- event:
			delivered++
			continue
		default:
		}
		if deadline == nil {
			continue
		}
		select {
		case ch <- event:
			delivered++
		case <-deadline:
			// the wait is shared; later full subscribers are skipped
			deadline = nil
		}
	}
	return delivered
}

func (h *Hub) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}
