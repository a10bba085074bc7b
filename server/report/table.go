package report

import (
	"sync"

	"github.com/san-kum/helmet-cv/server/models"
)

// Table is the ordered, append-only list of run summaries for one session.
// Rows are only ever removed all at once by Clear.
type Table struct {
	mutex sync.RWMutex
	rows  []models.RunSummary
}

func NewTable() *Table {
	return &Table{rows: make([]models.RunSummary, 0, 16)}
}

func (t *Table) Append(row models.RunSummary) {
	t.mutex.Lock()
	t.rows = append(t.rows, row)
	t.mutex.Unlock()
}

// All returns a snapshot in insertion order. Callers may modify it freely.
func (t *Table) All() []models.RunSummary {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	out := make([]models.RunSummary, len(t.rows))
	copy(out, t.rows)
	return out
}

func (t *Table) Clear() {
	t.mutex.Lock()
	t.rows = t.rows[:0]
	t.mutex.Unlock()
}

func (t *Table) Len() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return len(t.rows)
}

// Totals aggregates every row of the table.
type Totals struct {
	Runs       int     `json:"runs"`
	Total      int     `json:"total"`
	Helmet     int     `json:"helmet"`
	NoHelmet   int     `json:"no_helmet"`
	SafetyRate float64 `json:"safety_rate"`
}

func (t *Table) Totals() Totals {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	var totals Totals
	for _, row := range t.rows {
		totals.Runs++
		totals.Total += row.Total
		totals.Helmet += row.Helmet
		totals.NoHelmet += row.NoHelmet
	}
	totals.SafetyRate = models.SafetyRate(totals.Helmet, totals.Total)
	return totals
}
