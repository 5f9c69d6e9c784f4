// Package quota bounds calls to the shared generation API key with
// per-minute and per-day counting windows. The windows are process-wide:
// every tenant draws from the same budget.
package quota

import (
	"fmt"
	"sync"
	"time"

	apperrors "github.com/smileagent/autoreply-engine/internal/errors"
)

// Clock supplies the current time. Injectable so tests can simulate
// window rollover without sleeping.
type Clock func() time.Time

// window is a fixed-duration counting interval with lazy rollover.
type window struct {
	count   int
	limit   int
	length  time.Duration
	resetAt time.Time
}

// rollover resets the counter once the window boundary has passed.
func (w *window) rollover(now time.Time) {
	if !now.Before(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(w.length)
	}
}

// Guard is an atomic check-and-increment rate guard over the minute and
// day windows. Safe for concurrent use across tenant goroutines.
type Guard struct {
	mu     sync.Mutex
	clock  Clock
	minute window
	day    window
}

// NewGuard creates a Guard with the given ceilings. A nil clock uses
// time.Now.
func NewGuard(perMinute, perDay int, clock Clock) *Guard {
	if clock == nil {
		clock = time.Now
	}
	now := clock()
	return &Guard{
		clock:  clock,
		minute: window{limit: perMinute, length: time.Minute, resetAt: now.Add(time.Minute)},
		day:    window{limit: perDay, length: 24 * time.Hour, resetAt: now.Add(24 * time.Hour)},
	}
}

// Check rolls over stale windows, then either denies (returning an error
// wrapping ErrQuotaExceeded that names the tripped window) or increments
// both counters and allows. Check-and-increment is a single critical
// section: concurrent callers can never push a window past its ceiling.
func (g *Guard) Check() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	g.minute.rollover(now)
	g.day.rollover(now)

	if g.minute.count >= g.minute.limit {
		return fmt.Errorf("%w: per-minute limit reached (%d/%d)",
			apperrors.ErrQuotaExceeded, g.minute.count, g.minute.limit)
	}
	if g.day.count >= g.day.limit {
		return fmt.Errorf("%w: per-day limit reached (%d/%d)",
			apperrors.ErrQuotaExceeded, g.day.count, g.day.limit)
	}

	g.minute.count++
	g.day.count++
	return nil
}

// WindowStats is an observability snapshot of one window.
type WindowStats struct {
	Count    int     `json:"count"`
	Limit    int     `json:"limit"`
	ResetsIn float64 `json:"resets_in_seconds"`
}

// Stats reports the current counters, ceilings and time-to-reset.
// It never mutates the windows: a window whose boundary has passed is
// reported as empty.
type Stats struct {
	Minute WindowStats `json:"minute"`
	Day    WindowStats `json:"day"`
}

// Stats returns a read-only snapshot of both windows.
func (g *Guard) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	return Stats{
		Minute: snapshot(g.minute, now),
		Day:    snapshot(g.day, now),
	}
}

func snapshot(w window, now time.Time) WindowStats {
	s := WindowStats{Count: w.count, Limit: w.limit}
	if now.Before(w.resetAt) {
		s.ResetsIn = w.resetAt.Sub(now).Seconds()
	} else {
		s.Count = 0
	}
	return s
}
