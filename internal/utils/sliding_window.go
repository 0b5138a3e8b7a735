package utils

import (
	"sync"
	"time"
)

// SlidingWindow counts events inside a trailing time window.
type SlidingWindow struct {
	mu     sync.Mutex
	window time.Duration
	hits   []time.Time
}

func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{window: window}
}

// Add records an event at now and returns the count inside the window.
func (w *SlidingWindow) Add(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trim(now)
	w.hits = append(w.hits, now)
	return len(w.hits)
}

func (w *SlidingWindow) Count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trim(now)
	return len(w.hits)
}

// Reset forgets every recorded event.
func (w *SlidingWindow) Reset() {
	w.mu.Lock()
	w.hits = nil
	w.mu.Unlock()
}

func (w *SlidingWindow) trim(now time.Time) {
	cutoff := now.Add(-w.window)
	idx := 0
	for _, hit := range w.hits {
		if hit.After(cutoff) {
			break
		}
		idx++
	}
	w.hits = w.hits[idx:]
}

// Windows keeps one sliding window per key, created on first use.
type Windows struct {
	mu      sync.Mutex
	window  time.Duration
	windows map[string]*SlidingWindow
}

func NewWindows(window time.Duration) *Windows {
	return &Windows{window: window, windows: make(map[string]*SlidingWindow)}
}

func (w *Windows) Add(key string, now time.Time) int {
	return w.get(key).Add(now)
}

func (w *Windows) Reset(key string) {
	w.mu.Lock()
	delete(w.windows, key)
	w.mu.Unlock()
}

// Prune drops windows with no events left at now.
func (w *Windows) Prune(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	removed := 0
	for key, window := range w.windows {
		if window.Count(now) == 0 {
			delete(w.windows, key)
			removed++
		}
	}
	return removed
}

func (w *Windows) get(key string) *SlidingWindow {
	w.mu.Lock()
	defer w.mu.Unlock()
	window := w.windows[key]
	if window == nil {
		window = NewSlidingWindow(w.window)
		w.windows[key] = window
	}
	return window
}
