package engine

import "time"

// timingWindow is a fixed-capacity ring buffer of processing durations.
// Once full, new samples overwrite the oldest.
type timingWindow struct {
	buf  []time.Duration
	next int
	full bool
}

func newTimingWindow(capacity int) *timingWindow {
	if capacity <= 0 {
		capacity = 100
	}
	return &timingWindow{buf: make([]time.Duration, capacity)}
}

func (w *timingWindow) add(d time.Duration) {
	w.buf[w.next] = d
	w.next++
	if w.next == len(w.buf) {
		w.next = 0
		w.full = true
	}
}

func (w *timingWindow) avgMillis() float64 {
	n := w.next
	if w.full {
		n = len(w.buf)
	}
	if n == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < n; i++ {
		total += w.buf[i]
	}
	return float64(total.Microseconds()) / float64(n) / 1000
}
