package handlers

import "time"

// messageWindow is a fixed-window inbound message limiter. It belongs to a
// single connection and is only touched by that connection's read loop, so
// it needs no locking. Messages over the limit are dropped, never queued.
type messageWindow struct {
	window time.Duration
	limit  int

	start time.Time
	count int
}

func newMessageWindow(window time.Duration, limit int) messageWindow {
	return messageWindow{window: window, limit: limit}
}

func (w *messageWindow) Allow(now time.Time) bool {
	if now.Sub(w.start) > w.window {
		w.start = now
		w.count = 0
	}

	w.count++
	return w.count <= w.limit
}
