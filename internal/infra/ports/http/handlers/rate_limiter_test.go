package handlers

import (
	"testing"
	"time"
)

func TestMessageWindowAllowsUpToLimit(t *testing.T) {
	w := newMessageWindow(5*time.Second, 3)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !w.Allow(now) {
			t.Fatalf("message %d within the limit must be allowed", i+1)
		}
	}
	if w.Allow(now) {
		t.Error("message over the limit must be dropped")
	}
	if w.Allow(now.Add(time.Second)) {
		t.Error("limit must hold for the rest of the window")
	}
}

func TestMessageWindowResetsAfterWindow(t *testing.T) {
	w := newMessageWindow(5*time.Second, 2)
	now := time.Now()

	w.Allow(now)
	w.Allow(now)
	if w.Allow(now) {
		t.Fatal("third message in the window must be dropped")
	}

	later := now.Add(5*time.Second + time.Millisecond)
	if !w.Allow(later) {
		t.Error("a new window must reset the count")
	}
	if !w.Allow(later) {
		t.Error("second message of the new window must be allowed")
	}
	if w.Allow(later) {
		t.Error("new window must enforce the same limit")
	}
}

func TestMessageWindowDroppedMessagesStillCount(t *testing.T) {
	w := newMessageWindow(time.Second, 1)
	now := time.Now()

	w.Allow(now)

	// A burst of rejected messages inside the window must not slide it.
	for i := 0; i < 10; i++ {
		if w.Allow(now.Add(time.Duration(i) * 50 * time.Millisecond)) {
			t.Fatalf("burst message %d must be dropped", i)
		}
	}

	if !w.Allow(now.Add(time.Second + time.Millisecond)) {
		t.Error("window expiry must readmit messages")
	}
}
