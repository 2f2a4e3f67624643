package review

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRevealStore_Toggle(t *testing.T) {
	s := NewRevealStore(time.Hour)

	if s.IsRevealed("sess-1", "rv-1") {
		t.Fatal("initial state must be hidden")
	}
	if !s.Toggle("sess-1", "rv-1") {
		t.Error("first toggle must reveal")
	}
	if !s.IsRevealed("sess-1", "rv-1") {
		t.Error("review must be revealed after toggle")
	}
	if s.IsRevealed("sess-2", "rv-1") {
		t.Error("reveal state must be per session")
	}
	if s.IsRevealed("sess-1", "rv-2") {
		t.Error("reveal state must be per review")
	}
	if s.Toggle("sess-1", "rv-1") {
		t.Error("second toggle must hide")
	}
	if s.IsRevealed("sess-1", "rv-1") {
		t.Error("review must be hidden after two toggles")
	}
}

func TestRevealStore_EmptySessionNeverRevealed(t *testing.T) {
	s := NewRevealStore(time.Hour)
	s.Toggle("", "rv-1")
	if s.IsRevealed("", "rv-1") {
		t.Error("anonymous viewers must always see hidden spoilers")
	}
}

func TestRevealStore_Sweep(t *testing.T) {
	s := NewRevealStore(time.Hour)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Toggle("idle", "rv-1")
	now = now.Add(30 * time.Minute)
	s.Toggle("active", "rv-1")
	now = now.Add(45 * time.Minute)

	if removed := s.Sweep(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if s.SessionCount() != 1 {
		t.Errorf("sessions = %d, want 1", s.SessionCount())
	}
	if !s.IsRevealed("active", "rv-1") {
		t.Error("active session must keep its state")
	}
	if s.IsRevealed("idle", "rv-1") {
		t.Error("idle session must be forgotten")
	}
}

func TestRevealStore_RunStopsOnStop(t *testing.T) {
	s := NewRevealStore(time.Hour)
	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), time.Millisecond)
		close(done)
	}()

	s.Stop()
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRevealStore_ConcurrentToggle(t *testing.T) {
	s := NewRevealStore(time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Toggle("sess", "rv")
		}()
	}
	wg.Wait()

	// 偶数回の反転なので非表示に戻る
	if s.IsRevealed("sess", "rv") {
		t.Error("even number of toggles must leave the review hidden")
	}
}
