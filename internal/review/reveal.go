package review

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RevealStore はセッションごとのネタバレ表示状態をプロセスメモリに保持する。
// 永続化はせず、一定時間操作のないセッションは掃除される。
type RevealStore struct {
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*revealSession

	stopCh   chan struct{}
	stopOnce sync.Once
}

type revealSession struct {
	revealed map[string]bool
	lastSeen time.Time
}

// NewRevealStore はRevealStoreを生成する。
func NewRevealStore(idleTTL time.Duration) *RevealStore {
	return &RevealStore{
		idleTTL:  idleTTL,
		now:      time.Now,
		sessions: make(map[string]*revealSession),
		stopCh:   make(chan struct{}),
	}
}

// Toggle はレビューの表示状態を反転し、反転後の状態を返す。
// 2回呼ぶと非表示に戻る。
func (s *RevealStore) Toggle(sessionID, reviewID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &revealSession{revealed: make(map[string]bool)}
		s.sessions[sessionID] = sess
	}
	sess.lastSeen = s.now()

	if sess.revealed[reviewID] {
		delete(sess.revealed, reviewID)
		return false
	}
	sess.revealed[reviewID] = true
	return true
}

// IsRevealed はレビューが表示状態かどうかを返す。
func (s *RevealStore) IsRevealed(sessionID, reviewID string) bool {
	if sessionID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	sess.lastSeen = s.now()
	return sess.revealed[reviewID]
}

// Sweep はidleTTLを超えて操作のないセッションを削除し、削除件数を返す。
func (s *RevealStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.idleTTL)
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// SessionCount は保持中のセッション数を返す。
func (s *RevealStore) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run はinterval毎にSweepを実行する。ctxのキャンセルかStopで終了する。
func (s *RevealStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("reveal sessions swept", slog.Int("removed", n))
			}
		}
	}
}

// Stop はRunを停止する。複数回呼んでも安全。
func (s *RevealStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
