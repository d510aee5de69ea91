package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/nbhdcity/internal/model"
)

// stateCleanupInterval は期限切れ状態エントリのクリーンアップ間隔。
const stateCleanupInterval = time.Minute

// MemoryStateStore はHandshakeStateStoreのインメモリ実装。
// 単一プロセス構成向けのデフォルト。バックグラウンドで期限切れ
// エントリを定期的に掃除する。
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]*model.HandshakeState
	stopCh chan struct{}
}

// NewMemoryStateStore は新しいMemoryStateStoreを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewMemoryStateStore() *MemoryStateStore {
	s := &MemoryStateStore{
		states: make(map[string]*model.HandshakeState),
		stopCh: make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (s *MemoryStateStore) Stop() {
	close(s.stopCh)
}

// Put はハンドシェイク状態を登録する。
func (s *MemoryStateStore) Put(_ context.Context, state *model.HandshakeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *state
	s.states[state.Token] = &copied
	return nil
}

// Consume は状態を取り出して削除する。2回目以降の呼び出しや
// 期限切れ・未知のトークンはすべて(nil, nil)。
func (s *MemoryStateStore) Consume(_ context.Context, token string) (*model.HandshakeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[token]
	if !ok {
		return nil, nil
	}
	delete(s.states, token)

	if time.Now().After(state.ExpiresAt) {
		return nil, nil
	}
	return state, nil
}

func (s *MemoryStateStore) cleanupLoop() {
	ticker := time.NewTicker(stateCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryStateStore) cleanup() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for token, state := range s.states {
		if now.After(state.ExpiresAt) {
			delete(s.states, token)
		}
	}
}

// compile-time interface check
var _ HandshakeStateStore = (*MemoryStateStore)(nil)
