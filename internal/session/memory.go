package session

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	state   State
	expires time.Time
}

// MemoryStore はプロセス内に会話状態を保持します。失効した状態は参照時と Sweep で削除されます
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

// NewMemoryStore は新しいMemoryStoreを作成します
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
}

// Get は状態を返します。存在しないか失効している場合は ErrNoSession です
func (s *MemoryStore) Get(_ context.Context, chatID string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[chatID]
	if !ok {
		return nil, ErrNoSession
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, chatID)
		return nil, ErrNoSession
	}
	st := e.state
	return &st, nil
}

func (s *MemoryStore) Put(_ context.Context, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[st.ChatID] = entry{state: *st, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, chatID)
	return nil
}

// Sweep は失効した状態をすべて削除し、削除件数を返します
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len は期限切れを含む保存中のセッション数を返します
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
