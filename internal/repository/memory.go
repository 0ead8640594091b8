package repository

import (
	"context"
	"sync"

	"github.com/uma-arai/barber-booking/internal/model"
)

// MemoryStore はプロセス内だけで予約を保持するストアです
// Load と Save はコピーを受け渡すため、呼び出し側の変更は保存されるまで反映されません
type MemoryStore struct {
	mu           sync.RWMutex
	reservations []model.Reservation
	// LoadErr / SaveErr が設定されている場合は該当操作がそのエラーで失敗します
	LoadErr error
	SaveErr error
	saves   int
}

// NewMemoryStore は初期データを持つMemoryStoreを作成します
func NewMemoryStore(initial ...model.Reservation) *MemoryStore {
	return &MemoryStore{reservations: append([]model.Reservation{}, initial...)}
}

func (s *MemoryStore) Load(_ context.Context) ([]model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.LoadErr != nil {
		return nil, &model.StoreError{Op: "load", Err: s.LoadErr}
	}
	return append([]model.Reservation{}, s.reservations...), nil
}

func (s *MemoryStore) Save(_ context.Context, reservations []model.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return &model.StoreError{Op: "save", Err: s.SaveErr}
	}
	s.reservations = append([]model.Reservation{}, reservations...)
	s.saves++
	return nil
}

// Mutate はロックを保持したまま fn を適用します
func (s *MemoryStore) Mutate(_ context.Context, fn MutateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return &model.StoreError{Op: "load", Err: s.LoadErr}
	}
	next, changed, err := fn(append([]model.Reservation{}, s.reservations...))
	if err != nil || !changed {
		return err
	}
	if s.SaveErr != nil {
		return &model.StoreError{Op: "save", Err: s.SaveErr}
	}
	s.reservations = append([]model.Reservation{}, next...)
	s.saves++
	return nil
}

// Saves は成功した保存の回数を返します
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
