package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/uma-arai/barber-booking/internal/common/tracing"
	"github.com/uma-arai/barber-booking/internal/mirror"
	"github.com/uma-arai/barber-booking/internal/model"
	"github.com/uma-arai/barber-booking/internal/repository"
	"github.com/uma-arai/barber-booking/internal/service/availability"
)

// Reminders は予約IDをキーにしたリマインダーの登録と取り消しです
type Reminders interface {
	Schedule(reservationID, target, text string, at time.Time) error
	Cancel(reservationID string) bool
}

// Service は予約の作成・更新・キャンセルを担当します
// 変更系の操作はプロセス内ではミューテックスで、プロセス間ではストアの Mutate のロックで直列化します
type Service struct {
	mu sync.Mutex

	store     repository.ReservationStore
	policy    availability.Policy
	mirror    mirror.Mirror
	reminders Reminders
	advance   time.Duration
	validate  *validator.Validate
	now       func() time.Time
	newID     func() string

	pushes   sync.WaitGroup
	pushMu   sync.Mutex
	lastPush chan struct{}
}

// Option は Service の設定を変更します
type Option func(*Service)

// WithMirror はスプレッドシートなどの参照用ミラーを設定します
func WithMirror(m mirror.Mirror) Option {
	return func(s *Service) { s.mirror = m }
}

// WithReminders は予約開始の advance 前に送るリマインダーを設定します
func WithReminders(r Reminders, advance time.Duration) Option {
	return func(s *Service) {
		s.reminders = r
		s.advance = advance
	}
}

// WithClock は現在時刻の取得方法を差し替えます
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator は予約IDの採番方法を差し替えます
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService は新しいServiceを作成します
func NewService(store repository.ReservationStore, policy availability.Policy, opts ...Option) *Service {
	s := &Service{
		store:    store,
		policy:   policy,
		mirror:   mirror.Disabled{},
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) location() *time.Location {
	if s.policy.Location == nil {
		return time.Local
	}
	return s.policy.Location
}

// Create は入力を検証し、空いていれば予約を確定します
// 保存後のミラー反映とリマインダー登録は失敗しても予約自体は成功扱いです
func (s *Service) Create(ctx context.Context, req CreateRequest) (model.Reservation, error) {
	ctx, end := tracing.Start(ctx, "BookingService.Create")

	req = req.trimmed()
	if err := s.validate.Struct(req); err != nil {
		end(nil)
		return model.Reservation{}, toValidationError(err)
	}
	if s.policy.Business != nil && !s.policy.Business.Services.Has(req.Service) {
		end(nil)
		return model.Reservation{}, &model.ValidationError{Field: "service", Value: req.Service, Reason: "unknown service"}
	}

	slot, err := model.NormalizeSlot(req.Date, req.Time)
	if err != nil {
		end(nil)
		return model.Reservation{}, err
	}

	s.mu.Lock()
	r, err := s.create(ctx, req, slot)
	if err == nil {
		s.push(r, mirror.ActionAdd)
	}
	s.mu.Unlock()
	if err != nil {
		end(err)
		return model.Reservation{}, err
	}
	end(nil)

	log.Printf("Created reservation %s for %s at %s", r.ID, r.CustomerName, slot)
	s.scheduleReminder(r)
	return r, nil
}

func (s *Service) create(ctx context.Context, req CreateRequest, slot model.Slot) (model.Reservation, error) {
	var r model.Reservation
	err := s.store.Mutate(ctx, func(snapshot []model.Reservation) ([]model.Reservation, bool, error) {
		now := s.now()
		if err := s.policy.Check(snapshot, slot, req.CustomerID, "", now); err != nil {
			return nil, false, err
		}

		r = model.Reservation{
			ID:           s.newID(),
			CustomerName: req.Name,
			Date:         slot.Date,
			Time:         slot.Time,
			Service:      req.Service,
			CustomerID:   req.CustomerID,
			Status:       model.StatusConfirmed,
			CreatedAt:    now.In(s.location()),
			Phone:        req.Phone,
			Notes:        req.Notes,
		}
		return append(snapshot, r), true, nil
	})
	if err != nil {
		if model.IsStoreError(err) {
			log.Printf("Failed to store reservation for %s at %s: %v", req.Name, slot, err)
		}
		return model.Reservation{}, err
	}
	return r, nil
}

// Update は予約の変更可能な項目を更新します
// cancelled は終端状態で、再度有効にすることはできません。変更がない場合は保存しません
func (s *Service) Update(ctx context.Context, id string, changes Changes) (model.Reservation, error) {
	ctx, end := tracing.Start(ctx, "BookingService.Update")

	s.mu.Lock()
	next, changed, err := s.update(ctx, id, changes)
	if err == nil && changed {
		s.push(next, mirror.ActionUpdate)
	}
	s.mu.Unlock()
	if err != nil {
		end(err)
		return model.Reservation{}, err
	}
	end(nil)

	if !changed {
		return next, nil
	}

	log.Printf("Updated reservation %s (status %s)", next.ID, next.Status)
	if next.Status == model.StatusCancelled && s.reminders != nil {
		s.reminders.Cancel(next.ID)
	}
	return next, nil
}

func (s *Service) update(ctx context.Context, id string, changes Changes) (model.Reservation, bool, error) {
	var (
		next    model.Reservation
		changed bool
	)
	err := s.store.Mutate(ctx, func(snapshot []model.Reservation) ([]model.Reservation, bool, error) {
		idx := indexOf(snapshot, id)
		if idx < 0 {
			return nil, false, fmt.Errorf("reservation %s: %w", id, model.ErrNotFound)
		}
		cur := snapshot[idx]
		next = cur

		if changes.Status != nil {
			st := *changes.Status
			if !st.Valid() {
				return nil, false, &model.ValidationError{Field: "status", Value: string(st), Reason: "unknown status"}
			}
			if cur.Status == model.StatusCancelled && st != model.StatusCancelled {
				return nil, false, fmt.Errorf("reservation %s %s -> %s: %w", id, cur.Status, st, model.ErrInvalidTransition)
			}
			// 有効な状態への遷移は新規作成と同じ条件で再判定する
			if st.Active() && st != cur.Status {
				if err := s.policy.Check(snapshot, cur.Slot(), cur.CustomerID, cur.ID, s.now()); err != nil {
					return nil, false, err
				}
			}
			next.Status = st
		}
		if changes.Phone != nil {
			next.Phone = strings.TrimSpace(*changes.Phone)
		}
		if changes.Notes != nil {
			next.Notes = strings.TrimSpace(*changes.Notes)
		}

		if next == cur {
			return nil, false, nil
		}
		changed = true
		updated := append([]model.Reservation{}, snapshot...)
		updated[idx] = next
		return updated, true, nil
	})
	if err != nil {
		if model.IsStoreError(err) {
			log.Printf("Failed to store reservation %s: %v", id, err)
		}
		return model.Reservation{}, false, err
	}
	return next, changed, nil
}

// Cancel は予約をキャンセルします。キャンセル済みの予約に対しては何もせず成功します
func (s *Service) Cancel(ctx context.Context, id string) (model.Reservation, error) {
	st := model.StatusCancelled
	return s.Update(ctx, id, Changes{Status: &st})
}

// Get はIDで予約を取得します
func (s *Service) Get(ctx context.Context, id string) (model.Reservation, error) {
	snapshot, err := s.store.Load(ctx)
	if err != nil {
		return model.Reservation{}, err
	}
	idx := indexOf(snapshot, id)
	if idx < 0 {
		return model.Reservation{}, fmt.Errorf("reservation %s: %w", id, model.ErrNotFound)
	}
	return snapshot[idx], nil
}

// Cleanup は retentionDays より前の日付の予約を削除し、削除件数を返します
// confirmed の予約は期間に関係なく残します
func (s *Service) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	ctx, end := tracing.Start(ctx, "BookingService.Cleanup")

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().In(s.location()).AddDate(0, 0, -retentionDays).Format(model.DateLayout)
	var removed []string
	err := s.store.Mutate(ctx, func(snapshot []model.Reservation) ([]model.Reservation, bool, error) {
		removed = nil
		kept := make([]model.Reservation, 0, len(snapshot))
		for _, r := range snapshot {
			if r.Status == model.StatusConfirmed || r.Date >= cutoff {
				kept = append(kept, r)
				continue
			}
			removed = append(removed, r.ID)
		}
		return kept, len(removed) > 0, nil
	})
	if err != nil {
		end(err)
		return 0, err
	}
	if len(removed) == 0 {
		end(nil)
		return 0, nil
	}
	if s.reminders != nil {
		for _, id := range removed {
			s.reminders.Cancel(id)
		}
	}
	tracing.Annotate(ctx, "removed", len(removed))
	end(nil)

	log.Printf("Cleaned up %d reservations dated before %s", len(removed), cutoff)
	return len(removed), nil
}

// Resync はミラーを保存済みの予約で全件置き換えます
func (s *Service) Resync(ctx context.Context) error {
	snapshot, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	return s.mirror.Resync(ctx, snapshot)
}

// RestoreReminders は再起動時に未来の有効な予約のリマインダーを登録し直します
func (s *Service) RestoreReminders(ctx context.Context) (int, error) {
	if s.reminders == nil {
		return 0, nil
	}
	snapshot, err := s.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range snapshot {
		if r.Status.Active() && s.scheduleReminder(r) {
			count++
		}
	}
	return count, nil
}

// Wait は実行中のミラー反映がすべて終わるまで待ちます
func (s *Service) Wait() {
	s.pushes.Wait()
}

// push はミラーへの反映を非同期に行います。反映は呼び出し順に1件ずつ実行されます
func (s *Service) push(r model.Reservation, action mirror.Action) {
	s.pushMu.Lock()
	prev := s.lastPush
	done := make(chan struct{})
	s.lastPush = done
	s.pushMu.Unlock()

	s.pushes.Add(1)
	go func() {
		defer s.pushes.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		// 呼び出し元のコンテキストとは独立して実行する
		s.mirror.Push(context.Background(), r, action)
	}()
}

func (s *Service) scheduleReminder(r model.Reservation) bool {
	if s.reminders == nil || r.ReminderTarget() == "" || s.advance <= 0 {
		return false
	}
	n, err := model.NewReminderNotification(r, s.shopName(), s.advance, s.location())
	if err != nil {
		log.Printf("Failed to build reminder for reservation %s: %v", r.ID, err)
		return false
	}
	if !n.SendAt.After(s.now()) {
		return false
	}
	if err := s.reminders.Schedule(r.ID, n.Target, n.Message, n.SendAt); err != nil {
		log.Printf("Failed to schedule reminder for reservation %s: %v", r.ID, err)
		return false
	}
	return true
}

func (s *Service) shopName() string {
	if s.policy.Business == nil {
		return ""
	}
	return s.policy.Business.Name
}

func indexOf(snapshot []model.Reservation, id string) int {
	for i, r := range snapshot {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// IsNotFound は err が予約の不在を表すかを返します
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
