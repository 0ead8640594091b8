package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/uma-arai/barber-booking/internal/common/tracing"
	"github.com/uma-arai/barber-booking/internal/model"
	"github.com/uma-arai/barber-booking/internal/repository"
)

// Engine は保存済みの予約から空き状況を判定します
// 結果はキャッシュしないため、更新後は毎回呼び直してください
type Engine struct {
	store  repository.ReservationStore
	policy Policy
	now    func() time.Time
}

// Option は Engine の設定を変更します
type Option func(*Engine)

// WithClock は現在時刻の取得方法を差し替えます
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine は新しいEngineを作成します
func NewEngine(store repository.ReservationStore, policy Policy, opts ...Option) *Engine {
	e := &Engine{store: store, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsAvailable は指定日時が未予約かつ未来であるかを返します
func (e *Engine) IsAvailable(ctx context.Context, date, clock string) (bool, error) {
	ctx, end := tracing.Start(ctx, "AvailabilityEngine.IsAvailable")

	slot, err := model.NormalizeSlot(date, clock)
	if err != nil {
		end(nil)
		return false, err
	}

	snapshot, err := e.store.Load(ctx)
	if err != nil {
		end(err)
		return false, err
	}

	end(nil)
	return !Taken(snapshot, slot, "") && Future(slot, e.now(), e.policy.location()), nil
}

// AvailableSlots は openHour:00 から closeHour:00 (含まない) までを slotMinutes 刻みで列挙し、
// 空いている時刻だけを昇順で返します
func (e *Engine) AvailableSlots(ctx context.Context, date string, openHour, closeHour, slotMinutes int) ([]string, error) {
	if slotMinutes <= 0 {
		return nil, &model.ValidationError{Field: "slot_minutes", Value: fmt.Sprint(slotMinutes), Reason: "must be positive"}
	}
	if openHour < 0 || closeHour > 24 || openHour >= closeHour {
		return nil, &model.ValidationError{Field: "hours", Value: fmt.Sprintf("%d-%d", openHour, closeHour), Reason: "open must be before close"}
	}
	day, err := model.ParseDate(date)
	if err != nil {
		return nil, err
	}

	ctx, end := tracing.Start(ctx, "AvailabilityEngine.AvailableSlots")
	snapshot, err := e.store.Load(ctx)
	if err != nil {
		end(err)
		return nil, err
	}
	end(nil)

	now := e.now()
	loc := e.policy.location()
	slots := []string{}
	for m := openHour * 60; m < closeHour*60; m += slotMinutes {
		slot := model.Slot{Date: day, Time: model.FormatMinute(m)}
		if !Taken(snapshot, slot, "") && Future(slot, now, loc) {
			slots = append(slots, slot.Time)
		}
	}
	return slots, nil
}

// SlotsForDate は曜日ごとの営業時間と受付ルールに従って予約可能な時刻を返します
// 休業日は空のスライスです
func (e *Engine) SlotsForDate(ctx context.Context, date string) ([]string, error) {
	day, err := model.ParseDate(date)
	if err != nil {
		return nil, err
	}
	if e.policy.Business == nil {
		return nil, fmt.Errorf("business hours are not configured")
	}

	t, _ := time.ParseInLocation(model.DateLayout, day, e.policy.location())
	hours := e.policy.Business.Hours.For(t.Weekday())
	if hours.Closed {
		return []string{}, nil
	}
	openMin, err := model.MinuteOfDay(hours.Open)
	if err != nil {
		return nil, fmt.Errorf("invalid opening time for %s: %w", t.Weekday(), err)
	}
	closeMin, err := model.MinuteOfDay(hours.Close)
	if err != nil {
		return nil, fmt.Errorf("invalid closing time for %s: %w", t.Weekday(), err)
	}
	step := e.policy.Rules.SlotMinutes
	if step <= 0 {
		step = 30
	}

	ctx, end := tracing.Start(ctx, "AvailabilityEngine.SlotsForDate")
	snapshot, err := e.store.Load(ctx)
	if err != nil {
		end(err)
		return nil, err
	}
	end(nil)

	now := e.now()
	slots := []string{}
	for m := openMin; m < closeMin; m += step {
		slot := model.Slot{Date: day, Time: model.FormatMinute(m)}
		if e.policy.Check(snapshot, slot, "", "", now) == nil {
			slots = append(slots, slot.Time)
		}
	}
	return slots, nil
}
