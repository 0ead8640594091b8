package availability

import (
	"time"

	"github.com/uma-arai/barber-booking/internal/config"
	"github.com/uma-arai/barber-booking/internal/model"
)

// Rules は予約受付の数値ルールです。0以下の値はそのルールを無効にします
type Rules struct {
	SlotMinutes        int
	AdvanceBookingDays int
	MaxPerCustomerDay  int
}

// Policy は予約スナップショットに対する受付判定を行います。状態を持ちません
type Policy struct {
	Business *config.Business
	Rules    Rules
	Location *time.Location
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// Taken は slot が excludeID 以外の有効な予約に占有されているかを返します
func Taken(snapshot []model.Reservation, slot model.Slot, excludeID string) bool {
	for _, r := range snapshot {
		if r.ID == excludeID || !r.Status.Active() {
			continue
		}
		if r.Date == slot.Date && r.Time == slot.Time {
			return true
		}
	}
	return false
}

// Future は slot の開始時刻が now より厳密に後かを返します
func Future(slot model.Slot, now time.Time, loc *time.Location) bool {
	start, err := slot.In(loc)
	if err != nil {
		return false
	}
	return start.After(now)
}

// Check は予約作成・再有効化の前提条件をすべて検証します
// 判定順: 過去、営業時間外、枠のずれ、受付期間外、重複、1日の上限
func (p Policy) Check(snapshot []model.Reservation, slot model.Slot, customerID, excludeID string, now time.Time) error {
	loc := p.location()
	unavailable := func(reason model.AvailabilityReason) error {
		return &model.AvailabilityError{Slot: slot, Reason: reason}
	}

	start, err := slot.In(loc)
	if err != nil {
		return &model.ValidationError{Field: "slot", Value: slot.String(), Reason: err.Error()}
	}
	if !start.After(now) {
		return unavailable(model.ReasonPast)
	}

	if p.Business != nil {
		hours := p.Business.Hours.For(start.Weekday())
		if hours.Closed {
			return unavailable(model.ReasonClosed)
		}
		openMin, err := model.MinuteOfDay(hours.Open)
		if err != nil {
			return unavailable(model.ReasonClosed)
		}
		closeMin, err := model.MinuteOfDay(hours.Close)
		if err != nil {
			return unavailable(model.ReasonClosed)
		}
		m := start.Hour()*60 + start.Minute()
		if m < openMin || m >= closeMin {
			return unavailable(model.ReasonClosed)
		}
		if p.Rules.SlotMinutes > 0 && (m-openMin)%p.Rules.SlotMinutes != 0 {
			return unavailable(model.ReasonOffGrid)
		}
	}

	if p.Rules.AdvanceBookingDays > 0 {
		last := now.In(loc).AddDate(0, 0, p.Rules.AdvanceBookingDays).Format(model.DateLayout)
		if slot.Date > last {
			return unavailable(model.ReasonTooFar)
		}
	}

	if Taken(snapshot, slot, excludeID) {
		return unavailable(model.ReasonTaken)
	}

	if customerID != "" && p.Rules.MaxPerCustomerDay > 0 {
		count := 0
		for _, r := range snapshot {
			if r.ID != excludeID && r.Status.Active() && r.CustomerID == customerID && r.Date == slot.Date {
				count++
			}
		}
		if count >= p.Rules.MaxPerCustomerDay {
			return unavailable(model.ReasonDailyLimit)
		}
	}

	return nil
}
