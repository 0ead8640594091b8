package model

import (
	"fmt"
	"time"
)

// Status は予約の状態を表します
type Status string

const (
	// StatusPending は承認待ちの予約です。現状どの処理からも作成されませんが、将来の承認フロー用に残しています
	StatusPending Status = "pending"
	// StatusConfirmed は確定済みの予約です
	StatusConfirmed Status = "confirmed"
	// StatusCancelled はキャンセル済みの予約です。終端状態です
	StatusCancelled Status = "cancelled"
)

// Valid は既知のステータスかどうかを返します
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Active はスロットを占有するステータスかどうかを返します
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Reservation は予約情報を表す構造体です
// Date と Time は常に正規化済みの文字列 (YYYY-MM-DD / HH:MM) で保持します
type Reservation struct {
	ID           string    `json:"id" db:"id"`
	CustomerName string    `json:"name" db:"customer_name"`
	Date         string    `json:"date" db:"date"`
	Time         string    `json:"time" db:"time"`
	Service      string    `json:"service" db:"service"`
	CustomerID   string    `json:"customer_id,omitempty" db:"customer_id"`
	Status       Status    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created" db:"created_at"`
	Phone        string    `json:"phone" db:"phone"`
	Notes        string    `json:"notes" db:"notes"`
}

// Slot は予約の正規化済み (日付, 時刻) を返します
func (r Reservation) Slot() Slot {
	return Slot{Date: r.Date, Time: r.Time}
}

// ReminderTarget はリマインダーの送信先です。電話番号があればそれを、なければ顧客IDを使います
func (r Reservation) ReminderTarget() string {
	if r.Phone != "" {
		return r.Phone
	}
	return r.CustomerID
}

// StartsAt は予約の開始時刻を指定されたタイムゾーンで返します
func (r Reservation) StartsAt(loc *time.Location) (time.Time, error) {
	t, err := r.Slot().In(loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("reservation %s: %w", r.ID, err)
	}
	return t, nil
}

// Record はミラーやエクスポートで使う固定列順の行データを返します
// 列順: ID, Name, Date, Time, Service, CustomerID, Status, Created, Phone, Notes
func (r Reservation) Record() []string {
	return []string{
		r.ID,
		r.CustomerName,
		r.Date,
		r.Time,
		r.Service,
		r.CustomerID,
		string(r.Status),
		r.CreatedAt.Format(time.RFC3339),
		r.Phone,
		r.Notes,
	}
}
