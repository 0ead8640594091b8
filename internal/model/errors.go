package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound は指定IDの予約が存在しないことを表します
	ErrNotFound = errors.New("reservation not found")
	// ErrInvalidTransition は許可されていないステータス遷移を表します
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError は入力値の不正を表します。状態は一切変更されません
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// AvailabilityReason は予約できない理由です
type AvailabilityReason string

const (
	ReasonTaken      AvailabilityReason = "slot already taken"
	ReasonPast       AvailabilityReason = "slot is not in the future"
	ReasonClosed     AvailabilityReason = "outside business hours"
	ReasonOffGrid    AvailabilityReason = "time is not on the slot grid"
	ReasonTooFar     AvailabilityReason = "beyond the advance booking window"
	ReasonDailyLimit AvailabilityReason = "daily booking limit reached"
)

// AvailabilityError は指定スロットが予約できないことを表します
// 呼び出し側は別の時間を再度問い合わせることが想定されています
type AvailabilityError struct {
	Slot   Slot
	Reason AvailabilityReason
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("slot %s unavailable: %s", e.Slot, e.Reason)
}

// StoreError は永続化層の読み書き失敗を表します
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// MirrorSyncError はスプレッドシートへの同期失敗を表します。主処理には影響しません
type MirrorSyncError struct {
	ReservationID string
	Action        string
	Err           error
}

func (e *MirrorSyncError) Error() string {
	return fmt.Sprintf("mirror %s %s: %v", e.Action, e.ReservationID, e.Err)
}

func (e *MirrorSyncError) Unwrap() error { return e.Err }

// IsValidation は err が *ValidationError かを返します
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsUnavailable は err が *AvailabilityError かを返します
func IsUnavailable(err error) bool {
	var a *AvailabilityError
	return errors.As(err, &a)
}

// IsStoreError は err が *StoreError かを返します
func IsStoreError(err error) bool {
	var s *StoreError
	return errors.As(err, &s)
}
