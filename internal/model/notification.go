package model

import (
	"fmt"
	"time"
)

// NotificationType は通知の種類を表します
type NotificationType string

const (
	// NotificationTypeReminder は来店前のリマインダーです
	NotificationTypeReminder NotificationType = "reminder"
	// NotificationTypeConfirmation は予約確定の通知です
	NotificationTypeConfirmation NotificationType = "confirmation"
)

// Notification は配信予定のメッセージです
type Notification struct {
	Type          NotificationType `json:"type"`
	ReservationID string           `json:"reservation_id"`
	Target        string           `json:"target"`
	Message       string           `json:"message"`
	SendAt        time.Time        `json:"send_at"`
}

// NewReminderNotification は予約からリマインダー通知を作成します
// 送信時刻は開始時刻から advance だけ前で、送信先は ReminderTarget です
func NewReminderNotification(r Reservation, shopName string, advance time.Duration, loc *time.Location) (Notification, error) {
	target := r.ReminderTarget()
	if target == "" {
		return Notification{}, fmt.Errorf("reservation %s has no phone or customer id to notify", r.ID)
	}
	startsAt, err := r.StartsAt(loc)
	if err != nil {
		return Notification{}, err
	}

	message := fmt.Sprintf("⏰ Reminder: You have a %s appointment at %s today at %s!",
		r.Service, startsAt.Format("3:04 PM"), shopName)

	return Notification{
		Type:          NotificationTypeReminder,
		ReservationID: r.ID,
		Target:        target,
		Message:       message,
		SendAt:        startsAt.Add(-advance),
	}, nil
}

// NewConfirmationNotification は予約確定メッセージを作成します
func NewConfirmationNotification(r Reservation, shopName string, loc *time.Location) (Notification, error) {
	startsAt, err := r.StartsAt(loc)
	if err != nil {
		return Notification{}, err
	}

	message := fmt.Sprintf(`✅ BOOKING CONFIRMED!
Name: %s
Date: %s
Time: %s
Service: %s
Booking ID: %s

Thank you for choosing %s!`,
		r.CustomerName,
		startsAt.Format("Monday, 02 January 2006"),
		startsAt.Format("3:04 PM"),
		r.Service,
		r.ID,
		shopName,
	)

	return Notification{
		Type:          NotificationTypeConfirmation,
		ReservationID: r.ID,
		Target:        r.CustomerID,
		Message:       message,
		SendAt:        r.CreatedAt,
	}, nil
}
