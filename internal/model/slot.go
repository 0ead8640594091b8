package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout は日付の正規表現形式です
	DateLayout = "2006-01-02"
	// ClockLayout は時刻の正規表現形式です (24時間表記)
	ClockLayout = "15:04"
)

// 入力として受け付ける時刻の形式。出力は常に ClockLayout に正規化する
var clockInputLayouts = []string{
	ClockLayout,
	"3:04 PM",
	"03:04 PM",
	"3:04PM",
	"03:04PM",
	"3:04 pm",
	"03:04 pm",
	"15:04:05",
}

// Slot は予約可能な (日付, 時刻) の組です
type Slot struct {
	Date string
	Time string
}

// String は "YYYY-MM-DD HH:MM" 形式の文字列を返します
func (s Slot) String() string {
	return s.Date + " " + s.Time
}

// In は指定したタイムゾーンでのスロット開始時刻を返します
func (s Slot) In(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, s.String(), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slot %q: %w", s.String(), err)
	}
	return t, nil
}

// Before は正規化済みスロット同士の順序比較です
// 正規形式は辞書順と時系列順が一致するため文字列比較で足ります
func (s Slot) Before(o Slot) bool {
	if s.Date != o.Date {
		return s.Date < o.Date
	}
	return s.Time < o.Time
}

// ParseDate は日付文字列を検証し正規形式で返します
func ParseDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return "", &ValidationError{Field: "date", Value: raw, Reason: "expected YYYY-MM-DD"}
	}
	return d.Format(DateLayout), nil
}

// ParseClock は12時間表記・24時間表記の時刻を受け付け、HH:MM に正規化します
func ParseClock(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range clockInputLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(ClockLayout), nil
		}
	}
	if t, err := time.Parse("3:04 PM", strings.ToUpper(raw)); err == nil {
		return t.Format(ClockLayout), nil
	}
	return "", &ValidationError{Field: "time", Value: raw, Reason: "expected HH:MM or h:MM AM/PM"}
}

// NormalizeSlot は入力された日付と時刻を正規化したスロットに変換します
func NormalizeSlot(date, clock string) (Slot, error) {
	d, err := ParseDate(date)
	if err != nil {
		return Slot{}, err
	}
	c, err := ParseClock(clock)
	if err != nil {
		return Slot{}, err
	}
	return Slot{Date: d, Time: c}, nil
}

// MinuteOfDay は正規化済みの時刻を0時からの経過分に変換します
func MinuteOfDay(clock string) (int, error) {
	t, err := time.Parse(ClockLayout, clock)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", clock, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatMinute は0時からの経過分を HH:MM に変換します
func FormatMinute(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
