package model

import (
	"errors"
	"testing"
	"time"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		status Status
		valid  bool
		active bool
	}{
		{StatusPending, true, true},
		{StatusConfirmed, true, true},
		{StatusCancelled, true, false},
		{Status("archived"), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.valid {
				t.Errorf("Status.Valid() = %v, want %v", got, tt.valid)
			}
			if got := tt.status.Active(); got != tt.active {
				t.Errorf("Status.Active() = %v, want %v", got, tt.active)
			}
		})
	}
}

func TestReservationRecord(t *testing.T) {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	r := Reservation{
		ID:           "abc",
		CustomerName: "John Smith",
		Date:         "2025-06-10",
		Time:         "14:00",
		Service:      "Classic Haircut",
		CustomerID:   "42",
		Status:       StatusConfirmed,
		CreatedAt:    created,
		Phone:        "+15550100",
		Notes:        "fade on the sides",
	}

	want := []string{"abc", "John Smith", "2025-06-10", "14:00", "Classic Haircut", "42", "confirmed", "2025-06-01T10:00:00Z", "+15550100", "fade on the sides"}
	got := r.Record()
	if len(got) != len(want) {
		t.Fatalf("Record() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Record()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReservationStartsAt(t *testing.T) {
	loc := time.FixedZone("test", 2*60*60)
	r := Reservation{ID: "x", Date: "2025-06-10", Time: "09:30"}

	got, err := r.StartsAt(loc)
	if err != nil {
		t.Fatalf("StartsAt() error = %v", err)
	}
	want := time.Date(2025, 6, 10, 9, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("StartsAt() = %v, want %v", got, want)
	}

	r.Time = "9:30 AM"
	if _, err := r.StartsAt(loc); err == nil {
		t.Error("StartsAt() with non-canonical time should fail")
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"14:00", "14:00", false},
		{"09:00", "09:00", false},
		{"2:30 PM", "14:30", false},
		{"02:30 PM", "14:30", false},
		{"2:30PM", "14:30", false},
		{"9:00 am", "09:00", false},
		{"12:00 PM", "12:00", false},
		{"12:00 AM", "00:00", false},
		{" 10:00 ", "10:00", false},
		{"25:00", "", true},
		{"noon", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClock(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseClock(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if err != nil && !IsValidation(err) {
				t.Errorf("ParseClock(%q) error type = %T, want *ValidationError", tt.in, err)
			}
		})
	}
}

func TestSlotBefore(t *testing.T) {
	a := Slot{Date: "2025-06-10", Time: "09:00"}
	b := Slot{Date: "2025-06-10", Time: "14:00"}
	c := Slot{Date: "2025-06-11", Time: "08:00"}

	if !a.Before(b) || !b.Before(c) || c.Before(a) || a.Before(a) {
		t.Error("Slot.Before() ordering is inconsistent")
	}
}

func TestMinuteOfDay(t *testing.T) {
	m, err := MinuteOfDay("13:30")
	if err != nil || m != 810 {
		t.Errorf("MinuteOfDay() = %d, %v", m, err)
	}
	if FormatMinute(m) != "13:30" {
		t.Errorf("FormatMinute(%d) = %q", m, FormatMinute(m))
	}
}

func TestErrors(t *testing.T) {
	cause := errors.New("disk full")
	storeErr := &StoreError{Op: "save", Err: cause}
	if !errors.Is(storeErr, cause) {
		t.Error("StoreError should unwrap to its cause")
	}

	mirrorErr := &MirrorSyncError{ReservationID: "abc", Action: "add", Err: cause}
	if !errors.Is(mirrorErr, cause) {
		t.Error("MirrorSyncError should unwrap to its cause")
	}

	availErr := &AvailabilityError{Slot: Slot{Date: "2025-06-10", Time: "14:00"}, Reason: ReasonTaken}
	if !IsUnavailable(availErr) {
		t.Error("IsUnavailable() = false, want true")
	}
	if availErr.Error() != "slot 2025-06-10 14:00 unavailable: slot already taken" {
		t.Errorf("AvailabilityError.Error() = %q", availErr.Error())
	}
}
