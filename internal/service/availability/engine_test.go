package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uma-arai/barber-booking/internal/config"
	"github.com/uma-arai/barber-booking/internal/model"
	"github.com/uma-arai/barber-booking/internal/repository"
)

// 2025-06-10 は火曜日
var testNow = time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)

func testPolicy() Policy {
	return Policy{
		Business: config.DefaultBusiness(),
		Rules:    Rules{SlotMinutes: 30, AdvanceBookingDays: 30, MaxPerCustomerDay: 3},
		Location: time.UTC,
	}
}

func booked(id, date, clock string, status model.Status) model.Reservation {
	return model.Reservation{ID: id, CustomerName: "Guest", Date: date, Time: clock, Service: "Classic Haircut", Status: status}
}

func newTestEngine(now time.Time, rs ...model.Reservation) *Engine {
	return NewEngine(repository.NewMemoryStore(rs...), testPolicy(), WithClock(func() time.Time { return now }))
}

func TestEngine_IsAvailable(t *testing.T) {
	engine := newTestEngine(testNow,
		booked("a", "2025-06-10", "14:00", model.StatusConfirmed),
		booked("b", "2025-06-10", "15:00", model.StatusCancelled),
	)

	tests := []struct {
		name  string
		date  string
		clock string
		want  bool
	}{
		{name: "予約済みの枠", date: "2025-06-10", clock: "14:00", want: false},
		{name: "12時間表記でも同じ枠として扱う", date: "2025-06-10", clock: "2:00 PM", want: false},
		{name: "キャンセル済みの枠は空き", date: "2025-06-10", clock: "15:00", want: true},
		{name: "過去の時刻", date: "2025-06-10", clock: "07:30", want: false},
		{name: "現在時刻ちょうどは不可", date: "2025-06-10", clock: "08:00", want: false},
		{name: "翌日の空き枠", date: "2025-06-11", clock: "14:00", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.IsAvailable(context.Background(), tt.date, tt.clock)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_IsAvailableInvalidInput(t *testing.T) {
	engine := newTestEngine(testNow)

	_, err := engine.IsAvailable(context.Background(), "10/06/2025", "14:00")
	assert.True(t, model.IsValidation(err))

	_, err = engine.IsAvailable(context.Background(), "2025-06-10", "25:99")
	assert.True(t, model.IsValidation(err))
}

func TestEngine_AvailableSlots(t *testing.T) {
	t.Run("空の日は8枠", func(t *testing.T) {
		engine := newTestEngine(testNow)
		got, err := engine.AvailableSlots(context.Background(), "2025-06-11", 9, 17, 60)
		require.NoError(t, err)
		assert.Equal(t, []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00"}, got)
	})

	t.Run("予約済みの枠を除外", func(t *testing.T) {
		engine := newTestEngine(testNow, booked("a", "2025-06-11", "14:00", model.StatusConfirmed))
		got, err := engine.AvailableSlots(context.Background(), "2025-06-11", 9, 17, 60)
		require.NoError(t, err)
		assert.NotContains(t, got, "14:00")
		assert.Len(t, got, 7)
	})

	t.Run("当日は過ぎた枠を除外", func(t *testing.T) {
		engine := newTestEngine(time.Date(2025, 6, 11, 10, 30, 0, 0, time.UTC))
		got, err := engine.AvailableSlots(context.Background(), "2025-06-11", 9, 12, 30)
		require.NoError(t, err)
		assert.Equal(t, []string{"11:00", "11:30"}, got)
	})

	t.Run("不正な引数", func(t *testing.T) {
		engine := newTestEngine(testNow)
		_, err := engine.AvailableSlots(context.Background(), "2025-06-11", 9, 17, 0)
		assert.True(t, model.IsValidation(err))
		_, err = engine.AvailableSlots(context.Background(), "2025-06-11", 17, 9, 60)
		assert.True(t, model.IsValidation(err))
	})
}

func TestEngine_SlotsForDate(t *testing.T) {
	engine := newTestEngine(testNow, booked("a", "2025-06-11", "09:30", model.StatusConfirmed))

	got, err := engine.SlotsForDate(context.Background(), "2025-06-15")
	require.NoError(t, err)
	assert.Empty(t, got, "sunday is closed")

	got, err = engine.SlotsForDate(context.Background(), "2025-06-14")
	require.NoError(t, err)
	assert.Len(t, got, 16)
	assert.Equal(t, "16:30", got[len(got)-1])

	got, err = engine.SlotsForDate(context.Background(), "2025-06-11")
	require.NoError(t, err)
	assert.Len(t, got, 17)
	assert.Equal(t, "09:00", got[0])
	assert.Equal(t, "10:00", got[1])

	got, err = engine.SlotsForDate(context.Background(), "2025-08-01")
	require.NoError(t, err)
	assert.Empty(t, got, "beyond the advance booking window")
}

func TestEngine_StoreFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	store.LoadErr = assert.AnError
	engine := NewEngine(store, testPolicy(), WithClock(func() time.Time { return testNow }))

	_, err := engine.IsAvailable(context.Background(), "2025-06-11", "10:00")
	var storeErr *model.StoreError
	assert.ErrorAs(t, err, &storeErr)
}
