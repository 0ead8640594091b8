package booking

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uma-arai/barber-booking/internal/config"
	"github.com/uma-arai/barber-booking/internal/mirror"
	"github.com/uma-arai/barber-booking/internal/model"
	"github.com/uma-arai/barber-booking/internal/repository"
	"github.com/uma-arai/barber-booking/internal/service/availability"
)

// 2025-06-01 09:00 UTC (日曜日)
var testNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type pushed struct {
	id     string
	status model.Status
	action mirror.Action
}

type fakeMirror struct {
	mu      sync.Mutex
	pushes  []pushed
	ok      bool
	resyncs [][]model.Reservation
}

func (f *fakeMirror) Push(_ context.Context, r model.Reservation, action mirror.Action) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, pushed{id: r.ID, status: r.Status, action: action})
	return f.ok
}

func (f *fakeMirror) Resync(_ context.Context, all []model.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resyncs = append(f.resyncs, all)
	return nil
}

type scheduled struct {
	target string
	text   string
	at     time.Time
}

type fakeReminders struct {
	mu        sync.Mutex
	jobs      map[string]scheduled
	cancelled []string
}

func newFakeReminders() *fakeReminders {
	return &fakeReminders{jobs: map[string]scheduled{}}
}

func (f *fakeReminders) Schedule(id, target, text string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id] = scheduled{target: target, text: text, at: at}
	return nil
}

func (f *fakeReminders) Cancel(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	_, ok := f.jobs[id]
	delete(f.jobs, id)
	return ok
}

type fixture struct {
	svc       *Service
	store     *repository.MemoryStore
	mirror    *fakeMirror
	reminders *fakeReminders
}

func newFixture(t *testing.T, initial ...model.Reservation) *fixture {
	t.Helper()
	f := &fixture{
		store:     repository.NewMemoryStore(initial...),
		mirror:    &fakeMirror{ok: true},
		reminders: newFakeReminders(),
	}
	seq := 0
	policy := availability.Policy{
		Business: config.DefaultBusiness(),
		Rules:    availability.Rules{SlotMinutes: 30, AdvanceBookingDays: 30, MaxPerCustomerDay: 3},
		Location: time.UTC,
	}
	f.svc = NewService(f.store, policy,
		WithMirror(f.mirror),
		WithReminders(f.reminders, time.Hour),
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("res-%d", seq)
		}),
	)
	return f
}

func (f *fixture) load(t *testing.T) []model.Reservation {
	t.Helper()
	rs, err := f.store.Load(context.Background())
	require.NoError(t, err)
	return rs
}

func haircut(name, date, clock string) CreateRequest {
	return CreateRequest{Name: name, Date: date, Time: clock, Service: "Classic Haircut"}
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	req := CreateRequest{Name: "  John Smith ", Date: "2025-06-10", Time: "2:00 PM", Service: "Fade Cut", CustomerID: "12345", Phone: "+15551234567"}

	r, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, "res-1", r.ID)
	assert.Equal(t, "John Smith", r.CustomerName)
	assert.Equal(t, "2025-06-10", r.Date)
	assert.Equal(t, "14:00", r.Time)
	assert.Equal(t, model.StatusConfirmed, r.Status)
	assert.True(t, r.CreatedAt.Equal(testNow))

	assert.Equal(t, []model.Reservation{r}, f.load(t))
	assert.Equal(t, []pushed{{id: "res-1", status: model.StatusConfirmed, action: mirror.ActionAdd}}, f.mirror.pushes)

	job, ok := f.reminders.jobs["res-1"]
	require.True(t, ok)
	assert.Equal(t, "+15551234567", job.target, "phone number is preferred over the chat id")
	assert.True(t, job.at.Equal(time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC)))
	assert.Contains(t, job.text, "Fade Cut")
}

func TestService_CreateWithoutCustomerSkipsReminder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), haircut("John Smith", "2025-06-10", "14:00"))
	require.NoError(t, err)
	assert.Empty(t, f.reminders.jobs)
}

func TestService_CreateConflict(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), haircut("Alice Brown", "2025-06-10", "14:00"))
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), haircut("Bob Green", "2025-06-10", "2:00 PM"))
	var availErr *model.AvailabilityError
	require.ErrorAs(t, err, &availErr)
	assert.Equal(t, model.ReasonTaken, availErr.Reason)

	count := 0
	for _, r := range f.load(t) {
		if r.Date == "2025-06-10" && r.Time == "14:00" && r.Status.Active() {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestService_CreateRejectsPast(t *testing.T) {
	f := newFixture(t)

	for _, req := range []CreateRequest{
		haircut("John Smith", "2025-05-30", "10:00"),
		haircut("John Smith", "2025-06-01", "09:00"),
	} {
		_, err := f.svc.Create(context.Background(), req)
		var availErr *model.AvailabilityError
		require.ErrorAs(t, err, &availErr)
		assert.Equal(t, model.ReasonPast, availErr.Reason)
	}
	assert.Equal(t, 0, f.store.Saves())
}

func TestService_CreateValidation(t *testing.T) {
	tests := []struct {
		name      string
		req       CreateRequest
		wantField string
	}{
		{name: "名前が短すぎる", req: haircut(" A ", "2025-06-10", "14:00"), wantField: "name"},
		{name: "名前が長すぎる", req: haircut(strings.Repeat("x", 51), "2025-06-10", "14:00"), wantField: "name"},
		{name: "名前が空", req: haircut("   ", "2025-06-10", "14:00"), wantField: "name"},
		{name: "不明なサービス", req: CreateRequest{Name: "John Smith", Date: "2025-06-10", Time: "14:00", Service: "Manicure"}, wantField: "service"},
		{name: "不正な日付", req: haircut("John Smith", "2025-13-01", "14:00"), wantField: "date"},
		{name: "不正な時刻", req: haircut("John Smith", "2025-06-10", "noon"), wantField: "time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Create(context.Background(), tt.req)
			var vErr *model.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
			assert.Equal(t, 0, f.store.Saves())
		})
	}
}

func TestService_CreateDailyLimit(t *testing.T) {
	f := newFixture(t)
	for _, clock := range []string{"10:00", "11:00", "12:00"} {
		req := haircut("John Smith", "2025-06-10", clock)
		req.CustomerID = "42"
		_, err := f.svc.Create(context.Background(), req)
		require.NoError(t, err)
	}

	req := haircut("John Smith", "2025-06-10", "13:00")
	req.CustomerID = "42"
	_, err := f.svc.Create(context.Background(), req)
	var availErr *model.AvailabilityError
	require.ErrorAs(t, err, &availErr)
	assert.Equal(t, model.ReasonDailyLimit, availErr.Reason)
}

func TestService_MirrorFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.mirror.ok = false

	r, err := f.svc.Create(context.Background(), haircut("John Smith", "2025-06-10", "14:00"))
	require.NoError(t, err)
	f.svc.Wait()

	assert.Len(t, f.mirror.pushes, 1)
	got, err := f.svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestService_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.SaveErr = errors.New("disk full")

	_, err := f.svc.Create(context.Background(), haircut("John Smith", "2025-06-10", "14:00"))
	var storeErr *model.StoreError
	require.ErrorAs(t, err, &storeErr)
	f.svc.Wait()
	assert.Empty(t, f.mirror.pushes)
	assert.Empty(t, f.load(t))
}

func TestService_Update(t *testing.T) {
	f := newFixture(t)
	r, err := f.svc.Create(context.Background(), haircut("John Smith", "2025-06-10", "14:00"))
	require.NoError(t, err)

	changes, err := ChangesFromMap(map[string]any{
		"phone": " 555-0100 ",
		"notes": "prefers scissors",
		"date":  "2025-06-11",
		"foo":   "bar",
	})
	require.NoError(t, err)

	updated, err := f.svc.Update(context.Background(), r.ID, changes)
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, "555-0100", updated.Phone)
	assert.Equal(t, "prefers scissors", updated.Notes)
	assert.Equal(t, "2025-06-10", updated.Date, "immutable fields are ignored")
	assert.Equal(t, mirror.ActionUpdate, f.mirror.pushes[len(f.mirror.pushes)-1].action)
}

func TestService_UpdateNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Update(context.Background(), "missing", Changes{})
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.True(t, IsNotFound(err))

	_, err = f.svc.Cancel(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestService_UpdateInvalidStatus(t *testing.T) {
	f := newFixture(t)
	r, err := f.svc.Create(context.Background(), haircut("John Smith", "2025-06-10", "14:00"))
	require.NoError(t, err)

	changes, err := ChangesFromMap(map[string]any{"status": "archived"})
	require.NoError(t, err)
	_, err = f.svc.Update(context.Background(), r.ID, changes)
	assert.True(t, model.IsValidation(err))

	_, err = ChangesFromMap(map[string]any{"status": 3})
	assert.True(t, model.IsValidation(err))
}

func TestService_CancelIsIdempotent(t *testing.T) {
	f := newFixture(t)
	req := haircut("John Smith", "2025-06-10", "14:00")
	req.CustomerID = "12345"
	r, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	require.Contains(t, f.reminders.jobs, r.ID)

	cancelled, err := f.svc.Cancel(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.NotContains(t, f.reminders.jobs, r.ID)
	saves := f.store.Saves()

	again, err := f.svc.Cancel(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, again.Status)
	assert.Equal(t, saves, f.store.Saves(), "second cancel does not write")

	confirmed := model.StatusConfirmed
	_, err = f.svc.Update(context.Background(), r.ID, Changes{Status: &confirmed})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	got, err := f.svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
}

func TestService_CancelFreesSlot(t *testing.T) {
	f := newFixture(t)
	r, err := f.svc.Create(context.Background(), haircut("Alice Brown", "2025-06-10", "14:00"))
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), r.ID)
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), haircut("Bob Green", "2025-06-10", "14:00"))
	assert.NoError(t, err)
}

func TestService_ConfirmPendingRechecksSlot(t *testing.T) {
	f := newFixture(t,
		model.Reservation{ID: "p", CustomerName: "Pending", Date: "2025-06-10", Time: "14:00", Service: "Classic Haircut", Status: model.StatusPending},
		model.Reservation{ID: "c", CustomerName: "Confirmed", Date: "2025-06-10", Time: "14:00", Service: "Classic Haircut", Status: model.StatusConfirmed},
		model.Reservation{ID: "q", CustomerName: "Alone", Date: "2025-06-10", Time: "15:00", Service: "Classic Haircut", Status: model.StatusPending},
	)
	confirmed := model.StatusConfirmed

	_, err := f.svc.Update(context.Background(), "p", Changes{Status: &confirmed})
	var availErr *model.AvailabilityError
	require.ErrorAs(t, err, &availErr)
	assert.Equal(t, model.ReasonTaken, availErr.Reason)

	got, err := f.svc.Update(context.Background(), "q", Changes{Status: &confirmed})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
}

func TestService_ReactivationRunsAvailabilityChecks(t *testing.T) {
	tests := []struct {
		name       string
		existing   []model.Reservation
		id         string
		wantReason model.AvailabilityReason
	}{
		{
			name:       "過去の予約は確定できない",
			existing:   []model.Reservation{{ID: "past", CustomerName: "Old", Date: "2025-05-20", Time: "10:00", Service: "Classic Haircut", Status: model.StatusPending}},
			id:         "past",
			wantReason: model.ReasonPast,
		},
		{
			name:       "定休日の予約は確定できない",
			existing:   []model.Reservation{{ID: "sunday", CustomerName: "Closed", Date: "2025-06-08", Time: "10:00", Service: "Classic Haircut", Status: model.StatusPending}},
			id:         "sunday",
			wantReason: model.ReasonClosed,
		},
		{
			name: "1日の上限を超える確定はできない",
			existing: []model.Reservation{
				{ID: "x1", Date: "2025-06-10", Time: "10:00", CustomerID: "42", Status: model.StatusConfirmed},
				{ID: "x2", Date: "2025-06-10", Time: "11:00", CustomerID: "42", Status: model.StatusConfirmed},
				{ID: "x3", Date: "2025-06-10", Time: "12:00", CustomerID: "42", Status: model.StatusConfirmed},
				{ID: "fourth", Date: "2025-06-10", Time: "13:00", CustomerID: "42", Status: model.StatusPending},
			},
			id:         "fourth",
			wantReason: model.ReasonDailyLimit,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.existing...)
			confirmed := model.StatusConfirmed

			_, err := f.svc.Update(context.Background(), tt.id, Changes{Status: &confirmed})
			var availErr *model.AvailabilityError
			require.ErrorAs(t, err, &availErr)
			assert.Equal(t, tt.wantReason, availErr.Reason)
			assert.Equal(t, 0, f.store.Saves())

			got, err := f.svc.Get(context.Background(), tt.id)
			require.NoError(t, err)
			assert.Equal(t, model.StatusPending, got.Status)
		})
	}
}

func TestService_NotesOnPastReservationSkipChecks(t *testing.T) {
	f := newFixture(t, model.Reservation{ID: "past", CustomerName: "Old", Date: "2025-05-20", Time: "10:00", Service: "Classic Haircut", Status: model.StatusConfirmed})
	notes := "paid in cash"

	got, err := f.svc.Update(context.Background(), "past", Changes{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "paid in cash", got.Notes)
}

type gatedMirror struct {
	*fakeMirror
	gate chan struct{}
}

func (g *gatedMirror) Push(ctx context.Context, r model.Reservation, action mirror.Action) bool {
	if action == mirror.ActionAdd {
		<-g.gate
	}
	return g.fakeMirror.Push(ctx, r, action)
}

func TestService_MirrorPushesKeepOrder(t *testing.T) {
	m := &gatedMirror{fakeMirror: &fakeMirror{ok: true}, gate: make(chan struct{})}
	policy := availability.Policy{Business: config.DefaultBusiness(), Rules: availability.Rules{SlotMinutes: 30}, Location: time.UTC}
	svc := NewService(repository.NewMemoryStore(), policy,
		WithMirror(m),
		WithClock(func() time.Time { return testNow }),
	)

	r, err := svc.Create(context.Background(), haircut("John Smith", "2025-06-10", "14:00"))
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), r.ID)
	require.NoError(t, err)

	close(m.gate)
	svc.Wait()

	assert.Equal(t, []pushed{
		{id: r.ID, status: model.StatusConfirmed, action: mirror.ActionAdd},
		{id: r.ID, status: model.StatusCancelled, action: mirror.ActionUpdate},
	}, m.pushes)
}

func TestService_WritersSharingFileKeepEveryBooking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookings.json")
	policy := availability.Policy{
		Business: config.DefaultBusiness(),
		Rules:    availability.Rules{SlotMinutes: 30, AdvanceBookingDays: 30},
		Location: time.UTC,
	}
	// デーモンとバッチのように別々のストアで同じファイルを共有する
	daemon := NewService(repository.NewFileStore(path), policy, WithClock(func() time.Time { return testNow }))
	batch := NewService(repository.NewFileStore(path), policy, WithClock(func() time.Time { return testNow }))

	seed := repository.NewFileStore(path)
	require.NoError(t, seed.Save(context.Background(), []model.Reservation{
		{ID: "stale", CustomerName: "Old", Date: "2025-04-01", Time: "10:00", Service: "Fade Cut", Status: model.StatusCancelled},
	}))

	clocks := []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "12:00", "12:30"}
	var wg sync.WaitGroup
	for i, clock := range clocks {
		wg.Add(1)
		go func(i int, clock string) {
			defer wg.Done()
			_, err := daemon.Create(context.Background(), haircut(fmt.Sprintf("Customer %02d", i), "2025-06-10", clock))
			assert.NoError(t, err)
		}(i, clock)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := batch.Cleanup(context.Background(), 30)
		assert.NoError(t, err)
	}()
	wg.Wait()

	rs, err := seed.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, rs, len(clocks))
	for _, r := range rs {
		assert.NotEqual(t, "stale", r.ID)
	}
}

func TestService_Cleanup(t *testing.T) {
	old := "2025-04-22" // 40日前
	f := newFixture(t,
		model.Reservation{ID: "old-cancelled", Date: old, Time: "10:00", Status: model.StatusCancelled},
		model.Reservation{ID: "old-confirmed", Date: old, Time: "10:00", Status: model.StatusConfirmed},
		model.Reservation{ID: "old-pending", Date: old, Time: "11:00", Status: model.StatusPending},
		model.Reservation{ID: "recent-cancelled", Date: "2025-05-22", Time: "10:00", Status: model.StatusCancelled},
	)

	removed, err := f.svc.Cleanup(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	var ids []string
	for _, r := range f.load(t) {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"old-confirmed", "recent-cancelled"}, ids)
	assert.ElementsMatch(t, []string{"old-cancelled", "old-pending"}, f.reminders.cancelled)

	removed, err = f.svc.Cleanup(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestService_ConcurrentCreatesForSameSlot(t *testing.T) {
	store := repository.NewMemoryStore()
	policy := availability.Policy{Business: config.DefaultBusiness(), Rules: availability.Rules{SlotMinutes: 30}, Location: time.UTC}
	svc := NewService(store, policy, WithClock(func() time.Time { return testNow }))

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, conflicts := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Create(context.Background(), haircut(fmt.Sprintf("Customer %02d", i), "2025-06-10", "14:00"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if model.IsUnavailable(err) {
				conflicts++
			}
		}(i)
	}
	wg.Wait()
	svc.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	rs, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, rs, 1)
}

func TestService_RestoreRemindersAndResync(t *testing.T) {
	f := newFixture(t,
		model.Reservation{ID: "future", CustomerName: "A", Date: "2025-06-10", Time: "14:00", Service: "Fade Cut", CustomerID: "1", Status: model.StatusConfirmed},
		model.Reservation{ID: "no-customer", CustomerName: "B", Date: "2025-06-10", Time: "15:00", Service: "Fade Cut", Status: model.StatusConfirmed},
		model.Reservation{ID: "cancelled", CustomerName: "C", Date: "2025-06-10", Time: "16:00", Service: "Fade Cut", CustomerID: "1", Status: model.StatusCancelled},
		model.Reservation{ID: "soon", CustomerName: "D", Date: "2025-06-01", Time: "09:30", Service: "Fade Cut", CustomerID: "1", Status: model.StatusConfirmed},
	)

	n, err := f.svc.RestoreReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, f.reminders.jobs, "future")

	require.NoError(t, f.svc.Resync(context.Background()))
	require.Len(t, f.mirror.resyncs, 1)
	assert.Len(t, f.mirror.resyncs[0], 4)
}
