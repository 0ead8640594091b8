package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/uma-arai/barber-booking/internal/config"
	"github.com/uma-arai/barber-booking/internal/model"
	"github.com/uma-arai/barber-booking/internal/service/booking"
)

const dateChoices = 7

// SlotFinder は会話中に空き状況を確認するためのインターフェースです
type SlotFinder interface {
	SlotsForDate(ctx context.Context, date string) ([]string, error)
	IsAvailable(ctx context.Context, date, clock string) (bool, error)
}

// Booker は予約を確定するためのインターフェースです
type Booker interface {
	Create(ctx context.Context, req booking.CreateRequest) (model.Reservation, error)
}

// Reply はチャットへ返す内容です。Options は選択肢として提示する値です
type Reply struct {
	Text        string
	Step        Step
	Options     []string
	Reservation *model.Reservation
}

// Flow はチャットの入力に応じて予約会話を進めます
type Flow struct {
	store    Store
	slots    SlotFinder
	booker   Booker
	business *config.Business
	loc      *time.Location
	now      func() time.Time
}

// NewFlow は新しいFlowを作成します
func NewFlow(store Store, slots SlotFinder, booker Booker, business *config.Business, loc *time.Location) *Flow {
	if loc == nil {
		loc = time.Local
	}
	return &Flow{store: store, slots: slots, booker: booker, business: business, loc: loc, now: time.Now}
}

// Start は新しい予約会話を始めます。進行中の会話は破棄されます
func (f *Flow) Start(ctx context.Context, chatID, customerID string) (Reply, error) {
	st := &State{ChatID: chatID, CustomerID: customerID, Step: StepName, UpdatedAt: f.now()}
	if err := f.store.Put(ctx, st); err != nil {
		return Reply{}, err
	}
	return Reply{Step: StepName, Text: "📅 Let's book your appointment!\n\n👤 What's your full name?"}, nil
}

// Handle はチャットの入力を現在の段階に応じて処理します
// 進行中の会話がない場合は ErrNoSession を返します
func (f *Flow) Handle(ctx context.Context, chatID, input string) (Reply, error) {
	st, err := f.store.Get(ctx, chatID)
	if err != nil {
		return Reply{}, err
	}

	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "cancel") {
		if err := f.store.Delete(ctx, chatID); err != nil {
			return Reply{}, err
		}
		return Reply{Step: StepDone, Text: "❌ Booking cancelled. Feel free to start again any time."}, nil
	}

	var reply Reply
	switch st.Step {
	case StepName:
		reply = f.handleName(st, input)
	case StepDate:
		reply, err = f.handleDate(ctx, st, input)
	case StepTime:
		reply, err = f.handleTime(ctx, st, input)
	case StepService:
		reply = f.handleService(st, input)
	case StepConfirm:
		reply, err = f.handleConfirm(ctx, st, input)
	default:
		err = fmt.Errorf("session %s in unexpected step %q", chatID, st.Step)
	}
	if err != nil {
		return Reply{}, err
	}

	if reply.Step == StepDone {
		return reply, f.store.Delete(ctx, chatID)
	}
	st.UpdatedAt = f.now()
	return reply, f.store.Put(ctx, st)
}

func (f *Flow) handleName(st *State, input string) Reply {
	if n := utf8.RuneCountInString(input); n < 2 || n > 50 {
		return Reply{Step: StepName, Text: "❌ Please enter a valid name (2-50 characters)\n\n👤 What's your full name?"}
	}
	st.Name = input
	st.Step = StepDate
	return Reply{
		Step:    StepDate,
		Text:    fmt.Sprintf("Great, %s! 📅\n\nWhat date would you like to book?", input),
		Options: f.dateOptions(),
	}
}

func (f *Flow) handleDate(ctx context.Context, st *State, input string) (Reply, error) {
	today := f.now().In(f.loc)
	var raw string
	switch strings.ToLower(input) {
	case "today":
		raw = today.Format(model.DateLayout)
	case "tomorrow":
		raw = today.AddDate(0, 0, 1).Format(model.DateLayout)
	default:
		raw = input
	}

	date, err := model.ParseDate(raw)
	if err != nil {
		return Reply{Step: StepDate, Text: "❌ Invalid date format. Please use YYYY-MM-DD.", Options: f.dateOptions()}, nil
	}
	day, _ := time.ParseInLocation(model.DateLayout, date, f.loc)
	if f.business != nil && f.business.Hours.For(day.Weekday()).Closed {
		return Reply{
			Step:    StepDate,
			Text:    fmt.Sprintf("❌ We're closed on %ss. Please choose another date.", day.Weekday()),
			Options: f.dateOptions(),
		}, nil
	}

	slots, err := f.slots.SlotsForDate(ctx, date)
	if err != nil {
		return Reply{}, err
	}
	if len(slots) == 0 {
		return Reply{
			Step:    StepDate,
			Text:    fmt.Sprintf("❌ No available slots for %s.\n\nPlease choose another date.", day.Format("Monday, 02 January 2006")),
			Options: f.dateOptions(),
		}, nil
	}

	st.Date = date
	st.Step = StepTime
	return Reply{
		Step:    StepTime,
		Text:    fmt.Sprintf("🕐 Available times for %s:\n\nPlease select a time:", day.Format("Monday, 02 January 2006")),
		Options: slots,
	}, nil
}

func (f *Flow) handleTime(ctx context.Context, st *State, input string) (Reply, error) {
	clock, err := model.ParseClock(input)
	if err != nil {
		return f.timeRetry(ctx, st, "❌ Please pick one of the listed times.")
	}

	ok, err := f.slots.IsAvailable(ctx, st.Date, clock)
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		return f.timeRetry(ctx, st, "❌ That time slot is no longer available!")
	}

	st.Time = clock
	st.Step = StepService
	return Reply{
		Step:    StepService,
		Text:    "✂️ What service would you like?\n\nPlease select from our menu:",
		Options: f.serviceOptions(),
	}, nil
}

func (f *Flow) timeRetry(ctx context.Context, st *State, text string) (Reply, error) {
	slots, err := f.slots.SlotsForDate(ctx, st.Date)
	if err != nil {
		return Reply{}, err
	}
	if len(slots) == 0 {
		st.Step = StepDate
		st.Date = ""
		return Reply{Step: StepDate, Text: text + "\n\nNo times are left on that day. Please choose another date.", Options: f.dateOptions()}, nil
	}
	return Reply{Step: StepTime, Text: text, Options: slots}, nil
}

func (f *Flow) handleService(st *State, input string) Reply {
	if f.business != nil && !f.business.Services.Has(input) {
		return Reply{Step: StepService, Text: "❌ Please select a service from the menu.", Options: f.serviceOptions()}
	}
	st.Service = input
	st.Step = StepConfirm
	return Reply{Step: StepConfirm, Text: f.summary(st), Options: []string{"confirm", "cancel"}}
}

func (f *Flow) handleConfirm(ctx context.Context, st *State, input string) (Reply, error) {
	switch strings.ToLower(input) {
	case "confirm", "yes":
	default:
		return Reply{Step: StepConfirm, Text: f.summary(st), Options: []string{"confirm", "cancel"}}, nil
	}

	r, err := f.booker.Create(ctx, booking.CreateRequest{
		Name:       st.Name,
		Date:       st.Date,
		Time:       st.Time,
		Service:    st.Service,
		CustomerID: st.CustomerID,
	})
	var availErr *model.AvailabilityError
	switch {
	case errors.As(err, &availErr):
		st.Step = StepTime
		st.Time = ""
		return f.timeRetry(ctx, st, fmt.Sprintf("❌ Sorry, %s is no longer available (%s).", availErr.Slot.Time, availErr.Reason))
	case model.IsValidation(err):
		return Reply{Step: StepDone, Text: fmt.Sprintf("❌ We could not book that: %v", err)}, nil
	case err != nil:
		log.Printf("Failed to create reservation for chat %s: %v", st.ChatID, err)
		return Reply{Step: StepDone, Text: "❌ Sorry, something went wrong while booking. Please try again later."}, nil
	}

	shop := ""
	if f.business != nil {
		shop = f.business.Name
	}
	text := "✅ BOOKING CONFIRMED!"
	if n, err := model.NewConfirmationNotification(r, shop, f.loc); err == nil {
		text = n.Message
	}
	return Reply{Step: StepDone, Text: text, Reservation: &r}, nil
}

func (f *Flow) summary(st *State) string {
	day, _ := time.ParseInLocation(model.DateLayout, st.Date, f.loc)
	price := "N/A"
	if f.business != nil {
		if info, ok := f.business.Services[st.Service]; ok {
			price = fmt.Sprintf("$%d", info.Price)
		}
	}
	return fmt.Sprintf("📋 BOOKING CONFIRMATION\n\n👤 Name: %s\n📅 Date: %s\n🕐 Time: %s\n✂️ Service: %s\n💰 Price: %s\n\nPlease confirm your booking:",
		st.Name, day.Format("Monday, 02 January 2006"), st.Time, st.Service, price)
}

// dateOptions は今日から営業日だけを最大 dateChoices 日分返します
func (f *Flow) dateOptions() []string {
	today := f.now().In(f.loc)
	var out []string
	for i := 0; i < dateChoices; i++ {
		d := today.AddDate(0, 0, i)
		if f.business != nil && f.business.Hours.For(d.Weekday()).Closed {
			continue
		}
		out = append(out, d.Format(model.DateLayout))
	}
	return out
}

func (f *Flow) serviceOptions() []string {
	if f.business == nil {
		return nil
	}
	return f.business.Services.Names()
}
