package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/uma-arai/barber-booking/internal/config"
	"github.com/uma-arai/barber-booking/internal/model"
)

// Bookings は顧客ごとの予約一覧を返します
type Bookings interface {
	ByCustomer(ctx context.Context, customerID string) ([]model.Reservation, error)
}

// Cancellations は顧客自身による予約のキャンセルです
type Cancellations interface {
	Get(ctx context.Context, id string) (model.Reservation, error)
	Cancel(ctx context.Context, id string) (model.Reservation, error)
}

// Answerer は予約以外の自由な質問に答えます
type Answerer interface {
	Ask(ctx context.Context, question string) string
}

// Dispatcher はメニューのコマンドと進行中の予約会話へ入力を振り分けます
// どちらにも当てはまらない入力は Answerer に渡します
type Dispatcher struct {
	flow          *Flow
	bookings      Bookings
	cancellations Cancellations
	answers       Answerer
}

// NewDispatcher は新しいDispatcherを作成します。answers が nil の場合はヘルプを返します
func NewDispatcher(flow *Flow, bookings Bookings, cancellations Cancellations, answers Answerer) *Dispatcher {
	return &Dispatcher{flow: flow, bookings: bookings, cancellations: cancellations, answers: answers}
}

// Dispatch は1件のチャット入力を処理して返信を返します
func (d *Dispatcher) Dispatch(ctx context.Context, chatID, customerID, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if id, ok := cancelArgument(text); ok {
		return d.cancelBooking(ctx, customerID, id)
	}
	switch normalizeCommand(text) {
	case "book":
		return d.flow.Start(ctx, chatID, customerID)
	case "view slots":
		return d.todaySlots(ctx)
	case "my bookings":
		return d.customerBookings(ctx, customerID)
	case "services":
		return Reply{Text: d.servicesText()}, nil
	case "help", "start":
		return Reply{Text: helpText}, nil
	}

	reply, err := d.flow.Handle(ctx, chatID, text)
	if !errors.Is(err, ErrNoSession) {
		return reply, err
	}
	if d.answers == nil {
		return Reply{Text: helpText}, nil
	}
	return Reply{Text: d.answers.Ask(ctx, text)}, nil
}

const helpText = `🤖 Elite Barber Shop Assistant

📅 book - start a new booking
👀 view slots - see today's free times
📋 my bookings - list your upcoming appointments
🗑️ cancel booking - cancel one of your appointments
✂️ services - services and pricing
❌ cancel - stop the booking in progress

You can also just ask me a question!`

func normalizeCommand(text string) string {
	cmd := strings.ToLower(strings.TrimPrefix(text, "/"))
	switch cmd {
	case "book", "book appointment":
		return "book"
	case "view slots", "slots", "view available slots":
		return "view slots"
	case "my bookings", "bookings":
		return "my bookings"
	case "services", "services & pricing":
		return "services"
	}
	return cmd
}

const cancelCommand = "cancel booking"

// cancelArgument は "cancel booking [ID]" 形式の入力から予約IDを取り出します
func cancelArgument(text string) (string, bool) {
	t := strings.TrimPrefix(text, "/")
	if len(t) < len(cancelCommand) || !strings.EqualFold(t[:len(cancelCommand)], cancelCommand) {
		return "", false
	}
	rest := t[len(cancelCommand):]
	if rest != "" && rest[0] != ' ' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// cancelBooking は ID がなければキャンセル可能な予約を一覧し、あれば本人の予約であることを確認してキャンセルします
func (d *Dispatcher) cancelBooking(ctx context.Context, customerID, id string) (Reply, error) {
	if d.cancellations == nil || customerID == "" {
		return Reply{Text: "❌ Cancelling bookings is not available here. Please contact the shop."}, nil
	}
	if id == "" {
		return d.cancellableBookings(ctx, customerID)
	}

	r, err := d.cancellations.Get(ctx, id)
	if errors.Is(err, model.ErrNotFound) || (err == nil && r.CustomerID != customerID) {
		return Reply{Text: "❌ Booking not found. Type 'cancel booking' to see your appointments."}, nil
	}
	if err != nil {
		log.Printf("Failed to load booking %s for cancellation: %v", id, err)
		return Reply{Text: "❌ Error cancelling your booking. Please try again later."}, nil
	}
	if r.Status == model.StatusCancelled {
		return Reply{Text: "ℹ️ This booking is already cancelled.", Reservation: &r}, nil
	}

	cancelled, err := d.cancellations.Cancel(ctx, id)
	if err != nil {
		log.Printf("Failed to cancel booking %s: %v", id, err)
		return Reply{Text: "❌ Error cancelling your booking. Please try again later."}, nil
	}
	text := fmt.Sprintf("✅ Booking cancelled!\n\n✂️ %s\n📅 %s\n🕐 %s\n\nHow else can I help you?", cancelled.Service, cancelled.Date, cancelled.Time)
	return Reply{Text: text, Reservation: &cancelled}, nil
}

func (d *Dispatcher) cancellableBookings(ctx context.Context, customerID string) (Reply, error) {
	none := Reply{Text: "📭 You don't have any active bookings to cancel.\n\nWould you like to book an appointment?"}
	if d.bookings == nil {
		return none, nil
	}
	rs, err := d.bookings.ByCustomer(ctx, customerID)
	if err != nil {
		log.Printf("Failed to list bookings for customer %s: %v", customerID, err)
		return Reply{Text: "❌ Error retrieving your bookings. Please try again later."}, nil
	}

	today := d.flow.now().In(d.flow.loc).Format(model.DateLayout)
	var b strings.Builder
	var options []string
	for _, r := range rs {
		if r.Date < today || !r.Status.Active() {
			continue
		}
		day, err := time.ParseInLocation(model.DateLayout, r.Date, d.flow.loc)
		if err != nil {
			continue
		}
		if len(options) == 0 {
			b.WriteString("📋 Select the booking you want to cancel:\n\n")
		}
		option := cancelCommand + " " + r.ID
		fmt.Fprintf(&b, "✂️ %s - %s at %s\n   ➡️ %s\n", r.Service, day.Format("02 Jan"), r.Time, option)
		options = append(options, option)
	}
	if len(options) == 0 {
		return none, nil
	}
	return Reply{Text: strings.TrimSpace(b.String()), Options: options}, nil
}

func (d *Dispatcher) todaySlots(ctx context.Context) (Reply, error) {
	today := d.flow.now().In(d.flow.loc)
	slots, err := d.flow.slots.SlotsForDate(ctx, today.Format(model.DateLayout))
	if err != nil {
		return Reply{}, err
	}
	if len(slots) == 0 {
		return Reply{Text: "❌ No available slots for today.\n\n💡 Try booking for tomorrow or another day!"}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 Available Slots for Today (%s):\n\n", today.Format("Monday, 02 January"))
	for _, slot := range slots {
		fmt.Fprintf(&b, "🕐 %s\n", slot)
	}
	b.WriteString("\n💡 Type 'book' to schedule!")
	return Reply{Text: b.String(), Options: slots}, nil
}

func (d *Dispatcher) customerBookings(ctx context.Context, customerID string) (Reply, error) {
	if d.bookings == nil || customerID == "" {
		return Reply{Text: "📭 You don't have any upcoming appointments.\n\n💡 Would you like to book one?"}, nil
	}
	rs, err := d.bookings.ByCustomer(ctx, customerID)
	if err != nil {
		log.Printf("Failed to list bookings for customer %s: %v", customerID, err)
		return Reply{Text: "❌ Error retrieving your bookings. Please try again."}, nil
	}

	today := d.flow.now().In(d.flow.loc).Format(model.DateLayout)
	var b strings.Builder
	count := 0
	for _, r := range rs {
		if r.Date < today {
			continue
		}
		day, err := time.ParseInLocation(model.DateLayout, r.Date, d.flow.loc)
		if err != nil {
			continue
		}
		if count == 0 {
			b.WriteString("📋 Your Upcoming Appointments:\n\n")
		}
		fmt.Fprintf(&b, "✂️ %s\n📅 %s\n🕐 %s\n📧 ID: %s\n\n", r.Service, day.Format("Monday, 02 January 2006"), r.Time, r.ID)
		count++
	}
	if count == 0 {
		return Reply{Text: "📭 You don't have any upcoming appointments.\n\n💡 Would you like to book one?"}, nil
	}
	return Reply{Text: strings.TrimSpace(b.String())}, nil
}

func (d *Dispatcher) servicesText() string {
	business := d.flow.business
	if business == nil {
		business = config.DefaultBusiness()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✂️ %s SERVICES\n\n", strings.ToUpper(business.Name))
	for _, name := range business.Services.Names() {
		info := business.Services[name]
		fmt.Fprintf(&b, "🔸 %s\n   💰 $%d | ⏱️ %d min\n\n", name, info.Price, info.Duration)
	}
	b.WriteString("💡 Type 'book' to schedule your service!")
	return b.String()
}
