package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/uma-arai/barber-booking/internal/advisor"
	"github.com/uma-arai/barber-booking/internal/common/config"
	"github.com/uma-arai/barber-booking/internal/common/database"
	shop "github.com/uma-arai/barber-booking/internal/config"
	"github.com/uma-arai/barber-booking/internal/mirror"
	"github.com/uma-arai/barber-booking/internal/reminder"
	"github.com/uma-arai/barber-booking/internal/repository"
	"github.com/uma-arai/barber-booking/internal/service/availability"
	"github.com/uma-arai/barber-booking/internal/service/booking"
	"github.com/uma-arai/barber-booking/internal/service/report"
	"github.com/uma-arai/barber-booking/internal/session"
)

// App は設定から組み立てた各コンポーネントをまとめたものです
type App struct {
	Config   *config.Config
	Business *shop.Business

	Store     repository.ReservationStore
	Mirror    mirror.Mirror
	Reminders *reminder.Scheduler

	Engine   *availability.Engine
	Booking  *booking.Service
	Reports  *report.Service
	Sessions session.Store
	Flow     *session.Flow
	Chat     *session.Dispatcher
	Advisor  *advisor.Advisor

	closers []func() error
}

// Option は New の組み立てを変更します
type Option func(*options)

type options struct {
	store  repository.ReservationStore
	sender reminder.Sender
}

// WithStore は設定の代わりに store を使います
func WithStore(store repository.ReservationStore) Option {
	return func(o *options) { o.store = store }
}

// WithSender はリマインダーの配信先を差し替えます
func WithSender(sender reminder.Sender) Option {
	return func(o *options) { o.sender = sender }
}

// New は設定に従ってストア、ミラー、リマインダー、各サービスを組み立てます
// ミラーと言語モデルは初期化に失敗しても無効化して続行します
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	business, err := shop.LoadBusiness(cfg.Booking.BusinessConfigPath)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Business: business}

	a.Store = o.store
	if a.Store == nil {
		if a.Store, err = a.openStore(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Mirror = a.openMirror(ctx)

	policy := availability.Policy{
		Business: business,
		Rules: availability.Rules{
			SlotMinutes:        cfg.Booking.SlotMinutes,
			AdvanceBookingDays: cfg.Booking.AdvanceBookingDays,
			MaxPerCustomerDay:  cfg.Booking.MaxPerCustomerDay,
		},
		Location: cfg.Booking.Location,
	}
	a.Engine = availability.NewEngine(a.Store, policy)

	bookingOpts := []booking.Option{booking.WithMirror(a.Mirror)}
	if cfg.Reminder.Enabled {
		if a.Reminders, err = reminder.NewScheduler(a.sender(o.sender)); err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, a.Reminders.Shutdown)
		bookingOpts = append(bookingOpts, booking.WithReminders(a.Reminders, cfg.Reminder.Advance))
	}
	a.Booking = booking.NewService(a.Store, policy, bookingOpts...)
	a.Reports = report.NewService(a.Store, cfg.Booking.Location)

	if a.Sessions, err = a.openSessions(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.Advisor = advisor.New(a.openGenerator(ctx), business)
	a.Flow = session.NewFlow(a.Sessions, a.Engine, a.Booking, business, cfg.Booking.Location)
	a.Chat = session.NewDispatcher(a.Flow, a.Reports, a.Booking, a.Advisor)

	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.ReservationStore, error) {
	switch a.Config.Store.Backend {
	case config.StoreBackendFile, "":
		log.Printf("Using file store at %s", a.Config.Store.Path)
		return repository.NewFileStore(a.Config.Store.Path), nil
	case config.StoreBackendPostgres:
		db, err := database.NewDB(a.Config.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		store := repository.NewPostgresStore(db.DB)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		log.Printf("Using postgres store on %s:%d", a.Config.DB.Host, a.Config.DB.Port)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", a.Config.Store.Backend)
	}
}

func (a *App) openMirror(ctx context.Context) mirror.Mirror {
	if !a.Config.MirrorEnabled() {
		log.Println("Google Sheets mirror is disabled")
		return mirror.Disabled{}
	}
	client, err := mirror.NewSheetsClientFromFile(ctx, a.Config.Sheets.CredentialsPath, a.Config.Sheets.SpreadsheetID, a.Config.Sheets.Worksheet)
	if err != nil {
		log.Printf("Failed to create Google Sheets client, mirror disabled: %v", err)
		return mirror.Disabled{}
	}
	return mirror.NewSyncer(client, a.Config.Sheets.Timeout)
}

func (a *App) sender(override reminder.Sender) reminder.Sender {
	if override != nil {
		return override
	}
	if a.Config.TwilioEnabled() {
		return reminder.NewTwilioSender(a.Config.Twilio.AccountSID, a.Config.Twilio.AuthToken, a.Config.Twilio.PhoneNumber, a.Config.Twilio.WhatsAppNumber)
	}
	log.Println("Twilio is not configured, reminders will only be logged")
	return reminder.LogSender{}
}

func (a *App) openSessions(ctx context.Context) (session.Store, error) {
	if a.Config.Redis.URL == "" {
		return session.NewMemoryStore(a.Config.Redis.SessionTTL), nil
	}
	client, err := session.NewRedisClient(ctx, a.Config.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return session.NewRedisStore(client, a.Config.Redis.SessionTTL), nil
}

func (a *App) openGenerator(ctx context.Context) advisor.Generator {
	if a.Config.Gemini.APIKey == "" {
		return nil
	}
	gen, err := advisor.NewGeminiGenerator(ctx, a.Config.Gemini.APIKey, a.Config.Gemini.Model)
	if err != nil {
		log.Printf("Failed to create Gemini client, advisor disabled: %v", err)
		return nil
	}
	a.closers = append(a.closers, gen.Close)
	return gen
}

// Start はリマインダーの配信を開始し、保存済みの予約からリマインダーを復元します
func (a *App) Start(ctx context.Context) error {
	if a.Reminders == nil {
		return nil
	}
	a.Reminders.Start()
	n, err := a.Booking.RestoreReminders(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore reminders: %w", err)
	}
	log.Printf("Restored %d reminders", n)
	return nil
}

// Close は実行中のミラー反映を待ってから外部接続を閉じます
func (a *App) Close() error {
	if a.Booking != nil {
		a.Booking.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
