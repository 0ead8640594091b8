package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"github.com/uma-arai/barber-booking/internal/common/tracing"
	"github.com/uma-arai/barber-booking/internal/model"
	"github.com/uma-arai/barber-booking/internal/repository"
)

// ExportColumns はCSVエクスポートの固定列です
var ExportColumns = []string{"id", "name", "date", "time", "service", "customer_id", "status", "created", "phone", "notes"}

// Statistics は予約件数の集計です
// Today/ThisWeek/ThisMonth はキャンセル以外の予約のうち、日付が各期間の開始日以降のものを数えます
type Statistics struct {
	Total     int `json:"total_bookings"`
	Confirmed int `json:"confirmed"`
	Pending   int `json:"pending"`
	Cancelled int `json:"cancelled"`
	Today     int `json:"today"`
	ThisWeek  int `json:"this_week"`
	ThisMonth int `json:"this_month"`
}

// Service は予約の参照系の集計を行います。呼び出しごとに独立したスナップショットを読みます
type Service struct {
	store repository.ReservationStore
	loc   *time.Location
	now   func() time.Time
}

// Option は Service の設定を変更します
type Option func(*Service)

// WithClock は現在時刻の取得方法を差し替えます
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService は新しいServiceを作成します
func NewService(store repository.ReservationStore, loc *time.Location, opts ...Option) *Service {
	if loc == nil {
		loc = time.Local
	}
	s := &Service{store: store, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) snapshot(ctx context.Context, op string) ([]model.Reservation, error) {
	ctx, end := tracing.Start(ctx, "ReportService."+op)
	rs, err := s.store.Load(ctx)
	end(err)
	if err != nil {
		log.Printf("Failed to load reservations for %s: %v", op, err)
		return nil, err
	}
	return rs, nil
}

func (s *Service) today() time.Time {
	n := s.now().In(s.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, s.loc)
}

// ByDate は指定日のキャンセル以外の予約を時刻順で返します
func (s *Service) ByDate(ctx context.Context, date string) ([]model.Reservation, error) {
	day, err := model.ParseDate(date)
	if err != nil {
		return nil, err
	}
	rs, err := s.snapshot(ctx, "ByDate")
	if err != nil {
		return nil, err
	}
	return filterSorted(rs, func(r model.Reservation) bool {
		return r.Date == day && r.Status != model.StatusCancelled
	}), nil
}

// ByCustomer は顧客のキャンセル以外の予約を日時順で返します
func (s *Service) ByCustomer(ctx context.Context, customerID string) ([]model.Reservation, error) {
	rs, err := s.snapshot(ctx, "ByCustomer")
	if err != nil {
		return nil, err
	}
	return filterSorted(rs, func(r model.Reservation) bool {
		return customerID != "" && r.CustomerID == customerID && r.Status != model.StatusCancelled
	}), nil
}

// Upcoming は今日から days 日後までの有効な予約を日時順で返します
func (s *Service) Upcoming(ctx context.Context, days int) ([]model.Reservation, error) {
	if days < 0 {
		return nil, &model.ValidationError{Field: "days", Value: fmt.Sprint(days), Reason: "must not be negative"}
	}
	rs, err := s.snapshot(ctx, "Upcoming")
	if err != nil {
		return nil, err
	}
	today := s.today()
	from := today.Format(model.DateLayout)
	to := today.AddDate(0, 0, days).Format(model.DateLayout)
	return filterSorted(rs, func(r model.Reservation) bool {
		return r.Status.Active() && r.Date >= from && r.Date <= to
	}), nil
}

// Statistics は状態別と期間別の件数を返します。週は月曜始まりです
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	rs, err := s.snapshot(ctx, "Statistics")
	if err != nil {
		return Statistics{}, err
	}

	today := s.today()
	offset := (int(today.Weekday()) + 6) % 7
	todayKey := today.Format(model.DateLayout)
	weekStart := today.AddDate(0, 0, -offset).Format(model.DateLayout)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, s.loc).Format(model.DateLayout)

	stats := Statistics{Total: len(rs)}
	for _, r := range rs {
		switch r.Status {
		case model.StatusConfirmed:
			stats.Confirmed++
		case model.StatusPending:
			stats.Pending++
		case model.StatusCancelled:
			stats.Cancelled++
		}
		if !r.Status.Active() {
			continue
		}
		if r.Date == todayKey {
			stats.Today++
		}
		if r.Date >= weekStart {
			stats.ThisWeek++
		}
		if r.Date >= monthStart {
			stats.ThisMonth++
		}
	}
	return stats, nil
}

// Export は全予約を固定列のCSVとして w に書き出し、件数を返します
func (s *Service) Export(ctx context.Context, w io.Writer) (int, error) {
	rs, err := s.snapshot(ctx, "Export")
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return 0, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range rs {
		if err := cw.Write(r.Record()); err != nil {
			return 0, fmt.Errorf("failed to write reservation %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush csv: %w", err)
	}
	return len(rs), nil
}

// DefaultExportName は実行時刻入りのエクスポートファイル名を返します
func (s *Service) DefaultExportName() string {
	return fmt.Sprintf("bookings_export_%s.csv", s.now().In(s.loc).Format("20060102_150405"))
}

// ExportFile は path にCSVを書き出し、書き出したパスと件数を返します。path が空の場合は DefaultExportName を使います
func (s *Service) ExportFile(ctx context.Context, path string) (string, int, error) {
	if path == "" {
		path = s.DefaultExportName()
	}
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	n, err := s.Export(ctx, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close %s: %w", path, closeErr)
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}

	log.Printf("Exported %d reservations to %s", n, path)
	return path, n, nil
}

func filterSorted(rs []model.Reservation, keep func(model.Reservation) bool) []model.Reservation {
	out := []model.Reservation{}
	for _, r := range rs {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Slot().Before(out[j].Slot())
	})
	return out
}
