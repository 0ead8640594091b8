package mirror

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/uma-arai/barber-booking/internal/common/utils"
	"github.com/uma-arai/barber-booking/internal/model"
)

// Action はミラーへの反映種別です
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
)

// Header はミラーの固定列です。model.Reservation.Record の列順と一致します
var Header = []string{"ID", "Name", "Date", "Time", "Service", "CustomerID", "Status", "Created", "Phone", "Notes"}

// RowStore は行指向の外部表です。index はヘッダーを除いた0始まりの行番号です
type RowStore interface {
	AppendRow(ctx context.Context, row []string) error
	Rows(ctx context.Context) ([][]string, error)
	UpdateRow(ctx context.Context, index int, row []string) error
	ReplaceAll(ctx context.Context, rows [][]string) error
}

// Mirror は予約の参照用コピーを外部へ反映します。失敗は呼び出し元へ伝播させません
type Mirror interface {
	Push(ctx context.Context, r model.Reservation, action Action) bool
	Resync(ctx context.Context, all []model.Reservation) error
}

// Syncer は RowStore へ予約を反映する Mirror 実装です
type Syncer struct {
	rows    RowStore
	timeout time.Duration
}

// NewSyncer は新しいSyncerを作成します。timeout は1回の反映にかける上限です
func NewSyncer(rows RowStore, timeout time.Duration) *Syncer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Syncer{rows: rows, timeout: timeout}
}

// Push は予約を1件反映し、成功したかを返します
// update で該当行が見つからない場合は何もせず成功扱いにします (定期的な Resync で補正します)
func (s *Syncer) Push(ctx context.Context, r model.Reservation, action Action) bool {
	err := utils.RunWithTimeout(ctx, s.timeout, func(ctx context.Context) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return s.push(ctx, r, action)
	})
	if err != nil {
		log.Printf("Mirror sync failed: %v", &model.MirrorSyncError{ReservationID: r.ID, Action: string(action), Err: err})
		return false
	}
	return true
}

func (s *Syncer) push(ctx context.Context, r model.Reservation, action Action) error {
	switch action {
	case ActionAdd:
		return s.rows.AppendRow(ctx, r.Record())
	case ActionUpdate:
		rows, err := s.rows.Rows(ctx)
		if err != nil {
			return fmt.Errorf("failed to read rows: %w", err)
		}
		for i, row := range rows {
			if len(row) > 0 && row[0] == r.ID {
				return s.rows.UpdateRow(ctx, i, r.Record())
			}
		}
		log.Printf("Mirror has no row for reservation %s, skipping update", r.ID)
		return nil
	default:
		return fmt.Errorf("unknown mirror action %q", action)
	}
}

// Resync はミラーの全行を予約の一覧で置き換えます
func (s *Syncer) Resync(ctx context.Context, all []model.Reservation) error {
	rows := make([][]string, 0, len(all))
	for _, r := range all {
		rows = append(rows, r.Record())
	}
	err := utils.RunWithTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.rows.ReplaceAll(ctx, rows)
	})
	if err != nil {
		return &model.MirrorSyncError{ReservationID: "*", Action: "resync", Err: err}
	}
	log.Printf("Mirror resynced with %d reservations", len(rows))
	return nil
}

// Disabled は認証情報がない場合に使う何もしない Mirror です
type Disabled struct{}

// Push は常に false を返します
func (Disabled) Push(context.Context, model.Reservation, Action) bool { return false }

func (Disabled) Resync(context.Context, []model.Reservation) error { return nil }
