package repository

import (
	"context"

	"github.com/uma-arai/barber-booking/internal/model"
)

// MutateFunc は現在の全予約を受け取り、保存する全予約を返します
// changed が false の場合やエラーを返した場合は何も保存しません。関数内からストアを呼び出してはいけません
type MutateFunc func(current []model.Reservation) (next []model.Reservation, changed bool, err error)

// ReservationStore は予約コレクション全体の読み書きを担当するインターフェースです
// 読み込みは常に最新の確定済み書き込みを反映し、書き込みは全件置換で部分的な状態を残しません
type ReservationStore interface {
	Load(ctx context.Context) ([]model.Reservation, error)
	Save(ctx context.Context, reservations []model.Reservation) error
	// Mutate は別プロセスを含むすべての書き込みを排他した状態で読み込みから保存までを行います
	Mutate(ctx context.Context, fn MutateFunc) error
}
