package repository

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/uma-arai/barber-booking/internal/common/tracing"
	"github.com/uma-arai/barber-booking/internal/model"
)

const (
	selectReservationsQuery = `
		SELECT
			id,
			customer_name,
			date,
			time,
			service,
			customer_id,
			status,
			created_at,
			phone,
			notes
		FROM reservations
		ORDER BY date ASC, time ASC, created_at ASC
	`

	deleteReservationsQuery = `DELETE FROM reservations`

	// トランザクション終了時に自動で解放される
	lockReservationsQuery = `SELECT pg_advisory_xact_lock($1)`

	insertReservationQuery = `
		INSERT INTO reservations (
			id,
			customer_name,
			date,
			time,
			service,
			customer_id,
			status,
			created_at,
			phone,
			notes
		) VALUES (
			:id,
			:customer_name,
			:date,
			:time,
			:service,
			:customer_id,
			:status,
			:created_at,
			:phone,
			:notes
		)
	`
)

// Schema は reservations テーブルの定義です
const Schema = `
CREATE TABLE IF NOT EXISTS reservations (
	id            TEXT PRIMARY KEY,
	customer_name TEXT NOT NULL,
	date          TEXT NOT NULL,
	time          TEXT NOT NULL,
	service       TEXT NOT NULL,
	customer_id   TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	phone         TEXT NOT NULL DEFAULT '',
	notes         TEXT NOT NULL DEFAULT ''
)`

// reservationsLockKey は reservations テーブルへの書き込みを直列化するアドバイザリロックのキーです
const reservationsLockKey int64 = 0x626172626572d31

// PostgresStore はpostgresの reservations テーブルに予約を保存します
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore は新しいPostgresStoreを作成します
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate は reservations テーブルがなければ作成します
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ctx, end := tracing.Start(ctx, "PostgresStore.Migrate")
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		end(err)
		return &model.StoreError{Op: "migrate", Err: err}
	}
	end(nil)
	return nil
}

// Load は全予約を取得します
func (s *PostgresStore) Load(ctx context.Context) ([]model.Reservation, error) {
	ctx, end := tracing.Start(ctx, "PostgresStore.Load")

	reservations := []model.Reservation{}
	if err := s.db.SelectContext(ctx, &reservations, selectReservationsQuery); err != nil {
		end(err)
		return nil, &model.StoreError{Op: "load", Err: fmt.Errorf("failed to query reservations: %w", err)}
	}

	end(nil)
	return reservations, nil
}

// Save は1トランザクション内で全予約を置き換えます。失敗時はロールバックします
func (s *PostgresStore) Save(ctx context.Context, reservations []model.Reservation) error {
	return s.Mutate(ctx, func([]model.Reservation) ([]model.Reservation, bool, error) {
		return reservations, true, nil
	})
}

// Mutate はアドバイザリロックを取得したトランザクション内で読み込み、fn の結果で全件を置き換えます
// 同じデータベースを使う別プロセスの書き込みはロックの解放まで待たされます
func (s *PostgresStore) Mutate(ctx context.Context, fn MutateFunc) (err error) {
	ctx, end := tracing.Start(ctx, "PostgresStore.Mutate")
	defer func() { end(err) }()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &model.StoreError{Op: "save", Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}

	// エラーが発生した場合のみロールバックを実行
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Printf("rollback failed: %v, original error: %v", rbErr, err)
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, lockReservationsQuery, reservationsLockKey); err != nil {
		return &model.StoreError{Op: "lock", Err: fmt.Errorf("failed to acquire reservations lock: %w", err)}
	}

	current := []model.Reservation{}
	if err = tx.SelectContext(ctx, &current, selectReservationsQuery); err != nil {
		return &model.StoreError{Op: "load", Err: fmt.Errorf("failed to query reservations: %w", err)}
	}

	next, changed, err := fn(current)
	if err != nil {
		return err
	}
	if changed {
		if err = replaceAll(ctx, tx, next); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return &model.StoreError{Op: "save", Err: fmt.Errorf("failed to commit transaction: %w", err)}
	}
	return nil
}

func replaceAll(ctx context.Context, tx *sqlx.Tx, reservations []model.Reservation) error {
	if _, err := tx.ExecContext(ctx, deleteReservationsQuery); err != nil {
		return &model.StoreError{Op: "save", Err: fmt.Errorf("failed to clear reservations: %w", err)}
	}

	for _, r := range reservations {
		// PERF: 件数が増えたらbulk insertに切り替える
		if _, err := tx.NamedExecContext(ctx, insertReservationQuery, r); err != nil {
			return &model.StoreError{Op: "save", Err: fmt.Errorf("failed to insert reservation %s: %w", r.ID, err)}
		}
	}
	return nil
}
