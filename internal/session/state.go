package session

import (
	"context"
	"errors"
	"time"
)

// Step は予約会話の段階です
type Step string

const (
	StepName    Step = "name"
	StepDate    Step = "date"
	StepTime    Step = "time"
	StepService Step = "service"
	StepConfirm Step = "confirm"
	StepDone    Step = "done"
)

// ErrNoSession はチャットに進行中の予約会話がないことを表します
var ErrNoSession = errors.New("no booking session")

// State はチャットごとの予約会話の状態です
type State struct {
	ChatID     string    `json:"chat_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Step       Step      `json:"step"`
	Name       string    `json:"name,omitempty"`
	Date       string    `json:"date,omitempty"`
	Time       string    `json:"time,omitempty"`
	Service    string    `json:"service,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store は会話状態の保存先です。保存された状態は TTL 経過後に失効します
type Store interface {
	Get(ctx context.Context, chatID string) (*State, error)
	Put(ctx context.Context, st *State) error
	Delete(ctx context.Context, chatID string) error
}
