package batch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/uma-arai/barber-booking/internal/app"
	"github.com/uma-arai/barber-booking/internal/common/config"
	"github.com/uma-arai/barber-booking/internal/common/tracing"
	"github.com/uma-arai/barber-booking/internal/common/utils"
)

// Maintainer は保持期間の整理とミラーの再同期を行います
type Maintainer interface {
	Cleanup(ctx context.Context, retentionDays int) (int, error)
	Resync(ctx context.Context) error
}

// RetentionResult はStep Functionsへ返す処理結果です
type RetentionResult struct {
	Removed       int    `json:"removed"`
	RetentionDays int    `json:"retention_days"`
	Resynced      bool   `json:"resynced"`
	ResyncError   string `json:"resync_error,omitempty"`
}

// RetentionBatchService は古い予約の削除とミラーの再同期を担当します
type RetentionBatchService struct {
	app      *app.App
	booking  Maintainer
	notifier TaskNotifier
	cfg      *config.Config
}

// NewRetentionBatchService は新しいRetentionBatchServiceを作成します
func NewRetentionBatchService(ctx context.Context, cfg *config.Config, sfnClient *sfn.Client) (*RetentionBatchService, error) {
	// 単発のバッチではリマインダーを登録しない
	cfg.Reminder.Enabled = false
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}
	return &RetentionBatchService{
		app:      a,
		booking:  a.Booking,
		notifier: notifierOf(sfnClient),
		cfg:      cfg,
	}, nil
}

// Close は終了処理を行います
func (s *RetentionBatchService) Close() error {
	if s.app != nil {
		return s.app.Close()
	}
	return nil
}

// Run は保持期間を過ぎた予約を削除し、ミラーを全件同期します
// ミラーの同期失敗はバッチの失敗として扱いません
func (s *RetentionBatchService) Run(ctx context.Context) error {
	ctx, end := tracing.Start(ctx, "RetentionBatchService.Run")
	startTime := time.Now()

	days := s.cfg.Booking.RetentionDays
	removed, err := s.booking.Cleanup(ctx, days)
	if err != nil {
		end(err)
		return utils.GetStackWithError(fmt.Errorf("failed to clean up reservations: %w", err))
	}

	result := RetentionResult{Removed: removed, RetentionDays: days, Resynced: true}
	if err := s.booking.Resync(ctx); err != nil {
		log.Printf("Mirror resync failed: %v", err)
		result.Resynced = false
		result.ResyncError = err.Error()
	}

	if err := sendTaskSuccess(ctx, s.notifier, s.cfg.SFN.TaskToken, result); err != nil {
		end(err)
		return utils.GetStackWithError(fmt.Errorf("failed to send task success: %w", err))
	}

	duration := time.Since(startTime)
	tracing.Annotate(ctx, "removed", removed)
	tracing.Annotate(ctx, "duration", duration.String())
	end(nil)

	log.Printf("Retention batch process completed successfully. Removed: %d, Duration: %v", removed, duration)
	return nil
}
