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

// Exporter は予約をCSVファイルへ書き出します
type Exporter interface {
	ExportFile(ctx context.Context, path string) (string, int, error)
}

// ExportResult はStep Functionsへ返す処理結果です
type ExportResult struct {
	Path string `json:"path"`
	Rows int    `json:"rows"`
}

// ExportBatchService は予約のCSVエクスポートを担当します
type ExportBatchService struct {
	app      *app.App
	reports  Exporter
	notifier TaskNotifier
	cfg      *config.Config
	path     string
}

// NewExportBatchService は新しいExportBatchServiceを作成します
func NewExportBatchService(ctx context.Context, cfg *config.Config, sfnClient *sfn.Client) (*ExportBatchService, error) {
	cfg.Reminder.Enabled = false
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}
	return &ExportBatchService{
		app:      a,
		reports:  a.Reports,
		notifier: notifierOf(sfnClient),
		cfg:      cfg,
	}, nil
}

// Close は終了処理を行います
func (s *ExportBatchService) Close() error {
	if s.app != nil {
		return s.app.Close()
	}
	return nil
}

// SetArgs は出力先のパスを設定します。空の場合は日時入りの既定名を使います
func (s *ExportBatchService) SetArgs(path string) {
	s.path = path
}

// Run は予約を全件CSVに書き出します
func (s *ExportBatchService) Run(ctx context.Context) error {
	ctx, end := tracing.Start(ctx, "ExportBatchService.Run")
	startTime := time.Now()

	path, rows, err := s.reports.ExportFile(ctx, s.path)
	if err != nil {
		end(err)
		return utils.GetStackWithError(fmt.Errorf("failed to export reservations: %w", err))
	}

	if err := sendTaskSuccess(ctx, s.notifier, s.cfg.SFN.TaskToken, ExportResult{Path: path, Rows: rows}); err != nil {
		end(err)
		return utils.GetStackWithError(fmt.Errorf("failed to send task success: %w", err))
	}

	duration := time.Since(startTime)
	tracing.Annotate(ctx, "rows", rows)
	tracing.Annotate(ctx, "duration", duration.String())
	end(nil)

	log.Printf("Export batch process completed successfully. Path: %s, Rows: %d, Duration: %v", path, rows, duration)
	return nil
}
