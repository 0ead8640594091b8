package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/uma-arai/barber-booking/internal/common/utils"
	"github.com/uma-arai/barber-booking/internal/session"
)

const (
	jobTimeout    = 5 * time.Minute
	sweepSchedule = "@every 5m"
)

// NewCron は業務時間帯のタイムゾーンで動くcronを作成します
func (a *App) NewCron() *cron.Cron {
	return cron.New(cron.WithLocation(a.Config.Booking.Location))
}

// RegisterJobs は保持期間の整理、ミラーの再同期、セッションの掃除を c に登録します
func (a *App) RegisterJobs(ctx context.Context, c *cron.Cron) error {
	if _, err := c.AddFunc(a.Config.Schedule.Cleanup, func() { a.runCleanup(ctx) }); err != nil {
		return fmt.Errorf("invalid CLEANUP_SCHEDULE %q: %w", a.Config.Schedule.Cleanup, err)
	}
	if _, err := c.AddFunc(a.Config.Schedule.Resync, func() { a.runResync(ctx) }); err != nil {
		return fmt.Errorf("invalid RESYNC_SCHEDULE %q: %w", a.Config.Schedule.Resync, err)
	}
	if mem, ok := a.Sessions.(*session.MemoryStore); ok {
		if _, err := c.AddFunc(sweepSchedule, func() {
			if n := mem.Sweep(); n > 0 {
				log.Printf("Swept %d expired sessions", n)
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) runCleanup(ctx context.Context) {
	err := utils.RunWithTimeout(ctx, jobTimeout, func(ctx context.Context) error {
		n, err := a.Booking.Cleanup(ctx, a.Config.Booking.RetentionDays)
		if err != nil {
			return err
		}
		log.Printf("Retention cleanup removed %d reservations", n)
		return nil
	})
	if err != nil {
		log.Printf("Retention cleanup failed: %v", err)
	}
}

func (a *App) runResync(ctx context.Context) {
	if err := utils.RunWithTimeout(ctx, jobTimeout, a.Booking.Resync); err != nil {
		log.Printf("Mirror resync failed: %v", err)
	}
}
