package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/uma-arai/barber-booking/internal/common/config"
)

type stubRunner struct {
	runErr error
	delay  time.Duration
	ran    bool
	closed bool
}

func (r *stubRunner) Run(ctx context.Context) error {
	r.ran = true
	select {
	case <-time.After(r.delay):
		return r.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *stubRunner) Close() error {
	r.closed = true
	return nil
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name     string
		runner   *stubRunner
		buildErr error
		timeout  time.Duration
		want     int
	}{
		{name: "正常終了", runner: &stubRunner{}, timeout: time.Second, want: 0},
		{name: "処理の失敗", runner: &stubRunner{runErr: errors.New("boom")}, timeout: time.Second, want: 1},
		{name: "タイムアウト", runner: &stubRunner{delay: time.Second}, timeout: 20 * time.Millisecond, want: 1},
		{name: "組み立ての失敗", runner: &stubRunner{}, buildErr: errors.New("no store"), timeout: time.Second, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV", "LOCAL")
			t.Setenv("BOOKING_ENABLE_TRACING", "")

			var gotToken string
			code := Execute(Job{
				Name:      "test-batch",
				Timeout:   tt.timeout,
				TaskToken: "token-1",
				Build: func(_ context.Context, cfg *config.Config, sfnClient *sfn.Client) (Runner, error) {
					gotToken = cfg.SFN.TaskToken
					if sfnClient != nil {
						t.Error("sfn client should not be created on LOCAL")
					}
					if tt.buildErr != nil {
						return nil, tt.buildErr
					}
					return tt.runner, nil
				},
			})

			if code != tt.want {
				t.Errorf("Execute() = %d, want %d", code, tt.want)
			}
			if gotToken != "token-1" {
				t.Errorf("task token = %q, want token-1", gotToken)
			}
			if tt.buildErr == nil && !tt.runner.closed {
				t.Error("runner was not closed")
			}
			if tt.buildErr != nil && tt.runner.ran {
				t.Error("runner should not run when build fails")
			}
		})
	}
}
