package batch

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/barber-booking/internal/common/config"
	"github.com/uma-arai/barber-booking/internal/common/utils"
)

// Runner は1回実行して終了するバッチです
type Runner interface {
	Run(ctx context.Context) error
	Close() error
}

// Builder は設定とStep Functionsクライアントからバッチを組み立てます
type Builder func(ctx context.Context, cfg *config.Config, sfnClient *sfn.Client) (Runner, error)

// Job はバッチの実行単位です
type Job struct {
	Name      string
	Timeout   time.Duration
	TaskToken string
	Build     Builder
}

// Execute は設定の読み込み、X-Ray、Step Functionsへの結果通知、シグナル処理を行い終了コードを返します
func Execute(job Job) int {
	local := os.Getenv("ENV") == "LOCAL"

	cfg, err := config.LoadConfig(job.TaskToken)
	if err != nil {
		log.Printf("Failed to load config: %v\nStack trace:\n%s", err, debug.Stack())
		return 1
	}

	if cfg.EnableTracing {
		configureXRay()
	}

	// Step Functionsクライアントの初期化
	var sfnClient *sfn.Client
	if !local {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			log.Printf("Failed to load AWS config: %v\nStack trace:\n%s", err, debug.Stack())
			return 1
		}
		sfnClient = sfn.NewFromConfig(awsCfg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), job.Timeout)
	defer cancel()

	if cfg.EnableTracing {
		var seg *xray.Segment
		ctx, seg = xray.BeginSegment(ctx, job.Name)
		defer seg.Close(nil)

		if err := seg.AddMetadata("task_token", job.TaskToken); err != nil {
			log.Printf("Failed to add task_token metadata: %v", err)
		}
		if err := seg.AddMetadata("timeout", job.Timeout.String()); err != nil {
			log.Printf("Failed to add timeout metadata: %v", err)
		}
	}

	runner, err := job.Build(ctx, cfg, sfnClient)
	if err != nil {
		log.Printf("Failed to create %s: %v\nStack trace:\n%s", job.Name, err, debug.Stack())
		return 1
	}
	defer func() {
		if err := runner.Close(); err != nil {
			log.Printf("Failed to close %s: %v", job.Name, err)
		}
	}()

	// シグナルハンドリングの設定
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- utils.RunWithTimeout(ctx, job.Timeout, runner.Run)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		cancel()
		return 1
	case err := <-errChan:
		if err != nil {
			log.Printf("%s failed: %v", job.Name, err)
			sendTaskFailure(ctx, sfnClient, job.TaskToken, err)
			return 1
		}
	}
	log.Printf("%s completed successfully", job.Name)
	return 0
}

func configureXRay() {
	if err := xray.Configure(xray.Config{
		DaemonAddr:     "127.0.0.1:2000", // X-Rayデーモンのアドレス
		ServiceVersion: "1.0.0",
	}); err != nil {
		log.Printf("Failed to configure X-Ray: %v", err)
		// X-Ray設定失敗時はデフォルトの設定を使用
		if configErr := xray.Configure(xray.Config{}); configErr != nil {
			log.Printf("Failed to configure default X-Ray settings: %v", configErr)
		}
	}
	os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
}

// sendTaskFailure はローカル環境以外でStep Functionsへ失敗を通知します
func sendTaskFailure(ctx context.Context, client *sfn.Client, taskToken string, cause error) {
	if os.Getenv("ENV") == "LOCAL" || client == nil {
		return
	}
	// 本体のタイムアウト後でも通知できるよう新しいコンテキストを使う
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	input := &sfn.SendTaskFailureInput{
		TaskToken: aws.String(taskToken),
		Error:     aws.String("BatchFailed"),
		Cause:     aws.String(cause.Error()),
	}
	if _, err := client.SendTaskFailure(notifyCtx, input); err != nil {
		log.Printf("Failed to send task failure: %v\nStack trace:\n%s", err, debug.Stack())
	}
}
