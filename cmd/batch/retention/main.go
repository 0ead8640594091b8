package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/joho/godotenv"
	"github.com/uma-arai/barber-booking/internal/common/config"
	"github.com/uma-arai/barber-booking/internal/service/batch"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "バッチ処理のタイムアウト時間")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// 最後の引数として渡されたタスクトークンを取得
	// ENV=LOCALの場合はタスクトークンを取得しない
	taskToken := "DUMMY_TASK_TOKEN"
	if os.Getenv("ENV") != "LOCAL" {
		if flag.NArg() == 0 || flag.Arg(flag.NArg()-1) == "" {
			log.Fatalf("Task token is required")
		}
		taskToken = flag.Arg(flag.NArg() - 1)
	}

	os.Exit(batch.Execute(batch.Job{
		Name:      "barber-booking-retention",
		Timeout:   *timeout,
		TaskToken: taskToken,
		Build: func(ctx context.Context, cfg *config.Config, sfnClient *sfn.Client) (batch.Runner, error) {
			return batch.NewRetentionBatchService(ctx, cfg, sfnClient)
		},
	}))
}
