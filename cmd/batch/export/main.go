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
	output := flag.String("output", "", "CSVの出力先。未指定の場合は日時入りのファイル名")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	taskToken := "DUMMY_TASK_TOKEN"
	if os.Getenv("ENV") != "LOCAL" {
		if flag.NArg() == 0 || flag.Arg(flag.NArg()-1) == "" {
			log.Fatalf("Task token is required")
		}
		taskToken = flag.Arg(flag.NArg() - 1)
	}

	os.Exit(batch.Execute(batch.Job{
		Name:      "barber-booking-export",
		Timeout:   *timeout,
		TaskToken: taskToken,
		Build: func(ctx context.Context, cfg *config.Config, sfnClient *sfn.Client) (batch.Runner, error) {
			s, err := batch.NewExportBatchService(ctx, cfg, sfnClient)
			if err != nil {
				return nil, err
			}
			s.SetArgs(*output)
			return s, nil
		},
	}))
}
