package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/uma-arai/barber-booking/internal/api"
	"github.com/uma-arai/barber-booking/internal/app"
	"github.com/uma-arai/barber-booking/internal/common/config"
)

const (
	projectName     = "barber-booking"
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// 常駐プロセスはStep Functionsのタスクトークンを持たない
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v\nStack trace:\n%s", err, debug.Stack())
	}

	// X-Ray設定
	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{
			DaemonAddr:     "127.0.0.1:2000",
			ServiceVersion: "1.0.0",
		}); err != nil {
			log.Printf("Failed to configure X-Ray: %v", err)
			if configErr := xray.Configure(xray.Config{}); configErr != nil {
				log.Fatalf("Failed to configure default X-Ray settings: %v", configErr)
			}
		}
		os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build application: %v\nStack trace:\n%s", err, debug.Stack())
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("Failed to close application: %v", err)
		}
	}()

	if err := a.Start(ctx); err != nil {
		log.Printf("Reminder startup incomplete: %v", err)
	}

	c := a.NewCron()
	if err := a.RegisterJobs(ctx, c); err != nil {
		log.Fatalf("Failed to register jobs: %v", err)
	}
	c.Start()

	if os.Getenv("ENV") != "LOCAL" {
		gin.SetMode(gin.ReleaseMode)
	}
	var handler http.Handler = api.NewRouter(a.Engine, a.Reports, a.Booking, a.Chat)
	if cfg.EnableTracing {
		handler = xray.Handler(xray.NewFixedSegmentNamer(projectName), handler)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Printf("%s listening on %s", projectName, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// シグナルハンドリングの設定
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-errChan:
		log.Printf("HTTP server failed: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shut down HTTP server: %v", err)
	}
	// 実行中のジョブが終わるまで待つ
	select {
	case <-c.Stop().Done():
	case <-shutdownCtx.Done():
		log.Println("Timed out waiting for scheduled jobs")
	}
	cancel()
	log.Println("Booking service stopped")
}
