package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
)

// TaskNotifier はStep Functionsへタスクの成功を通知します
type TaskNotifier interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
}

func notifierOf(client *sfn.Client) TaskNotifier {
	if client == nil {
		return nil
	}
	return client
}

// sendTaskSuccess は、Step Functionsのタスク成功を output 付きで通知します
func sendTaskSuccess(ctx context.Context, notifier TaskNotifier, taskToken string, output any) error {
	// ローカルの場合はStep Functionsの処理をスキップ
	if os.Getenv("ENV") == "LOCAL" || notifier == nil {
		log.Printf("Local environment detected. Skipping Step Functions task success notification")
		return nil
	}

	if taskToken == "" {
		return fmt.Errorf("SFN task token is not set in config")
	}

	body, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal task output: %w", err)
	}

	input := &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(taskToken),
		Output:    aws.String(string(body)),
	}
	if _, err := notifier.SendTaskSuccess(ctx, input); err != nil {
		return fmt.Errorf("failed to send task success: %w", err)
	}

	log.Printf("Successfully sent task success with output: %s", string(body))
	return nil
}
