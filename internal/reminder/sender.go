package reminder

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender はリマインダーを相手先へ配信します
type Sender interface {
	Send(ctx context.Context, target, text string) error
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender はTwilio経由でSMSまたはWhatsAppを送信します
// 宛先が + で始まるE.164形式の場合はWhatsApp、それ以外はSMSを使います
type TwilioSender struct {
	api          messageCreator
	from         string
	whatsappFrom string
}

// NewTwilioSender は新しいTwilioSenderを作成します
func NewTwilioSender(accountSID, authToken, from, whatsappFrom string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{api: client.Api, from: from, whatsappFrom: whatsappFrom}
}

func (s *TwilioSender) Send(_ context.Context, target, text string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetBody(text)

	channel := "sms"
	if strings.HasPrefix(target, "+") && s.whatsappFrom != "" {
		channel = "whatsapp"
		params.SetTo("whatsapp:" + target)
		params.SetFrom("whatsapp:" + s.whatsappFrom)
	} else {
		params.SetTo(target)
		params.SetFrom(s.from)
	}

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("failed to send %s message to %s: %w", channel, target, err)
	}
	if resp != nil && resp.Sid != nil {
		log.Printf("Message sent to %s via %s, SID: %s", target, channel, *resp.Sid)
	}
	return nil
}

// LogSender は配信手段がない環境でリマインダーをログに出力します
type LogSender struct{}

func (LogSender) Send(_ context.Context, target, text string) error {
	log.Printf("Reminder for %s: %s", target, text)
	return nil
}
