package advisor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/uma-arai/barber-booking/internal/config"
)

// Fallback は言語モデルが使えない場合の定型文です
const Fallback = "I'm sorry, I'm having trouble connecting right now. Please try again in a moment, or type 'book' to make an appointment."

const (
	askTimeout = 20 * time.Second
	maxAnswer  = 1000
)

// Generator はプロンプトから文章を生成します
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Advisor は予約以外の自由な質問に店舗の情報を踏まえて答えます。予約データには触れません
type Advisor struct {
	gen      Generator
	business *config.Business
}

// New は新しいAdvisorを作成します。gen が nil の場合は常に Fallback を返します
func New(gen Generator, business *config.Business) *Advisor {
	if business == nil {
		business = config.DefaultBusiness()
	}
	return &Advisor{gen: gen, business: business}
}

// Enabled は言語モデルが設定されているかを返します
func (a *Advisor) Enabled() bool {
	return a.gen != nil
}

// Ask は質問への回答を返します。生成に失敗した場合は Fallback です
func (a *Advisor) Ask(ctx context.Context, question string) string {
	if a.gen == nil {
		return Fallback
	}
	ctx, cancel := context.WithTimeout(ctx, askTimeout)
	defer cancel()

	answer, err := a.gen.Generate(ctx, a.Prompt(question))
	if err != nil {
		log.Printf("Advisor generation failed: %v", err)
		return Fallback
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Fallback
	}
	if r := []rune(answer); len(r) > maxAnswer {
		answer = string(r[:maxAnswer-3]) + "..."
	}
	return answer
}

// Prompt は店舗のメニューと営業時間を含むプロンプトを組み立てます
func (a *Advisor) Prompt(question string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an AI assistant for %s. You are professional, friendly, and knowledgeable about barbering and grooming services.\n\n", a.business.Name)
	b.WriteString("Context: This is a barber shop booking system. Customers can book appointments, ask about services, get grooming advice, and general questions.\n\n")

	b.WriteString("Available services:\n")
	for _, name := range a.business.Services.Names() {
		info := a.business.Services[name]
		fmt.Fprintf(&b, "- %s ($%d, %d min)\n", name, info.Price, info.Duration)
	}

	b.WriteString("\nBusiness hours:\n")
	for _, day := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday} {
		h := a.business.Hours.For(day)
		if h.Closed {
			fmt.Fprintf(&b, "- %s: Closed\n", day)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s-%s\n", day, h.Open, h.Close)
	}

	b.WriteString("\nIf customers ask about booking, mention they can type 'book' to start the booking process.\n")
	b.WriteString("If they ask about availability, mention they can type 'view slots' to see available times.\n\n")
	fmt.Fprintf(&b, "Customer question: %s\n\n", strings.TrimSpace(question))
	b.WriteString("Provide a helpful, professional response. Keep responses concise but informative.")
	return b.String()
}
