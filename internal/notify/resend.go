package notify

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// DefaultFrom はEMAIL_FROM未設定時の送信元。
const DefaultFrom = "Sentinel AI <onboarding@resend.dev>"

// resendSender はresend.Clientのうち送信に使う部分。
type resendSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendTransport はResend APIでメールを配送するTransport。
type ResendTransport struct {
	emails resendSender
	from   string
}

// NewResendTransport はAPIキーからResendTransportを生成する。
func NewResendTransport(apiKey, from string) *ResendTransport {
	client := resend.NewClient(apiKey)
	return newResendTransport(client.Emails, from)
}

func newResendTransport(emails resendSender, from string) *ResendTransport {
	if from == "" {
		from = DefaultFrom
	}
	return &ResendTransport{emails: emails, from: from}
}

// Send はメッセージを送信する。
func (t *ResendTransport) Send(ctx context.Context, msg Message) error {
	_, err := t.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    t.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Transport = (*ResendTransport)(nil)
