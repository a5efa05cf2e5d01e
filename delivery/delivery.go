package delivery

import (
	"context"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

// EmailSender delivers one transactional email. The returned value is the
// provider's message id.
type EmailSender interface {
	Send(ctx context.Context, to string, subject string, body string) utils.Result[string]
}

// WhatsAppSender delivers one WhatsApp message to a phone number in E.164
// form. The returned value is the provider's message id.
type WhatsAppSender interface {
	Send(ctx context.Context, to string, body string) utils.Result[string]
}
