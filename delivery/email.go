package delivery

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

type EmailConfig struct {
	ServerToken  string
	AccountToken string
	SenderEmail  string
	ReplyToEmail string
	MessageTag   string
}

// PostmarkSender delivers transactional email through Postmark.
type PostmarkSender struct {
	client *postmark.Client
	config EmailConfig
}

func NewPostmarkSender(config EmailConfig) (*PostmarkSender, error) {
	if config.ServerToken == "" {
		return nil, fmt.Errorf("postmark server token is required")
	}
	if config.SenderEmail == "" {
		return nil, fmt.Errorf("sender email is required")
	}

	return &PostmarkSender{
		client: postmark.NewClient(config.ServerToken, config.AccountToken),
		config: config,
	}, nil
}

func (s *PostmarkSender) Send(ctx context.Context, to string, subject string, body string) utils.Result[string] {
	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.config.SenderEmail,
		ReplyTo:  s.config.ReplyToEmail,
		To:       to,
		Subject:  subject,
		TextBody: body,
		Tag:      s.config.MessageTag,
	})
	if err != nil {
		return utils.FailedResult[string](utils.ExternalServiceError(err, "postmark send failed"))
	}
	if resp.ErrorCode > 0 {
		return utils.FailedResult[string](
			utils.ExternalServiceError(nil, "postmark rejected the message: %d %s", resp.ErrorCode, resp.Message))
	}

	return utils.SuccessResult(resp.MessageID)
}
