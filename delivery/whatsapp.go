package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

type WhatsAppConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender delivers WhatsApp messages through Twilio's messaging API.
type TwilioSender struct {
	api    messageCreator
	config WhatsAppConfig
}

func NewTwilioSender(config WhatsAppConfig) (*TwilioSender, error) {
	if config.AccountSID == "" || config.AuthToken == "" {
		return nil, fmt.Errorf("twilio credentials are required")
	}
	if config.FromNumber == "" {
		return nil, fmt.Errorf("twilio whatsapp sender number is required")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: config.AccountSID,
		Password: config.AuthToken,
	})

	return &TwilioSender{
		api:    client.Api,
		config: config,
	}, nil
}

func whatsAppAddress(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

func (s *TwilioSender) Send(_ context.Context, to string, body string) utils.Result[string] {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(whatsAppAddress(to))
	params.SetFrom(whatsAppAddress(s.config.FromNumber))
	params.SetBody(body)

	message, err := s.api.CreateMessage(params)
	if err != nil {
		return utils.FailedResult[string](utils.ExternalServiceError(err, "twilio whatsapp send failed"))
	}

	sid := ""
	if message.Sid != nil {
		sid = *message.Sid
	}

	return utils.SuccessResult(sid)
}
