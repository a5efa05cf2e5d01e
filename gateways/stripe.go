package gateways

import (
	"math"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

type StripeConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
}

// StripeGateway opens a checkout session per payment and treats the session
// id as the transaction reference.
type StripeGateway struct {
	config StripeConfig
	api    *client.API
}

func NewStripeGateway(config StripeConfig) *StripeGateway {
	api := &client.API{}
	api.Init(config.SecretKey, nil)

	return &StripeGateway{
		config: config,
		api:    api,
	}
}

func (g *StripeGateway) Initiate(amount float64, currency string, description string) utils.Result[*InitiatedPayment] {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
					UnitAmount: stripe.Int64(int64(math.Round(amount * 100))),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(g.config.SuccessURL),
		CancelURL:  stripe.String(g.config.CancelURL),
	}

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return utils.FailedResult[*InitiatedPayment](utils.ExternalServiceError(err, "stripe checkout session creation failed"))
	}

	return utils.SuccessResult(&InitiatedPayment{
		TransactionReference: session.ID,
		RedirectURL:          session.URL,
	})
}

func (g *StripeGateway) Validate(transactionReference string) utils.Result[bool] {
	session, err := g.api.CheckoutSessions.Get(transactionReference, nil)
	if err != nil {
		return utils.FailedBoolResult(utils.ExternalServiceError(err, "stripe checkout session lookup failed"))
	}

	return utils.SuccessResult(session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid)
}
