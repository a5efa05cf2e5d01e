package gateways

import (
	"net/http"
	"time"

	"github.com/pharmasuite/lifecycle-engine/models"
	"github.com/pharmasuite/lifecycle-engine/utils"
)

// InitiatedPayment is what a gateway hands back when a checkout has been
// opened on the provider side. The transaction reference is the provider's
// identifier, not ours.
type InitiatedPayment struct {
	TransactionReference string
	RedirectURL          string
}

// Gateway abstracts one payment provider. Validate answers whether the
// provider considers the referenced transaction settled.
type Gateway interface {
	Initiate(amount float64, currency string, description string) utils.Result[*InitiatedPayment]
	Validate(transactionReference string) utils.Result[bool]
}

// Registry maps providers to their gateway client.
type Registry struct {
	gateways map[models.PaymentProvider]Gateway
}

func NewRegistry() *Registry {
	return &Registry{
		gateways: make(map[models.PaymentProvider]Gateway),
	}
}

func (r *Registry) Register(provider models.PaymentProvider, gateway Gateway) {
	r.gateways[provider] = gateway
}

func (r *Registry) For(provider models.PaymentProvider) utils.Result[Gateway] {
	gateway, found := r.gateways[provider]
	if !found {
		return utils.FailedResult[Gateway](utils.ValidationError("unsupported payment provider %q", provider))
	}

	return utils.SuccessResult(gateway)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &http.Client{Timeout: timeout}
}
