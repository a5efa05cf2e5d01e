package gateways

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

type AvadaPayConfig struct {
	APIURL      string
	APIKey      string
	CallbackURL string
	Timeout     time.Duration
}

// AvadaPayGateway speaks the AvadaPay REST API. Authentication is a plain
// bearer token.
type AvadaPayGateway struct {
	config AvadaPayConfig
	client *http.Client
}

func NewAvadaPayGateway(config AvadaPayConfig) *AvadaPayGateway {
	if config.APIURL == "" {
		config.APIURL = "https://api.avadapay.com"
	}

	return &AvadaPayGateway{
		config: config,
		client: newHTTPClient(config.Timeout),
	}
}

type avadaPayInitiateRequest struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
	RedirectURL string  `json:"redirectUrl"`
}

type avadaPayInitiateResponse struct {
	TransactionID string `json:"transactionId"`
	RedirectURL   string `json:"redirectUrl"`
}

type avadaPayTransactionResponse struct {
	Status string `json:"status"`
}

func (g *AvadaPayGateway) Initiate(amount float64, currency string, description string) utils.Result[*InitiatedPayment] {
	payload, err := json.Marshal(avadaPayInitiateRequest{
		Amount:      amount,
		Currency:    currency,
		Description: description,
		RedirectURL: g.config.CallbackURL,
	})
	if err != nil {
		return utils.FailedResult[*InitiatedPayment](err)
	}

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/payments/initiate", g.config.APIURL), bytes.NewReader(payload))
	if err != nil {
		return utils.FailedResult[*InitiatedPayment](err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", g.config.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return utils.FailedResult[*InitiatedPayment](utils.ExternalServiceError(err, "avadapay initiate request failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return utils.FailedResult[*InitiatedPayment](
			utils.ExternalServiceError(nil, "avadapay initiate returned status %d", resp.StatusCode))
	}

	var body avadaPayInitiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return utils.FailedResult[*InitiatedPayment](utils.ExternalServiceError(err, "avadapay returned an unreadable response"))
	}

	return utils.SuccessResult(&InitiatedPayment{
		TransactionReference: body.TransactionID,
		RedirectURL:          body.RedirectURL,
	})
}

func (g *AvadaPayGateway) Validate(transactionReference string) utils.Result[bool] {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/transactions/%s", g.config.APIURL, transactionReference), nil)
	if err != nil {
		return utils.FailedBoolResult(err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", g.config.APIKey))

	resp, err := g.client.Do(req)
	if err != nil {
		return utils.FailedBoolResult(utils.ExternalServiceError(err, "avadapay validate request failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return utils.FailedBoolResult(
			utils.ExternalServiceError(nil, "avadapay validate returned status %d", resp.StatusCode))
	}

	var body avadaPayTransactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return utils.FailedBoolResult(utils.ExternalServiceError(err, "avadapay returned an unreadable response"))
	}

	return utils.SuccessResult(body.Status == "completed")
}
