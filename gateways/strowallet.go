package gateways

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

type StrowalletConfig struct {
	APIURL      string
	APIKey      string
	APISecret   string
	CallbackURL string
	Timeout     time.Duration
}

// StrowalletGateway signs every create request with a sha256 digest over
// key, timestamp and secret, sent alongside the timestamp so the provider
// can replay the computation.
type StrowalletGateway struct {
	config StrowalletConfig
	client *http.Client
	now    func() time.Time
}

func NewStrowalletGateway(config StrowalletConfig) *StrowalletGateway {
	if config.APIURL == "" {
		config.APIURL = "https://api.strowallet.com"
	}

	return &StrowalletGateway{
		config: config,
		client: newHTTPClient(config.Timeout),
		now:    time.Now,
	}
}

type strowalletCreateRequest struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
	ReturnURL   string  `json:"returnUrl"`
}

type strowalletCreateResponse struct {
	TransactionID string `json:"transactionId"`
	PaymentURL    string `json:"paymentUrl"`
}

type strowalletTransactionResponse struct {
	Status string `json:"status"`
}

func (g *StrowalletGateway) signature(timestamp string) string {
	digest := sha256.Sum256([]byte(g.config.APIKey + timestamp + g.config.APISecret))
	return hex.EncodeToString(digest[:])
}

func (g *StrowalletGateway) Initiate(amount float64, currency string, description string) utils.Result[*InitiatedPayment] {
	payload, err := json.Marshal(strowalletCreateRequest{
		Amount:      amount,
		Currency:    currency,
		Description: description,
		ReturnURL:   g.config.CallbackURL,
	})
	if err != nil {
		return utils.FailedResult[*InitiatedPayment](err)
	}

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/payment/create", g.config.APIURL), bytes.NewReader(payload))
	if err != nil {
		return utils.FailedResult[*InitiatedPayment](err)
	}

	timestamp := strconv.FormatInt(g.now().UnixMilli(), 10)
	req.Header.Set("X-API-Key", g.config.APIKey)
	req.Header.Set("X-Signature", g.signature(timestamp))
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return utils.FailedResult[*InitiatedPayment](utils.ExternalServiceError(err, "strowallet create request failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return utils.FailedResult[*InitiatedPayment](
			utils.ExternalServiceError(nil, "strowallet create returned status %d", resp.StatusCode))
	}

	var body strowalletCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return utils.FailedResult[*InitiatedPayment](utils.ExternalServiceError(err, "strowallet returned an unreadable response"))
	}

	return utils.SuccessResult(&InitiatedPayment{
		TransactionReference: body.TransactionID,
		RedirectURL:          body.PaymentURL,
	})
}

func (g *StrowalletGateway) Validate(transactionReference string) utils.Result[bool] {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/transaction/%s", g.config.APIURL, transactionReference), nil)
	if err != nil {
		return utils.FailedBoolResult(err)
	}
	req.Header.Set("X-API-Key", g.config.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return utils.FailedBoolResult(utils.ExternalServiceError(err, "strowallet validate request failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return utils.FailedBoolResult(
			utils.ExternalServiceError(nil, "strowallet validate returned status %d", resp.StatusCode))
	}

	var body strowalletTransactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return utils.FailedBoolResult(utils.ExternalServiceError(err, "strowallet returned an unreadable response"))
	}

	return utils.SuccessResult(body.Status == "success")
}
