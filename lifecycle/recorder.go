package lifecycle

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pharmasuite/lifecycle-engine/gateways"
	"github.com/pharmasuite/lifecycle-engine/models"
	"github.com/pharmasuite/lifecycle-engine/utils"
)

// Recorder owns payment attempt records. Billing-state consequences stay
// with the Ledger: the caller invokes it separately so a failure on one
// side never silently skips the other.
type Recorder struct {
	store    PaymentStore
	registry *gateways.Registry
	logger   *slog.Logger
	now      func() time.Time
}

func NewRecorder(store PaymentStore, registry *gateways.Registry) *Recorder {
	return &Recorder{
		store:    store,
		registry: registry,
		logger:   slog.Default().With("component", "payment_recorder"),
		now:      time.Now,
	}
}

type InitiatePaymentRequest struct {
	InstanceID     string
	SubscriptionID string
	Amount         float64
	Currency       string
	Provider       models.PaymentProvider
	Description    string
}

type InitiatedPaymentResult struct {
	Payment     *models.Payment
	RedirectURL string
}

// InitiatePayment records the attempt as pending, then opens the checkout
// on the provider side. A gateway failure marks the row failed right away;
// retrying is the caller's decision.
func (r *Recorder) InitiatePayment(req InitiatePaymentRequest) utils.Result[*InitiatedPaymentResult] {
	if req.Amount <= 0 {
		return utils.FailedResult[*InitiatedPaymentResult](utils.ValidationError("payment amount must be positive"))
	}

	gatewayResult := r.registry.For(req.Provider)
	if gatewayResult.Failure() {
		return utils.FailedResult[*InitiatedPaymentResult](gatewayResult.Error())
	}
	gateway := gatewayResult.Value()

	payment := &models.Payment{
		ID:          uuid.NewString(),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Status:      models.PaymentPending,
		Provider:    req.Provider,
		InitiatedAt: r.now(),
		Metadata:    utils.JSONMap{},
	}
	if req.InstanceID != "" {
		payment.InstanceID = &req.InstanceID
	}
	if req.SubscriptionID != "" {
		payment.SubscriptionID = &req.SubscriptionID
	}

	created := r.store.CreatePayment(payment)
	if created.Failure() {
		return utils.FailedResult[*InitiatedPaymentResult](created.Error())
	}
	payment = created.Value()

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("PharmaSuite payment %s", payment.ID)
	}

	initiated := gateway.Initiate(req.Amount, req.Currency, description)
	if initiated.Failure() {
		if failed := r.store.UpdatePayment(payment.ID, map[string]any{
			"status":   models.PaymentFailed,
			"metadata": utils.JSONMap{"failure_reason": initiated.ErrorMsg()},
		}); failed.Failure() {
			r.logger.Error("failed to mark payment as failed", "payment_id", payment.ID, "error", failed.ErrorMsg())
		}
		return utils.FailedResult[*InitiatedPaymentResult](initiated.Error())
	}

	updated := r.store.UpdatePayment(payment.ID, map[string]any{
		"transaction_reference": initiated.Value().TransactionReference,
	})
	if updated.Failure() {
		return utils.FailedResult[*InitiatedPaymentResult](updated.Error())
	}

	return utils.SuccessResult(&InitiatedPaymentResult{
		Payment:     updated.Value(),
		RedirectURL: initiated.Value().RedirectURL,
	})
}

// ConfirmPayment settles a pending payment once the provider confirms the
// transaction. An unconfirmed transaction leaves the row untouched.
func (r *Recorder) ConfirmPayment(paymentID string, transactionReference string) utils.Result[*models.Payment] {
	fetched := r.store.FetchPayment(paymentID)
	if fetched.Failure() {
		return fetched
	}
	payment := fetched.Value()

	if payment.Status == models.PaymentReceived {
		return utils.SuccessResult(payment)
	}
	if payment.Status != models.PaymentPending {
		return utils.FailedResult[*models.Payment](
			utils.InvalidStateError("payment %s is %s, only pending payments can be confirmed", paymentID, payment.Status))
	}

	gatewayResult := r.registry.For(payment.Provider)
	if gatewayResult.Failure() {
		return utils.FailedResult[*models.Payment](gatewayResult.Error())
	}

	validated := gatewayResult.Value().Validate(transactionReference)
	if validated.Failure() {
		return utils.FailedResult[*models.Payment](validated.Error())
	}
	if !validated.Value() {
		return utils.FailedResult[*models.Payment](utils.PaymentValidationError(transactionReference))
	}

	return r.store.UpdatePayment(paymentID, map[string]any{
		"status":                models.PaymentReceived,
		"paid_at":               r.now(),
		"transaction_reference": transactionReference,
	})
}

// RecordFailure marks a pending payment as failed. Recording the same
// failure twice is a no-op success; a settled or refunded payment never
// becomes failed.
func (r *Recorder) RecordFailure(paymentID string, reason string) utils.Result[*models.Payment] {
	fetched := r.store.FetchPayment(paymentID)
	if fetched.Failure() {
		return fetched
	}
	payment := fetched.Value()

	if payment.Status == models.PaymentFailed {
		return utils.SuccessResult(payment)
	}
	if payment.Status != models.PaymentPending {
		return utils.FailedResult[*models.Payment](
			utils.InvalidStateError("payment %s is %s, only pending payments can fail", paymentID, payment.Status))
	}

	metadata := payment.Metadata
	if metadata == nil {
		metadata = utils.JSONMap{}
	}
	metadata["failure_reason"] = reason

	return r.store.UpdatePayment(paymentID, map[string]any{
		"status":   models.PaymentFailed,
		"metadata": metadata,
	})
}

// RefundPayment is only valid on received payments.
func (r *Recorder) RefundPayment(paymentID string, reason string) utils.Result[*models.Payment] {
	fetched := r.store.FetchPayment(paymentID)
	if fetched.Failure() {
		return fetched
	}
	payment := fetched.Value()

	if payment.Status != models.PaymentReceived {
		return utils.FailedResult[*models.Payment](
			utils.InvalidStateError("payment %s is %s, only received payments can be refunded", paymentID, payment.Status))
	}

	metadata := payment.Metadata
	if metadata == nil {
		metadata = utils.JSONMap{}
	}
	metadata["refund_reason"] = reason
	metadata["refunded_at"] = r.now().Format(time.RFC3339)

	return r.store.UpdatePayment(paymentID, map[string]any{
		"status":   models.PaymentRefunded,
		"metadata": metadata,
	})
}

// RecentFailedPayments returns failed payments inside the lookback window
// that have not been counted against a subscription yet.
func (r *Recorder) RecentFailedPayments(lookback time.Duration) utils.Result[[]models.Payment] {
	return r.store.RecentFailedPayments(r.now().Add(-lookback))
}

// MarkEscalated stamps the failure as counted so the next scheduler run
// does not walk the same payment up the ladder again.
func (r *Recorder) MarkEscalated(paymentID string) utils.Result[*models.Payment] {
	return r.store.UpdatePayment(paymentID, map[string]any{
		"escalated_at": r.now(),
	})
}

func (r *Recorder) ListInstancePayments(instanceID string) utils.Result[[]models.Payment] {
	return r.store.ListInstancePayments(instanceID)
}

func (r *Recorder) ListSubscriptionPayments(subscriptionID string) utils.Result[[]models.Payment] {
	return r.store.ListSubscriptionPayments(subscriptionID)
}
