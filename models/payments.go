package models

import (
	"time"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentReceived PaymentStatus = "received"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentProvider string

const (
	ProviderAvadaPay   PaymentProvider = "avadapay"
	ProviderStrowallet PaymentProvider = "strowallet"
	ProviderStripe     PaymentProvider = "stripe"
)

// Payment references a subscription and an instance without owning either:
// payment rows outlive both as an audit trail.
type Payment struct {
	ID                   string `gorm:"primaryKey"`
	SubscriptionID       *string
	InstanceID           *string
	Amount               float64
	Currency             string
	Status               PaymentStatus
	Provider             PaymentProvider
	TransactionReference string
	Metadata             utils.JSONMap `gorm:"type:jsonb"`
	InitiatedAt          time.Time
	PaidAt               *time.Time
	// EscalatedAt marks the failure as already counted against the
	// subscription's escalation ladder.
	EscalatedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (store *AdminStore) CreatePayment(payment *Payment) utils.Result[*Payment] {
	result := store.db.Connection.Create(payment)
	if result.Error != nil {
		return utils.FailedResult[*Payment](result.Error)
	}

	return utils.SuccessResult(payment)
}

func (store *AdminStore) FetchPayment(id string) utils.Result[*Payment] {
	var payment Payment

	result := store.db.Connection.First(&payment, "id = ?", id)
	if result.Error != nil {
		return notFoundResult[*Payment](result.Error, "payment %s not found", id)
	}

	return utils.SuccessResult(&payment)
}

func (store *AdminStore) UpdatePayment(id string, fields map[string]any) utils.Result[*Payment] {
	result := store.db.Connection.Model(&Payment{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return utils.FailedResult[*Payment](result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.FailedResult[*Payment](utils.NotFoundError("payment %s not found", id))
	}

	return store.FetchPayment(id)
}

// RecentFailedPayments returns payments that failed inside the lookback
// window and have not been counted against a subscription yet, oldest
// first so escalation counts failures in order. The escalated_at filter is
// what keeps overlapping scheduler runs from walking a single failure up
// the whole ladder.
func (store *AdminStore) RecentFailedPayments(since time.Time) utils.Result[[]Payment] {
	var payments []Payment

	result := store.db.Connection.
		Where("status = ?", PaymentFailed).
		Where("updated_at >= ?", since).
		Where("escalated_at IS NULL").
		Order("updated_at ASC").
		Find(&payments)
	if result.Error != nil {
		return utils.FailedResult[[]Payment](result.Error)
	}

	return utils.SuccessResult(payments)
}

func (store *AdminStore) ListInstancePayments(instanceID string) utils.Result[[]Payment] {
	var payments []Payment

	result := store.db.Connection.
		Where("instance_id = ?", instanceID).
		Order("created_at DESC").
		Find(&payments)
	if result.Error != nil {
		return utils.FailedResult[[]Payment](result.Error)
	}

	return utils.SuccessResult(payments)
}

func (store *AdminStore) ListSubscriptionPayments(subscriptionID string) utils.Result[[]Payment] {
	var payments []Payment

	result := store.db.Connection.
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&payments)
	if result.Error != nil {
		return utils.FailedResult[[]Payment](result.Error)
	}

	return utils.SuccessResult(payments)
}
