package models

import (
	"time"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

type SubscriptionStatus string

const (
	SubscriptionActive         SubscriptionStatus = "active"
	SubscriptionExpired        SubscriptionStatus = "expired"
	SubscriptionSuspended      SubscriptionStatus = "suspended"
	SubscriptionCancelled      SubscriptionStatus = "cancelled"
	SubscriptionPendingPayment SubscriptionStatus = "pending_payment"
)

// SuspensionThreshold is the number of failed payment attempts after which
// a subscription is suspended. The attempt before it moves the
// subscription to pending_payment as an early warning.
const SuspensionThreshold = 3

type Subscription struct {
	ID                    string `gorm:"primaryKey"`
	InstanceID            *string
	PlanType              PlanType
	PlanName              string
	StartDate             time.Time
	EndDate               *time.Time
	TrialDaysRemaining    int
	Amount                float64
	Currency              string
	AutoRenew             bool
	Status                SubscriptionStatus
	PaymentMethod         PaymentProvider
	FailedPaymentAttempts int
	ExpireReminderSentAt  *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (store *AdminStore) CreateSubscription(sub *Subscription) utils.Result[*Subscription] {
	result := store.db.Connection.Create(sub)
	if result.Error != nil {
		return utils.FailedResult[*Subscription](result.Error)
	}

	return utils.SuccessResult(sub)
}

func (store *AdminStore) FetchSubscription(id string) utils.Result[*Subscription] {
	var sub Subscription

	result := store.db.Connection.First(&sub, "id = ?", id)
	if result.Error != nil {
		return notFoundResult[*Subscription](result.Error, "subscription %s not found", id)
	}

	return utils.SuccessResult(&sub)
}

func (store *AdminStore) FetchSubscriptionByInstance(instanceID string) utils.Result[*Subscription] {
	var sub Subscription

	result := store.db.Connection.First(&sub, "instance_id = ?", instanceID)
	if result.Error != nil {
		return notFoundResult[*Subscription](result.Error, "no subscription for instance %s", instanceID)
	}

	return utils.SuccessResult(&sub)
}

// UpdateSubscription applies fields and returns the fresh record.
func (store *AdminStore) UpdateSubscription(id string, fields map[string]any) utils.Result[*Subscription] {
	result := store.db.Connection.Model(&Subscription{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return utils.FailedResult[*Subscription](result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.FailedResult[*Subscription](utils.NotFoundError("subscription %s not found", id))
	}

	return store.FetchSubscription(id)
}

// TransitionSubscription applies fields only when the current status is one
// of from. A false value means another writer got there first, which the
// scheduler treats as a no-op.
func (store *AdminStore) TransitionSubscription(id string, from []SubscriptionStatus, fields map[string]any) utils.Result[bool] {
	result := store.db.Connection.Model(&Subscription{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if result.Error != nil {
		return utils.FailedBoolResult(result.Error)
	}

	return utils.SuccessResult(result.RowsAffected > 0)
}

// ExpiringSubscriptions returns active subscriptions whose end date falls in
// (now, now+daysAhead] and that have not had a reminder sent this period.
func (store *AdminStore) ExpiringSubscriptions(now time.Time, daysAhead int) utils.Result[[]Subscription] {
	var subs []Subscription

	until := now.AddDate(0, 0, daysAhead)
	result := store.db.Connection.
		Where("status = ?", SubscriptionActive).
		Where("end_date > ? AND end_date <= ?", now, until).
		Where("expire_reminder_sent_at IS NULL").
		Find(&subs)
	if result.Error != nil {
		return utils.FailedResult[[]Subscription](result.Error)
	}

	return utils.SuccessResult(subs)
}

func (store *AdminStore) ExpiredSubscriptions(now time.Time) utils.Result[[]Subscription] {
	var subs []Subscription

	result := store.db.Connection.
		Where("status = ?", SubscriptionActive).
		Where("end_date <= ?", now).
		Find(&subs)
	if result.Error != nil {
		return utils.FailedResult[[]Subscription](result.Error)
	}

	return utils.SuccessResult(subs)
}

func (store *AdminStore) SubscriptionsDueForRenewal(now time.Time) utils.Result[[]Subscription] {
	var subs []Subscription

	result := store.db.Connection.
		Where("auto_renew = ?", true).
		Where("status = ?", SubscriptionActive).
		Where("end_date <= ?", now).
		Find(&subs)
	if result.Error != nil {
		return utils.FailedResult[[]Subscription](result.Error)
	}

	return utils.SuccessResult(subs)
}
