package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pharmasuite/lifecycle-engine/models"
	"github.com/pharmasuite/lifecycle-engine/utils"
)

// Ledger owns subscription records and the plan catalog: billing windows,
// expiration, renewal and the payment failure ladder.
type Ledger struct {
	store     SubscriptionStore
	audit     AuditStore
	publisher *EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewLedger(store SubscriptionStore, audit AuditStore, publisher *EventPublisher) *Ledger {
	return &Ledger{
		store:     store,
		audit:     audit,
		publisher: publisher,
		logger:    slog.Default().With("component", "subscription_ledger"),
		now:       time.Now,
	}
}

type CreateSubscriptionRequest struct {
	PlanType models.PlanType
	// DurationOverrideDays shortens or extends the window of a trial plan.
	// Ignored for every other plan type.
	DurationOverrideDays int
	PaymentMethod        models.PaymentProvider
	// InstanceID links the subscription to its instance from the first
	// write, so no subscription row ever floats without one.
	InstanceID string
}

func (l *Ledger) CreateSubscription(req CreateSubscriptionRequest) utils.Result[*models.Subscription] {
	planResult := models.PlanFor(req.PlanType)
	if planResult.Failure() {
		return utils.FailedResult[*models.Subscription](planResult.Error())
	}
	plan := planResult.Value()

	start := l.now()
	end := models.BillingWindow(plan.Type, start, req.DurationOverrideDays)

	trialDays := 0
	if plan.Type == models.PlanTrial {
		trialDays = req.DurationOverrideDays
		if trialDays <= 0 {
			trialDays = models.DefaultTrialDays
		}
	}

	sub := &models.Subscription{
		ID:                 uuid.NewString(),
		PlanType:           plan.Type,
		PlanName:           plan.Name,
		StartDate:          start,
		EndDate:            end,
		TrialDaysRemaining: trialDays,
		Amount:             plan.Price,
		Currency:           plan.Currency,
		AutoRenew:          plan.Type != models.PlanTrial,
		Status:             models.SubscriptionActive,
		PaymentMethod:      req.PaymentMethod,
	}
	if req.InstanceID != "" {
		sub.InstanceID = &req.InstanceID
	}

	return l.store.CreateSubscription(sub)
}

// RenewSubscription opens a fresh billing window from now, clears the
// failure counter and the reminder dedup marker. The write is conditional
// on the subscription still being renewable, so an overlapping run cannot
// renew a subscription cancelled in between.
func (l *Ledger) RenewSubscription(ctx context.Context, id string) utils.Result[*models.Subscription] {
	fetched := l.store.FetchSubscription(id)
	if fetched.Failure() {
		return fetched
	}
	sub := fetched.Value()

	if sub.Status == models.SubscriptionCancelled {
		return utils.FailedResult[*models.Subscription](
			utils.InvalidStateError("subscription %s is cancelled and cannot be renewed", id))
	}

	start := l.now()
	applied := l.store.TransitionSubscription(id,
		[]models.SubscriptionStatus{
			models.SubscriptionActive,
			models.SubscriptionPendingPayment,
			models.SubscriptionSuspended,
			models.SubscriptionExpired,
		},
		map[string]any{
			"start_date":              start,
			"end_date":                models.BillingWindow(sub.PlanType, start, 0),
			"status":                  models.SubscriptionActive,
			"failed_payment_attempts": 0,
			"expire_reminder_sent_at": nil,
		})
	if applied.Failure() {
		return utils.FailedResult[*models.Subscription](applied.Error())
	}
	if !applied.Value() {
		return utils.FailedResult[*models.Subscription](
			utils.InvalidStateError("subscription %s is cancelled and cannot be renewed", id))
	}

	result := l.store.FetchSubscription(id)
	if result.Success() {
		l.publishSubscriptionEvent(ctx, EventSubscriptionRenewed, result.Value())
	}

	return result
}

// CancelSubscription is idempotent: cancelling a cancelled subscription is
// a no-op success.
func (l *Ledger) CancelSubscription(id string) utils.Result[*models.Subscription] {
	fetched := l.store.FetchSubscription(id)
	if fetched.Failure() {
		return fetched
	}
	sub := fetched.Value()

	if sub.Status == models.SubscriptionCancelled {
		return utils.SuccessResult(sub)
	}

	return l.store.UpdateSubscription(id, map[string]any{
		"status":     models.SubscriptionCancelled,
		"end_date":   l.now(),
		"auto_renew": false,
	})
}

func (l *Ledger) SuspendSubscription(id string, reason string) utils.Result[*models.Subscription] {
	fetched := l.store.FetchSubscription(id)
	if fetched.Failure() {
		return fetched
	}
	sub := fetched.Value()

	result := l.store.UpdateSubscription(id, map[string]any{
		"status": models.SubscriptionSuspended,
	})
	if result.Failure() {
		return result
	}

	l.writeAudit(sub, "subscription.suspended", utils.JSONMap{"reason": reason})

	return result
}

// ExpireSubscription moves an active subscription to expired. The write is
// a compare-and-set on the active status: when two scheduler runs overlap,
// only one of them expires the subscription and publishes the event.
func (l *Ledger) ExpireSubscription(ctx context.Context, id string) utils.Result[*models.Subscription] {
	fetched := l.store.FetchSubscription(id)
	if fetched.Failure() {
		return fetched
	}
	sub := fetched.Value()

	now := l.now()
	fields := map[string]any{"status": models.SubscriptionExpired}
	if sub.EndDate == nil || sub.EndDate.After(now) {
		fields["end_date"] = now
	}

	applied := l.store.TransitionSubscription(id,
		[]models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionPendingPayment},
		fields)
	if applied.Failure() {
		return utils.FailedResult[*models.Subscription](applied.Error())
	}
	if !applied.Value() {
		// A concurrent run got there first. Degrade to a no-op.
		return l.store.FetchSubscription(id)
	}

	result := l.store.FetchSubscription(id)
	if result.Success() {
		l.publishSubscriptionEvent(ctx, EventSubscriptionExpired, result.Value())
	}

	return result
}

// RecordPaymentFailure walks the escalation ladder: the first failure keeps
// the subscription as is, the second moves it to pending_payment, the third
// and beyond suspend it. Cancelled subscriptions are left untouched.
func (l *Ledger) RecordPaymentFailure(id string) utils.Result[*models.Subscription] {
	fetched := l.store.FetchSubscription(id)
	if fetched.Failure() {
		return fetched
	}
	sub := fetched.Value()

	if sub.Status == models.SubscriptionCancelled {
		return utils.SuccessResult(sub)
	}

	attempts := sub.FailedPaymentAttempts + 1
	fields := map[string]any{"failed_payment_attempts": attempts}

	switch {
	case attempts >= models.SuspensionThreshold:
		fields["status"] = models.SubscriptionSuspended
	case attempts == models.SuspensionThreshold-1:
		fields["status"] = models.SubscriptionPendingPayment
	}

	result := l.store.UpdateSubscription(id, fields)
	if result.Success() && attempts >= models.SuspensionThreshold {
		l.writeAudit(sub, "subscription.suspended", utils.JSONMap{
			"reason":   "payment failure threshold reached",
			"attempts": attempts,
		})
	}

	return result
}

func (l *Ledger) ExpiringSubscriptions(daysAhead int) utils.Result[[]models.Subscription] {
	return l.store.ExpiringSubscriptions(l.now(), daysAhead)
}

func (l *Ledger) ExpiredSubscriptions() utils.Result[[]models.Subscription] {
	return l.store.ExpiredSubscriptions(l.now())
}

func (l *Ledger) SubscriptionsDueForRenewal() utils.Result[[]models.Subscription] {
	return l.store.SubscriptionsDueForRenewal(l.now())
}

// MarkExpirationReminderSent must only be called once the reminder has been
// durably recorded, so a crash in between re-sends rather than drops.
func (l *Ledger) MarkExpirationReminderSent(id string) utils.Result[*models.Subscription] {
	return l.store.UpdateSubscription(id, map[string]any{
		"expire_reminder_sent_at": l.now(),
	})
}

func (l *Ledger) GetSubscription(id string) utils.Result[*models.Subscription] {
	return l.store.FetchSubscription(id)
}

func (l *Ledger) GetInstanceSubscription(instanceID string) utils.Result[*models.Subscription] {
	return l.store.FetchSubscriptionByInstance(instanceID)
}

func (l *Ledger) writeAudit(sub *models.Subscription, action string, changes utils.JSONMap) {
	if l.audit == nil {
		return
	}

	instanceID := ""
	if sub.InstanceID != nil {
		instanceID = *sub.InstanceID
	}

	entry := &models.AuditLog{
		ID:         uuid.NewString(),
		InstanceID: instanceID,
		Action:     action,
		Actor:      "system",
		Changes:    changes,
	}
	if auditResult := l.audit.CreateAuditLog(entry); auditResult.Failure() {
		l.logger.Error("failed to write audit entry", "action", action, "error", auditResult.ErrorMsg())
	}
}

func (l *Ledger) publishSubscriptionEvent(ctx context.Context, event string, sub *models.Subscription) {
	instanceID := ""
	if sub.InstanceID != nil {
		instanceID = *sub.InstanceID
	}

	l.publisher.Publish(ctx, LifecycleEvent{
		Event:      event,
		InstanceID: instanceID,
		EntityID:   sub.ID,
		OccurredAt: l.now(),
	})
}
