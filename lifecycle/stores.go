package lifecycle

import (
	"time"

	"github.com/pharmasuite/lifecycle-engine/models"
	"github.com/pharmasuite/lifecycle-engine/utils"
)

// Narrow store contracts consumed by the lifecycle services. All of them
// are satisfied by *models.AdminStore; tests swap in fakes.

type SubscriptionStore interface {
	CreateSubscription(sub *models.Subscription) utils.Result[*models.Subscription]
	FetchSubscription(id string) utils.Result[*models.Subscription]
	FetchSubscriptionByInstance(instanceID string) utils.Result[*models.Subscription]
	UpdateSubscription(id string, fields map[string]any) utils.Result[*models.Subscription]
	TransitionSubscription(id string, from []models.SubscriptionStatus, fields map[string]any) utils.Result[bool]
	ExpiringSubscriptions(now time.Time, daysAhead int) utils.Result[[]models.Subscription]
	ExpiredSubscriptions(now time.Time) utils.Result[[]models.Subscription]
	SubscriptionsDueForRenewal(now time.Time) utils.Result[[]models.Subscription]
}

type InstanceStore interface {
	CreateInstance(instance *models.Instance) utils.Result[*models.Instance]
	FetchInstance(id string) utils.Result[*models.Instance]
	FetchInstanceBySubdomain(subdomain string) utils.Result[*models.Instance]
	UpdateInstance(id string, fields map[string]any) utils.Result[*models.Instance]
	TransitionInstance(id string, from []models.InstanceStatus, fields map[string]any) utils.Result[bool]
	ListInstances(filter models.InstanceFilter) utils.Result[*models.InstancePage]
	ActiveInstances() utils.Result[[]models.Instance]
}

type PaymentStore interface {
	CreatePayment(payment *models.Payment) utils.Result[*models.Payment]
	FetchPayment(id string) utils.Result[*models.Payment]
	UpdatePayment(id string, fields map[string]any) utils.Result[*models.Payment]
	RecentFailedPayments(since time.Time) utils.Result[[]models.Payment]
	ListInstancePayments(instanceID string) utils.Result[[]models.Payment]
	ListSubscriptionPayments(subscriptionID string) utils.Result[[]models.Payment]
}

type NotificationStore interface {
	CreateNotification(notification *models.Notification) utils.Result[*models.Notification]
	UpdateNotification(id string, fields map[string]any) utils.Result[*models.Notification]
}

type AuditStore interface {
	CreateAuditLog(entry *models.AuditLog) utils.Result[*models.AuditLog]
}
