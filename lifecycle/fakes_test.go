package lifecycle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pharmasuite/lifecycle-engine/gateways"
	"github.com/pharmasuite/lifecycle-engine/models"
	"github.com/pharmasuite/lifecycle-engine/provisioning"
	"github.com/pharmasuite/lifecycle-engine/utils"
)

// In-memory stores honoring the column-map update contract of AdminStore.

func asTimePtr(value any) *time.Time {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return &v
	case *time.Time:
		return v
	}
	return nil
}

type fakeSubscriptionStore struct {
	mu   sync.Mutex
	subs map[string]*models.Subscription
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{subs: map[string]*models.Subscription{}}
}

func (s *fakeSubscriptionStore) CreateSubscription(sub *models.Subscription) utils.Result[*models.Subscription] {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *sub
	s.subs[sub.ID] = &copied
	return utils.SuccessResult(sub)
}

func (s *fakeSubscriptionStore) FetchSubscription(id string) utils.Result[*models.Subscription] {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, found := s.subs[id]
	if !found {
		return utils.FailedResult[*models.Subscription](utils.NotFoundError("subscription %s not found", id))
	}
	copied := *sub
	return utils.SuccessResult(&copied)
}

func (s *fakeSubscriptionStore) FetchSubscriptionByInstance(instanceID string) utils.Result[*models.Subscription] {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		if sub.InstanceID != nil && *sub.InstanceID == instanceID {
			copied := *sub
			return utils.SuccessResult(&copied)
		}
	}
	return utils.FailedResult[*models.Subscription](utils.NotFoundError("no subscription for instance %s", instanceID))
}

func (s *fakeSubscriptionStore) applyFields(sub *models.Subscription, fields map[string]any) {
	for column, value := range fields {
		switch column {
		case "status":
			sub.Status = value.(models.SubscriptionStatus)
		case "start_date":
			sub.StartDate = value.(time.Time)
		case "end_date":
			sub.EndDate = asTimePtr(value)
		case "failed_payment_attempts":
			sub.FailedPaymentAttempts = value.(int)
		case "expire_reminder_sent_at":
			sub.ExpireReminderSentAt = asTimePtr(value)
		case "auto_renew":
			sub.AutoRenew = value.(bool)
		case "instance_id":
			id := value.(string)
			sub.InstanceID = &id
		}
	}
	sub.UpdatedAt = time.Now()
}

func (s *fakeSubscriptionStore) UpdateSubscription(id string, fields map[string]any) utils.Result[*models.Subscription] {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, found := s.subs[id]
	if !found {
		return utils.FailedResult[*models.Subscription](utils.NotFoundError("subscription %s not found", id))
	}
	s.applyFields(sub, fields)
	copied := *sub
	return utils.SuccessResult(&copied)
}

func (s *fakeSubscriptionStore) TransitionSubscription(id string, from []models.SubscriptionStatus, fields map[string]any) utils.Result[bool] {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, found := s.subs[id]
	if !found {
		return utils.SuccessResult(false)
	}
	for _, status := range from {
		if sub.Status == status {
			s.applyFields(sub, fields)
			return utils.SuccessResult(true)
		}
	}
	return utils.SuccessResult(false)
}

func (s *fakeSubscriptionStore) sorted() []models.Subscription {
	ids := make([]string, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]models.Subscription, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.subs[id])
	}
	return out
}

func (s *fakeSubscriptionStore) ExpiringSubscriptions(now time.Time, daysAhead int) utils.Result[[]models.Subscription] {
	s.mu.Lock()
	defer s.mu.Unlock()

	until := now.AddDate(0, 0, daysAhead)
	var out []models.Subscription
	for _, sub := range s.sorted() {
		if sub.Status != models.SubscriptionActive || sub.EndDate == nil || sub.ExpireReminderSentAt != nil {
			continue
		}
		if sub.EndDate.After(now) && !sub.EndDate.After(until) {
			out = append(out, sub)
		}
	}
	return utils.SuccessResult(out)
}

func (s *fakeSubscriptionStore) ExpiredSubscriptions(now time.Time) utils.Result[[]models.Subscription] {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Subscription
	for _, sub := range s.sorted() {
		if sub.Status == models.SubscriptionActive && sub.EndDate != nil && !sub.EndDate.After(now) {
			out = append(out, sub)
		}
	}
	return utils.SuccessResult(out)
}

func (s *fakeSubscriptionStore) SubscriptionsDueForRenewal(now time.Time) utils.Result[[]models.Subscription] {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Subscription
	for _, sub := range s.sorted() {
		if sub.AutoRenew && sub.Status == models.SubscriptionActive && sub.EndDate != nil && !sub.EndDate.After(now) {
			out = append(out, sub)
		}
	}
	return utils.SuccessResult(out)
}

type fakeInstanceStore struct {
	mu         sync.Mutex
	instances  map[string]*models.Instance
	failCreate bool
}

func newFakeInstanceStore() *fakeInstanceStore {
	return &fakeInstanceStore{instances: map[string]*models.Instance{}}
}

func (s *fakeInstanceStore) CreateInstance(instance *models.Instance) utils.Result[*models.Instance] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCreate {
		return utils.FailedResult[*models.Instance](utils.ExternalServiceError(nil, "insert failed"))
	}
	copied := *instance
	s.instances[instance.ID] = &copied
	return utils.SuccessResult(instance)
}

func (s *fakeInstanceStore) FetchInstance(id string) utils.Result[*models.Instance] {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance, found := s.instances[id]
	if !found {
		return utils.FailedResult[*models.Instance](utils.NotFoundError("instance %s not found", id))
	}
	copied := *instance
	return utils.SuccessResult(&copied)
}

func (s *fakeInstanceStore) FetchInstanceBySubdomain(subdomain string) utils.Result[*models.Instance] {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, instance := range s.instances {
		if instance.Subdomain == subdomain && instance.Status != models.InstanceDeleted {
			copied := *instance
			return utils.SuccessResult(&copied)
		}
	}
	return utils.FailedResult[*models.Instance](utils.NotFoundError("instance with subdomain %q not found", subdomain))
}

func (s *fakeInstanceStore) applyFields(instance *models.Instance, fields map[string]any) {
	for column, value := range fields {
		switch column {
		case "status":
			instance.Status = value.(models.InstanceStatus)
		case "name":
			instance.Name = value.(string)
		case "owner_name":
			instance.OwnerName = value.(string)
		case "owner_phone":
			instance.OwnerPhone = value.(string)
		case "logo_url":
			instance.LogoURL = value.(string)
		case "primary_color":
			instance.PrimaryColor = value.(string)
		case "secondary_color":
			instance.SecondaryColor = value.(string)
		case "custom_domain":
			instance.CustomDomain = value.(string)
		case "domain_verified":
			instance.DomainVerified = value.(bool)
		case "active_users":
			instance.ActiveUsers = value.(int)
		case "total_orders":
			instance.TotalOrders = value.(int)
		case "monthly_revenue":
			instance.MonthlyRevenue = value.(float64)
		case "last_activity_at":
			instance.LastActivityAt = value.(time.Time)
		}
	}
	instance.UpdatedAt = time.Now()
}

func (s *fakeInstanceStore) UpdateInstance(id string, fields map[string]any) utils.Result[*models.Instance] {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance, found := s.instances[id]
	if !found {
		return utils.FailedResult[*models.Instance](utils.NotFoundError("instance %s not found", id))
	}
	s.applyFields(instance, fields)
	copied := *instance
	return utils.SuccessResult(&copied)
}

func (s *fakeInstanceStore) TransitionInstance(id string, from []models.InstanceStatus, fields map[string]any) utils.Result[bool] {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance, found := s.instances[id]
	if !found {
		return utils.SuccessResult(false)
	}
	for _, status := range from {
		if instance.Status == status {
			s.applyFields(instance, fields)
			return utils.SuccessResult(true)
		}
	}
	return utils.SuccessResult(false)
}

func (s *fakeInstanceStore) ListInstances(filter models.InstanceFilter) utils.Result[*models.InstancePage] {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Instance
	for _, instance := range s.instances {
		if instance.Status == models.InstanceDeleted {
			continue
		}
		if filter.Status != "" && instance.Status != filter.Status {
			continue
		}
		out = append(out, *instance)
	}
	return utils.SuccessResult(&models.InstancePage{Instances: out, Total: int64(len(out))})
}

func (s *fakeInstanceStore) ActiveInstances() utils.Result[[]models.Instance] {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Instance
	for _, instance := range s.instances {
		if instance.Status == models.InstanceActive {
			out = append(out, *instance)
		}
	}
	return utils.SuccessResult(out)
}

type fakePaymentStore struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: map[string]*models.Payment{}}
}

func (s *fakePaymentStore) CreatePayment(payment *models.Payment) utils.Result[*models.Payment] {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *payment
	s.payments[payment.ID] = &copied
	return utils.SuccessResult(payment)
}

func (s *fakePaymentStore) FetchPayment(id string) utils.Result[*models.Payment] {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, found := s.payments[id]
	if !found {
		return utils.FailedResult[*models.Payment](utils.NotFoundError("payment %s not found", id))
	}
	copied := *payment
	return utils.SuccessResult(&copied)
}

func (s *fakePaymentStore) UpdatePayment(id string, fields map[string]any) utils.Result[*models.Payment] {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, found := s.payments[id]
	if !found {
		return utils.FailedResult[*models.Payment](utils.NotFoundError("payment %s not found", id))
	}
	for column, value := range fields {
		switch column {
		case "status":
			payment.Status = value.(models.PaymentStatus)
		case "transaction_reference":
			payment.TransactionReference = value.(string)
		case "paid_at":
			payment.PaidAt = asTimePtr(value)
		case "escalated_at":
			payment.EscalatedAt = asTimePtr(value)
		case "metadata":
			payment.Metadata = value.(utils.JSONMap)
		}
	}
	payment.UpdatedAt = time.Now()
	copied := *payment
	return utils.SuccessResult(&copied)
}

func (s *fakePaymentStore) RecentFailedPayments(since time.Time) utils.Result[[]models.Payment] {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Payment
	for _, payment := range s.payments {
		if payment.Status == models.PaymentFailed && !payment.UpdatedAt.Before(since) && payment.EscalatedAt == nil {
			out = append(out, *payment)
		}
	}
	return utils.SuccessResult(out)
}

func (s *fakePaymentStore) ListInstancePayments(instanceID string) utils.Result[[]models.Payment] {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Payment
	for _, payment := range s.payments {
		if payment.InstanceID != nil && *payment.InstanceID == instanceID {
			out = append(out, *payment)
		}
	}
	return utils.SuccessResult(out)
}

func (s *fakePaymentStore) ListSubscriptionPayments(subscriptionID string) utils.Result[[]models.Payment] {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Payment
	for _, payment := range s.payments {
		if payment.SubscriptionID != nil && *payment.SubscriptionID == subscriptionID {
			out = append(out, *payment)
		}
	}
	return utils.SuccessResult(out)
}

type fakeNotificationStore struct {
	mu            sync.Mutex
	notifications map[string]*models.Notification
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{notifications: map[string]*models.Notification{}}
}

func (s *fakeNotificationStore) CreateNotification(notification *models.Notification) utils.Result[*models.Notification] {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *notification
	s.notifications[notification.ID] = &copied
	return utils.SuccessResult(notification)
}

func (s *fakeNotificationStore) UpdateNotification(id string, fields map[string]any) utils.Result[*models.Notification] {
	s.mu.Lock()
	defer s.mu.Unlock()

	notification, found := s.notifications[id]
	if !found {
		return utils.FailedResult[*models.Notification](utils.NotFoundError("notification %s not found", id))
	}
	for column, value := range fields {
		switch column {
		case "status":
			notification.Status = value.(models.NotificationStatus)
		case "sent_at":
			notification.SentAt = asTimePtr(value)
		case "failure_reason":
			notification.FailureReason = value.(string)
		}
	}
	copied := *notification
	return utils.SuccessResult(&copied)
}

func (s *fakeNotificationStore) all() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Notification
	for _, notification := range s.notifications {
		out = append(out, *notification)
	}
	return out
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (s *fakeAuditStore) CreateAuditLog(entry *models.AuditLog) utils.Result[*models.AuditLog] {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, *entry)
	return utils.SuccessResult(entry)
}

// Capability fakes.

type fakeProvisioner struct {
	mu               sync.Mutex
	provisioned      []string
	deprovisioned    []string
	failProvision    bool
	failDeprovision  bool
	domainVerified   bool
	configuredVars   map[string]string
	configUpdateDone bool
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{domainVerified: true}
}

func (p *fakeProvisioner) Provision(_ context.Context, req provisioning.DeployRequest) utils.Result[*provisioning.Deployment] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failProvision {
		return utils.FailedResult[*provisioning.Deployment](utils.ExternalServiceError(nil, "platform unavailable"))
	}
	p.provisioned = append(p.provisioned, req.Subdomain)
	return utils.SuccessResult(&provisioning.Deployment{
		ProjectID:   "prj_" + req.Subdomain,
		ProjectName: "pharmasuite-" + req.Subdomain,
		EndpointURL: req.Subdomain + ".pharmasuite.app",
	})
}

func (p *fakeProvisioner) Deprovision(_ context.Context, projectID string) utils.Result[bool] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failDeprovision {
		return utils.FailedBoolResult(utils.ExternalServiceError(nil, "platform unavailable"))
	}
	p.deprovisioned = append(p.deprovisioned, projectID)
	return utils.SuccessResult(true)
}

func (p *fakeProvisioner) UpdateConfig(_ context.Context, _ string, vars map[string]string) utils.Result[bool] {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.configuredVars = vars
	p.configUpdateDone = true
	return utils.SuccessResult(true)
}

func (p *fakeProvisioner) ConfigureDomain(_ context.Context, _ string, _ string) utils.Result[bool] {
	return utils.SuccessResult(p.domainVerified)
}

type fakeEmailSender struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (f *fakeEmailSender) Send(_ context.Context, to string, _ string, _ string) utils.Result[string] {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return utils.FailedResult[string](utils.ExternalServiceError(nil, "smtp down"))
	}
	f.sent = append(f.sent, to)
	return utils.SuccessResult("msg_" + to)
}

type fakeWhatsAppSender struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (f *fakeWhatsAppSender) Send(_ context.Context, to string, _ string) utils.Result[string] {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return utils.FailedResult[string](utils.ExternalServiceError(nil, "twilio down"))
	}
	f.sent = append(f.sent, to)
	return utils.SuccessResult("SM_" + to)
}

type fakeGateway struct {
	ref          string
	redirectURL  string
	failInitiate bool
	valid        bool
	validatedRef string
}

func (g *fakeGateway) Initiate(_ float64, _ string, _ string) utils.Result[*gateways.InitiatedPayment] {
	if g.failInitiate {
		return utils.FailedResult[*gateways.InitiatedPayment](utils.ExternalServiceError(nil, "gateway down"))
	}
	return utils.SuccessResult(&gateways.InitiatedPayment{
		TransactionReference: g.ref,
		RedirectURL:          g.redirectURL,
	})
}

func (g *fakeGateway) Validate(ref string) utils.Result[bool] {
	g.validatedRef = ref
	return utils.SuccessResult(g.valid)
}

type fakeUsageSource struct {
	reports map[string]*UsageReport
}

func (f *fakeUsageSource) FetchUsage(_ context.Context, instanceID string) utils.Result[*UsageReport] {
	report, found := f.reports[instanceID]
	if !found {
		return utils.FailedResult[*UsageReport](utils.NotFoundError("no usage for %s", instanceID))
	}
	return utils.SuccessResult(report)
}
