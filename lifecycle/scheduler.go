package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pharmasuite/lifecycle-engine/models"
	"github.com/pharmasuite/lifecycle-engine/utils"
)

const usageRefreshConcurrency = 8

// UsageReport is one tenant's current usage counters as reported by the
// external reporting sink.
type UsageReport struct {
	ActiveUsers    int
	TotalOrders    int
	MonthlyRevenue float64
}

type UsageSource interface {
	FetchUsage(ctx context.Context, instanceID string) utils.Result[*UsageReport]
}

type SchedulerConfig struct {
	// ReminderDaysAhead is the expiration reminder window. Subscriptions
	// ending inside (now, now+N days] get one reminder per period.
	ReminderDaysAhead int
	// FailedPaymentLookback bounds step 3 to recently failed payments.
	FailedPaymentLookback time.Duration
}

// Scheduler is the externally triggered batch run: five fixed steps, each
// isolated per item, none allowed to abort the ones after it. Overlapping
// runs degrade to no-ops through the conditional status updates in the
// stores.
type Scheduler struct {
	config     SchedulerConfig
	ledger     *Ledger
	registry   *Registry
	recorder   *Recorder
	dispatcher *Dispatcher
	usage      UsageSource
	logger     *slog.Logger
}

func NewScheduler(
	config SchedulerConfig,
	ledger *Ledger,
	registry *Registry,
	recorder *Recorder,
	dispatcher *Dispatcher,
	usage UsageSource,
) *Scheduler {
	if config.ReminderDaysAhead <= 0 {
		config.ReminderDaysAhead = 2
	}
	if config.FailedPaymentLookback <= 0 {
		config.FailedPaymentLookback = 24 * time.Hour
	}

	return &Scheduler{
		config:     config,
		ledger:     ledger,
		registry:   registry,
		recorder:   recorder,
		dispatcher: dispatcher,
		usage:      usage,
		logger:     slog.Default().With("component", "lifecycle_scheduler"),
	}
}

type StepReport struct {
	Name      string   `json:"name"`
	Processed int      `json:"processed"`
	Errors    []string `json:"errors,omitempty"`
}

type RunReport struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Steps      []StepReport `json:"steps"`
}

func (s *Scheduler) Run(ctx context.Context) *RunReport {
	report := &RunReport{StartedAt: time.Now()}

	report.Steps = append(report.Steps,
		s.sendExpirationReminders(ctx),
		s.expireSubscriptions(ctx),
		s.escalateFailedPayments(ctx),
		s.renewDueSubscriptions(ctx),
		s.refreshUsageStats(ctx),
	)

	report.FinishedAt = time.Now()
	for _, step := range report.Steps {
		s.logger.Info("scheduler step finished",
			"step", step.Name, "processed", step.Processed, "errors", len(step.Errors))
	}

	return report
}

// Step 1: reminders are at-least-once. The dedup marker is only written
// after the notification went out, so a failed send is retried next run.
func (s *Scheduler) sendExpirationReminders(ctx context.Context) StepReport {
	step := StepReport{Name: "expiration_reminders"}

	subs := s.ledger.ExpiringSubscriptions(s.config.ReminderDaysAhead)
	if subs.Failure() {
		return stepFailed(step, subs.Error())
	}

	for _, sub := range subs.Value() {
		if sub.InstanceID == nil {
			continue
		}

		instanceResult := s.registry.GetInstance(*sub.InstanceID)
		if instanceResult.Failure() {
			step.Errors = append(step.Errors, fmt.Sprintf("subscription %s: %s", sub.ID, instanceResult.ErrorMsg()))
			continue
		}
		instance := instanceResult.Value()

		sent := s.dispatcher.SendExpirationReminder(ctx,
			instance.ID, instance.OwnerEmail, instance.OwnerPhone, models.ChannelBoth)
		if sent.Failure() || sent.Value().Status != models.NotificationSent {
			step.Errors = append(step.Errors, fmt.Sprintf("subscription %s: reminder not delivered", sub.ID))
			continue
		}

		if marked := s.ledger.MarkExpirationReminderSent(sub.ID); marked.Failure() {
			step.Errors = append(step.Errors, fmt.Sprintf("subscription %s: %s", sub.ID, marked.ErrorMsg()))
			continue
		}
		step.Processed++
	}

	return step
}

// Step 2: expired subscriptions drag their active instance to suspended.
func (s *Scheduler) expireSubscriptions(ctx context.Context) StepReport {
	step := StepReport{Name: "expire_subscriptions"}

	subs := s.ledger.ExpiredSubscriptions()
	if subs.Failure() {
		return stepFailed(step, subs.Error())
	}

	for _, sub := range subs.Value() {
		if expired := s.ledger.ExpireSubscription(ctx, sub.ID); expired.Failure() {
			step.Errors = append(step.Errors, fmt.Sprintf("subscription %s: %s", sub.ID, expired.ErrorMsg()))
			continue
		}

		if sub.InstanceID != nil {
			instanceResult := s.registry.GetInstance(*sub.InstanceID)
			if instanceResult.Success() && instanceResult.Value().Status == models.InstanceActive {
				if suspended := s.registry.SuspendInstance(ctx, *sub.InstanceID, "Subscription expired"); suspended.Failure() {
					step.Errors = append(step.Errors, fmt.Sprintf("instance %s: %s", *sub.InstanceID, suspended.ErrorMsg()))
					continue
				}
			}
		}
		step.Processed++
	}

	return step
}

// Step 3: recent failed payments walk their subscription up the escalation
// ladder, each failure exactly once: the escalation marker written after
// counting keeps the row out of the next run's query. From the second
// attempt on the owner is alerted; duplicate alerts on repeated failures
// are acceptable.
func (s *Scheduler) escalateFailedPayments(ctx context.Context) StepReport {
	step := StepReport{Name: "failed_payment_escalation"}

	payments := s.recorder.RecentFailedPayments(s.config.FailedPaymentLookback)
	if payments.Failure() {
		return stepFailed(step, payments.Error())
	}

	for _, payment := range payments.Value() {
		if payment.SubscriptionID == nil {
			continue
		}

		escalated := s.ledger.RecordPaymentFailure(*payment.SubscriptionID)
		if escalated.Failure() {
			step.Errors = append(step.Errors, fmt.Sprintf("payment %s: %s", payment.ID, escalated.ErrorMsg()))
			continue
		}
		sub := escalated.Value()

		if marked := s.recorder.MarkEscalated(payment.ID); marked.Failure() {
			step.Errors = append(step.Errors, fmt.Sprintf("payment %s: %s", payment.ID, marked.ErrorMsg()))
		}

		if sub.FailedPaymentAttempts >= models.SuspensionThreshold-1 && sub.InstanceID != nil {
			instanceResult := s.registry.GetInstance(*sub.InstanceID)
			if instanceResult.Success() {
				instance := instanceResult.Value()
				s.dispatcher.SendPaymentFailedNotification(ctx,
					instance.ID, instance.OwnerEmail, instance.OwnerPhone, sub.FailedPaymentAttempts)
			}
		}
		step.Processed++
	}

	return step
}

// Step 4: auto-renew. One subscription failing must not stop the rest.
func (s *Scheduler) renewDueSubscriptions(ctx context.Context) StepReport {
	step := StepReport{Name: "auto_renewals"}

	subs := s.ledger.SubscriptionsDueForRenewal()
	if subs.Failure() {
		return stepFailed(step, subs.Error())
	}

	for _, sub := range subs.Value() {
		if renewed := s.ledger.RenewSubscription(ctx, sub.ID); renewed.Failure() {
			s.logger.Warn("auto-renewal failed", "subscription_id", sub.ID, "error", renewed.ErrorMsg())
			step.Errors = append(step.Errors, fmt.Sprintf("subscription %s: %s", sub.ID, renewed.ErrorMsg()))
			continue
		}
		step.Processed++
	}

	return step
}

// Step 5: pull fresh usage counters for every active instance. Fetches are
// network calls against tenant deployments, so they fan out; a slow or dead
// tenant only costs its own slot.
func (s *Scheduler) refreshUsageStats(ctx context.Context) StepReport {
	step := StepReport{Name: "usage_stats_refresh"}

	if s.usage == nil {
		return step
	}

	instances := s.registry.ActiveInstances()
	if instances.Failure() {
		return stepFailed(step, instances.Error())
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(usageRefreshConcurrency)

	for _, instance := range instances.Value() {
		instance := instance
		group.Go(func() error {
			usageResult := s.usage.FetchUsage(groupCtx, instance.ID)
			if usageResult.Failure() {
				mu.Lock()
				step.Errors = append(step.Errors, fmt.Sprintf("instance %s: %s", instance.ID, usageResult.ErrorMsg()))
				mu.Unlock()
				return nil
			}
			usage := usageResult.Value()

			updated := s.registry.UpdateInstanceStats(instance.ID, StatsPatch{
				ActiveUsers:    &usage.ActiveUsers,
				TotalOrders:    &usage.TotalOrders,
				MonthlyRevenue: &usage.MonthlyRevenue,
			})

			mu.Lock()
			defer mu.Unlock()
			if updated.Failure() {
				step.Errors = append(step.Errors, fmt.Sprintf("instance %s: %s", instance.ID, updated.ErrorMsg()))
				return nil
			}
			step.Processed++
			return nil
		})
	}
	group.Wait()

	return step
}

func stepFailed(step StepReport, err error) StepReport {
	step.Errors = append(step.Errors, err.Error())
	return step
}
