package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pharmasuite/lifecycle-engine/delivery"
	"github.com/pharmasuite/lifecycle-engine/models"
	"github.com/pharmasuite/lifecycle-engine/utils"
)

const broadcastConcurrency = 8

// Dispatcher composes lifecycle notifications, records them and hands them
// to the delivery providers. A notification row is always created before
// any delivery attempt so failures leave an audit trail.
type Dispatcher struct {
	store    NotificationStore
	email    delivery.EmailSender
	whatsapp delivery.WhatsAppSender
	logger   *slog.Logger
	now      func() time.Time
}

func NewDispatcher(store NotificationStore, email delivery.EmailSender, whatsapp delivery.WhatsAppSender) *Dispatcher {
	return &Dispatcher{
		store:    store,
		email:    email,
		whatsapp: whatsapp,
		logger:   slog.Default().With("component", "notification_dispatcher"),
		now:      time.Now,
	}
}

func (d *Dispatcher) SendExpirationReminder(
	ctx context.Context,
	instanceID string,
	recipientEmail string,
	recipientPhone string,
	channel models.NotificationChannel,
) utils.Result[*models.Notification] {
	template := templateFor(models.NotificationExpirationReminder, channel)

	return d.dispatch(ctx, &models.Notification{
		ID:             uuid.NewString(),
		InstanceID:     &instanceID,
		RecipientEmail: recipientEmail,
		RecipientPhone: recipientPhone,
		Type:           models.NotificationExpirationReminder,
		Channel:        channel,
		Subject:        template.Subject,
		Message:        template.Body,
		Status:         models.NotificationPending,
	})
}

func (d *Dispatcher) SendPaymentFailedNotification(
	ctx context.Context,
	instanceID string,
	recipientEmail string,
	recipientPhone string,
	attempts int,
) utils.Result[*models.Notification] {
	if attempts < 1 {
		attempts = 1
	}
	template := templateFor(models.NotificationPaymentFailed, models.ChannelBoth)

	return d.dispatch(ctx, &models.Notification{
		ID:             uuid.NewString(),
		InstanceID:     &instanceID,
		RecipientEmail: recipientEmail,
		RecipientPhone: recipientPhone,
		Type:           models.NotificationPaymentFailed,
		Channel:        models.ChannelBoth,
		Subject:        template.Subject,
		Message:        substituteAttempts(template.Body, attempts),
		Status:         models.NotificationPending,
	})
}

func (d *Dispatcher) SendPromoNotification(
	ctx context.Context,
	recipientEmail string,
	recipientPhone string,
	subject string,
	message string,
	channel models.NotificationChannel,
) utils.Result[*models.Notification] {
	return d.dispatch(ctx, &models.Notification{
		ID:             uuid.NewString(),
		RecipientEmail: recipientEmail,
		RecipientPhone: recipientPhone,
		Type:           models.NotificationPromo,
		Channel:        channel,
		Subject:        subject,
		Message:        message,
		Status:         models.NotificationPending,
	})
}

type BroadcastReport struct {
	Sent   int
	Failed int
}

// BroadcastNotification fans out one notification row per recipient.
// Recipient failures are independent; partial success is the normal
// outcome, not an error.
func (d *Dispatcher) BroadcastNotification(
	ctx context.Context,
	emails []string,
	subject string,
	message string,
	channel models.NotificationChannel,
) utils.Result[*BroadcastReport] {
	var (
		mu     sync.Mutex
		report BroadcastReport
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(broadcastConcurrency)

	for _, email := range emails {
		group.Go(func() error {
			result := d.dispatch(groupCtx, &models.Notification{
				ID:             uuid.NewString(),
				RecipientEmail: email,
				Type:           models.NotificationNewFeature,
				Channel:        channel,
				Subject:        subject,
				Message:        message,
				Status:         models.NotificationPending,
			})

			mu.Lock()
			defer mu.Unlock()
			if result.Success() && result.Value().Status == models.NotificationSent {
				report.Sent++
			} else {
				report.Failed++
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return utils.FailedResult[*BroadcastReport](err)
	}

	return utils.SuccessResult(&report)
}

// dispatch persists the row, attempts delivery on the configured channels
// and records the outcome. For channel "both" a single successful channel
// counts as sent.
func (d *Dispatcher) dispatch(ctx context.Context, notification *models.Notification) utils.Result[*models.Notification] {
	created := d.store.CreateNotification(notification)
	if created.Failure() {
		return created
	}
	notification = created.Value()

	emailSent := false
	whatsappSent := false
	var lastFailure string

	if notification.Channel == models.ChannelEmail || notification.Channel == models.ChannelBoth {
		if notification.RecipientEmail == "" {
			lastFailure = "no recipient email"
		} else {
			result := d.email.Send(ctx, notification.RecipientEmail, notification.Subject, notification.Message)
			if result.Success() {
				emailSent = true
			} else {
				lastFailure = result.ErrorMsg()
				d.logger.Warn("email delivery failed",
					"notification_id", notification.ID, "error", lastFailure)
			}
		}
	}

	if notification.Channel == models.ChannelWhatsApp ||
		(notification.Channel == models.ChannelBoth && notification.RecipientPhone != "") {
		if notification.RecipientPhone == "" {
			lastFailure = "no recipient phone"
		} else {
			result := d.whatsapp.Send(ctx, notification.RecipientPhone, notification.Message)
			if result.Success() {
				whatsappSent = true
			} else {
				lastFailure = result.ErrorMsg()
				d.logger.Warn("whatsapp delivery failed",
					"notification_id", notification.ID, "error", lastFailure)
			}
		}
	}

	if emailSent || whatsappSent {
		return d.store.UpdateNotification(notification.ID, map[string]any{
			"status":  models.NotificationSent,
			"sent_at": d.now(),
		})
	}

	if lastFailure == "" {
		lastFailure = "failed to send via configured channels"
	}

	return d.store.UpdateNotification(notification.ID, map[string]any{
		"status":         models.NotificationFailed,
		"failure_reason": lastFailure,
	})
}
