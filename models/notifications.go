package models

import (
	"time"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

type NotificationType string

const (
	NotificationExpirationReminder NotificationType = "expiration_reminder"
	NotificationPaymentFailed      NotificationType = "payment_failed"
	NotificationNewFeature         NotificationType = "new_feature"
	NotificationPromo              NotificationType = "promo"
)

type NotificationChannel string

const (
	ChannelEmail    NotificationChannel = "email"
	ChannelWhatsApp NotificationChannel = "whatsapp"
	ChannelBoth     NotificationChannel = "both"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification rows are immutable after creation except for status, sentAt
// and failureReason.
type Notification struct {
	ID             string `gorm:"primaryKey"`
	InstanceID     *string
	RecipientEmail string
	RecipientPhone string
	Type           NotificationType
	Channel        NotificationChannel
	Subject        string
	Message        string
	Status         NotificationStatus
	SentAt         *time.Time
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (store *AdminStore) CreateNotification(notification *Notification) utils.Result[*Notification] {
	result := store.db.Connection.Create(notification)
	if result.Error != nil {
		return utils.FailedResult[*Notification](result.Error)
	}

	return utils.SuccessResult(notification)
}

func (store *AdminStore) UpdateNotification(id string, fields map[string]any) utils.Result[*Notification] {
	result := store.db.Connection.Model(&Notification{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return utils.FailedResult[*Notification](result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.FailedResult[*Notification](utils.NotFoundError("notification %s not found", id))
	}

	var notification Notification
	if res := store.db.Connection.First(&notification, "id = ?", id); res.Error != nil {
		return notFoundResult[*Notification](res.Error, "notification %s not found", id)
	}

	return utils.SuccessResult(&notification)
}

func (store *AdminStore) ListInstanceNotifications(instanceID string) utils.Result[[]Notification] {
	var notifications []Notification

	result := store.db.Connection.
		Where("instance_id = ?", instanceID).
		Order("created_at DESC").
		Find(&notifications)
	if result.Error != nil {
		return utils.FailedResult[[]Notification](result.Error)
	}

	return utils.SuccessResult(notifications)
}
