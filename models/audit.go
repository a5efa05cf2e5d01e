package models

import (
	"time"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

type AuditLog struct {
	ID         string `gorm:"primaryKey"`
	InstanceID string
	Action     string
	Actor      string
	Changes    utils.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time
}

func (store *AdminStore) CreateAuditLog(entry *AuditLog) utils.Result[*AuditLog] {
	result := store.db.Connection.Create(entry)
	if result.Error != nil {
		return utils.FailedResult[*AuditLog](result.Error)
	}

	return utils.SuccessResult(entry)
}

func (store *AdminStore) ListInstanceAuditLogs(instanceID string) utils.Result[[]AuditLog] {
	var entries []AuditLog

	result := store.db.Connection.
		Where("instance_id = ?", instanceID).
		Order("created_at DESC").
		Find(&entries)
	if result.Error != nil {
		return utils.FailedResult[[]AuditLog](result.Error)
	}

	return utils.SuccessResult(entries)
}
