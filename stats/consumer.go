package stats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/pharmasuite/lifecycle-engine/lifecycle"
	"github.com/pharmasuite/lifecycle-engine/utils"
)

// usageMessage is the payload tenant deployments publish on the usage
// topic. Absent counters leave the stored value untouched.
type usageMessage struct {
	InstanceID     string   `json:"instance_id"`
	ActiveUsers    *int     `json:"active_users"`
	TotalOrders    *int     `json:"total_orders"`
	MonthlyRevenue *float64 `json:"monthly_revenue"`
}

// Consumer applies usage reports from the kafka topic to the instance
// registry.
type Consumer struct {
	registry *lifecycle.Registry
	logger   *slog.Logger
}

func NewConsumer(registry *lifecycle.Registry) *Consumer {
	return &Consumer{
		registry: registry,
		logger:   slog.Default().With("component", "usage_consumer"),
	}
}

// ProcessRecord reports whether the record can be committed. Malformed
// payloads and unknown instances are committed anyway: replaying them can
// never succeed.
func (c *Consumer) ProcessRecord(_ context.Context, record *kgo.Record) bool {
	var msg usageMessage
	if err := json.Unmarshal(record.Value, &msg); err != nil {
		c.logger.Error("dropping malformed usage record",
			"partition", record.Partition, "offset", record.Offset, "error", err.Error())
		utils.CaptureError(err)
		return true
	}
	if msg.InstanceID == "" {
		c.logger.Error("dropping usage record without instance id",
			"partition", record.Partition, "offset", record.Offset)
		return true
	}

	result := c.registry.UpdateInstanceStats(msg.InstanceID, lifecycle.StatsPatch{
		ActiveUsers:    msg.ActiveUsers,
		TotalOrders:    msg.TotalOrders,
		MonthlyRevenue: msg.MonthlyRevenue,
	})
	if result.Failure() {
		if result.ErrorKind() == utils.KindNotFound {
			c.logger.Warn("dropping usage record for unknown instance", "instance_id", msg.InstanceID)
			return true
		}

		c.logger.Error("failed to apply usage record",
			"instance_id", msg.InstanceID, "error", result.ErrorMsg())
		utils.CaptureErrorResult(result)
		return false
	}

	return true
}
