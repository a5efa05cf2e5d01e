package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pharmasuite/lifecycle-engine/lifecycle"
	"github.com/pharmasuite/lifecycle-engine/utils"
)

// ReportingClient pulls current usage counters straight from a tenant
// deployment, authenticated with the instance's own API key. It backs the
// scheduler's stats refresh step.
type ReportingClient struct {
	registry *lifecycle.Registry
	client   *http.Client
}

func NewReportingClient(registry *lifecycle.Registry, timeout time.Duration) *ReportingClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &ReportingClient{
		registry: registry,
		client:   &http.Client{Timeout: timeout},
	}
}

type usageResponse struct {
	ActiveUsers    int     `json:"active_users"`
	TotalOrders    int     `json:"total_orders"`
	MonthlyRevenue float64 `json:"monthly_revenue"`
}

func (r *ReportingClient) FetchUsage(ctx context.Context, instanceID string) utils.Result[*lifecycle.UsageReport] {
	instanceResult := r.registry.GetInstance(instanceID)
	if instanceResult.Failure() {
		return utils.FailedResult[*lifecycle.UsageReport](instanceResult.Error())
	}
	instance := instanceResult.Value()

	if instance.EndpointURL == "" {
		return utils.FailedResult[*lifecycle.UsageReport](
			utils.ValidationError("instance %s has no endpoint", instanceID))
	}

	endpoint := instance.EndpointURL
	if !strings.HasPrefix(endpoint, "http") {
		endpoint = "https://" + endpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/api/usage", nil)
	if err != nil {
		return utils.FailedResult[*lifecycle.UsageReport](err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", instance.APIKey))

	resp, err := r.client.Do(req)
	if err != nil {
		return utils.FailedResult[*lifecycle.UsageReport](
			utils.ExternalServiceError(err, "usage fetch failed for instance %s", instanceID))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return utils.FailedResult[*lifecycle.UsageReport](
			utils.ExternalServiceError(nil, "usage fetch for instance %s returned status %d", instanceID, resp.StatusCode))
	}

	var body usageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return utils.FailedResult[*lifecycle.UsageReport](
			utils.ExternalServiceError(err, "instance %s returned unreadable usage data", instanceID))
	}

	return utils.SuccessResult(&lifecycle.UsageReport{
		ActiveUsers:    body.ActiveUsers,
		TotalOrders:    body.TotalOrders,
		MonthlyRevenue: body.MonthlyRevenue,
	})
}
