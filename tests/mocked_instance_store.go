package tests

import (
	"sync"
	"time"

	"github.com/pharmasuite/lifecycle-engine/models"
	"github.com/pharmasuite/lifecycle-engine/utils"
)

// MockInstanceStore is an in-memory instance store honoring the column-map
// update contract of models.AdminStore.
type MockInstanceStore struct {
	mu        sync.Mutex
	Instances map[string]*models.Instance

	// FailWith, when set, makes every update fail with that error.
	FailWith error
}

func NewMockInstanceStore() *MockInstanceStore {
	return &MockInstanceStore{Instances: map[string]*models.Instance{}}
}

func (s *MockInstanceStore) CreateInstance(instance *models.Instance) utils.Result[*models.Instance] {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *instance
	s.Instances[instance.ID] = &copied
	return utils.SuccessResult(instance)
}

func (s *MockInstanceStore) FetchInstance(id string) utils.Result[*models.Instance] {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance, found := s.Instances[id]
	if !found {
		return utils.FailedResult[*models.Instance](utils.NotFoundError("instance %s not found", id))
	}
	copied := *instance
	return utils.SuccessResult(&copied)
}

func (s *MockInstanceStore) FetchInstanceBySubdomain(subdomain string) utils.Result[*models.Instance] {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, instance := range s.Instances {
		if instance.Subdomain == subdomain && instance.Status != models.InstanceDeleted {
			copied := *instance
			return utils.SuccessResult(&copied)
		}
	}
	return utils.FailedResult[*models.Instance](utils.NotFoundError("instance with subdomain %q not found", subdomain))
}

func (s *MockInstanceStore) applyFields(instance *models.Instance, fields map[string]any) {
	for column, value := range fields {
		switch column {
		case "status":
			instance.Status = value.(models.InstanceStatus)
		case "name":
			instance.Name = value.(string)
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

func (s *MockInstanceStore) UpdateInstance(id string, fields map[string]any) utils.Result[*models.Instance] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return utils.FailedResult[*models.Instance](s.FailWith)
	}

	instance, found := s.Instances[id]
	if !found {
		return utils.FailedResult[*models.Instance](utils.NotFoundError("instance %s not found", id))
	}
	s.applyFields(instance, fields)
	copied := *instance
	return utils.SuccessResult(&copied)
}

func (s *MockInstanceStore) TransitionInstance(id string, from []models.InstanceStatus, fields map[string]any) utils.Result[bool] {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance, found := s.Instances[id]
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

func (s *MockInstanceStore) ListInstances(filter models.InstanceFilter) utils.Result[*models.InstancePage] {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Instance
	for _, instance := range s.Instances {
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

func (s *MockInstanceStore) ActiveInstances() utils.Result[[]models.Instance] {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Instance
	for _, instance := range s.Instances {
		if instance.Status == models.InstanceActive {
			out = append(out, *instance)
		}
	}
	return utils.SuccessResult(out)
}
