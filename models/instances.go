package models

import (
	"time"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

type InstanceStatus string

const (
	InstancePending   InstanceStatus = "pending"
	InstanceActive    InstanceStatus = "active"
	InstanceSuspended InstanceStatus = "suspended"
	InstanceDeleted   InstanceStatus = "deleted"
)

type Instance struct {
	ID             string `gorm:"primaryKey"`
	Name           string
	Subdomain      string
	OwnerName      string
	OwnerEmail     string
	OwnerPhone     string
	Status         InstanceStatus
	LogoURL        string
	PrimaryColor   string
	SecondaryColor string
	CustomDomain   string
	DomainVerified bool
	ProjectID      string
	EndpointURL    string
	APIKey         string
	SubscriptionID string
	ActiveUsers    int
	TotalOrders    int
	MonthlyRevenue float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastActivityAt time.Time
}

type InstanceFilter struct {
	Status   InstanceStatus
	PlanType PlanType
	Limit    int
	Offset   int
}

type InstancePage struct {
	Instances []Instance
	Total     int64
}

func (store *AdminStore) CreateInstance(instance *Instance) utils.Result[*Instance] {
	result := store.db.Connection.Create(instance)
	if result.Error != nil {
		return utils.FailedResult[*Instance](result.Error)
	}

	return utils.SuccessResult(instance)
}

func (store *AdminStore) FetchInstance(id string) utils.Result[*Instance] {
	var instance Instance

	result := store.db.Connection.First(&instance, "id = ?", id)
	if result.Error != nil {
		return notFoundResult[*Instance](result.Error, "instance %s not found", id)
	}

	return utils.SuccessResult(&instance)
}

// FetchInstanceBySubdomain only considers live records: a deleted instance
// frees its subdomain.
func (store *AdminStore) FetchInstanceBySubdomain(subdomain string) utils.Result[*Instance] {
	var instance Instance

	result := store.db.Connection.
		Where("subdomain = ? AND status <> ?", subdomain, InstanceDeleted).
		First(&instance)
	if result.Error != nil {
		return notFoundResult[*Instance](result.Error, "instance with subdomain %q not found", subdomain)
	}

	return utils.SuccessResult(&instance)
}

func (store *AdminStore) UpdateInstance(id string, fields map[string]any) utils.Result[*Instance] {
	result := store.db.Connection.Model(&Instance{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return utils.FailedResult[*Instance](result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.FailedResult[*Instance](utils.NotFoundError("instance %s not found", id))
	}

	return store.FetchInstance(id)
}

// TransitionInstance performs a compare-and-set status change so overlapping
// scheduler runs degrade to no-ops.
func (store *AdminStore) TransitionInstance(id string, from []InstanceStatus, fields map[string]any) utils.Result[bool] {
	result := store.db.Connection.Model(&Instance{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if result.Error != nil {
		return utils.FailedBoolResult(result.Error)
	}

	return utils.SuccessResult(result.RowsAffected > 0)
}

func (store *AdminStore) ListInstances(filter InstanceFilter) utils.Result[*InstancePage] {
	query := store.db.Connection.Model(&Instance{}).
		Where("instances.status <> ?", InstanceDeleted)

	if filter.Status != "" {
		query = query.Where("instances.status = ?", filter.Status)
	}
	if filter.PlanType != "" {
		query = query.
			Joins("INNER JOIN subscriptions ON subscriptions.id = instances.subscription_id").
			Where("subscriptions.plan_type = ?", filter.PlanType)
	}

	var total int64
	if result := query.Count(&total); result.Error != nil {
		return utils.FailedResult[*InstancePage](result.Error)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var instances []Instance
	result := query.
		Order("instances.created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&instances)
	if result.Error != nil {
		return utils.FailedResult[*InstancePage](result.Error)
	}

	return utils.SuccessResult(&InstancePage{Instances: instances, Total: total})
}

func (store *AdminStore) ActiveInstances() utils.Result[[]Instance] {
	var instances []Instance

	result := store.db.Connection.
		Where("status = ?", InstanceActive).
		Find(&instances)
	if result.Error != nil {
		return utils.FailedResult[[]Instance](result.Error)
	}

	return utils.SuccessResult(instances)
}
