package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmasuite/lifecycle-engine/models"
	"github.com/pharmasuite/lifecycle-engine/tests"
	"github.com/pharmasuite/lifecycle-engine/utils"
)

type registryFixture struct {
	registry    *Registry
	instances   *fakeInstanceStore
	subs        *fakeSubscriptionStore
	audit       *fakeAuditStore
	provisioner *fakeProvisioner
	orphans     *tests.MockFlagStore
}

func newRegistryFixture() *registryFixture {
	instances := newFakeInstanceStore()
	subs := newFakeSubscriptionStore()
	audit := &fakeAuditStore{}
	provisioner := newFakeProvisioner()
	orphans := &tests.MockFlagStore{}
	ledger := NewLedger(subs, audit, nil)

	return &registryFixture{
		registry:    NewRegistry(instances, audit, ledger, provisioner, orphans, nil),
		instances:   instances,
		subs:        subs,
		audit:       audit,
		provisioner: provisioner,
		orphans:     orphans,
	}
}

func validCreateRequest() CreateInstanceRequest {
	return CreateInstanceRequest{
		Name:       "Pharmacie du Centre",
		Subdomain:  "pharmacentre",
		OwnerName:  "Claire Moreau",
		OwnerEmail: "claire@pharmacentre.fr",
		OwnerPhone: "+33612345678",
		PlanType:   models.PlanTrial,
	}
}

func TestCreateInstance(t *testing.T) {
	t.Run("should provision, create the subscription and persist the instance", func(t *testing.T) {
		f := newRegistryFixture()

		result := f.registry.CreateInstance(context.Background(), validCreateRequest())
		require.True(t, result.Success())

		instance := result.Value()
		assert.Equal(t, models.InstancePending, instance.Status)
		assert.Equal(t, "prj_pharmacentre", instance.ProjectID)
		assert.Equal(t, "pharmacentre.pharmasuite.app", instance.EndpointURL)
		assert.NotEmpty(t, instance.APIKey)
		assert.NotEmpty(t, instance.SubscriptionID)

		sub := f.subs.FetchSubscription(instance.SubscriptionID).Value()
		require.NotNil(t, sub.InstanceID)
		assert.Equal(t, instance.ID, *sub.InstanceID)
		assert.Equal(t, models.PlanTrial, sub.PlanType)
	})

	t.Run("should reject a taken subdomain with a conflict", func(t *testing.T) {
		f := newRegistryFixture()
		f.registry.CreateInstance(context.Background(), validCreateRequest())

		req := validCreateRequest()
		req.OwnerEmail = "other@example.com"
		result := f.registry.CreateInstance(context.Background(), req)

		assert.False(t, result.Success())
		assert.Equal(t, utils.KindConflict, result.ErrorKind())
		assert.Len(t, f.provisioner.provisioned, 1)
	})

	t.Run("should free the subdomain of a deleted instance", func(t *testing.T) {
		f := newRegistryFixture()
		created := f.registry.CreateInstance(context.Background(), validCreateRequest()).Value()
		f.registry.DeleteInstance(context.Background(), created.ID)

		result := f.registry.CreateInstance(context.Background(), validCreateRequest())
		assert.True(t, result.Success())
	})

	t.Run("should validate the request before any side effect", func(t *testing.T) {
		f := newRegistryFixture()

		req := validCreateRequest()
		req.Subdomain = "Bad_Subdomain!"
		result := f.registry.CreateInstance(context.Background(), req)

		assert.Equal(t, utils.KindValidation, result.ErrorKind())
		assert.Empty(t, f.provisioner.provisioned)
	})

	t.Run("should persist nothing when provisioning fails", func(t *testing.T) {
		f := newRegistryFixture()
		f.provisioner.failProvision = true

		result := f.registry.CreateInstance(context.Background(), validCreateRequest())

		assert.False(t, result.Success())
		assert.Equal(t, utils.KindExternalService, result.ErrorKind())
		assert.Empty(t, f.instances.instances)
		assert.Empty(t, f.subs.subs)
	})

	t.Run("should deprovision when the instance write fails", func(t *testing.T) {
		f := newRegistryFixture()
		f.instances.failCreate = true

		result := f.registry.CreateInstance(context.Background(), validCreateRequest())

		assert.False(t, result.Success())
		assert.Equal(t, []string{"prj_pharmacentre"}, f.provisioner.deprovisioned)
		assert.Zero(t, f.orphans.ExecutionCount)
	})

	t.Run("should flag an orphan when compensation itself fails", func(t *testing.T) {
		f := newRegistryFixture()
		f.instances.failCreate = true
		f.provisioner.failDeprovision = true

		result := f.registry.CreateInstance(context.Background(), validCreateRequest())

		assert.False(t, result.Success())
		assert.Equal(t, "prj_pharmacentre", f.orphans.Key)
	})
}

func TestUpdateInstance(t *testing.T) {
	stringPtr := func(s string) *string { return &s }

	t.Run("should patch mutable fields", func(t *testing.T) {
		f := newRegistryFixture()
		created := f.registry.CreateInstance(context.Background(), validCreateRequest()).Value()

		result := f.registry.UpdateInstance(context.Background(), created.ID, UpdateInstanceRequest{
			Name:         stringPtr("Pharmacie Moreau"),
			PrimaryColor: stringPtr("#0f766e"),
		})

		require.True(t, result.Success())
		assert.Equal(t, "Pharmacie Moreau", result.Value().Name)
		assert.Equal(t, "#0f766e", result.Value().PrimaryColor)
		assert.Equal(t, created.Subdomain, result.Value().Subdomain)
	})

	t.Run("should verify a new custom domain before committing", func(t *testing.T) {
		f := newRegistryFixture()
		created := f.registry.CreateInstance(context.Background(), validCreateRequest()).Value()
		f.provisioner.domainVerified = false

		result := f.registry.UpdateInstance(context.Background(), created.ID, UpdateInstanceRequest{
			CustomDomain: stringPtr("pharma.example.com"),
		})

		assert.False(t, result.Success())
		assert.Equal(t, utils.KindDomainVerification, result.ErrorKind())
		assert.Empty(t, f.instances.instances[created.ID].CustomDomain)
	})

	t.Run("should set the domain once verified", func(t *testing.T) {
		f := newRegistryFixture()
		created := f.registry.CreateInstance(context.Background(), validCreateRequest()).Value()

		result := f.registry.UpdateInstance(context.Background(), created.ID, UpdateInstanceRequest{
			CustomDomain: stringPtr("pharma.example.com"),
		})

		require.True(t, result.Success())
		assert.Equal(t, "pharma.example.com", result.Value().CustomDomain)
		assert.True(t, result.Value().DomainVerified)
	})

	t.Run("should reject updates on a deleted instance", func(t *testing.T) {
		f := newRegistryFixture()
		created := f.registry.CreateInstance(context.Background(), validCreateRequest()).Value()
		f.registry.DeleteInstance(context.Background(), created.ID)

		result := f.registry.UpdateInstance(context.Background(), created.ID, UpdateInstanceRequest{
			Name: stringPtr("Ghost"),
		})
		assert.Equal(t, utils.KindInvalidState, result.ErrorKind())
	})
}

func TestInstanceTransitions(t *testing.T) {
	activate := func(f *registryFixture, id string) {
		result := f.registry.ActivateInstance(context.Background(), id)
		if result.Failure() {
			panic(result.ErrorMsg())
		}
	}

	t.Run("should activate a pending instance", func(t *testing.T) {
		f := newRegistryFixture()
		created := f.registry.CreateInstance(context.Background(), validCreateRequest()).Value()

		result := f.registry.ActivateInstance(context.Background(), created.ID)
		require.True(t, result.Success())
		assert.Equal(t, models.InstanceActive, result.Value().Status)
	})

	t.Run("should suspend only from active and no-op when already suspended", func(t *testing.T) {
		f := newRegistryFixture()
		created := f.registry.CreateInstance(context.Background(), validCreateRequest()).Value()
		activate(f, created.ID)

		first := f.registry.SuspendInstance(context.Background(), created.ID, "Subscription expired")
		require.True(t, first.Success())
		assert.Equal(t, models.InstanceSuspended, first.Value().Status)

		updatedAt := f.instances.instances[created.ID].UpdatedAt

		second := f.registry.SuspendInstance(context.Background(), created.ID, "Subscription expired")
		require.True(t, second.Success())
		assert.Equal(t, models.InstanceSuspended, second.Value().Status)
		assert.Equal(t, updatedAt, f.instances.instances[created.ID].UpdatedAt)
	})

	t.Run("should reject suspending a pending instance", func(t *testing.T) {
		f := newRegistryFixture()
		created := f.registry.CreateInstance(context.Background(), validCreateRequest()).Value()

		result := f.registry.SuspendInstance(context.Background(), created.ID, "reason")
		assert.Equal(t, utils.KindInvalidState, result.ErrorKind())
	})

	t.Run("should reactivate a suspended instance", func(t *testing.T) {
		f := newRegistryFixture()
		created := f.registry.CreateInstance(context.Background(), validCreateRequest()).Value()
		activate(f, created.ID)
		f.registry.SuspendInstance(context.Background(), created.ID, "expired")

		result := f.registry.ReactivateInstance(context.Background(), created.ID)
		require.True(t, result.Success())
		assert.Equal(t, models.InstanceActive, result.Value().Status)
	})
}

func TestDeleteInstance(t *testing.T) {
	t.Run("should deprovision, cancel the subscription and soft delete", func(t *testing.T) {
		f := newRegistryFixture()
		created := f.registry.CreateInstance(context.Background(), validCreateRequest()).Value()

		result := f.registry.DeleteInstance(context.Background(), created.ID)
		require.True(t, result.Success())
		assert.True(t, result.Value())

		assert.Equal(t, []string{created.ProjectID}, f.provisioner.deprovisioned)
		assert.Equal(t, models.SubscriptionCancelled, f.subs.FetchSubscription(created.SubscriptionID).Value().Status)
		assert.Equal(t, models.InstanceDeleted, f.instances.instances[created.ID].Status)

		page := f.registry.ListInstances(models.InstanceFilter{}).Value()
		assert.Zero(t, page.Total)
	})

	t.Run("should keep the record when deprovisioning fails so the delete can be retried", func(t *testing.T) {
		f := newRegistryFixture()
		created := f.registry.CreateInstance(context.Background(), validCreateRequest()).Value()
		f.provisioner.failDeprovision = true

		result := f.registry.DeleteInstance(context.Background(), created.ID)
		assert.False(t, result.Success())
		assert.Equal(t, utils.KindExternalService, result.ErrorKind())
		assert.NotEqual(t, models.InstanceDeleted, f.instances.instances[created.ID].Status)

		f.provisioner.failDeprovision = false
		retried := f.registry.DeleteInstance(context.Background(), created.ID)
		assert.True(t, retried.Success())
	})

	t.Run("should be a no-op on an already deleted instance", func(t *testing.T) {
		f := newRegistryFixture()
		created := f.registry.CreateInstance(context.Background(), validCreateRequest()).Value()
		f.registry.DeleteInstance(context.Background(), created.ID)

		result := f.registry.DeleteInstance(context.Background(), created.ID)
		require.True(t, result.Success())
		assert.False(t, result.Value())
		assert.Len(t, f.provisioner.deprovisioned, 1)
	})
}

func TestUpdateInstanceStats(t *testing.T) {
	t.Run("should apply counters and bump last activity", func(t *testing.T) {
		f := newRegistryFixture()
		created := f.registry.CreateInstance(context.Background(), validCreateRequest()).Value()

		reported := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
		f.registry.now = func() time.Time { return reported }

		users := 12
		revenue := 3400.50
		result := f.registry.UpdateInstanceStats(created.ID, StatsPatch{
			ActiveUsers:    &users,
			MonthlyRevenue: &revenue,
		})

		require.True(t, result.Success())
		assert.Equal(t, 12, result.Value().ActiveUsers)
		assert.Equal(t, 3400.50, result.Value().MonthlyRevenue)
		assert.Equal(t, reported, result.Value().LastActivityAt)
		assert.Zero(t, result.Value().TotalOrders)
	})
}
