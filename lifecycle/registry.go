package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/pharmasuite/lifecycle-engine/models"
	"github.com/pharmasuite/lifecycle-engine/provisioning"
	"github.com/pharmasuite/lifecycle-engine/utils"
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// Registry owns instance records and their status machine, and coordinates
// the provisioning and subscription side effects of creating and deleting
// an instance.
type Registry struct {
	store       InstanceStore
	audit       AuditStore
	ledger      *Ledger
	provisioner provisioning.Provisioner
	orphans     models.Flagger
	publisher   *EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

func NewRegistry(
	store InstanceStore,
	audit AuditStore,
	ledger *Ledger,
	provisioner provisioning.Provisioner,
	orphans models.Flagger,
	publisher *EventPublisher,
) *Registry {
	return &Registry{
		store:       store,
		audit:       audit,
		ledger:      ledger,
		provisioner: provisioner,
		orphans:     orphans,
		publisher:   publisher,
		logger:      slog.Default().With("component", "instance_registry"),
		now:         time.Now,
	}
}

type CreateInstanceRequest struct {
	Name                 string
	Subdomain            string
	OwnerName            string
	OwnerEmail           string
	OwnerPhone           string
	LogoURL              string
	PrimaryColor         string
	SecondaryColor       string
	PlanType             models.PlanType
	DurationOverrideDays int
	PaymentMethod        models.PaymentProvider
}

// CreateInstance provisions hosting first, then creates the subscription
// and the instance record. Nothing is persisted when provisioning fails;
// when a later step fails the provisioned project is torn down again, and
// a teardown failure lands the project id in the orphan flag store for
// out-of-band reconciliation.
func (r *Registry) CreateInstance(ctx context.Context, req CreateInstanceRequest) utils.Result[*models.Instance] {
	if req.Name == "" {
		return utils.FailedResult[*models.Instance](utils.ValidationError("instance name is required"))
	}
	if !subdomainPattern.MatchString(req.Subdomain) {
		return utils.FailedResult[*models.Instance](utils.ValidationError("subdomain %q is not a valid DNS label", req.Subdomain))
	}
	if req.OwnerEmail == "" {
		return utils.FailedResult[*models.Instance](utils.ValidationError("owner email is required"))
	}

	existing := r.store.FetchInstanceBySubdomain(req.Subdomain)
	if existing.Success() {
		return utils.FailedResult[*models.Instance](utils.ConflictError("subdomain %q is already taken", req.Subdomain))
	}
	if existing.ErrorKind() != utils.KindNotFound {
		return utils.FailedResult[*models.Instance](existing.Error())
	}

	instanceID := uuid.NewString()
	apiKey := newAPIKey()

	deployResult := r.provisioner.Provision(ctx, provisioning.DeployRequest{
		Name:           req.Name,
		Subdomain:      req.Subdomain,
		PrimaryColor:   req.PrimaryColor,
		SecondaryColor: req.SecondaryColor,
		LogoURL:        req.LogoURL,
		APIKey:         apiKey,
		PlanType:       string(req.PlanType),
	})
	if deployResult.Failure() {
		return utils.FailedResult[*models.Instance](deployResult.Error())
	}
	deployment := deployResult.Value()

	// The instance id is generated up front so the subscription carries its
	// back reference from the first write.
	subResult := r.ledger.CreateSubscription(CreateSubscriptionRequest{
		PlanType:             req.PlanType,
		DurationOverrideDays: req.DurationOverrideDays,
		PaymentMethod:        req.PaymentMethod,
		InstanceID:           instanceID,
	})
	if subResult.Failure() {
		r.compensateProvisioning(ctx, deployment.ProjectID)
		return utils.FailedResult[*models.Instance](subResult.Error())
	}
	sub := subResult.Value()

	instance := &models.Instance{
		ID:             instanceID,
		Name:           req.Name,
		Subdomain:      req.Subdomain,
		OwnerName:      req.OwnerName,
		OwnerEmail:     req.OwnerEmail,
		OwnerPhone:     req.OwnerPhone,
		Status:         models.InstancePending,
		LogoURL:        req.LogoURL,
		PrimaryColor:   req.PrimaryColor,
		SecondaryColor: req.SecondaryColor,
		ProjectID:      deployment.ProjectID,
		EndpointURL:    deployment.EndpointURL,
		APIKey:         apiKey,
		SubscriptionID: sub.ID,
		LastActivityAt: r.now(),
	}

	created := r.store.CreateInstance(instance)
	if created.Failure() {
		r.compensateProvisioning(ctx, deployment.ProjectID)
		return created
	}

	r.writeAudit(instance.ID, "instance.created", utils.JSONMap{
		"subdomain": req.Subdomain,
		"plan_type": string(req.PlanType),
	})
	r.publishInstanceEvent(ctx, EventInstanceCreated, instance.ID)

	return created
}

type UpdateInstanceRequest struct {
	Name           *string
	OwnerName      *string
	OwnerPhone     *string
	LogoURL        *string
	PrimaryColor   *string
	SecondaryColor *string
	CustomDomain   *string
}

// UpdateInstance patches mutable fields. Setting a new custom domain first
// runs ownership verification through the hosting platform; an unverified
// domain rejects the whole patch.
func (r *Registry) UpdateInstance(ctx context.Context, id string, patch UpdateInstanceRequest) utils.Result[*models.Instance] {
	fetched := r.store.FetchInstance(id)
	if fetched.Failure() {
		return fetched
	}
	instance := fetched.Value()

	if instance.Status == models.InstanceDeleted {
		return utils.FailedResult[*models.Instance](utils.InvalidStateError("instance %s is deleted", id))
	}

	fields := map[string]any{}
	changes := utils.JSONMap{}
	assign := func(column string, value *string) {
		if value != nil {
			fields[column] = *value
			changes[column] = *value
		}
	}
	assign("name", patch.Name)
	assign("owner_name", patch.OwnerName)
	assign("owner_phone", patch.OwnerPhone)
	assign("logo_url", patch.LogoURL)
	assign("primary_color", patch.PrimaryColor)
	assign("secondary_color", patch.SecondaryColor)

	if patch.CustomDomain != nil && *patch.CustomDomain != instance.CustomDomain {
		domain := *patch.CustomDomain
		verified := r.provisioner.ConfigureDomain(ctx, instance.ProjectID, domain)
		if verified.Failure() {
			return utils.FailedResult[*models.Instance](verified.Error())
		}
		if !verified.Value() {
			return utils.FailedResult[*models.Instance](utils.DomainVerificationError(domain))
		}
		fields["custom_domain"] = domain
		fields["domain_verified"] = true
		changes["custom_domain"] = domain
	}

	if len(fields) == 0 {
		return utils.SuccessResult(instance)
	}

	updated := r.store.UpdateInstance(id, fields)
	if updated.Failure() {
		return updated
	}

	r.writeAudit(id, "instance.updated", changes)

	return updated
}

// UpdateConfig pushes the current branding to the hosting platform without
// touching the instance record.
func (r *Registry) UpdateConfig(ctx context.Context, id string) utils.Result[bool] {
	fetched := r.store.FetchInstance(id)
	if fetched.Failure() {
		return utils.FailedBoolResult(fetched.Error())
	}
	instance := fetched.Value()

	return r.provisioner.UpdateConfig(ctx, instance.ProjectID, map[string]string{
		provisioning.EnvAppName:        instance.Name,
		provisioning.EnvPrimaryColor:   instance.PrimaryColor,
		provisioning.EnvSecondaryColor: instance.SecondaryColor,
		provisioning.EnvLogoURL:        instance.LogoURL,
	})
}

func (r *Registry) ActivateInstance(ctx context.Context, id string) utils.Result[*models.Instance] {
	return r.transition(ctx, id,
		models.InstanceActive,
		[]models.InstanceStatus{models.InstancePending},
		"instance.activated", "", "")
}

// SuspendInstance moves an active instance to suspended. Suspending an
// already suspended instance is a no-op success.
func (r *Registry) SuspendInstance(ctx context.Context, id string, reason string) utils.Result[*models.Instance] {
	return r.transition(ctx, id,
		models.InstanceSuspended,
		[]models.InstanceStatus{models.InstanceActive},
		"instance.suspended", reason, EventInstanceSuspended)
}

// ReactivateInstance moves a suspended instance back to active. A second
// call is a no-op success.
func (r *Registry) ReactivateInstance(ctx context.Context, id string) utils.Result[*models.Instance] {
	return r.transition(ctx, id,
		models.InstanceActive,
		[]models.InstanceStatus{models.InstanceSuspended},
		"instance.reactivated", "", EventInstanceReactivated)
}

func (r *Registry) transition(
	ctx context.Context,
	id string,
	to models.InstanceStatus,
	from []models.InstanceStatus,
	action string,
	reason string,
	event string,
) utils.Result[*models.Instance] {
	fetched := r.store.FetchInstance(id)
	if fetched.Failure() {
		return fetched
	}
	instance := fetched.Value()

	// Repeated calls with the target status already applied are no-ops, so
	// retried requests do not bump updatedAt or error out.
	if instance.Status == to {
		return utils.SuccessResult(instance)
	}

	allowed := false
	for _, status := range from {
		if instance.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return utils.FailedResult[*models.Instance](
			utils.InvalidStateError("instance %s is %s, cannot move to %s", id, instance.Status, to))
	}

	applied := r.store.TransitionInstance(id, from, map[string]any{"status": to})
	if applied.Failure() {
		return utils.FailedResult[*models.Instance](applied.Error())
	}
	if !applied.Value() {
		// A concurrent run applied the transition between our read and
		// write. Degrade to a no-op.
		return r.store.FetchInstance(id)
	}

	changes := utils.JSONMap{"status": string(to)}
	if reason != "" {
		changes["reason"] = reason
	}
	r.writeAudit(id, action, changes)
	if event != "" {
		r.publishInstanceEvent(ctx, event, id)
	}

	return r.store.FetchInstance(id)
}

// DeleteInstance tears down hosting first so a failed teardown can be
// retried against an intact record, then cancels the subscription and
// soft-deletes the instance. The subdomain is freed by the soft delete.
func (r *Registry) DeleteInstance(ctx context.Context, id string) utils.Result[bool] {
	fetched := r.store.FetchInstance(id)
	if fetched.Failure() {
		return utils.FailedBoolResult(fetched.Error())
	}
	instance := fetched.Value()

	if instance.Status == models.InstanceDeleted {
		return utils.SuccessResult(false)
	}

	if instance.ProjectID != "" {
		deprovisioned := r.provisioner.Deprovision(ctx, instance.ProjectID)
		if deprovisioned.Failure() {
			return utils.FailedBoolResult(deprovisioned.Error())
		}
	}

	if instance.SubscriptionID != "" {
		if cancelled := r.ledger.CancelSubscription(instance.SubscriptionID); cancelled.Failure() {
			if cancelled.ErrorKind() != utils.KindNotFound {
				return utils.FailedBoolResult(cancelled.Error())
			}
		}
	}

	applied := r.store.TransitionInstance(id,
		[]models.InstanceStatus{models.InstancePending, models.InstanceActive, models.InstanceSuspended},
		map[string]any{"status": models.InstanceDeleted})
	if applied.Failure() {
		return applied
	}

	r.writeAudit(id, "instance.deleted", utils.JSONMap{"subdomain": instance.Subdomain})
	r.publishInstanceEvent(ctx, EventInstanceDeleted, id)

	return utils.SuccessResult(applied.Value())
}

func (r *Registry) GetInstance(id string) utils.Result[*models.Instance] {
	return r.store.FetchInstance(id)
}

func (r *Registry) GetInstanceBySubdomain(subdomain string) utils.Result[*models.Instance] {
	return r.store.FetchInstanceBySubdomain(subdomain)
}

func (r *Registry) ListInstances(filter models.InstanceFilter) utils.Result[*models.InstancePage] {
	return r.store.ListInstances(filter)
}

func (r *Registry) ActiveInstances() utils.Result[[]models.Instance] {
	return r.store.ActiveInstances()
}

type StatsPatch struct {
	ActiveUsers    *int
	TotalOrders    *int
	MonthlyRevenue *float64
}

// UpdateInstanceStats is the sink for tenant usage reporting. Every report
// counts as activity.
func (r *Registry) UpdateInstanceStats(id string, patch StatsPatch) utils.Result[*models.Instance] {
	fields := map[string]any{"last_activity_at": r.now()}
	if patch.ActiveUsers != nil {
		fields["active_users"] = *patch.ActiveUsers
	}
	if patch.TotalOrders != nil {
		fields["total_orders"] = *patch.TotalOrders
	}
	if patch.MonthlyRevenue != nil {
		fields["monthly_revenue"] = *patch.MonthlyRevenue
	}

	return r.store.UpdateInstance(id, fields)
}

func (r *Registry) compensateProvisioning(ctx context.Context, projectID string) {
	deprovisioned := r.provisioner.Deprovision(ctx, projectID)
	if deprovisioned.Success() {
		return
	}

	r.logger.Error("failed to tear down provisioned project, flagging as orphan",
		"project_id", projectID, "error", deprovisioned.ErrorMsg())
	utils.CaptureErrorResult(deprovisioned)

	if r.orphans != nil {
		if err := r.orphans.Flag(projectID); err != nil {
			r.logger.Error("failed to flag orphaned project", "project_id", projectID, "error", err.Error())
			utils.CaptureError(err)
		}
	}
}

func (r *Registry) writeAudit(instanceID string, action string, changes utils.JSONMap) {
	if r.audit == nil {
		return
	}

	entry := &models.AuditLog{
		ID:         uuid.NewString(),
		InstanceID: instanceID,
		Action:     action,
		Actor:      "system",
		Changes:    changes,
	}
	if result := r.audit.CreateAuditLog(entry); result.Failure() {
		r.logger.Error("failed to write audit entry", "action", action, "error", result.ErrorMsg())
	}
}

func (r *Registry) publishInstanceEvent(ctx context.Context, event string, instanceID string) {
	r.publisher.Publish(ctx, LifecycleEvent{
		Event:      event,
		InstanceID: instanceID,
		EntityID:   instanceID,
		OccurredAt: r.now(),
	})
}

func newAPIKey() string {
	buf := make([]byte, 24)
	rand.Read(buf)
	return "psk_" + hex.EncodeToString(buf)
}
