package provisioning

import (
	"context"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

// DeployRequest carries everything the hosting platform needs to stand up a
// tenant instance: the subdomain drives the project name, the branding
// fields become runtime environment variables.
type DeployRequest struct {
	Name           string
	Subdomain      string
	PrimaryColor   string
	SecondaryColor string
	LogoURL        string
	APIKey         string
	PlanType       string
}

// Deployment identifies the provisioned resources. ProjectID is the handle
// used for every later config update and for teardown.
type Deployment struct {
	ProjectID   string
	ProjectName string
	EndpointURL string
}

// Provisioner manages tenant instances on the hosting platform.
type Provisioner interface {
	Provision(ctx context.Context, req DeployRequest) utils.Result[*Deployment]
	Deprovision(ctx context.Context, projectID string) utils.Result[bool]
	UpdateConfig(ctx context.Context, projectID string, vars map[string]string) utils.Result[bool]
	ConfigureDomain(ctx context.Context, projectID string, domain string) utils.Result[bool]
}

// Environment variable keys injected into every tenant deployment.
const (
	EnvAppName            = "NEXT_PUBLIC_APP_NAME"
	EnvPrimaryColor       = "NEXT_PUBLIC_APP_COLOR_PRIMARY"
	EnvSecondaryColor     = "NEXT_PUBLIC_APP_COLOR_SECONDARY"
	EnvLogoURL            = "NEXT_PUBLIC_APP_LOGO_URL"
	EnvAPIKey             = "TENANT_API_KEY"
	EnvPlanType           = "NEXT_PUBLIC_PLAN_TYPE"
	EnvSubscriptionStatus = "NEXT_PUBLIC_SUBSCRIPTION_STATUS"
)
