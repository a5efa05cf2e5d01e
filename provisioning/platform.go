package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

type PlatformConfig struct {
	APIURL        string
	APIToken      string
	TeamID        string
	ProjectPrefix string
	GitRepo       string
	Timeout       time.Duration
}

// PlatformClient provisions tenant instances on the hosting platform's REST
// API. A tenant maps to one project, its branding to project environment
// variables, and teardown to a project delete.
type PlatformClient struct {
	config PlatformConfig
	client *http.Client
	logger *slog.Logger
}

func NewPlatformClient(config PlatformConfig, logger *slog.Logger) *PlatformClient {
	if config.APIURL == "" {
		config.APIURL = "https://api.vercel.com"
	}
	if config.ProjectPrefix == "" {
		config.ProjectPrefix = "pharmasuite-"
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &PlatformClient{
		config: config,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "platform_client"),
	}
}

type platformProject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type platformDeployment struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type platformDomain struct {
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
}

func (c *PlatformClient) Provision(ctx context.Context, req DeployRequest) utils.Result[*Deployment] {
	projectName := c.config.ProjectPrefix + req.Subdomain

	projectResult := c.createOrGetProject(ctx, projectName)
	if projectResult.Failure() {
		return utils.FailedResult[*Deployment](projectResult.Error())
	}
	project := projectResult.Value()

	vars := map[string]string{
		EnvAppName:            req.Name,
		EnvPrimaryColor:       req.PrimaryColor,
		EnvSecondaryColor:     req.SecondaryColor,
		EnvLogoURL:            req.LogoURL,
		EnvAPIKey:             req.APIKey,
		EnvPlanType:           req.PlanType,
		EnvSubscriptionStatus: "active",
	}
	if configResult := c.UpdateConfig(ctx, project.ID, vars); configResult.Failure() {
		return utils.FailedResult[*Deployment](configResult.Error())
	}

	deployResult := c.triggerDeployment(ctx, project.ID, req.Subdomain)
	if deployResult.Failure() {
		return utils.FailedResult[*Deployment](deployResult.Error())
	}

	c.logger.Info("instance provisioned", "project_id", project.ID, "subdomain", req.Subdomain)

	return utils.SuccessResult(&Deployment{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		EndpointURL: deployResult.Value().URL,
	})
}

func (c *PlatformClient) Deprovision(ctx context.Context, projectID string) utils.Result[bool] {
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/v9/projects/%s", projectID), nil)
	if err != nil {
		return utils.FailedBoolResult(utils.ExternalServiceError(err, "platform project delete failed"))
	}
	defer resp.Body.Close()

	// A missing project means someone already tore it down.
	if resp.StatusCode == http.StatusNotFound {
		return utils.SuccessResult(false)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return utils.FailedBoolResult(
			utils.ExternalServiceError(nil, "platform project delete returned status %d", resp.StatusCode))
	}

	c.logger.Info("instance deprovisioned", "project_id", projectID)

	return utils.SuccessResult(true)
}

func (c *PlatformClient) UpdateConfig(ctx context.Context, projectID string, vars map[string]string) utils.Result[bool] {
	for key, value := range vars {
		payload := map[string]any{
			"key":    key,
			"value":  value,
			"type":   "plain",
			"target": []string{"production", "preview", "development"},
		}
		if key == EnvAPIKey {
			payload["type"] = "secret"
		}

		resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v10/projects/%s/env", projectID), payload)
		if err != nil {
			return utils.FailedBoolResult(utils.ExternalServiceError(err, "platform env update failed for %s", key))
		}
		resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			return utils.FailedBoolResult(
				utils.ExternalServiceError(nil, "platform env update for %s returned status %d", key, resp.StatusCode))
		}
	}

	return utils.SuccessResult(true)
}

func (c *PlatformClient) ConfigureDomain(ctx context.Context, projectID string, domain string) utils.Result[bool] {
	payload := map[string]any{"name": domain}

	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v10/projects/%s/domains", projectID), payload)
	if err != nil {
		return utils.FailedBoolResult(utils.ExternalServiceError(err, "platform domain attach failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return utils.FailedBoolResult(
			utils.ExternalServiceError(nil, "platform domain attach returned status %d", resp.StatusCode))
	}

	var body platformDomain
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return utils.FailedBoolResult(utils.ExternalServiceError(err, "platform returned an unreadable domain response"))
	}

	return utils.SuccessResult(body.Verified)
}

func (c *PlatformClient) createOrGetProject(ctx context.Context, projectName string) utils.Result[*platformProject] {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v9/projects/%s", projectName), nil)
	if err != nil {
		return utils.FailedResult[*platformProject](utils.ExternalServiceError(err, "platform project lookup failed"))
	}

	if resp.StatusCode == http.StatusOK {
		defer resp.Body.Close()

		var project platformProject
		if err := json.NewDecoder(resp.Body).Decode(&project); err != nil {
			return utils.FailedResult[*platformProject](utils.ExternalServiceError(err, "platform returned an unreadable project"))
		}
		return utils.SuccessResult(&project)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		return utils.FailedResult[*platformProject](
			utils.ExternalServiceError(nil, "platform project lookup returned status %d", resp.StatusCode))
	}

	payload := map[string]any{
		"name":      projectName,
		"framework": "nextjs",
	}
	resp, err = c.do(ctx, http.MethodPost, "/v10/projects", payload)
	if err != nil {
		return utils.FailedResult[*platformProject](utils.ExternalServiceError(err, "platform project create failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return utils.FailedResult[*platformProject](
			utils.ExternalServiceError(nil, "platform project create returned status %d", resp.StatusCode))
	}

	var project platformProject
	if err := json.NewDecoder(resp.Body).Decode(&project); err != nil {
		return utils.FailedResult[*platformProject](utils.ExternalServiceError(err, "platform returned an unreadable project"))
	}

	return utils.SuccessResult(&project)
}

func (c *PlatformClient) triggerDeployment(ctx context.Context, projectID string, subdomain string) utils.Result[*platformDeployment] {
	payload := map[string]any{
		"name":    subdomain,
		"project": projectID,
		"gitSource": map[string]string{
			"type": "github",
			"repo": c.config.GitRepo,
			"ref":  "main",
		},
	}

	resp, err := c.do(ctx, http.MethodPost, "/v13/deployments", payload)
	if err != nil {
		return utils.FailedResult[*platformDeployment](utils.ExternalServiceError(err, "platform deployment failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return utils.FailedResult[*platformDeployment](
			utils.ExternalServiceError(nil, "platform deployment returned status %d", resp.StatusCode))
	}

	var deployment platformDeployment
	if err := json.NewDecoder(resp.Body).Decode(&deployment); err != nil {
		return utils.FailedResult[*platformDeployment](utils.ExternalServiceError(err, "platform returned an unreadable deployment"))
	}

	return utils.SuccessResult(&deployment)
}

func (c *PlatformClient) do(ctx context.Context, method string, path string, payload any) (*http.Response, error) {
	endpoint := c.config.APIURL + path
	if c.config.TeamID != "" {
		endpoint += "?teamId=" + url.QueryEscape(c.config.TeamID)
	}

	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.APIToken))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.client.Do(req)
}
