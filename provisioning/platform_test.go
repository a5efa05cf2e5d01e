package provisioning

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

func newTestClient(serverURL string) *PlatformClient {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewPlatformClient(PlatformConfig{
		APIURL:        serverURL,
		APIToken:      "platform-token",
		TeamID:        "team_1",
		ProjectPrefix: "pharmasuite-",
		GitRepo:       "pharmasuite/tenant-app",
	}, logger)
}

func TestProvision(t *testing.T) {
	t.Run("should create the project, push config and deploy", func(t *testing.T) {
		var envKeys []string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer platform-token", r.Header.Get("Authorization"))
			assert.Equal(t, "team_1", r.URL.Query().Get("teamId"))

			switch {
			case r.Method == http.MethodGet && r.URL.Path == "/v9/projects/pharmasuite-lyonpharma":
				w.WriteHeader(http.StatusNotFound)
			case r.Method == http.MethodPost && r.URL.Path == "/v10/projects":
				json.NewEncoder(w).Encode(platformProject{ID: "prj_1", Name: "pharmasuite-lyonpharma"})
			case r.Method == http.MethodPost && r.URL.Path == "/v10/projects/prj_1/env":
				var payload map[string]any
				json.NewDecoder(r.Body).Decode(&payload)
				envKeys = append(envKeys, payload["key"].(string))
				if payload["key"] == EnvAPIKey {
					assert.Equal(t, "secret", payload["type"])
				}
				w.WriteHeader(http.StatusOK)
			case r.Method == http.MethodPost && r.URL.Path == "/v13/deployments":
				json.NewEncoder(w).Encode(platformDeployment{ID: "dpl_1", URL: "lyonpharma.pharmasuite.app"})
			default:
				t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
				w.WriteHeader(http.StatusBadRequest)
			}
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		result := client.Provision(context.Background(), DeployRequest{
			Name:      "Lyon Pharma",
			Subdomain: "lyonpharma",
			APIKey:    "tenant-key",
			PlanType:  "monthly",
		})

		assert.True(t, result.Success())
		assert.Equal(t, "prj_1", result.Value().ProjectID)
		assert.Equal(t, "lyonpharma.pharmasuite.app", result.Value().EndpointURL)
		assert.Len(t, envKeys, 7)
		assert.Contains(t, envKeys, EnvAppName)
		assert.Contains(t, envKeys, EnvAPIKey)
	})

	t.Run("should reuse an existing project", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodGet && r.URL.Path == "/v9/projects/pharmasuite-lyonpharma":
				json.NewEncoder(w).Encode(platformProject{ID: "prj_existing", Name: "pharmasuite-lyonpharma"})
			case r.Method == http.MethodPost && r.URL.Path == "/v10/projects/prj_existing/env":
				w.WriteHeader(http.StatusOK)
			case r.Method == http.MethodPost && r.URL.Path == "/v13/deployments":
				json.NewEncoder(w).Encode(platformDeployment{ID: "dpl_2", URL: "lyonpharma.pharmasuite.app"})
			default:
				t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
				w.WriteHeader(http.StatusBadRequest)
			}
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		result := client.Provision(context.Background(), DeployRequest{Subdomain: "lyonpharma"})

		assert.True(t, result.Success())
		assert.Equal(t, "prj_existing", result.Value().ProjectID)
	})

	t.Run("should surface an external service error when the platform rejects the deploy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodGet:
				json.NewEncoder(w).Encode(platformProject{ID: "prj_1"})
			case r.URL.Path == "/v13/deployments":
				w.WriteHeader(http.StatusForbidden)
			default:
				w.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		result := client.Provision(context.Background(), DeployRequest{Subdomain: "lyonpharma"})

		assert.False(t, result.Success())
		assert.Equal(t, utils.KindExternalService, result.ErrorKind())
	})
}

func TestDeprovision(t *testing.T) {
	t.Run("should delete the project", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			assert.Equal(t, "/v9/projects/prj_1", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		result := client.Deprovision(context.Background(), "prj_1")
		assert.True(t, result.Success())
		assert.True(t, result.Value())
	})

	t.Run("should treat a missing project as already gone", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		result := client.Deprovision(context.Background(), "prj_gone")
		assert.True(t, result.Success())
		assert.False(t, result.Value())
	})
}

func TestConfigureDomain(t *testing.T) {
	t.Run("should report the platform's verification verdict", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v10/projects/prj_1/domains", r.URL.Path)

			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			assert.Equal(t, "pharma.example.com", payload["name"])

			json.NewEncoder(w).Encode(platformDomain{Name: "pharma.example.com", Verified: false})
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		result := client.ConfigureDomain(context.Background(), "prj_1", "pharma.example.com")
		assert.True(t, result.Success())
		assert.False(t, result.Value())
	})
}
