package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ejectlabs/eject/internal/model"
)

// Reason codes for an aborted secrets cleanup.
const (
	ReasonHealthCheckFailed = "health_check_failed"
	ReasonHealthCheckError  = "health_check_error"
)

// SecretEnvPrefix marks the temporary bootstrap variables injected into a
// deployment during migration; only keys with this prefix are removed.
const SecretEnvPrefix = "EJECT_SECRET_"

// SecretsReport is the outcome of one cleanup invocation.
type SecretsReport struct {
	DeploymentID   string `json:"deployment_id"`
	Cleaned        bool   `json:"cleaned"`
	AlreadyCleaned bool   `json:"already_cleaned,omitempty"`
	Reason         string `json:"reason,omitempty"`
	URLHTTPStatus  int    `json:"url_http_status,omitempty"`
	URLError       string `json:"url_error,omitempty"`
	RemovedVars    int    `json:"removed_vars,omitempty"`
}

// CleanupSecrets removes the temporary secrets from a live deployment. The
// transition is one-way: once secrets_cleaned is set it never clears, and a
// repeat call is a no-op reporting already_cleaned. Unless forced, a fresh
// health check gates the removal; a broken deployment keeps its secrets so
// it can still be diagnosed.
func (s *Service) CleanupSecrets(ctx context.Context, deploymentID string, req model.SecretsCleanupRequest) (*SecretsReport, error) {
	d, err := s.getDeployment(deploymentID)
	if err != nil {
		return nil, err
	}
	report := &SecretsReport{DeploymentID: d.ID}

	if d.SecretsCleaned {
		report.Cleaned = true
		report.AlreadyCleaned = true
		return report, nil
	}

	if req.VerifyHealth && !req.Force {
		if d.DeployedURL == "" {
			report.Reason = ReasonHealthCheckError
			report.URLError = "no deployed url to verify"
			return report, nil
		}
		probe := s.prober.Check(ctx, d.DeployedURL)
		report.URLHTTPStatus = probe.StatusCode
		report.URLError = probe.Error
		if probe.Error != "" {
			report.Reason = ReasonHealthCheckError
			return report, nil
		}
		if !probe.Healthy {
			report.Reason = ReasonHealthCheckFailed
			return report, nil
		}
	}

	server, err := s.getServer(d.ServerID)
	if err != nil {
		return nil, err
	}
	removed, err := s.remover.RemoveSecrets(ctx, server, d)
	if err != nil {
		return nil, fmt.Errorf("remove secrets: %w", err)
	}
	report.RemovedVars = removed

	if _, err := s.markSecretsCleaned(d); err != nil {
		return nil, err
	}
	report.Cleaned = true
	s.logger.Info("secrets cleaned", "deployment", d.ID, "removed", removed)
	return report, nil
}

// CoolifyRemover removes bootstrap env vars through the platform API, then
// restarts the application so the running process drops them too.
type CoolifyRemover struct {
	factory PaaSFactory
	logger  *slog.Logger
}

// NewCoolifyRemover creates the production SecretsRemover.
func NewCoolifyRemover(factory PaaSFactory, logger *slog.Logger) *CoolifyRemover {
	return &CoolifyRemover{factory: factory, logger: logger}
}

// RemoveSecrets deletes every env var carrying SecretEnvPrefix. Safe to call
// again: with no matching vars left it removes nothing and skips the restart.
func (r *CoolifyRemover) RemoveSecrets(ctx context.Context, server *model.Server, d *model.Deployment) (int, error) {
	if d.CoolifyAppUUID == "" {
		return 0, errors.New("deployment has no application uuid")
	}
	client := r.factory(server)
	envs, err := client.ListEnvs(ctx, d.CoolifyAppUUID)
	if err != nil {
		return 0, fmt.Errorf("list envs: %w", err)
	}
	removed := 0
	for _, env := range envs {
		if !strings.HasPrefix(env.Key, SecretEnvPrefix) {
			continue
		}
		if err := client.DeleteEnv(ctx, d.CoolifyAppUUID, env.UUID); err != nil {
			return removed, fmt.Errorf("delete env %s: %w", env.Key, err)
		}
		removed++
		r.logger.Info("removed bootstrap secret", "deployment", d.ID, "key", env.Key)
	}
	if removed > 0 {
		if err := client.Restart(ctx, d.CoolifyAppUUID); err != nil {
			return removed, fmt.Errorf("restart application: %w", err)
		}
	}
	return removed, nil
}
