package coolify

import (
	"context"
	"fmt"
)

// Application is a deployed (or deploying) app on the instance. Status is
// Coolify's composite state string, e.g. "running:healthy" or "exited".
type Application struct {
	UUID   string `json:"uuid"`
	Name   string `json:"name"`
	Status string `json:"status"`
	FQDN   string `json:"fqdn"`
}

// EnvVar is an application environment variable.
type EnvVar struct {
	UUID  string `json:"uuid"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CreateApplicationRequest describes a public-repository application.
type CreateApplicationRequest struct {
	ProjectUUID string `json:"project_uuid"`
	ServerUUID  string `json:"server_uuid"`
	Environment string `json:"environment_name"`
	Repository  string `json:"git_repository"`
	Branch      string `json:"git_branch"`
	BuildPack   string `json:"build_pack"`
	Domains     string `json:"domains,omitempty"`
	// InstantDeploy makes Coolify queue the first build immediately, so a
	// separate Deploy call is unnecessary on creation.
	InstantDeploy bool `json:"instant_deploy"`
}

// ListApplications returns all applications on the instance.
func (c *Client) ListApplications(ctx context.Context) ([]Application, error) {
	var apps []Application
	if err := c.get(ctx, "/applications", &apps); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// GetApplication fetches one application by UUID.
func (c *Client) GetApplication(ctx context.Context, uuid string) (*Application, error) {
	app := &Application{}
	if err := c.get(ctx, "/applications/"+uuid, app); err != nil {
		return nil, fmt.Errorf("get application %s: %w", uuid, err)
	}
	return app, nil
}

// CreateApplication creates a public-repo application and returns its UUID.
func (c *Client) CreateApplication(ctx context.Context, req CreateApplicationRequest) (string, error) {
	if req.ServerUUID == "" {
		req.ServerUUID = "0" // Coolify's built-in localhost server
	}
	if req.Environment == "" {
		req.Environment = "production"
	}
	if req.Branch == "" {
		req.Branch = "main"
	}
	if req.BuildPack == "" {
		req.BuildPack = "nixpacks"
	}
	var res struct {
		UUID string `json:"uuid"`
	}
	if err := c.post(ctx, "/applications/public", req, &res); err != nil {
		return "", fmt.Errorf("create application for %q: %w", req.Repository, err)
	}
	return res.UUID, nil
}

// Deploy queues a build+deploy for the application. The call returns as soon
// as Coolify has accepted the request; the build itself runs asynchronously.
func (c *Client) Deploy(ctx context.Context, appUUID string) error {
	if err := c.get(ctx, "/deploy?uuid="+appUUID, nil); err != nil {
		return fmt.Errorf("deploy application %s: %w", appUUID, err)
	}
	return nil
}

// DeleteApplication removes an application.
func (c *Client) DeleteApplication(ctx context.Context, uuid string) error {
	if err := c.delete(ctx, "/applications/"+uuid); err != nil {
		return fmt.Errorf("delete application %s: %w", uuid, err)
	}
	return nil
}

// ListEnvs returns the application's environment variables.
func (c *Client) ListEnvs(ctx context.Context, appUUID string) ([]EnvVar, error) {
	var envs []EnvVar
	if err := c.get(ctx, "/applications/"+appUUID+"/envs", &envs); err != nil {
		return nil, fmt.Errorf("list envs for %s: %w", appUUID, err)
	}
	return envs, nil
}

// DeleteEnv removes one environment variable from the application.
func (c *Client) DeleteEnv(ctx context.Context, appUUID, envUUID string) error {
	if err := c.delete(ctx, "/applications/"+appUUID+"/envs/"+envUUID); err != nil {
		return fmt.Errorf("delete env %s on %s: %w", envUUID, appUUID, err)
	}
	return nil
}

// Restart restarts the application so removed environment variables stop
// being visible to the running process.
func (c *Client) Restart(ctx context.Context, appUUID string) error {
	if err := c.post(ctx, "/applications/"+appUUID+"/restart", nil, nil); err != nil {
		return fmt.Errorf("restart application %s: %w", appUUID, err)
	}
	return nil
}
