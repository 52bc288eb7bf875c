package coolify

import (
	"context"
	"fmt"
)

// Project is a Coolify project, the container grouping one deployed
// application per exported app.
type Project struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListProjects returns all projects on the instance.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.get(ctx, "/projects", &projects); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// CreateProject creates a project and returns its UUID.
func (c *Client) CreateProject(ctx context.Context, name, description string) (string, error) {
	body := map[string]string{"name": name, "description": description}
	var res struct {
		UUID string `json:"uuid"`
	}
	if err := c.post(ctx, "/projects", body, &res); err != nil {
		return "", fmt.Errorf("create project %q: %w", name, err)
	}
	return res.UUID, nil
}

// DeleteProject deletes a project and everything in it.
func (c *Client) DeleteProject(ctx context.Context, uuid string) error {
	if err := c.delete(ctx, "/projects/"+uuid); err != nil {
		return fmt.Errorf("delete project %s: %w", uuid, err)
	}
	return nil
}
