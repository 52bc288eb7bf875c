package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ejectlabs/eject/internal/coolify"
	"github.com/ejectlabs/eject/internal/model"
	"github.com/ejectlabs/eject/internal/vcs"
)

var (
	// ErrNoSource rejects deploy requests that carry neither an existing
	// repository URL nor a source directory to push.
	ErrNoSource = errors.New("deploy request has no repository url and no source directory")
	// ErrPaaSNotConfigured rejects operations on servers without Coolify
	// credentials.
	ErrPaaSNotConfigured = errors.New("server has no coolify url or token")
)

// Deploy launches a new deployment. The platform build is asynchronous: the
// call returns once the deploy was accepted, with the row in deploying.
// Completion is observed later through reconciliation. Any step failure is
// persisted as failed with the error message; the row is returned alongside
// the error so callers can show both.
func (s *Service) Deploy(ctx context.Context, req model.DeployRequest) (*model.Deployment, error) {
	if req.RepoURL == "" && req.SourceDir == "" {
		return nil, ErrNoSource
	}
	server, err := s.getServer(req.ServerID)
	if err != nil {
		return nil, err
	}
	if !server.PaaSReady() {
		return nil, ErrPaaSNotConfigured
	}

	now := s.now()
	d := &model.Deployment{
		ID:            uuid.NewString(),
		ServerID:      server.ID,
		ProjectName:   req.ProjectName,
		Status:        model.StatusPending,
		HealthStatus:  model.HealthUnknown,
		GithubRepoURL: req.RepoURL,
		Domain:        req.Domain,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.createDeployment(d); err != nil {
		return nil, err
	}
	attempt, err := s.startAttempt(d)
	if err != nil {
		return nil, err
	}

	s.logger.Info("deployment requested", "deployment", d.ID, "project", d.ProjectName, "server", server.ID)
	return s.launch(ctx, server, d, attempt, req.SourceDir)
}

// launch runs the shared VCS and platform pipeline for first deploys and
// retries. A deployment that already carries a repository skips the VCS leg;
// one that already carries an application UUID is redeployed in place.
func (s *Service) launch(ctx context.Context, server *model.Server, d *model.Deployment, attempt *model.DeploymentAttempt, sourceDir string) (*model.Deployment, error) {
	if d.GithubRepoURL == "" {
		// The public-app endpoint on Coolify pulls the repository without
		// credentials, so exported projects are pushed to public repos.
		repo, err := s.vcs.CreateRepository(ctx, repoSlug(d.ProjectName), "Deployed with eject", false)
		if err != nil {
			return s.fail(d, attempt, fmt.Errorf("create repository: %w", err))
		}
		files, err := vcs.LoadTree(sourceDir)
		if err != nil {
			return s.fail(d, attempt, fmt.Errorf("load sources: %w", err))
		}
		if err := s.vcs.Push(ctx, repo.CloneURL, files, "Initial commit"); err != nil {
			return s.fail(d, attempt, fmt.Errorf("push sources: %w", err))
		}
		d.GithubRepoURL = repo.HTMLURL
	}

	client := s.paas(server)
	if d.CoolifyAppUUID == "" {
		projectUUID, err := client.CreateProject(ctx, d.ProjectName, "managed by eject")
		if err != nil {
			return s.fail(d, attempt, fmt.Errorf("create project: %w", err))
		}
		appUUID, err := client.CreateApplication(ctx, coolify.CreateApplicationRequest{
			ProjectUUID:   projectUUID,
			Repository:    d.GithubRepoURL,
			Domains:       ensureURL(d.Domain),
			InstantDeploy: true,
		})
		if err != nil {
			return s.fail(d, attempt, fmt.Errorf("create application: %w", err))
		}
		d.CoolifyAppUUID = appUUID
	} else {
		if err := client.Deploy(ctx, d.CoolifyAppUUID); err != nil {
			return s.fail(d, attempt, fmt.Errorf("trigger deploy: %w", err))
		}
	}

	if d.Domain != "" {
		d.DeployedURL = ensureURL(d.Domain)
	}
	d.Status = model.StatusDeploying
	d.ErrorMessage = ""
	if err := s.saveDeployment(d); err != nil {
		return nil, err
	}
	s.finishAttempt(attempt, model.StatusDeploying, "")
	s.logger.Info("deployment launched", "deployment", d.ID, "app", d.CoolifyAppUUID, "attempt", attempt.Number)
	return d, nil
}

// fail persists the failed status with the error message and finishes the
// attempt. The original error is passed through to the caller.
func (s *Service) fail(d *model.Deployment, attempt *model.DeploymentAttempt, cause error) (*model.Deployment, error) {
	d.Status = model.StatusFailed
	d.ErrorMessage = cause.Error()
	if err := s.saveDeployment(d); err != nil {
		s.logger.Error("persist failed status", "deployment", d.ID, "error", err)
	}
	s.finishAttempt(attempt, model.StatusFailed, cause.Error())
	s.logger.Error("deployment failed", "deployment", d.ID, "error", cause)
	return d, cause
}

// repoSlug derives a repository name from a human project name.
func repoSlug(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "app"
	}
	return slug
}

// ensureURL upgrades a bare domain to an https URL.
func ensureURL(domain string) string {
	if domain == "" {
		return ""
	}
	if strings.Contains(domain, "://") {
		return domain
	}
	return "https://" + domain
}
