package deploy

import (
	"context"
	"errors"

	"github.com/ejectlabs/eject/internal/model"
)

var (
	// ErrNoRepoURL rejects retries of deployments that never recorded a
	// repository; there is nothing to rebuild from.
	ErrNoRepoURL = errors.New("deployment has no repository url")
	// ErrNotRetryable rejects retries of deployments that are neither
	// failed nor stuck.
	ErrNotRetryable = errors.New("deployment is not failed or stuck")
	// ErrRetryInFlight rejects a retry while another one is running.
	ErrRetryInFlight = errors.New("a retry for this deployment is already running")
)

// Retry relaunches a failed or stuck deployment through the regular launch
// pipeline, reusing the recorded repository and application. Retries are
// unbounded; eligibility is the only gate. Single-flight per deployment is
// enforced twice: an in-process lock held for the whole launch, and a
// retry_count compare-and-swap in the store against writers this process
// cannot see.
func (s *Service) Retry(ctx context.Context, deploymentID string) (*model.Deployment, error) {
	s.retryMu.Lock()
	if s.retryLocks[deploymentID] {
		s.retryMu.Unlock()
		return nil, ErrRetryInFlight
	}
	s.retryLocks[deploymentID] = true
	s.retryMu.Unlock()
	defer s.releaseRetryLock(deploymentID)

	d, err := s.getDeployment(deploymentID)
	if err != nil {
		return nil, err
	}
	if d.GithubRepoURL == "" {
		return nil, ErrNoRepoURL
	}
	now := s.now()
	if d.Status != model.StatusFailed && !DeploymentStuck(d, now) {
		return nil, ErrNotRetryable
	}
	server, err := s.getServer(d.ServerID)
	if err != nil {
		return nil, err
	}
	if !server.PaaSReady() {
		return nil, ErrPaaSNotConfigured
	}

	claimed, err := s.bumpRetry(d, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrRetryInFlight
	}
	d.RetryCount++
	d.LastRetryAt = &now
	d.Status = model.StatusDeploying
	d.ErrorMessage = ""

	attempt, err := s.startAttempt(d)
	if err != nil {
		return nil, err
	}
	s.logger.Info("deployment retry", "deployment", d.ID, "retry", d.RetryCount)
	return s.launch(ctx, server, d, attempt, "")
}

// releaseRetryLock releases the per-deployment retry lock.
func (s *Service) releaseRetryLock(deploymentID string) {
	s.retryMu.Lock()
	delete(s.retryLocks, deploymentID)
	s.retryMu.Unlock()
}
