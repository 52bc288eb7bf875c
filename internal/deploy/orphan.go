package deploy

import (
	"context"
	"fmt"
	"sort"

	"github.com/ejectlabs/eject/internal/model"
)

// OrphanOptions controls the optional local side effect of an orphan run.
type OrphanOptions struct {
	// RemoveFailedLocal also deletes the server's failed local rows. This is
	// an unconditional local cleanup, independent of the remote diff.
	RemoveFailedLocal bool
}

// FailedDeletion records one remote resource the platform refused to delete.
type FailedDeletion struct {
	Project string `json:"project"`
	Error   string `json:"error"`
}

// OrphanReport summarizes one reconciler run. Partial success is a normal
// outcome: failed deletions stay listed and are picked up by the next run.
type OrphanReport struct {
	ServerID           string           `json:"server_id"`
	ExpectedProjects   []string         `json:"expected_projects"`
	DeletedProjects    []string         `json:"deleted_projects"`
	FailedDeletions    []FailedDeletion `json:"failed_deletions"`
	RemovedLocalFailed int64            `json:"removed_local_failed"`
}

// CleanupOrphans deletes platform projects that no longer correspond to an
// active local deployment. Each orphan is deleted independently, so one
// failure never aborts the rest of the batch. A second run with unchanged
// remote state deletes nothing.
func (s *Service) CleanupOrphans(ctx context.Context, serverID string, opts OrphanOptions) (*OrphanReport, error) {
	server, err := s.getServer(serverID)
	if err != nil {
		return nil, err
	}
	if !server.PaaSReady() {
		return nil, ErrPaaSNotConfigured
	}

	var active []model.Deployment
	if err := s.db.Where("server_id = ? AND status = ?", serverID, model.StatusDeployed).Find(&active).Error; err != nil {
		return nil, err
	}

	report := &OrphanReport{
		ServerID:         serverID,
		ExpectedProjects: []string{},
		DeletedProjects:  []string{},
		FailedDeletions:  []FailedDeletion{},
	}
	expected := make(map[string]bool, len(active))
	for _, d := range active {
		if !expected[d.ProjectName] {
			expected[d.ProjectName] = true
			report.ExpectedProjects = append(report.ExpectedProjects, d.ProjectName)
		}
	}
	sort.Strings(report.ExpectedProjects)

	client := s.paas(server)
	projects, err := client.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	for _, p := range projects {
		if expected[p.Name] {
			continue
		}
		if err := client.DeleteProject(ctx, p.UUID); err != nil {
			report.FailedDeletions = append(report.FailedDeletions, FailedDeletion{Project: p.Name, Error: err.Error()})
			s.logger.Warn("orphan deletion failed", "server", serverID, "project", p.Name, "error", err)
			continue
		}
		report.DeletedProjects = append(report.DeletedProjects, p.Name)
	}
	sort.Strings(report.DeletedProjects)

	if opts.RemoveFailedLocal {
		removed, err := s.removeFailedRows(serverID)
		if err != nil {
			// Best-effort: the remote diff already ran, keep its report.
			s.logger.Error("failed-row cleanup", "server", serverID, "error", err)
		}
		report.RemovedLocalFailed = removed
	}

	s.logger.Info("orphan cleanup finished", "server", serverID,
		"deleted", len(report.DeletedProjects), "failed", len(report.FailedDeletions))
	return report, nil
}
