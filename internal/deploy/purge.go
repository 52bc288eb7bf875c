package deploy

import (
	"context"
	"sort"

	"github.com/ejectlabs/eject/internal/coolify"
	"github.com/ejectlabs/eject/internal/model"
)

// PurgeReport summarizes the full teardown of a server.
type PurgeReport struct {
	ServerID            string           `json:"server_id"`
	RemovedDeployments  int64            `json:"removed_deployments"`
	DeletedApplications []string         `json:"deleted_applications"`
	FailedApplications  []FailedDeletion `json:"failed_applications"`
	Orphans             *OrphanReport    `json:"orphans,omitempty"`
	OrphanError         string           `json:"orphan_error,omitempty"`
}

// PurgeServer removes every deployment recorded for the server, deletes the
// corresponding applications on the platform, then sweeps what remains as
// orphans. With the local records gone the expected set is empty, so the
// sweep clears the whole instance. Irreversible. Remote failures never abort
// the purge; they are collected in the report.
func (s *Service) PurgeServer(ctx context.Context, serverID string) (*PurgeReport, error) {
	server, err := s.getServer(serverID)
	if err != nil {
		return nil, err
	}

	var rows []model.Deployment
	if err := s.db.Where("server_id = ?", serverID).Find(&rows).Error; err != nil {
		return nil, err
	}

	report := &PurgeReport{
		ServerID:            serverID,
		DeletedApplications: []string{},
		FailedApplications:  []FailedDeletion{},
	}

	removed, err := s.removeServerRows(serverID, rows)
	if err != nil {
		return nil, err
	}
	report.RemovedDeployments = removed

	if !server.PaaSReady() {
		// Nothing remote to clean; the local purge alone is still useful.
		s.logger.Info("server purged without coolify credentials", "server", serverID, "removed", removed)
		return report, nil
	}

	client := s.paas(server)
	for _, d := range rows {
		if d.CoolifyAppUUID == "" {
			continue
		}
		err := client.DeleteApplication(ctx, d.CoolifyAppUUID)
		if err != nil && !coolify.IsNotFound(err) {
			report.FailedApplications = append(report.FailedApplications, FailedDeletion{Project: d.ProjectName, Error: err.Error()})
			s.logger.Warn("application deletion failed", "server", serverID, "project", d.ProjectName, "error", err)
			continue
		}
		report.DeletedApplications = append(report.DeletedApplications, d.ProjectName)
	}
	sort.Strings(report.DeletedApplications)

	orphans, err := s.CleanupOrphans(ctx, serverID, OrphanOptions{})
	if err != nil {
		report.OrphanError = err.Error()
		s.logger.Warn("orphan sweep after purge failed", "server", serverID, "error", err)
		return report, nil
	}
	report.Orphans = orphans

	s.logger.Info("server purged", "server", serverID,
		"removed_deployments", removed,
		"deleted_applications", len(report.DeletedApplications),
		"orphans_deleted", len(orphans.DeletedProjects))
	return report, nil
}
