package deploy

import (
	"time"

	"github.com/ejectlabs/eject/internal/events"
	"github.com/ejectlabs/eject/internal/model"
)

// List returns deployments newest first, optionally filtered by server.
func (s *Service) List(serverID string) ([]model.Deployment, error) {
	q := s.db.Order("created_at desc")
	if serverID != "" {
		q = q.Where("server_id = ?", serverID)
	}
	var deployments []model.Deployment
	err := q.Find(&deployments).Error
	return deployments, err
}

// Get returns one deployment by id.
func (s *Service) Get(id string) (*model.Deployment, error) {
	return s.getDeployment(id)
}

// Attempts returns the launch history of a deployment, oldest first.
func (s *Service) Attempts(deploymentID string) ([]model.DeploymentAttempt, error) {
	var attempts []model.DeploymentAttempt
	err := s.db.Where("deployment_id = ?", deploymentID).Order("number asc").Find(&attempts).Error
	return attempts, err
}

func (s *Service) getDeployment(id string) (*model.Deployment, error) {
	var d model.Deployment
	if err := s.db.First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Service) getServer(id string) (*model.Server, error) {
	var server model.Server
	if err := s.db.First(&server, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &server, nil
}

func (s *Service) createDeployment(d *model.Deployment) error {
	if err := s.db.Create(d).Error; err != nil {
		return err
	}
	s.publish(events.DeploymentCreated, d)
	return nil
}

func (s *Service) saveDeployment(d *model.Deployment) error {
	if err := s.db.Save(d).Error; err != nil {
		return err
	}
	s.publish(events.DeploymentUpdated, d)
	return nil
}

// bumpRetry claims the next retry of a deployment. The retry_count guard
// makes the update a compare-and-swap: a concurrent retry that already
// bumped the counter leaves RowsAffected at zero and the claim fails.
func (s *Service) bumpRetry(d *model.Deployment, now time.Time) (bool, error) {
	res := s.db.Model(&model.Deployment{}).
		Where("id = ? AND retry_count = ? AND status IN ?",
			d.ID, d.RetryCount, []string{model.StatusFailed, model.StatusDeploying}).
		Updates(map[string]interface{}{
			"retry_count":   d.RetryCount + 1,
			"last_retry_at": now,
			"status":        model.StatusDeploying,
			"error_message": "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// applyResolution writes a reconciliation verdict back to the row. The write
// carries the retry_count observed at read time, so a retry that slipped in
// between drops the stale write. Returns false when the write was dropped.
func (s *Service) applyResolution(d *model.Deployment, res Resolution) (bool, error) {
	updates := map[string]interface{}{}
	if res.Status != "" && res.Status != d.Status {
		updates["status"] = res.Status
		if res.Status == model.StatusFailed {
			msg := res.Reason
			if msg == "" {
				msg = "reconciliation marked the deployment failed"
			}
			updates["error_message"] = msg
		}
	}
	if res.Health != "" && res.Health != d.HealthStatus {
		updates["health_status"] = res.Health
	}
	if len(updates) == 0 {
		return true, nil
	}

	q := s.db.Model(&model.Deployment{}).
		Where("id = ? AND retry_count = ?", d.ID, d.RetryCount).
		Updates(updates)
	if q.Error != nil {
		return false, q.Error
	}
	if q.RowsAffected == 0 {
		return false, nil
	}

	if v, ok := updates["status"]; ok {
		d.Status = v.(string)
	}
	if v, ok := updates["health_status"]; ok {
		d.HealthStatus = v.(string)
	}
	if v, ok := updates["error_message"]; ok {
		d.ErrorMessage = v.(string)
	}
	s.publish(events.DeploymentUpdated, d)
	return true, nil
}

// markSecretsCleaned flips the one-way secrets flag. The guard keeps the
// transition monotonic under concurrent cleanups.
func (s *Service) markSecretsCleaned(d *model.Deployment) (bool, error) {
	now := s.now()
	q := s.db.Model(&model.Deployment{}).
		Where("id = ? AND secrets_cleaned = ?", d.ID, false).
		Updates(map[string]interface{}{
			"secrets_cleaned":    true,
			"secrets_cleaned_at": now,
		})
	if q.Error != nil {
		return false, q.Error
	}
	if q.RowsAffected == 0 {
		return false, nil
	}
	d.SecretsCleaned = true
	d.SecretsCleanedAt = &now
	s.publish(events.DeploymentUpdated, d)
	return true, nil
}

// startAttempt appends the launch record for the current retry count.
func (s *Service) startAttempt(d *model.Deployment) (*model.DeploymentAttempt, error) {
	attempt := &model.DeploymentAttempt{
		DeploymentID: d.ID,
		Number:       d.RetryCount + 1,
		Status:       model.StatusDeploying,
		StartedAt:    s.now(),
	}
	if err := s.db.Create(attempt).Error; err != nil {
		return nil, err
	}
	return attempt, nil
}

// finishAttempt records the launch outcome on the attempt row. Attempts are
// launch records, not build records: deploying means the platform accepted
// the deploy, the build outcome is observed later by reconciliation.
func (s *Service) finishAttempt(attempt *model.DeploymentAttempt, status, errMsg string) {
	if attempt == nil {
		return
	}
	now := s.now()
	attempt.Status = status
	attempt.ErrorMessage = errMsg
	attempt.FinishedAt = &now
	if err := s.db.Save(attempt).Error; err != nil {
		s.logger.Error("persist attempt", "deployment", attempt.DeploymentID, "attempt", attempt.Number, "error", err)
	}
}

// removeFailedRows deletes failed deployments for a server along with their
// attempt history.
func (s *Service) removeFailedRows(serverID string) (int64, error) {
	var ids []string
	if err := s.db.Model(&model.Deployment{}).
		Where("server_id = ? AND status = ?", serverID, model.StatusFailed).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.db.Where("deployment_id IN ?", ids).Delete(&model.DeploymentAttempt{}).Error; err != nil {
		return 0, err
	}
	q := s.db.Where("id IN ?", ids).Delete(&model.Deployment{})
	if q.Error != nil {
		return 0, q.Error
	}
	for _, id := range ids {
		s.publishDeleted(id, serverID)
	}
	return q.RowsAffected, nil
}

// removeServerRows deletes all deployments for the server with their attempt
// history and announces the purge.
func (s *Service) removeServerRows(serverID string, rows []model.Deployment) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(rows))
	for _, d := range rows {
		ids = append(ids, d.ID)
	}
	if err := s.db.Where("deployment_id IN ?", ids).Delete(&model.DeploymentAttempt{}).Error; err != nil {
		return 0, err
	}
	q := s.db.Where("id IN ?", ids).Delete(&model.Deployment{})
	if q.Error != nil {
		return 0, q.Error
	}
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:   events.ServerPurged,
			Source: "deploy",
			Payload: map[string]interface{}{
				"server_id": serverID,
				"removed":   q.RowsAffected,
			},
		})
	}
	return q.RowsAffected, nil
}

func (s *Service) publish(eventType string, d *model.Deployment) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Type:   eventType,
		Source: "deploy",
		Payload: map[string]interface{}{
			"deployment_id": d.ID,
			"server_id":     d.ServerID,
			"project_name":  d.ProjectName,
			"status":        d.Status,
			"health_status": d.HealthStatus,
		},
	})
}

func (s *Service) publishDeleted(deploymentID, serverID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Type:   events.DeploymentDeleted,
		Source: "deploy",
		Payload: map[string]interface{}{
			"deployment_id": deploymentID,
			"server_id":     serverID,
		},
	})
}
