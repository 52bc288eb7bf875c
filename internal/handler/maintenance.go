package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ejectlabs/eject/internal/deploy"
	"github.com/ejectlabs/eject/internal/model"
)

// MaintenanceHandler exposes the orphan cleanup and purge workflows
type MaintenanceHandler struct {
	svc *deploy.Service
	db  *gorm.DB
}

// NewMaintenanceHandler creates a new MaintenanceHandler
func NewMaintenanceHandler(svc *deploy.Service, db *gorm.DB) *MaintenanceHandler {
	return &MaintenanceHandler{svc: svc, db: db}
}

func (h *MaintenanceHandler) audit(c *gin.Context, action, targetID, detail string) {
	if uid, ok := c.Get("user_id"); ok {
		uname, _ := c.Get("username")
		WriteAuditLog(h.db, uid.(uint), fmt.Sprint(uname), action, "server", targetID, detail, c.ClientIP())
	}
}

// OrphanCleanup diffs platform projects against local records and deletes
// the orphans. Partial failure is a normal outcome reported in the body.
func (h *MaintenanceHandler) OrphanCleanup(c *gin.Context) {
	var req model.OrphanCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_key": "error.invalid_request"})
		return
	}

	serverID := c.Param("id")
	report, err := h.svc.CleanupOrphans(c.Request.Context(), serverID, deploy.OrphanOptions{
		RemoveFailedLocal: req.RemoveFailedLocal,
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not found", "error_key": "error.server_not_found"})
		case errors.Is(err, deploy.ErrPaaSNotConfigured):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_key": "error.paas_not_configured"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "error_key": "error.orphan_cleanup_failed"})
		}
		return
	}

	h.audit(c, "CLEANUP", serverID,
		fmt.Sprintf("Orphan cleanup: deleted %d, failed %d", len(report.DeletedProjects), len(report.FailedDeletions)))
	c.JSON(http.StatusOK, report)
}

// Purge tears down every deployment of a server, locally and remotely
func (h *MaintenanceHandler) Purge(c *gin.Context) {
	serverID := c.Param("id")
	report, err := h.svc.PurgeServer(c.Request.Context(), serverID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not found", "error_key": "error.server_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.purge_failed"})
		return
	}

	h.audit(c, "PURGE", serverID,
		fmt.Sprintf("Purged %d deployments, deleted %d applications", report.RemovedDeployments, len(report.DeletedApplications)))
	c.JSON(http.StatusOK, report)
}
