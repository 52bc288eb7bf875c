package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ejectlabs/eject/internal/config"
	"github.com/ejectlabs/eject/internal/deploy"
	"github.com/ejectlabs/eject/internal/model"
)

// DeploymentHandler manages deployment lifecycle endpoints
type DeploymentHandler struct {
	svc *deploy.Service
	cfg *config.Config
	db  *gorm.DB
}

// NewDeploymentHandler creates a new DeploymentHandler
func NewDeploymentHandler(svc *deploy.Service, cfg *config.Config, db *gorm.DB) *DeploymentHandler {
	return &DeploymentHandler{svc: svc, cfg: cfg, db: db}
}

func (h *DeploymentHandler) audit(c *gin.Context, action, targetID, detail string) {
	if uid, ok := c.Get("user_id"); ok {
		uname, _ := c.Get("username")
		WriteAuditLog(h.db, uid.(uint), fmt.Sprint(uname), action, "deployment", targetID, detail, c.ClientIP())
	}
}

// deploymentView decorates a row with the derived stuck flag.
type deploymentView struct {
	model.Deployment
	IsStuck bool `json:"is_stuck"`
}

func view(d model.Deployment, now time.Time) deploymentView {
	return deploymentView{Deployment: d, IsStuck: deploy.DeploymentStuck(&d, now)}
}

// List returns deployments, optionally filtered by server via ?server_id=
func (h *DeploymentHandler) List(c *gin.Context) {
	rows, err := h.svc.List(c.Query("server_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.deployment_list_failed"})
		return
	}
	now := time.Now()
	views := make([]deploymentView, 0, len(rows))
	for _, d := range rows {
		views = append(views, view(d, now))
	}
	c.JSON(http.StatusOK, gin.H{"deployments": views, "total": len(views)})
}

// Get returns one deployment with its launch history
func (h *DeploymentHandler) Get(c *gin.Context) {
	d, err := h.svc.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Deployment not found", "error_key": "error.deployment_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.deployment_get_failed"})
		return
	}
	attempts, err := h.svc.Attempts(d.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.deployment_get_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deployment": view(*d, time.Now()), "attempts": attempts})
}

// Attempts returns the launch history of a deployment
func (h *DeploymentHandler) Attempts(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.svc.Get(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Deployment not found", "error_key": "error.deployment_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.deployment_get_failed"})
		return
	}
	attempts, err := h.svc.Attempts(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.attempts_list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts, "total": len(attempts)})
}

// Deploy triggers a new deployment
func (h *DeploymentHandler) Deploy(c *gin.Context) {
	var req model.DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_key": "error.invalid_request"})
		return
	}

	if req.SourceDir != "" {
		dir, err := h.resolveSourceDir(req.SourceDir)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_key": "error.invalid_source_dir"})
			return
		}
		req.SourceDir = dir
	}

	d, err := h.svc.Deploy(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, deploy.ErrNoSource):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_key": "error.no_source"})
		case errors.Is(err, deploy.ErrPaaSNotConfigured):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_key": "error.paas_not_configured"})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not found", "error_key": "error.server_not_found"})
		case d != nil:
			// The launch failed mid-pipeline; the row was recorded as failed.
			c.JSON(http.StatusBadGateway, gin.H{
				"error":      err.Error(),
				"error_key":  "error.deploy_failed",
				"deployment": view(*d, time.Now()),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.deploy_failed"})
		}
		return
	}

	h.audit(c, "DEPLOY", d.ID, fmt.Sprintf("Deployed project '%s'", d.ProjectName))
	c.JSON(http.StatusCreated, view(*d, time.Now()))
}

// Retry relaunches a failed or stuck deployment
func (h *DeploymentHandler) Retry(c *gin.Context) {
	d, err := h.svc.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Deployment not found", "error_key": "error.deployment_not_found"})
		case errors.Is(err, deploy.ErrNoRepoURL):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_key": "error.no_repo_url"})
		case errors.Is(err, deploy.ErrNotRetryable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "error_key": "error.not_retryable"})
		case errors.Is(err, deploy.ErrRetryInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "error_key": "error.retry_in_flight"})
		case errors.Is(err, deploy.ErrPaaSNotConfigured):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_key": "error.paas_not_configured"})
		case d != nil:
			c.JSON(http.StatusBadGateway, gin.H{
				"error":      err.Error(),
				"error_key":  "error.retry_failed",
				"deployment": view(*d, time.Now()),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.retry_failed"})
		}
		return
	}

	h.audit(c, "RETRY", d.ID, fmt.Sprintf("Retry #%d of project '%s'", d.RetryCount, d.ProjectName))
	c.JSON(http.StatusOK, view(*d, time.Now()))
}

// Reconcile refreshes a deployment's status from the platform and the
// deployed URL
func (h *DeploymentHandler) Reconcile(c *gin.Context) {
	result, err := h.svc.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Deployment not found", "error_key": "error.deployment_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.reconcile_failed"})
		return
	}

	h.audit(c, "RECONCILE", result.DeploymentID, fmt.Sprintf("Status '%s' (%s confidence)", result.Status, result.Confidence))
	c.JSON(http.StatusOK, result)
}

// SecretsCleanup removes the temporary bootstrap secrets from a deployment.
// A gated cleanup (unhealthy deployment, no force) is a 200 with
// cleaned=false and a reason code, not an error.
func (h *DeploymentHandler) SecretsCleanup(c *gin.Context) {
	var req model.SecretsCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_key": "error.invalid_request"})
		return
	}

	report, err := h.svc.CleanupSecrets(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Deployment not found", "error_key": "error.deployment_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.secrets_cleanup_failed"})
		return
	}

	if report.Cleaned && !report.AlreadyCleaned {
		h.audit(c, "CLEANUP", report.DeploymentID, fmt.Sprintf("Removed %d bootstrap secrets", report.RemovedVars))
	}
	c.JSON(http.StatusOK, report)
}

// resolveSourceDir maps a client-supplied relative path into the exports
// directory, rejecting traversal outside it.
func (h *DeploymentHandler) resolveSourceDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return "", errors.New("source_dir must be relative to the exports directory")
	}
	clean := filepath.Clean(dir)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("source_dir escapes the exports directory")
	}
	return filepath.Join(h.cfg.ExportsDir, clean), nil
}
