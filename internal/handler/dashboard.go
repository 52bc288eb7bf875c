package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ejectlabs/eject/internal/deploy"
	"github.com/ejectlabs/eject/internal/model"
)

const appVersion = "0.4.2"

// DashboardHandler handles dashboard statistics
type DashboardHandler struct {
	db *gorm.DB
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

// Stats returns comprehensive dashboard statistics
func (h *DashboardHandler) Stats(c *gin.Context) {
	var servers []model.Server
	if err := h.db.Find(&servers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var deployments []model.Deployment
	if err := h.db.Find(&deployments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var (
		paasReady int
		pending   int
		deploying int
		deployed  int
		failed    int
		healthy   int
		unhealthy int
		stuck     int
		cleaned   int
	)

	for _, s := range servers {
		if s.PaaSReady() {
			paasReady++
		}
	}

	now := time.Now()
	for _, d := range deployments {
		switch d.Status {
		case model.StatusPending:
			pending++
		case model.StatusDeploying:
			deploying++
		case model.StatusDeployed:
			deployed++
		case model.StatusFailed:
			failed++
		}
		switch d.HealthStatus {
		case model.HealthHealthy:
			healthy++
		case model.HealthUnhealthy:
			unhealthy++
		}
		if deploy.DeploymentStuck(&d, now) {
			stuck++
		}
		if d.SecretsCleaned {
			cleaned++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"servers": gin.H{
			"total":      len(servers),
			"paas_ready": paasReady,
		},
		"deployments": gin.H{
			"total":     len(deployments),
			"pending":   pending,
			"deploying": deploying,
			"deployed":  deployed,
			"failed":    failed,
			"stuck":     stuck,
		},
		"health": gin.H{
			"healthy":   healthy,
			"unhealthy": unhealthy,
			"unknown":   len(deployments) - healthy - unhealthy,
		},
		"secrets": gin.H{
			"cleaned":     cleaned,
			"outstanding": len(deployments) - cleaned,
		},
		"system": gin.H{
			"version":    appVersion,
			"go_version": runtime.Version(),
			"go_os":      runtime.GOOS,
			"go_arch":    runtime.GOARCH,
		},
	})
}
