package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ejectlabs/eject/internal/coolify"
	"github.com/ejectlabs/eject/internal/deploy"
	"github.com/ejectlabs/eject/internal/model"
	"github.com/ejectlabs/eject/internal/service"
)

// ServerHandler manages server registry endpoints
type ServerHandler struct {
	svc       *service.ServerService
	deploySvc *deploy.Service
	db        *gorm.DB
}

// NewServerHandler creates a new ServerHandler
func NewServerHandler(svc *service.ServerService, deploySvc *deploy.Service, db *gorm.DB) *ServerHandler {
	return &ServerHandler{svc: svc, deploySvc: deploySvc, db: db}
}

func (h *ServerHandler) audit(c *gin.Context, action, targetID, detail string) {
	if uid, ok := c.Get("user_id"); ok {
		uname, _ := c.Get("username")
		WriteAuditLog(h.db, uid.(uint), fmt.Sprint(uname), action, "server", targetID, detail, c.ClientIP())
	}
}

// List returns all registered servers
func (h *ServerHandler) List(c *gin.Context) {
	servers, err := h.svc.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.server_list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"servers": servers, "total": len(servers)})
}

// Get returns a single server
func (h *ServerHandler) Get(c *gin.Context) {
	server, err := h.svc.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not found", "error_key": "error.server_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.server_get_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"server": server, "paas_ready": server.PaaSReady()})
}

// Create registers a new server
func (h *ServerHandler) Create(c *gin.Context) {
	var req model.ServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_key": "error.invalid_request"})
		return
	}

	server, err := h.svc.Create(req)
	if err != nil {
		if err.Error() == "error.server_name_exists" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     fmt.Sprintf("server name '%s' already exists", req.Name),
				"error_key": "error.server_name_exists",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.server_create_failed"})
		return
	}

	h.audit(c, "CREATE", server.ID, fmt.Sprintf("Registered server '%s'", server.Name))
	c.JSON(http.StatusCreated, server)
}

// Update modifies an existing server
func (h *ServerHandler) Update(c *gin.Context) {
	var req model.ServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_key": "error.invalid_request"})
		return
	}

	server, err := h.svc.Update(c.Param("id"), req)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not found", "error_key": "error.server_not_found"})
			return
		}
		if err.Error() == "error.server_name_exists" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     fmt.Sprintf("server name '%s' already exists", req.Name),
				"error_key": "error.server_name_exists",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.server_update_failed"})
		return
	}

	h.audit(c, "UPDATE", server.ID, fmt.Sprintf("Updated server '%s'", server.Name))
	c.JSON(http.StatusOK, server)
}

// Delete removes a server registration
func (h *ServerHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not found", "error_key": "error.server_not_found"})
			return
		}
		if errors.Is(err, service.ErrServerHasDeployments) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "error_key": "error.server_has_deployments"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.server_delete_failed"})
		return
	}

	h.audit(c, "DELETE", id, "Removed server")
	c.JSON(http.StatusOK, gin.H{"message": "Server deleted successfully"})
}

// Applications lists the applications currently present on the server's
// Coolify instance, straight from the platform.
func (h *ServerHandler) Applications(c *gin.Context) {
	server, err := h.svc.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not found", "error_key": "error.server_not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "error_key": "error.server_get_failed"})
		return
	}
	if !server.PaaSReady() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Server has no Coolify credentials", "error_key": "error.paas_not_configured"})
		return
	}

	apps, err := h.deploySvc.PaaSClient(server).ListApplications(c.Request.Context())
	if err != nil {
		// A rejected token needs new credentials, not a retry.
		if coolify.IsUnauthorized(err) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "error_key": "error.paas_token_rejected"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "error_key": "error.paas_unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps, "total": len(apps)})
}
