package service

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ejectlabs/eject/internal/model"
)

// ErrServerHasDeployments guards deletion: a server with deployment records
// must be purged first so remote applications are not stranded.
var ErrServerHasDeployments = errors.New("server still has deployments; purge it first")

// ServerService handles registration of deployment targets.
type ServerService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewServerService creates a new ServerService
func NewServerService(db *gorm.DB, logger *slog.Logger) *ServerService {
	return &ServerService{db: db, logger: logger}
}

// List returns all servers, oldest first
func (s *ServerService) List() ([]model.Server, error) {
	var servers []model.Server
	err := s.db.Order("created_at ASC").Find(&servers).Error
	return servers, err
}

// Get returns a single server by ID
func (s *ServerService) Get(id string) (*model.Server, error) {
	var server model.Server
	if err := s.db.First(&server, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &server, nil
}

// Create registers a new server
func (s *ServerService) Create(req model.ServerRequest) (*model.Server, error) {
	var count int64
	s.db.Model(&model.Server{}).Where("name = ?", req.Name).Count(&count)
	if count > 0 {
		return nil, fmt.Errorf("error.server_name_exists")
	}

	server := &model.Server{
		ID:           uuid.NewString(),
		Name:         req.Name,
		IPAddress:    req.IPAddress,
		Provider:     req.Provider,
		CoolifyURL:   req.CoolifyURL,
		CoolifyToken: req.CoolifyToken,
	}
	if err := s.db.Create(server).Error; err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	s.logger.Info("server registered", "server", server.ID, "name", server.Name, "paas_ready", server.PaaSReady())
	return server, nil
}

// Update modifies an existing server. An empty CoolifyToken keeps the stored
// token; the token is never echoed back, so forms resubmit without it.
func (s *ServerService) Update(id string, req model.ServerRequest) (*model.Server, error) {
	server, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	var count int64
	s.db.Model(&model.Server{}).Where("name = ? AND id != ?", req.Name, id).Count(&count)
	if count > 0 {
		return nil, fmt.Errorf("error.server_name_exists")
	}

	server.Name = req.Name
	server.IPAddress = req.IPAddress
	server.Provider = req.Provider
	server.CoolifyURL = req.CoolifyURL
	if req.CoolifyToken != "" {
		server.CoolifyToken = req.CoolifyToken
	}
	if err := s.db.Save(server).Error; err != nil {
		return nil, fmt.Errorf("failed to update server: %w", err)
	}
	return server, nil
}

// Delete removes a server registration. It refuses while deployment records
// exist; the purge workflow tears those down first.
func (s *ServerService) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	var count int64
	if err := s.db.Model(&model.Deployment{}).Where("server_id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrServerHasDeployments
	}
	if err := s.db.Delete(&model.Server{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}
	s.logger.Info("server removed", "server", id)
	return nil
}
