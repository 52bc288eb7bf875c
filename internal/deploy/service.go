// Package deploy implements the deployment lifecycle: first launches,
// user-triggered retries, status reconciliation against the platform, the
// health-gated secrets cleanup, and the orphan and purge teardown paths.
package deploy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ejectlabs/eject/internal/coolify"
	"github.com/ejectlabs/eject/internal/events"
	"github.com/ejectlabs/eject/internal/health"
	"github.com/ejectlabs/eject/internal/model"
	"github.com/ejectlabs/eject/internal/vcs"
)

// PaaS is the slice of the Coolify API the deployment workflows use.
type PaaS interface {
	ListProjects(ctx context.Context) ([]coolify.Project, error)
	CreateProject(ctx context.Context, name, description string) (string, error)
	DeleteProject(ctx context.Context, uuid string) error
	ListApplications(ctx context.Context) ([]coolify.Application, error)
	GetApplication(ctx context.Context, uuid string) (*coolify.Application, error)
	CreateApplication(ctx context.Context, req coolify.CreateApplicationRequest) (string, error)
	Deploy(ctx context.Context, appUUID string) error
	DeleteApplication(ctx context.Context, uuid string) error
	ListEnvs(ctx context.Context, appUUID string) ([]coolify.EnvVar, error)
	DeleteEnv(ctx context.Context, appUUID, envUUID string) error
	Restart(ctx context.Context, appUUID string) error
}

// VCS creates repositories and pushes exported file trees.
type VCS interface {
	CreateRepository(ctx context.Context, name, description string, private bool) (*vcs.Repository, error)
	Push(ctx context.Context, cloneURL string, files map[string][]byte, message string) error
}

// SecretsRemover deletes the temporary bootstrap secrets from a deployed
// application. Implementations must tolerate being called more than once.
type SecretsRemover interface {
	RemoveSecrets(ctx context.Context, server *model.Server, d *model.Deployment) (removed int, err error)
}

// PaaSFactory builds a Coolify client scoped to one server's credentials.
type PaaSFactory func(server *model.Server) PaaS

// Service drives deployments through their lifecycle. Every mutation of a
// deployment row goes through the service so observers see change events.
type Service struct {
	db      *gorm.DB
	paas    PaaSFactory
	vcs     VCS
	prober  *health.Prober
	remover SecretsRemover
	bus     *events.Bus
	logger  *slog.Logger
	now     func() time.Time

	// Retry locks per deployment to prevent concurrent retries.
	retryMu    sync.Mutex
	retryLocks map[string]bool
}

// NewService creates the deployment service.
func NewService(db *gorm.DB, paas PaaSFactory, vcsClient VCS, prober *health.Prober, remover SecretsRemover, bus *events.Bus, logger *slog.Logger) *Service {
	return &Service{
		db:         db,
		paas:       paas,
		vcs:        vcsClient,
		prober:     prober,
		remover:    remover,
		bus:        bus,
		logger:     logger,
		now:        time.Now,
		retryLocks: make(map[string]bool),
	}
}

// PaaSClient returns a platform client for the server, for callers outside
// the workflows (live application listings and the like).
func (s *Service) PaaSClient(server *model.Server) PaaS {
	return s.paas(server)
}
