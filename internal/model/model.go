package model

import (
	"time"
)

// User represents a panel administrator
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null;size:64" json:"username"`
	Password  string    `gorm:"not null" json:"-"` // bcrypt hash, never exposed in JSON
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Deployment lifecycle states. Status is authoritative locally but advisory
// until reconciled against the PaaS.
const (
	StatusPending   = "pending"
	StatusDeploying = "deploying"
	StatusDeployed  = "deployed"
	StatusFailed    = "failed"
)

// Health states, set only by the status reconciler.
const (
	HealthUnknown   = "unknown"
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// Server represents a target deployment environment running Coolify.
// A server without Coolify credentials is PaaS-inert: deployments and
// orphan cleanup are rejected until both fields are set.
type Server struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	IPAddress    string    `gorm:"size:64" json:"ip_address"`
	Provider     string    `gorm:"size:64" json:"provider"` // hetzner, digitalocean, custom
	CoolifyURL   string    `gorm:"size:512" json:"coolify_url"`
	CoolifyToken string    `gorm:"size:512" json:"-"` // bearer token, never exposed
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PaaSReady reports whether the server carries the credentials required for
// Coolify operations.
func (s *Server) PaaSReady() bool {
	return s.CoolifyURL != "" && s.CoolifyToken != ""
}

// Deployment is one logical deployment of an exported project onto a server.
// Retries mutate the row in place and append a DeploymentAttempt; the row is
// never deleted and recreated, so RetryCount increases monotonically.
type Deployment struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	ServerID         string     `gorm:"index;size:36;not null" json:"server_id"`
	ProjectName      string     `gorm:"size:255;not null" json:"project_name"`
	Status           string     `gorm:"size:32;default:pending" json:"status"`        // pending, deploying, deployed, failed
	HealthStatus     string     `gorm:"size:32;default:unknown" json:"health_status"` // unknown, healthy, unhealthy
	SecretsCleaned   bool       `gorm:"default:false" json:"secrets_cleaned"`
	SecretsCleanedAt *time.Time `json:"secrets_cleaned_at"`
	GithubRepoURL    string     `gorm:"size:512" json:"github_repo_url"`
	Domain           string     `gorm:"size:255" json:"domain"`
	DeployedURL      string     `gorm:"size:512" json:"deployed_url"`
	CoolifyAppUUID   string     `gorm:"size:64;index" json:"coolify_app_uuid"` // empty when the app was never located on the PaaS
	RetryCount       int        `gorm:"default:0" json:"retry_count"`
	LastRetryAt      *time.Time `json:"last_retry_at"`
	ErrorMessage     string     `gorm:"type:text" json:"error_message"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Active reports whether the deployment counts as a live remote application
// when diffing local records against PaaS projects.
func (d *Deployment) Active() bool {
	return d.Status == StatusDeployed
}

// DeploymentAttempt records one launch of a deployment, append-only.
// Attempt #1 is written by the first deploy; each retry appends the next
// number. History survives retries and is only removed with the deployment.
type DeploymentAttempt struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	DeploymentID string     `gorm:"index;size:36;not null" json:"deployment_id"`
	Number       int        `gorm:"not null" json:"number"`
	Status       string     `gorm:"size:32;default:deploying" json:"status"` // deploying, deployed, failed
	ErrorMessage string     `gorm:"type:text" json:"error_message"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
}

// AuditLog records an administrative action
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Username  string    `gorm:"size:64" json:"username"`
	Action    string    `gorm:"size:32;not null" json:"action"` // CREATE, UPDATE, DELETE, DEPLOY, RETRY, RECONCILE, CLEANUP, PURGE
	Target    string    `gorm:"size:32" json:"target"`          // server, deployment
	TargetID  string    `gorm:"size:64" json:"target_id"`
	Detail    string    `gorm:"size:1024" json:"detail"`
	IP        string    `gorm:"size:64" json:"ip"`
	CreatedAt time.Time `json:"created_at"`
}

// ServerRequest is the request body for creating/updating a server
type ServerRequest struct {
	Name         string `json:"name" binding:"required"`
	IPAddress    string `json:"ip_address"`
	Provider     string `json:"provider"`
	CoolifyURL   string `json:"coolify_url"`
	CoolifyToken string `json:"coolify_token"`
}

// DeployRequest is the request body for triggering a deployment
type DeployRequest struct {
	ServerID    string `json:"server_id" binding:"required"`
	ProjectName string `json:"project_name" binding:"required"`
	RepoURL     string `json:"repo_url"`   // existing repository; empty means create and push
	SourceDir   string `json:"source_dir"` // exported sources relative to the exports directory
	Domain      string `json:"domain"`
}

// SecretsCleanupRequest is the request body for the secrets cleanup workflow
type SecretsCleanupRequest struct {
	Force        bool `json:"force"`
	VerifyHealth bool `json:"verify_health"`
}

// OrphanCleanupRequest is the request body for the orphan reconciler
type OrphanCleanupRequest struct {
	RemoveFailedLocal bool `json:"remove_failed_local"`
}
