// Package monitor runs the periodic loop that reconciles deployments stuck
// in their launch phase against the platform.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/ejectlabs/eject/internal/deploy"
	"github.com/ejectlabs/eject/internal/model"
)

const (
	defaultInterval  = 60 * time.Second
	reconcileTimeout = 15 * time.Second
)

// Reconciler resolves one deployment against platform and probe signals.
type Reconciler interface {
	Reconcile(ctx context.Context, deploymentID string) (*deploy.ReconcileResult, error)
}

// Controller scans for deployments that have been launching for longer than
// the stuck threshold and reconciles them. It never retries anything and
// never invents a status of its own; every write goes through the reconciler.
type Controller struct {
	db       *gorm.DB
	rec      Reconciler
	logger   *slog.Logger
	interval time.Duration

	now func() time.Time
}

// New constructs the controller. A non-positive interval falls back to the
// default.
func New(db *gorm.DB, rec Reconciler, logger *slog.Logger, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Controller{
		db:       db,
		rec:      rec,
		logger:   logger.With("component", "monitor"),
		interval: interval,
		now:      time.Now,
	}
}

// Run executes the scan loop until the context is cancelled. The first scan
// happens immediately, not one interval in.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("monitor started", "interval", c.interval)
	c.runIteration(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("monitor stopped")
			return
		case <-ticker.C:
			c.runIteration(ctx)
		}
	}
}

// RunOnce performs a single scan and reports how many deployments were
// reconciled.
func (c *Controller) RunOnce(ctx context.Context) int {
	return c.runIteration(ctx)
}

func (c *Controller) runIteration(parent context.Context) int {
	timeout := reconcileTimeout
	if c.interval < timeout {
		timeout = c.interval
	}
	opCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	var rows []model.Deployment
	if err := c.db.Where("status = ?", model.StatusDeploying).Find(&rows).Error; err != nil {
		c.logger.Warn("failed to list launching deployments", "error", err)
		return 0
	}

	now := c.now()
	reconciled := 0
	for _, d := range rows {
		if !deploy.DeploymentStuck(&d, now) {
			continue
		}
		res, err := c.rec.Reconcile(opCtx, d.ID)
		if err != nil {
			c.logger.Warn("stuck deployment reconcile failed", "deployment", d.ID, "error", err)
			continue
		}
		reconciled++
		c.logger.Info("stuck deployment reconciled",
			"deployment", d.ID,
			"status", res.Status,
			"confidence", res.Confidence,
			"applied", res.Applied)
	}
	return reconciled
}
