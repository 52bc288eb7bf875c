package deploy

import (
	"time"

	"github.com/ejectlabs/eject/internal/model"
)

// StuckThreshold is the heuristic upper bound for a platform build and
// deploy cycle. A deployment sitting in deploying longer than this never
// completed or its completion was never observed.
const StuckThreshold = 5 * time.Minute

// IsStuck is the pure stuck predicate over recorded state and launch age.
func IsStuck(status string, launchedAt, now time.Time) bool {
	return status == model.StatusDeploying && now.Sub(launchedAt) > StuckThreshold
}

// DeploymentStuck applies the stuck predicate to a deployment row. Age is
// measured from the latest launch: the row's creation, or the last retry if
// one ran since. Without this a retried row would count as stuck the moment
// its relaunch started.
func DeploymentStuck(d *model.Deployment, now time.Time) bool {
	launchedAt := d.CreatedAt
	if d.LastRetryAt != nil && d.LastRetryAt.After(launchedAt) {
		launchedAt = *d.LastRetryAt
	}
	return IsStuck(d.Status, launchedAt, now)
}
