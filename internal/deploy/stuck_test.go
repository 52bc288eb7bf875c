package deploy

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ejectlabs/eject/internal/model"
)

// Property: a deploying row is stuck exactly when its age exceeds the
// threshold, regardless of where the clock sits.
func TestPropertyStuckThreshold(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	properties.Property("deploying is stuck iff older than threshold", prop.ForAll(
		func(ageSecs int) bool {
			createdAt := base.Add(-time.Duration(ageSecs) * time.Second)
			stuck := IsStuck(model.StatusDeploying, createdAt, base)
			return stuck == (time.Duration(ageSecs)*time.Second > StuckThreshold)
		},
		gen.IntRange(0, 3600),
	))

	properties.Property("other statuses are never stuck", prop.ForAll(
		func(ageSecs, statusIdx int) bool {
			statuses := []string{model.StatusPending, model.StatusDeployed, model.StatusFailed}
			createdAt := base.Add(-time.Duration(ageSecs) * time.Second)
			return !IsStuck(statuses[statusIdx], createdAt, base)
		},
		gen.IntRange(0, 86400),
		gen.IntRange(0, 2),
	))

	properties.TestingRun(t)
}

func TestDeploymentStuckScenario(t *testing.T) {
	now := time.Now()

	old := &model.Deployment{Status: model.StatusDeploying, CreatedAt: now.Add(-10 * time.Minute)}
	if !DeploymentStuck(old, now) {
		t.Errorf("10 minute old deploying row must be stuck")
	}

	fresh := &model.Deployment{Status: model.StatusDeploying, CreatedAt: now.Add(-1 * time.Minute)}
	if DeploymentStuck(fresh, now) {
		t.Errorf("1 minute old deploying row must not be stuck")
	}

	exact := &model.Deployment{Status: model.StatusDeploying, CreatedAt: now.Add(-StuckThreshold)}
	if DeploymentStuck(exact, now) {
		t.Errorf("row exactly at the threshold is not yet stuck")
	}
}

func TestDeploymentStuckUsesLatestLaunch(t *testing.T) {
	now := time.Now()
	recentRetry := now.Add(-time.Minute)

	relaunched := &model.Deployment{
		Status:      model.StatusDeploying,
		CreatedAt:   now.Add(-time.Hour),
		LastRetryAt: &recentRetry,
	}
	if DeploymentStuck(relaunched, now) {
		t.Errorf("row relaunched a minute ago must not be stuck")
	}

	oldRetry := now.Add(-20 * time.Minute)
	abandoned := &model.Deployment{
		Status:      model.StatusDeploying,
		CreatedAt:   now.Add(-time.Hour),
		LastRetryAt: &oldRetry,
	}
	if !DeploymentStuck(abandoned, now) {
		t.Errorf("row whose retry stalled 20 minutes ago must be stuck")
	}
}
