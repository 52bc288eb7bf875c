package deploy

import (
	"context"
	"strings"

	"github.com/ejectlabs/eject/internal/coolify"
	"github.com/ejectlabs/eject/internal/model"
)

// Confidence labels on a reconciliation verdict. High means the platform
// confirmed the application by UUID; low means the verdict rests on a name
// search or on the HTTP probe alone.
const (
	ConfidenceHigh = "high"
	ConfidenceLow  = "low"
)

// PaaSSignal is what the platform reported about the application. Exact is
// true when the app was confirmed by UUID rather than located by name.
type PaaSSignal struct {
	AppFound bool
	Exact    bool
	Status   string // mapped lifecycle status, empty when the platform gave no usable state
}

// ProbeSignal is what the HTTP probe of the deployed URL reported.
type ProbeSignal struct {
	Healthy    bool
	StatusCode int
	Err        string
}

// Resolution is the merged verdict of the two signals. An empty Status or
// Health means the signals gave no basis to change that field.
type Resolution struct {
	Status      string
	Health      string
	Confidence  string
	AppNotFound bool
	Reason      string // populated when Status is failed
}

// MergeSignals folds the two independent signals into one verdict. The
// platform state wins for status; the probe owns health. A nil signal means
// that source could not be consulted at all and contributes nothing. When
// the platform definitely does not know the app, status degrades to whatever
// the probe suggests, flagged low confidence so callers can point the user
// at orphan cleanup.
func MergeSignals(paas *PaaSSignal, probe *ProbeSignal) Resolution {
	res := Resolution{Confidence: ConfidenceLow}

	if probe != nil {
		if probe.Healthy {
			res.Health = model.HealthHealthy
		} else {
			res.Health = model.HealthUnhealthy
		}
	}

	if paas == nil {
		return res
	}

	if !paas.AppFound {
		res.AppNotFound = true
		switch {
		case probe != nil && probe.Healthy:
			// The URL serves traffic but the platform does not know the
			// app: likely healthy but unmanaged.
			res.Status = model.StatusDeployed
		case probe != nil:
			res.Status = model.StatusFailed
			res.Reason = "application not found on coolify and deployed url is unhealthy"
		default:
			res.Status = model.StatusFailed
			res.Reason = "application not found on coolify"
		}
		return res
	}

	if paas.Exact {
		res.Confidence = ConfidenceHigh
	}
	if paas.Status != "" {
		res.Status = paas.Status
		if paas.Status == model.StatusFailed {
			res.Reason = "coolify reports the application stopped"
		}
	}
	return res
}

// ReconcileResult reports what the reconciler saw and what it wrote.
type ReconcileResult struct {
	DeploymentID  string `json:"deployment_id"`
	Status        string `json:"status"`
	HealthStatus  string `json:"health_status"`
	Confidence    string `json:"confidence"`
	AppNotFound   bool   `json:"app_not_found"`
	URLHealthy    bool   `json:"url_healthy"`
	URLHTTPStatus int    `json:"url_http_status,omitempty"`
	URLError      string `json:"url_error,omitempty"`
	Applied       bool   `json:"applied"`
}

// Reconcile refreshes one deployment's status from the platform and from the
// deployed URL. The two lookups fail independently; whatever could be
// determined is merged and written back, guarded so that a concurrent retry
// wins over the stale reconciliation.
func (s *Service) Reconcile(ctx context.Context, deploymentID string) (*ReconcileResult, error) {
	d, err := s.getDeployment(deploymentID)
	if err != nil {
		return nil, err
	}
	server, err := s.getServer(d.ServerID)
	if err != nil {
		return nil, err
	}

	var paasSig *PaaSSignal
	if server.PaaSReady() {
		paasSig = s.paasSignal(ctx, s.paas(server), d)
	}

	var probeSig *ProbeSignal
	if d.DeployedURL != "" {
		r := s.prober.Check(ctx, d.DeployedURL)
		probeSig = &ProbeSignal{Healthy: r.Healthy, StatusCode: r.StatusCode, Err: r.Error}
	}

	res := MergeSignals(paasSig, probeSig)
	applied, err := s.applyResolution(d, res)
	if err != nil {
		return nil, err
	}
	if !applied {
		s.logger.Warn("reconcile write dropped, deployment changed underneath", "deployment", d.ID)
	}

	out := &ReconcileResult{
		DeploymentID: d.ID,
		Status:       d.Status,
		HealthStatus: d.HealthStatus,
		Confidence:   res.Confidence,
		AppNotFound:  res.AppNotFound,
		Applied:      applied,
	}
	if probeSig != nil {
		out.URLHealthy = probeSig.Healthy
		out.URLHTTPStatus = probeSig.StatusCode
		out.URLError = probeSig.Err
	}
	return out, nil
}

// paasSignal asks the platform about the application. A missing app is a
// definite signal; an unreachable platform is no signal at all.
func (s *Service) paasSignal(ctx context.Context, client PaaS, d *model.Deployment) *PaaSSignal {
	if d.CoolifyAppUUID != "" {
		app, err := client.GetApplication(ctx, d.CoolifyAppUUID)
		if err == nil {
			return &PaaSSignal{AppFound: true, Exact: true, Status: statusFromPaaS(app.Status)}
		}
		if coolify.IsNotFound(err) {
			return &PaaSSignal{AppFound: false, Exact: true}
		}
		s.logger.Warn("coolify application lookup failed", "deployment", d.ID, "error", err)
		return nil
	}

	// No UUID recorded, fall back to matching the project by name.
	projects, err := client.ListProjects(ctx)
	if err != nil {
		s.logger.Warn("coolify project list failed", "deployment", d.ID, "error", err)
		return nil
	}
	for _, p := range projects {
		if p.Name == d.ProjectName {
			return &PaaSSignal{AppFound: true, Exact: false}
		}
	}
	return &PaaSSignal{AppFound: false}
}

// statusFromPaaS maps Coolify's composite status strings, e.g.
// "running:healthy" or "exited", onto lifecycle states. Unrecognized values
// yield no opinion rather than a wrong one.
func statusFromPaaS(raw string) string {
	state := raw
	if i := strings.IndexByte(state, ':'); i >= 0 {
		state = state[:i]
	}
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "running":
		return model.StatusDeployed
	case "exited", "stopped", "failed", "error", "crashed":
		return model.StatusFailed
	case "starting", "restarting", "in_progress", "deploying", "building", "queued":
		return model.StatusDeploying
	default:
		return ""
	}
}
