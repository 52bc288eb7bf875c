package deploy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ejectlabs/eject/internal/coolify"
	"github.com/ejectlabs/eject/internal/events"
	"github.com/ejectlabs/eject/internal/health"
	"github.com/ejectlabs/eject/internal/model"
	"github.com/ejectlabs/eject/internal/vcs"
)

var testDBCounter uint64

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	id := atomic.AddUint64(&testDBCounter, 1)
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:deploytest_%d?mode=memory&cache=shared", id)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	sqlDB, _ := db.DB()
	// sqlite allows a single writer; one connection keeps concurrent test
	// goroutines from tripping over table locks.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	err = db.AutoMigrate(
		&model.Server{},
		&model.Deployment{},
		&model.DeploymentAttempt{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}

// ── fakes ──

// fakePaaS is an in-memory Coolify double with per-call error injection.
type fakePaaS struct {
	mu       sync.Mutex
	projects map[string]coolify.Project     // by uuid
	apps     map[string]coolify.Application // by uuid
	envs     map[string][]coolify.EnvVar    // by app uuid
	nextID   int
	deploys  int
	restarts int

	listProjectsErr  error
	createProjectErr error
	deleteProjectErr map[string]error // keyed by project name
	getAppErr        error
	createAppErr     error
	deployErr        error
	deleteAppErr     error
	listEnvsErr      error
	deleteEnvErr     error
	restartErr       error
}

func newFakePaaS() *fakePaaS {
	return &fakePaaS{
		projects:         make(map[string]coolify.Project),
		apps:             make(map[string]coolify.Application),
		envs:             make(map[string][]coolify.EnvVar),
		deleteProjectErr: make(map[string]error),
	}
}

func notFoundErr(detail string) error {
	return &coolify.APIError{Code: http.StatusNotFound, Status: "404 Not Found", Detail: detail}
}

func (f *fakePaaS) newUUID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakePaaS) addProject(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.newUUID("proj")
	f.projects[id] = coolify.Project{UUID: id, Name: name}
	return id
}

func (f *fakePaaS) addApp(name, status string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.newUUID("app")
	f.apps[id] = coolify.Application{UUID: id, Name: name, Status: status}
	return id
}

func (f *fakePaaS) projectNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.projects))
	for _, p := range f.projects {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

func (f *fakePaaS) ListProjects(ctx context.Context) ([]coolify.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listProjectsErr != nil {
		return nil, f.listProjectsErr
	}
	out := make([]coolify.Project, 0, len(f.projects))
	for _, p := range f.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakePaaS) CreateProject(ctx context.Context, name, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createProjectErr != nil {
		return "", f.createProjectErr
	}
	id := f.newUUID("proj")
	f.projects[id] = coolify.Project{UUID: id, Name: name, Description: description}
	return id, nil
}

func (f *fakePaaS) DeleteProject(ctx context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[uuid]
	if !ok {
		return notFoundErr("project not found")
	}
	if err := f.deleteProjectErr[p.Name]; err != nil {
		return err
	}
	delete(f.projects, uuid)
	return nil
}

func (f *fakePaaS) ListApplications(ctx context.Context) ([]coolify.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]coolify.Application, 0, len(f.apps))
	for _, a := range f.apps {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakePaaS) GetApplication(ctx context.Context, uuid string) (*coolify.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getAppErr != nil {
		return nil, f.getAppErr
	}
	app, ok := f.apps[uuid]
	if !ok {
		return nil, notFoundErr("application not found")
	}
	return &app, nil
}

func (f *fakePaaS) CreateApplication(ctx context.Context, req coolify.CreateApplicationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createAppErr != nil {
		return "", f.createAppErr
	}
	id := f.newUUID("app")
	f.apps[id] = coolify.Application{UUID: id, Name: req.Repository, Status: "starting", FQDN: req.Domains}
	return id, nil
}

func (f *fakePaaS) Deploy(ctx context.Context, appUUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deployErr != nil {
		return f.deployErr
	}
	if _, ok := f.apps[appUUID]; !ok {
		return notFoundErr("application not found")
	}
	f.deploys++
	return nil
}

func (f *fakePaaS) DeleteApplication(ctx context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteAppErr != nil {
		return f.deleteAppErr
	}
	if _, ok := f.apps[uuid]; !ok {
		return notFoundErr("application not found")
	}
	delete(f.apps, uuid)
	return nil
}

func (f *fakePaaS) ListEnvs(ctx context.Context, appUUID string) ([]coolify.EnvVar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listEnvsErr != nil {
		return nil, f.listEnvsErr
	}
	return f.envs[appUUID], nil
}

func (f *fakePaaS) DeleteEnv(ctx context.Context, appUUID, envUUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteEnvErr != nil {
		return f.deleteEnvErr
	}
	kept := f.envs[appUUID][:0]
	for _, e := range f.envs[appUUID] {
		if e.UUID != envUUID {
			kept = append(kept, e)
		}
	}
	f.envs[appUUID] = kept
	return nil
}

func (f *fakePaaS) Restart(ctx context.Context, appUUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restartErr != nil {
		return f.restartErr
	}
	f.restarts++
	return nil
}

// fakeVCS records repository creations and pushes.
type fakeVCS struct {
	mu        sync.Mutex
	created   []string
	pushes    int
	createErr error
	pushErr   error
}

func (f *fakeVCS) CreateRepository(ctx context.Context, name, description string, private bool) (*vcs.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, name)
	return &vcs.Repository{
		Name:     name,
		Owner:    "eject-test",
		CloneURL: "https://github.com/eject-test/" + name + ".git",
		HTMLURL:  "https://github.com/eject-test/" + name,
	}, nil
}

func (f *fakeVCS) Push(ctx context.Context, cloneURL string, files map[string][]byte, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes++
	return nil
}

// fakeRemover counts invocations of the external secret-removal action.
type fakeRemover struct {
	mu      sync.Mutex
	calls   int
	removed int
	err     error
}

func (f *fakeRemover) RemoveSecrets(ctx context.Context, server *model.Server, d *model.Deployment) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.removed, nil
}

func (f *fakeRemover) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ── service construction ──

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, paas *fakePaaS, vcsClient *fakeVCS, remover *fakeRemover, probe health.ProbeFunc) *Service {
	t.Helper()
	if probe == nil {
		probe = func(ctx context.Context, url string) (int, error) { return http.StatusOK, nil }
	}
	log := discardLogger()
	return NewService(
		setupTestDB(t),
		func(server *model.Server) PaaS { return paas },
		vcsClient,
		health.NewProberWithProbe(probe),
		remover,
		events.NewBus(log),
		log,
	)
}

func seedServer(t *testing.T, db *gorm.DB) *model.Server {
	t.Helper()
	server := &model.Server{
		ID:           uuid.NewString(),
		Name:         "prod-1",
		IPAddress:    "192.0.2.10",
		Provider:     "hetzner",
		CoolifyURL:   "https://coolify.example.com",
		CoolifyToken: "token-1",
	}
	if err := db.Create(server).Error; err != nil {
		t.Fatalf("seed server: %v", err)
	}
	return server
}

func seedDeployment(t *testing.T, db *gorm.DB, server *model.Server, mut func(*model.Deployment)) *model.Deployment {
	t.Helper()
	d := &model.Deployment{
		ID:             uuid.NewString(),
		ServerID:       server.ID,
		ProjectName:    "acme",
		Status:         model.StatusDeployed,
		HealthStatus:   model.HealthUnknown,
		GithubRepoURL:  "https://github.com/eject-test/acme",
		Domain:         "acme.example.com",
		DeployedURL:    "https://acme.example.com",
		CoolifyAppUUID: "app-1",
	}
	if mut != nil {
		mut(d)
	}
	if err := db.Create(d).Error; err != nil {
		t.Fatalf("seed deployment: %v", err)
	}
	return d
}

func reloadDeployment(t *testing.T, db *gorm.DB, id string) *model.Deployment {
	t.Helper()
	var d model.Deployment
	if err := db.First(&d, "id = ?", id).Error; err != nil {
		t.Fatalf("reload deployment %s: %v", id, err)
	}
	return &d
}
