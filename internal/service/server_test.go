package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ejectlabs/eject/internal/model"
)

var testDBCounter uint64

// setupTestDB creates an in-memory SQLite database with a unique name to
// avoid shared state between tests
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:servicetest_%d?mode=memory&cache=shared", atomic.AddUint64(&testDBCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(&model.Server{}, &model.Deployment{}); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func newServerService(t *testing.T) (*ServerService, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	return NewServerService(db, slog.New(slog.NewTextHandler(io.Discard, nil))), db
}

// Server CRUD round-trip: create then query returns the same data, update
// then query returns the updated data, delete then query returns not found.
func TestPropertyServerCRUDRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("server CRUD round-trip", prop.ForAll(
		func(suffix int, providerIdx int) bool {
			svc, _ := newServerService(t)
			providers := []string{"hetzner", "digitalocean", "custom", ""}
			req := model.ServerRequest{
				Name:         fmt.Sprintf("server-%d", suffix),
				IPAddress:    "192.0.2.1",
				Provider:     providers[providerIdx%len(providers)],
				CoolifyURL:   "https://coolify.example.com",
				CoolifyToken: "token-1",
			}

			created, err := svc.Create(req)
			if err != nil {
				t.Logf("Create failed: %v", err)
				return false
			}
			fetched, err := svc.Get(created.ID)
			if err != nil || fetched.Name != req.Name || fetched.Provider != req.Provider {
				return false
			}
			if !fetched.PaaSReady() {
				return false
			}

			req.Name += "-renamed"
			req.CoolifyToken = ""
			updated, err := svc.Update(created.ID, req)
			if err != nil || updated.Name != req.Name {
				return false
			}
			if updated.CoolifyToken != "token-1" {
				return false
			}

			if err := svc.Delete(created.ID); err != nil {
				return false
			}
			_, err = svc.Get(created.ID)
			return errors.Is(err, gorm.ErrRecordNotFound)
		},
		gen.IntRange(1, 10000),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}

func TestCreateServerRejectsDuplicateName(t *testing.T) {
	svc, _ := newServerService(t)
	req := model.ServerRequest{Name: "prod-1"}
	if _, err := svc.Create(req); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(req); err == nil {
		t.Fatal("expected duplicate name rejection")
	}
}

func TestUpdateServerReplacesTokenWhenProvided(t *testing.T) {
	svc, _ := newServerService(t)
	created, err := svc.Create(model.ServerRequest{Name: "prod-1", CoolifyURL: "https://c.example.com", CoolifyToken: "old"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := svc.Update(created.ID, model.ServerRequest{Name: "prod-1", CoolifyURL: "https://c.example.com", CoolifyToken: "new"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.CoolifyToken != "new" {
		t.Errorf("token %q, want replacement", updated.CoolifyToken)
	}
}

func TestUpdateServerRejectsNameCollision(t *testing.T) {
	svc, _ := newServerService(t)
	if _, err := svc.Create(model.ServerRequest{Name: "prod-1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := svc.Create(model.ServerRequest{Name: "prod-2"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Update(second.ID, model.ServerRequest{Name: "prod-1"}); err == nil {
		t.Fatal("expected name collision rejection")
	}
}

func TestDeleteServerGuardedByDeployments(t *testing.T) {
	svc, db := newServerService(t)
	created, err := svc.Create(model.ServerRequest{Name: "prod-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	d := &model.Deployment{ID: uuid.NewString(), ServerID: created.ID, ProjectName: "acme"}
	if err := db.Create(d).Error; err != nil {
		t.Fatalf("seed deployment: %v", err)
	}

	if err := svc.Delete(created.ID); !errors.Is(err, ErrServerHasDeployments) {
		t.Fatalf("expected ErrServerHasDeployments, got %v", err)
	}
	if err := db.Delete(&model.Deployment{}, "id = ?", d.ID).Error; err != nil {
		t.Fatalf("remove deployment: %v", err)
	}
	if err := svc.Delete(created.ID); err != nil {
		t.Fatalf("Delete after records removed: %v", err)
	}
}

func TestListServersOldestFirst(t *testing.T) {
	svc, db := newServerService(t)
	newer := &model.Server{ID: uuid.NewString(), Name: "newer", CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	older := &model.Server{ID: uuid.NewString(), Name: "older", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	for _, s := range []*model.Server{newer, older} {
		if err := db.Create(s).Error; err != nil {
			t.Fatalf("seed server: %v", err)
		}
	}

	servers, err := svc.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(servers) != 2 || servers[0].Name != "older" {
		t.Errorf("order %v, want oldest first", []string{servers[0].Name, servers[1].Name})
	}
}
