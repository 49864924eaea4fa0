package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/service-flow-backend/internal/config"
	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/repo"
)

// newTestDB opens a private in-memory database with the full schema, two users
// (u1, u2) and two services (s1, s2).
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	for _, u := range []domain.User{
		{ID: "u1", Name: "Ann", Email: "ann@x.io", PasswordHash: "h"},
		{ID: "u2", Name: "Bob", Email: "bob@x.io", PasswordHash: "h"},
	} {
		u := u
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	for _, s := range []domain.Service{
		{ID: "s1", Name: "Acme", Email: "acme@x.io", PasswordHash: "h"},
		{ID: "s2", Name: "Globex", Email: "globex@x.io", PasswordHash: "h"},
	} {
		s := s
		if err := db.Create(&s).Error; err != nil {
			t.Fatalf("seed service: %v", err)
		}
	}
	return db
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
		BcryptCost:    10,
	}
}

// repoTargets adapts the repo package to TargetRepo.
type repoTargets struct{}

func (repoTargets) CreateTarget(ctx context.Context, db *gorm.DB, kind domain.TargetKind, serviceID, openedBy, title, description string) (*domain.Target, error) {
	return repo.CreateTarget(ctx, db, kind, serviceID, openedBy, title, description)
}

func (repoTargets) GetTarget(ctx context.Context, db *gorm.DB, id string, kind domain.TargetKind) (*domain.Target, error) {
	return repo.GetTarget(ctx, db, id, kind)
}

func (repoTargets) CountTargets(ctx context.Context, db *gorm.DB, f repo.TargetFilter) (int64, error) {
	return repo.CountTargets(ctx, db, f)
}

func (repoTargets) ListTargetsPage(ctx context.Context, db *gorm.DB, f repo.TargetFilter, offset, limit int) ([]domain.Target, error) {
	return repo.ListTargetsPage(ctx, db, f, offset, limit)
}

func (repoTargets) UpdateTargetContent(ctx context.Context, db *gorm.DB, id, openedBy string, title, description *string) error {
	return repo.UpdateTargetContent(ctx, db, id, openedBy, title, description)
}

func (repoTargets) UpdateTargetStatus(ctx context.Context, db *gorm.DB, id, serviceID string, status domain.TargetStatus) error {
	return repo.UpdateTargetStatus(ctx, db, id, serviceID, status)
}

func (repoTargets) ListTargetTexts(ctx context.Context, db *gorm.DB, serviceID string, kind domain.TargetKind) ([]domain.Target, error) {
	return repo.ListTargetTexts(ctx, db, serviceID, kind)
}

func (repoTargets) GetTargetsByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Target, error) {
	return repo.GetTargetsByIDs(ctx, db, ids)
}

// mustTarget opens a target through the service and fails the test on error.
func mustTarget(t *testing.T, s *TargetService, kind domain.TargetKind, serviceID, userID, title, desc string) *domain.Target {
	t.Helper()
	tg, _, err := s.Create(context.Background(), NewTarget{
		Kind: kind, ServiceID: serviceID, UserID: userID, Title: title, Description: desc,
	})
	if err != nil {
		t.Fatalf("create target: %v", err)
	}
	return tg
}
