// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the two
// principal kinds, User and Service.
//
// Both tables share one id space: ids are UUIDs generated here, never by the
// database, so a subject id can only ever exist in one of them.
//
// Error semantics:
//   - Missing rows surface as gorm.ErrRecordNotFound (ErrNotFound).
//   - Duplicate emails surface as ErrDuplicate.
//   - Any other DB error is propagated unchanged.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/service-flow-backend/internal/domain"
)

// CreateUser inserts a new user with a generated UUID.
func CreateUser(ctx context.Context, db *gorm.DB, name, email, passwordHash string) (*domain.User, error) {
	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// CreateService inserts a new service with a generated UUID.
func CreateService(ctx context.Context, db *gorm.DB, name, email, passwordHash string) (*domain.Service, error) {
	now := time.Now().UTC()
	s := &domain.Service{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return s, nil
}

// GetUser fetches a user by id.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetService fetches a service by id.
func GetService(ctx context.Context, db *gorm.DB, id string) (*domain.Service, error) {
	var s domain.Service
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetUserByEmail fetches a user by email (stored lower-cased).
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetServiceByEmail fetches a service by email (stored lower-cased).
func GetServiceByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Service, error) {
	var s domain.Service
	if err := db.WithContext(ctx).Where("email = ?", email).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// principalModel maps a kind to the GORM model owning its table.
func principalModel(kind domain.PrincipalKind) any {
	if kind == domain.KindService {
		return &domain.Service{}
	}
	return &domain.User{}
}

// SetRefreshTokenHash stores (or clears, when hash is nil) the single active
// refresh-token digest of a principal. Returns ErrNotFound if no row matched.
func SetRefreshTokenHash(ctx context.Context, db *gorm.DB, kind domain.PrincipalKind, id string, hash *string) error {
	res := db.WithContext(ctx).
		Model(principalModel(kind)).
		Where("id = ?", id).
		Updates(map[string]any{"refresh_token_hash": hash, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SwapRefreshTokenHash replaces the stored digest only if it still equals
// expected. It returns ErrNotFound when the compare fails, so two concurrent
// refreshes of the same token cannot both rotate.
func SwapRefreshTokenHash(ctx context.Context, db *gorm.DB, kind domain.PrincipalKind, id, expected, next string) error {
	res := db.WithContext(ctx).
		Model(principalModel(kind)).
		Where("id = ? AND refresh_token_hash = ?", id, expected).
		Updates(map[string]any{"refresh_token_hash": next, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearRefreshTokenHash removes the stored digest only if it still equals
// expected. It returns ErrNotFound when the compare fails.
func ClearRefreshTokenHash(ctx context.Context, db *gorm.DB, kind domain.PrincipalKind, id, expected string) error {
	res := db.WithContext(ctx).
		Model(principalModel(kind)).
		Where("id = ? AND refresh_token_hash = ?", id, expected).
		Updates(map[string]any{"refresh_token_hash": nil, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePasswordHash replaces a principal's password hash and clears its
// refresh digest.
func UpdatePasswordHash(ctx context.Context, db *gorm.DB, kind domain.PrincipalKind, id, passwordHash string) error {
	res := db.WithContext(ctx).
		Model(principalModel(kind)).
		Where("id = ?", id).
		Updates(map[string]any{
			"password_hash":      passwordHash,
			"refresh_token_hash": nil,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ServiceProfile carries the optional fields of a profile update; nil fields
// are left unchanged.
type ServiceProfile struct {
	Name        *string
	Description *string
	Category    *string
	Website     *string
	LogoURL     *string
}

// UpdateServiceProfile applies the non-nil fields of p to the service row.
func UpdateServiceProfile(ctx context.Context, db *gorm.DB, id string, p ServiceProfile) error {
	cols := map[string]any{"updated_at": time.Now().UTC()}
	set := func(col string, v *string) {
		if v != nil {
			cols[col] = *v
		}
	}
	set("name", p.Name)
	set("description", p.Description)
	set("category", p.Category)
	set("website", p.Website)
	set("logo_url", p.LogoURL)

	res := db.WithContext(ctx).Model(&domain.Service{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ServiceFilter narrows ListServices.
type ServiceFilter struct {
	Search   string
	Category string
}

func servicesQuery(ctx context.Context, db *gorm.DB, f ServiceFilter) *gorm.DB {
	q := db.WithContext(ctx).Model(&domain.Service{})
	if s := strings.TrimSpace(f.Search); s != "" {
		pat := likePattern(s)
		q = q.Where(`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`, pat, pat)
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		q = q.Where("category = ?", c)
	}
	return q
}

// CountServices returns the number of services matching f.
func CountServices(ctx context.Context, db *gorm.DB, f ServiceFilter) (int64, error) {
	var total int64
	err := servicesQuery(ctx, db, f).Count(&total).Error
	return total, err
}

// ListServicesPage returns a page of services matching f, most upvoted first.
func ListServicesPage(ctx context.Context, db *gorm.DB, f ServiceFilter, offset, limit int) ([]domain.Service, error) {
	var out []domain.Service
	err := servicesQuery(ctx, db, f).
		Order("upvotes DESC").
		Order("created_at DESC").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// likePattern lower-cases s, escapes LIKE wildcards, and wraps it in %...%.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}
