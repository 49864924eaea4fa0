// Package services – principals
//
// A Principal is the authenticated actor of a request: exactly one of a User
// or a Service, tagged with its kind. Tokens carry the kind, so loading a
// principal is one indexed lookup in the table for that kind; an id is never
// looked up in the other table.
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/repo"
)

// Principal is a tagged union over the two authenticatable entity types.
// Exactly one of User or Service is non-nil, matching Kind.
type Principal struct {
	ID      string               `json:"id"`
	Kind    domain.PrincipalKind `json:"kind"`
	Name    string               `json:"name"`
	Email   string               `json:"email"`
	User    *domain.User         `json:"-"`
	Service *domain.Service      `json:"-"`
}

// IsUser reports whether the principal is a User.
func (p *Principal) IsUser() bool { return p != nil && p.Kind == domain.KindUser }

// IsService reports whether the principal is a Service.
func (p *Principal) IsService() bool { return p != nil && p.Kind == domain.KindService }

// UserPrincipal wraps a user row.
func UserPrincipal(u *domain.User) *Principal {
	return &Principal{ID: u.ID, Kind: domain.KindUser, Name: u.Name, Email: u.Email, User: u}
}

// ServicePrincipal wraps a service row.
func ServicePrincipal(s *domain.Service) *Principal {
	return &Principal{ID: s.ID, Kind: domain.KindService, Name: s.Name, Email: s.Email, Service: s}
}

// passwordHash returns the stored bcrypt hash of the principal.
func (p *Principal) passwordHash() string {
	if p.User != nil {
		return p.User.PasswordHash
	}
	if p.Service != nil {
		return p.Service.PasswordHash
	}
	return ""
}

// refreshHash returns the stored refresh-token digest, or "" if none.
func (p *Principal) refreshHash() string {
	var h *string
	if p.User != nil {
		h = p.User.RefreshTokenHash
	} else if p.Service != nil {
		h = p.Service.RefreshTokenHash
	}
	if h == nil {
		return ""
	}
	return *h
}

// LoadPrincipal fetches the principal of the given kind by id. Missing rows
// surface as repo.ErrNotFound.
func LoadPrincipal(ctx context.Context, db *gorm.DB, kind domain.PrincipalKind, id string) (*Principal, error) {
	switch kind {
	case domain.KindUser:
		u, err := repo.GetUser(ctx, db, id)
		if err != nil {
			return nil, err
		}
		return UserPrincipal(u), nil
	case domain.KindService:
		s, err := repo.GetService(ctx, db, id)
		if err != nil {
			return nil, err
		}
		return ServicePrincipal(s), nil
	default:
		return nil, ErrInvalidKind
	}
}

// loadPrincipalByEmail fetches the principal of the given kind by email.
func loadPrincipalByEmail(ctx context.Context, db *gorm.DB, kind domain.PrincipalKind, email string) (*Principal, error) {
	switch kind {
	case domain.KindUser:
		u, err := repo.GetUserByEmail(ctx, db, email)
		if err != nil {
			return nil, err
		}
		return UserPrincipal(u), nil
	case domain.KindService:
		s, err := repo.GetServiceByEmail(ctx, db, email)
		if err != nil {
			return nil, err
		}
		return ServicePrincipal(s), nil
	default:
		return nil, ErrInvalidKind
	}
}
