package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/service-flow-backend/internal/repo"
)

// PrincipalResolver turns an access token into the authenticated Principal.
//
// Resolution steps:
//  1. empty token                         -> ErrNoToken
//  2. bad signature or expired            -> ErrInvalidToken
//  3. verified but no subject or kind     -> ErrMalformedToken
//  4. one lookup in the table for kind    -> Principal, or ErrNoPrincipal
type PrincipalResolver struct {
	DB   *gorm.DB
	Auth *AuthService
}

// NewPrincipalResolver wires a resolver to the token service and store.
func NewPrincipalResolver(db *gorm.DB, auth *AuthService) *PrincipalResolver {
	return &PrincipalResolver{DB: db, Auth: auth}
}

// Resolve verifies token and loads its principal.
func (r *PrincipalResolver) Resolve(ctx context.Context, token string) (*Principal, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNoToken
	}
	claims, err := r.Auth.ParseAccessToken(token)
	if err != nil {
		return nil, err
	}
	p, err := LoadPrincipal(ctx, r.DB, claims.Kind, claims.Subject)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrNoPrincipal
		}
		return nil, err
	}
	return p, nil
}
