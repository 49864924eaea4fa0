// Package services – AuthService
//
// This file implements credentials and tokens for both principal kinds:
// bcrypt password hashing, HS256 access and refresh JWTs signed with distinct
// secrets, and single-active-refresh-token rotation. Only the SHA-256 digest
// of the current refresh token is stored on the principal row; logging in
// again replaces it, logout clears it.
package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/service-flow-backend/internal/config"
	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/repo"
)

const (
	minPasswordRunes = 8
	maxPasswordBytes = 72 // bcrypt input limit
	maxNameRunes     = 100
	maxEmailLen      = 255
)

// TokenClaims are the JWT claims of both token types. Kind ("knd") tells the
// resolver which principal table the subject lives in.
type TokenClaims struct {
	Kind domain.PrincipalKind `json:"knd,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful login, registration or refresh.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// AuthService implements registration, login, refresh rotation, logout and
// password changes for users and services.
type AuthService struct {
	DB *gorm.DB

	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	bcryptCost    int

	// now is the clock used for token timestamps; tests may override it.
	now func() time.Time
}

// NewAuthService builds an AuthService from validated auth configuration.
func NewAuthService(db *gorm.DB, cfg config.AuthConfig) *AuthService {
	cost := cfg.BcryptCost
	if cost < bcrypt.DefaultCost {
		cost = bcrypt.DefaultCost
	}
	return &AuthService{
		DB:            db,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		bcryptCost:    cost,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// AccessTTL returns the configured access-token lifetime.
func (s *AuthService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (s *AuthService) RefreshTTL() time.Duration { return s.refreshTTL }

// HashPassword returns the bcrypt hash of plaintext.
func (s *AuthService) HashPassword(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrWeakPassword
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plaintext matches hash.
func VerifyPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// IssueAccessToken signs a short-lived access token for the principal.
func (s *AuthService) IssueAccessToken(id string, kind domain.PrincipalKind) (string, time.Time, error) {
	return s.sign(id, kind, s.accessSecret, s.accessTTL)
}

// IssueRefreshToken signs a refresh token and stores its digest on the
// principal, replacing any previous one.
func (s *AuthService) IssueRefreshToken(ctx context.Context, id string, kind domain.PrincipalKind) (string, time.Time, error) {
	tok, exp, err := s.sign(id, kind, s.refreshSecret, s.refreshTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	digest := hashRefreshToken(tok)
	if err := repo.SetRefreshTokenHash(ctx, s.DB, kind, id, &digest); err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// Register creates a principal of the given kind and signs it in.
func (s *AuthService) Register(ctx context.Context, kind domain.PrincipalKind, name, email, password string) (p *Principal, pair *TokenPair, err error) {
	defer func() { authEvents.WithLabelValues(string(kind), "register", outcome(err)).Inc() }()

	if !kind.Valid() {
		return nil, nil, ErrInvalidKind
	}
	name = normalizeSpace(name)
	if name == "" {
		return nil, nil, ErrNameRequired
	}
	name = clipRunes(name, maxNameRunes)
	email, err = normalizeEmail(email)
	if err != nil {
		return nil, nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, nil, err
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, nil, err
	}

	switch kind {
	case domain.KindUser:
		u, cerr := repo.CreateUser(ctx, s.DB, name, email, hash)
		if cerr != nil {
			err = cerr
			break
		}
		p = UserPrincipal(u)
	case domain.KindService:
		sv, cerr := repo.CreateService(ctx, s.DB, name, email, hash)
		if cerr != nil {
			err = cerr
			break
		}
		p = ServicePrincipal(sv)
	}
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, err
	}

	pair, err = s.issuePair(ctx, p.ID, kind)
	if err != nil {
		return nil, nil, err
	}
	return p, pair, nil
}

// Login verifies credentials for the given kind and issues a fresh token pair.
// Any previously issued refresh token stops working.
func (s *AuthService) Login(ctx context.Context, kind domain.PrincipalKind, email, password string) (p *Principal, pair *TokenPair, err error) {
	defer func() { authEvents.WithLabelValues(string(kind), "login", outcome(err)).Inc() }()

	if !kind.Valid() {
		return nil, nil, ErrInvalidKind
	}
	email, err = normalizeEmail(email)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	p, err = loadPrincipalByEmail(ctx, s.DB, kind, email)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !VerifyPassword(password, p.passwordHash()) {
		return nil, nil, ErrInvalidCredentials
	}
	pair, err = s.issuePair(ctx, p.ID, kind)
	if err != nil {
		return nil, nil, err
	}
	return p, pair, nil
}

// Refresh verifies a refresh token, checks it against the principal's single
// stored digest, and rotates it. A token that was already rotated out, or
// cleared by logout, fails with ErrInvalidRefreshToken.
func (s *AuthService) Refresh(ctx context.Context, token string) (p *Principal, pair *TokenPair, err error) {
	kind := "unknown"
	defer func() { authEvents.WithLabelValues(kind, "refresh", outcome(err)).Inc() }()

	claims, err := s.parse(token, s.refreshSecret)
	if err != nil || claims.Subject == "" || !claims.Kind.Valid() {
		return nil, nil, ErrInvalidRefreshToken
	}
	kind = string(claims.Kind)

	p, err = LoadPrincipal(ctx, s.DB, claims.Kind, claims.Subject)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, nil, ErrInvalidRefreshToken
		}
		return nil, nil, err
	}
	stored := p.refreshHash()
	incoming := hashRefreshToken(token)
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(incoming)) != 1 {
		return nil, nil, ErrInvalidRefreshToken
	}

	access, accessExp, err := s.IssueAccessToken(p.ID, p.Kind)
	if err != nil {
		return nil, nil, err
	}
	refresh, refreshExp, err := s.sign(p.ID, p.Kind, s.refreshSecret, s.refreshTTL)
	if err != nil {
		return nil, nil, err
	}
	// Compare-and-swap so a concurrent refresh of the same token loses.
	if err := repo.SwapRefreshTokenHash(ctx, s.DB, p.Kind, p.ID, stored, hashRefreshToken(refresh)); err != nil {
		if repo.IsNotFound(err) {
			return nil, nil, ErrInvalidRefreshToken
		}
		return nil, nil, err
	}
	return p, &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// LogoutRefreshToken ends the session that token belongs to. Only the
// currently stored refresh token is honored; a rotated-out or revoked token
// gets ErrInvalidRefreshToken and changes nothing.
func (s *AuthService) LogoutRefreshToken(ctx context.Context, token string) (err error) {
	kind := "unknown"
	defer func() { authEvents.WithLabelValues(kind, "logout", outcome(err)).Inc() }()

	claims, err := s.parse(token, s.refreshSecret)
	if err != nil || claims.Subject == "" || !claims.Kind.Valid() {
		return ErrInvalidRefreshToken
	}
	kind = string(claims.Kind)
	if err := repo.ClearRefreshTokenHash(ctx, s.DB, claims.Kind, claims.Subject, hashRefreshToken(token)); err != nil {
		if repo.IsNotFound(err) {
			return ErrInvalidRefreshToken
		}
		return err
	}
	return nil
}

// Logout clears the principal's stored refresh digest. Access tokens already
// issued stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, kind domain.PrincipalKind, id string) (err error) {
	defer func() { authEvents.WithLabelValues(string(kind), "logout", outcome(err)).Inc() }()

	if err := repo.SetRefreshTokenHash(ctx, s.DB, kind, id, nil); err != nil {
		if repo.IsNotFound(err) {
			return ErrNoPrincipal
		}
		return err
	}
	return nil
}

// ChangePassword replaces the password after verifying the current one and
// ends the principal's refresh session.
func (s *AuthService) ChangePassword(ctx context.Context, kind domain.PrincipalKind, id, current, next string) (err error) {
	defer func() { authEvents.WithLabelValues(string(kind), "password", outcome(err)).Inc() }()

	p, err := LoadPrincipal(ctx, s.DB, kind, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return ErrNoPrincipal
		}
		return err
	}
	if !VerifyPassword(current, p.passwordHash()) {
		return ErrInvalidCredentials
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	hash, err := s.HashPassword(next)
	if err != nil {
		return err
	}
	return repo.UpdatePasswordHash(ctx, s.DB, kind, id, hash)
}

// ParseAccessToken verifies an access token's signature and expiry.
// It returns ErrInvalidToken when verification fails and ErrMalformedToken
// when the verified payload lacks a subject or a known kind.
func (s *AuthService) ParseAccessToken(token string) (*TokenClaims, error) {
	claims, err := s.parse(token, s.accessSecret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || !claims.Kind.Valid() {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

func (s *AuthService) issuePair(ctx context.Context, id string, kind domain.PrincipalKind) (*TokenPair, error) {
	access, accessExp, err := s.IssueAccessToken(id, kind)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.IssueRefreshToken(ctx, id, kind)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *AuthService) sign(id string, kind domain.PrincipalKind, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(ttl)
	claims := TokenClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *AuthService) parse(token string, secret []byte) (*TokenClaims, error) {
	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// normalizeEmail trims and lower-cases an address and checks it is a bare
// addr-spec ("a@b.c", no display name).
func normalizeEmail(email string) (string, error) {
	email = cases.Lower(language.Und).String(strings.TrimSpace(email))
	if email == "" || len(email) > maxEmailLen {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func validatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < minPasswordRunes || len(pw) > maxPasswordBytes || strings.TrimSpace(pw) == "" {
		return ErrWeakPassword
	}
	return nil
}
