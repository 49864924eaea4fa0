// Package middleware – authentication
//
// Authenticate runs globally: when the request carries an access token (the
// accessToken cookie, else an Authorization: Bearer header) it resolves the
// token into a services.Principal and stores it in the context. It never
// rejects a request by itself, so public routes stay reachable with a stale
// cookie. RequireAuth, RequireUser and RequireService are installed per route
// group and reject with the resolver's message:
//
//	401 "no token" | "invalid or expired token" | "malformed token" | "no matching principal"
//	403 when the principal is of the wrong kind
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/services"
)

// Cookie names of the token pair.
const (
	CookieAccessToken  = "accessToken"
	CookieRefreshToken = "refreshToken"
)

const (
	ctxKeyPrincipal = "principal"
	ctxKeyAuthErr   = "auth.err"
	// ctxKeyUserID holds the principal id for the rate limiter and logs.
	ctxKeyUserID = "userID"
)

// PrincipalResolver verifies an access token and loads its principal.
type PrincipalResolver interface {
	Resolve(ctx context.Context, token string) (*services.Principal, error)
}

// AccessToken extracts the access token of the request, preferring the cookie.
func AccessToken(c *gin.Context) string {
	if v, err := c.Cookie(CookieAccessToken); err == nil {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// Authenticate resolves the request's principal, if any.
func Authenticate(res PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := AccessToken(c)
		if tok == "" {
			c.Set(ctxKeyAuthErr, services.ErrNoToken)
			c.Next()
			return
		}
		p, err := res.Resolve(c.Request.Context(), tok)
		if err != nil {
			c.Set(ctxKeyAuthErr, err)
			c.Next()
			return
		}
		SetPrincipal(c, p)
		c.Next()
	}
}

// SetPrincipal records p as the authenticated principal of the request and
// tags the request-scoped logger with it.
func SetPrincipal(c *gin.Context, p *services.Principal) {
	c.Set(ctxKeyPrincipal, p)
	c.Set(ctxKeyUserID, p.ID)
	setLogger(c, LoggerFrom(c).With().
		Str("principal_id", p.ID).
		Str("principal_kind", string(p.Kind)).
		Logger())
}

// PrincipalFrom returns the authenticated principal of the request.
func PrincipalFrom(c *gin.Context) (*services.Principal, bool) {
	v, ok := c.Get(ctxKeyPrincipal)
	if !ok {
		return nil, false
	}
	p, ok := v.(*services.Principal)
	return p, ok && p != nil
}

// RequireAuth rejects requests without a resolved principal.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := PrincipalFrom(c); !ok {
			rejectUnauthenticated(c)
			return
		}
		c.Next()
	}
}

// RequireUser admits only User principals.
func RequireUser() gin.HandlerFunc {
	return requireKind(domain.KindUser, "only users can perform this action")
}

// RequireService admits only Service principals.
func RequireService() gin.HandlerFunc {
	return requireKind(domain.KindService, "only services can perform this action")
}

func requireKind(kind domain.PrincipalKind, msg string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			rejectUnauthenticated(c)
			return
		}
		if p.Kind != kind {
			authRejections.WithLabelValues("wrong_kind").Inc()
			abortJSON(c, http.StatusForbidden, codeForbidden, msg)
			return
		}
		c.Next()
	}
}

func rejectUnauthenticated(c *gin.Context) {
	err := services.ErrNoToken
	if v, ok := c.Get(ctxKeyAuthErr); ok {
		if e, ok := v.(error); ok && e != nil {
			err = e
		}
	}
	reason := rejectionReason(err)
	if reason == "" {
		LoggerFrom(c).Error().Err(err).Msg("principal resolution failed")
		abortJSON(c, http.StatusInternalServerError, codeInternal, "internal server error")
		return
	}
	authRejections.WithLabelValues(reason).Inc()
	abortJSON(c, http.StatusUnauthorized, codeUnauthorized, err.Error())
}

// rejectionReason maps resolver errors to a metric label; "" means the
// failure was not the client's.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, services.ErrNoToken):
		return "no_token"
	case errors.Is(err, services.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, services.ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, services.ErrNoPrincipal):
		return "no_principal"
	}
	return ""
}
