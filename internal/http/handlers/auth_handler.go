// Auth HTTP handlers.
//
// This file exposes registration and login for both principal kinds plus the
// session endpoints shared by them:
//   - POST  /users/register, /users/login
//   - POST  /services/register, /services/login
//   - POST  /auth/refresh
//   - POST  /auth/logout
//   - GET   /auth/me
//   - PATCH /auth/password
//
// Successful logins set the accessToken and refreshToken cookies (httpOnly,
// SameSite=Strict) and also return the pair in the body for non-browser
// clients.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/http/middleware"
	"github.com/tbourn/service-flow-backend/internal/services"
)

// RegisterRequest is the payload of the register endpoints.
type RegisterRequest struct {
	Name     string `json:"name" example:"Ada Lovelace"`
	Email    string `json:"email" example:"ada@example.com"`
	Password string `json:"password" example:"correct horse battery"`
}

// LoginRequest is the payload of the login endpoints.
type LoginRequest struct {
	Email    string `json:"email" example:"ada@example.com"`
	Password string `json:"password" example:"correct horse battery"`
}

// RefreshRequest optionally carries the refresh token when no cookie is sent.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ChangePasswordRequest is the payload of PATCH /auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// AuthResponse is the data of a successful register, login or refresh.
type AuthResponse struct {
	Principal *services.Principal `json:"principal"`
	Tokens    *services.TokenPair `json:"tokens"`
}

// MeResponse is the data of GET /auth/me. Profile is set for services.
type MeResponse struct {
	*services.Principal
	Profile *domain.Service `json:"profile,omitempty"`
}

// RegisterUser godoc
// @ID          registerUser
// @Summary     Register a user
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest true "Account"
// @Success     201   {object}  handlers.Envelope{data=handlers.AuthResponse}
// @Failure     400   {object}  handlers.ErrorResponse "Validation failed"
// @Failure     409   {object}  handlers.ErrorResponse "Email already registered"
// @Router      /users/register [post]
func (h *Handlers) RegisterUser(c *gin.Context) { h.register(c, domain.KindUser) }

// RegisterService godoc
// @ID          registerService
// @Summary     Register a service
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest true "Account"
// @Success     201   {object}  handlers.Envelope{data=handlers.AuthResponse}
// @Failure     400   {object}  handlers.ErrorResponse "Validation failed"
// @Failure     409   {object}  handlers.ErrorResponse "Email already registered"
// @Router      /services/register [post]
func (h *Handlers) RegisterService(c *gin.Context) { h.register(c, domain.KindService) }

// LoginUser godoc
// @ID          loginUser
// @Summary     Log a user in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest true "Credentials"
// @Success     200   {object}  handlers.Envelope{data=handlers.AuthResponse}
// @Failure     401   {object}  handlers.ErrorResponse "Invalid email or password"
// @Router      /users/login [post]
func (h *Handlers) LoginUser(c *gin.Context) { h.login(c, domain.KindUser) }

// LoginService godoc
// @ID          loginService
// @Summary     Log a service in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest true "Credentials"
// @Success     200   {object}  handlers.Envelope{data=handlers.AuthResponse}
// @Failure     401   {object}  handlers.ErrorResponse "Invalid email or password"
// @Router      /services/login [post]
func (h *Handlers) LoginService(c *gin.Context) { h.login(c, domain.KindService) }

func (h *Handlers) register(c *gin.Context, kind domain.PrincipalKind) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	p, pair, err := h.auth.Register(c.Request.Context(), kind, req.Name, req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	h.setTokenCookies(c, pair)
	ok(c, http.StatusCreated, AuthResponse{Principal: p, Tokens: pair}, "registered")
}

func (h *Handlers) login(c *gin.Context, kind domain.PrincipalKind) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	p, pair, err := h.auth.Login(c.Request.Context(), kind, req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	h.setTokenCookies(c, pair)
	ok(c, http.StatusOK, AuthResponse{Principal: p, Tokens: pair}, "logged in")
}

// Refresh godoc
// @ID          refreshTokens
// @Summary     Rotate the token pair
// @Description Reads the refresh token from the refreshToken cookie, else from the body.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RefreshRequest false "Refresh token"
// @Success     200   {object}  handlers.Envelope{data=handlers.AuthResponse}
// @Failure     401   {object}  handlers.ErrorResponse "Invalid or expired refresh token"
// @Router      /auth/refresh [post]
func (h *Handlers) Refresh(c *gin.Context) {
	token := refreshToken(c)
	if token == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, services.ErrInvalidRefreshToken.Error())
		return
	}
	p, pair, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		h.clearTokenCookies(c)
		failErr(c, err)
		return
	}
	h.setTokenCookies(c, pair)
	ok(c, http.StatusOK, AuthResponse{Principal: p, Tokens: pair}, "refreshed")
}

// Logout godoc
// @ID          logout
// @Summary     End the session
// @Description Revokes the stored refresh token of the caller and clears both cookies.
// @Tags        Auth
// @Produce     json
// @Success     200   {object}  handlers.Envelope
// @Failure     401   {object}  handlers.ErrorResponse "No token"
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	p, found := middleware.PrincipalFrom(c)
	tok := refreshToken(c)
	h.clearTokenCookies(c)

	var err error
	switch {
	case found:
		err = h.auth.Logout(c.Request.Context(), p.Kind, p.ID)
	case tok != "":
		err = h.auth.LogoutRefreshToken(c.Request.Context(), tok)
	default:
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, services.ErrNoToken.Error())
		return
	}
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, nil, "logged out")
}

// Me godoc
// @ID          me
// @Summary     The authenticated principal
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200   {object}  handlers.Envelope{data=handlers.MeResponse}
// @Failure     401   {object}  handlers.ErrorResponse "No token"
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	res := MeResponse{Principal: p}
	if p.IsService() {
		res.Profile = p.Service
	}
	ok(c, http.StatusOK, res, "")
}

// ChangePassword godoc
// @ID          changePassword
// @Summary     Change the caller's password
// @Description Requires the current password. Ends every session, so the client must log in again.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.ChangePasswordRequest true "Passwords"
// @Success     200   {object}  handlers.Envelope
// @Failure     400   {object}  handlers.ErrorResponse "Weak password"
// @Failure     401   {object}  handlers.ErrorResponse "Wrong current password"
// @Router      /auth/password [patch]
func (h *Handlers) ChangePassword(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	var req ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.auth.ChangePassword(c.Request.Context(), p.Kind, p.ID, req.CurrentPassword, req.NewPassword); err != nil {
		failErr(c, err)
		return
	}
	h.clearTokenCookies(c)
	ok(c, http.StatusOK, nil, "password changed")
}

// refreshToken reads the refresh cookie, else the JSON body.
func refreshToken(c *gin.Context) string {
	if v, err := c.Cookie(middleware.CookieRefreshToken); err == nil && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if c.Request.ContentLength == 0 {
		return ""
	}
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return ""
	}
	return strings.TrimSpace(req.RefreshToken)
}

func (h *Handlers) setTokenCookies(c *gin.Context, pair *services.TokenPair) {
	now := time.Now()
	h.setCookie(c, middleware.CookieAccessToken, pair.AccessToken, pair.AccessExpiresAt.Sub(now))
	h.setCookie(c, middleware.CookieRefreshToken, pair.RefreshToken, pair.RefreshExpiresAt.Sub(now))
}

func (h *Handlers) clearTokenCookies(c *gin.Context) {
	h.setCookie(c, middleware.CookieAccessToken, "", -1)
	h.setCookie(c, middleware.CookieRefreshToken, "", -1)
}

// setCookie writes a host-wide httpOnly cookie; a negative ttl deletes it.
func (h *Handlers) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	maxAge := -1
	if ttl > 0 {
		maxAge = int(ttl / time.Second)
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   maxAge,
		Secure:   h.cookies.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
