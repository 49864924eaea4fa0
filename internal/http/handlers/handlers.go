// Package handlers – wiring
//
// Handlers are transport-thin: they bind and validate input, read the
// authenticated principal from the middleware, call one service method and
// translate the outcome into the response envelope. They depend on the
// service contracts below, never on the concrete services.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/http/middleware"
	"github.com/tbourn/service-flow-backend/internal/services"
	"github.com/tbourn/service-flow-backend/internal/utils"
)

// AuthService covers registration, sessions and credentials.
type AuthService interface {
	Register(ctx context.Context, kind domain.PrincipalKind, name, email, password string) (*services.Principal, *services.TokenPair, error)
	Login(ctx context.Context, kind domain.PrincipalKind, email, password string) (*services.Principal, *services.TokenPair, error)
	Refresh(ctx context.Context, token string) (*services.Principal, *services.TokenPair, error)
	LogoutRefreshToken(ctx context.Context, token string) error
	Logout(ctx context.Context, kind domain.PrincipalKind, id string) error
	ChangePassword(ctx context.Context, kind domain.PrincipalKind, id, current, next string) error
}

// TargetService covers feedback, issues and bugs.
type TargetService interface {
	Create(ctx context.Context, in services.NewTarget) (*domain.Target, bool, error)
	Get(ctx context.Context, id string, kind domain.TargetKind) (*domain.Target, error)
	Update(ctx context.Context, userID, id string, kind domain.TargetKind, title, description *string) (*domain.Target, error)
	Delete(ctx context.Context, userID, id string, kind domain.TargetKind) error
	UpdateStatus(ctx context.Context, serviceID, id string, kind domain.TargetKind, status domain.TargetStatus) (*domain.Target, error)
	List(ctx context.Context, q services.TargetQuery) ([]domain.Target, int64, services.TargetQuery, error)
	Stats(ctx context.Context, q services.TargetQuery) (int64, *time.Time, error)
	Similar(ctx context.Context, serviceID string, kind domain.TargetKind, query string, k int) ([]services.SimilarTarget, error)
}

// VoteService covers the target vote ledger and service upvotes.
type VoteService interface {
	CastVote(ctx context.Context, voterID, targetID string, kind domain.TargetKind, dir domain.VoteDirection) (*services.VoteResult, error)
	GetVote(ctx context.Context, voterID, targetID string, kind domain.TargetKind) (*domain.VoteDirection, error)
	UpvoteService(ctx context.Context, voterID, serviceID string) (int, error)
	RemoveServiceUpvote(ctx context.Context, voterID, serviceID string) (int, error)
	HasUpvotedService(ctx context.Context, voterID, serviceID string) (bool, error)
}

// CommentService covers comments, replies and likes.
type CommentService interface {
	AddComment(ctx context.Context, userID, targetID string, kind domain.TargetKind, message string) (*domain.Comment, error)
	Reply(ctx context.Context, userID, commentID, message string) (*domain.Comment, error)
	UpdateComment(ctx context.Context, userID, commentID, message string) (*domain.Comment, error)
	DeleteComment(ctx context.Context, userID, commentID string) error
	ListComments(ctx context.Context, viewerID, targetID string, kind domain.TargetKind, page, limit int) ([]domain.Comment, int64, error)
	ToggleLike(ctx context.Context, userID, id string, t domain.LikeTarget) (*services.LikeResult, error)
}

// ProfileService covers the service directory and profiles.
type ProfileService interface {
	Get(ctx context.Context, id string) (*domain.Service, error)
	UpdateProfile(ctx context.Context, requesterID, serviceID string, u services.ProfileUpdate) (*domain.Service, error)
	List(ctx context.Context, search, category string, page, limit int) ([]domain.Service, int64, error)
}

// ReportService covers per-service dashboards.
type ReportService interface {
	Summary(ctx context.Context, serviceID string) (*services.ServiceSummary, error)
	Activity(ctx context.Context, serviceID string, days int, bucket string) ([]services.ActivityPoint, error)
}

// Services groups the dependencies of Handlers.
type Services struct {
	Auth     AuthService
	Targets  TargetService
	Votes    VoteService
	Comments CommentService
	Profiles ProfileService
	Reports  ReportService
}

// CookieOptions controls the token cookies.
type CookieOptions struct {
	Secure bool
	Domain string
}

// Handlers groups every endpoint of the API.
type Handlers struct {
	auth     AuthService
	targets  TargetService
	votes    VoteService
	comments CommentService
	profiles ProfileService
	reports  ReportService
	cookies  CookieOptions
}

// New binds the handlers to their services.
func New(s Services, cookies CookieOptions) *Handlers {
	return &Handlers{
		auth:     s.Auth,
		targets:  s.Targets,
		votes:    s.Votes,
		comments: s.Comments,
		profiles: s.Profiles,
		reports:  s.Reports,
		cookies:  cookies,
	}
}

// principal returns the authenticated principal. Routes that need one are
// guarded, so a miss here is a wiring bug and answers 401.
func principal(c *gin.Context) (*services.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, services.ErrNoToken.Error())
	}
	return p, ok
}

// viewerID is the id of an optional User viewer, or "".
func viewerID(c *gin.Context) string {
	if p, ok := middleware.PrincipalFrom(c); ok && p.IsUser() {
		return p.ID
	}
	return ""
}

// bindJSON decodes the body into dst, answering 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return false
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// pageParams reads and clamps page and limit.
func pageParams(c *gin.Context) (page, limit int) {
	return utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("limit"), services.DefaultPageSize),
		services.DefaultPageSize, services.MaxPageSize,
	)
}

func trimmedQuery(c *gin.Context, key string) string { return strings.TrimSpace(c.Query(key)) }
