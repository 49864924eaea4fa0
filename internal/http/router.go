// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// authentication, idempotency, rate limiting, CORS and security headers.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Cookie-based sessions only with an explicit CORS allow-list
package httpapi

import (
	"context"
	"net/http"
	"path"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/service-flow-backend/docs" // swagger spec registration
	"github.com/tbourn/service-flow-backend/internal/config"
	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/http/handlers"
	"github.com/tbourn/service-flow-backend/internal/http/middleware"
	"github.com/tbourn/service-flow-backend/internal/repo"
	"github.com/tbourn/service-flow-backend/internal/services"
)

// targetRepoShim adapts the repository free functions to the
// services.TargetRepo interface expected by the TargetService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type targetRepoShim struct{}

// CreateTarget proxies repo.CreateTarget.
func (targetRepoShim) CreateTarget(ctx context.Context, db *gorm.DB, kind domain.TargetKind, serviceID, openedBy, title, description string) (*domain.Target, error) {
	return repo.CreateTarget(ctx, db, kind, serviceID, openedBy, title, description)
}

// GetTarget proxies repo.GetTarget.
func (targetRepoShim) GetTarget(ctx context.Context, db *gorm.DB, id string, kind domain.TargetKind) (*domain.Target, error) {
	return repo.GetTarget(ctx, db, id, kind)
}

// CountTargets proxies repo.CountTargets (pagination support).
func (targetRepoShim) CountTargets(ctx context.Context, db *gorm.DB, f repo.TargetFilter) (int64, error) {
	return repo.CountTargets(ctx, db, f)
}

// ListTargetsPage proxies repo.ListTargetsPage (pagination support).
func (targetRepoShim) ListTargetsPage(ctx context.Context, db *gorm.DB, f repo.TargetFilter, offset, limit int) ([]domain.Target, error) {
	return repo.ListTargetsPage(ctx, db, f, offset, limit)
}

// UpdateTargetContent proxies repo.UpdateTargetContent.
func (targetRepoShim) UpdateTargetContent(ctx context.Context, db *gorm.DB, id, openedBy string, title, description *string) error {
	return repo.UpdateTargetContent(ctx, db, id, openedBy, title, description)
}

// UpdateTargetStatus proxies repo.UpdateTargetStatus.
func (targetRepoShim) UpdateTargetStatus(ctx context.Context, db *gorm.DB, id, serviceID string, status domain.TargetStatus) error {
	return repo.UpdateTargetStatus(ctx, db, id, serviceID, status)
}

// ListTargetTexts proxies repo.ListTargetTexts (similarity search).
func (targetRepoShim) ListTargetTexts(ctx context.Context, db *gorm.DB, serviceID string, kind domain.TargetKind) ([]domain.Target, error) {
	return repo.ListTargetTexts(ctx, db, serviceID, kind)
}

// GetTargetsByIDs proxies repo.GetTargetsByIDs.
func (targetRepoShim) GetTargetsByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Target, error) {
	return repo.GetTargetsByIDs(ctx, db, ids)
}

// collections maps the plural path segment of each target collection to its kind.
var collections = map[string]domain.TargetKind{
	"feedbacks": domain.TargetFeedback,
	"issues":    domain.TargetIssue,
	"bugs":      domain.TargetBug,
}

// collectionOrder fixes the registration order of collections.
var collectionOrder = []string{"feedbacks", "issues", "bugs"}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), authentication,
// idempotency and rate limiting, CORS and security headers, health and
// metrics endpoints, and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Authenticate: resolve the principal, never reject
//  8. Idempotency validator (needs the principal; before rate limiter to allow bypass on replay)
//  9. Rate limiter (per principal/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key", // project-specific sensitive header example
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.EnableGzip {
		r.Use(gzip.Gzip(gzip.DefaultCompression))
	}

	// Dependency injection: services ← repo/db
	authSvc := services.NewAuthService(db, cfg.Auth)
	h := handlers.New(handlers.Services{
		Auth:     authSvc,
		Targets:  services.NewTargetService(db, targetRepoShim{}, cfg.SimilarThreshold, cfg.IdempotencyTTL),
		Votes:    services.NewVoteService(db),
		Comments: services.NewCommentService(db),
		Profiles: services.NewProfileService(db),
		Reports:  services.NewReportService(db),
	}, handlers.CookieOptions{Secure: cfg.Auth.CookieSecure, Domain: cfg.Auth.CookieDomain})

	// 7) Principal resolution (guards are per route)
	r.Use(middleware.Authenticate(services.NewPrincipalResolver(db, authSvc)))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Scope:  idempotencyScope,
		},
		func(ctx context.Context, principalID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, principalID, scope, key, now)
			if err != nil {
				if repo.IsNotFound(err) {
					return false, nil
				}
				return false, err
			}
			return rec != nil, nil
		},
	))

	// 9) Token-bucket rate limiter per principal/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByPrincipalOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"
	mountAPI(api, h)
}

// mountAPI registers every endpoint of the versioned API.
func mountAPI(api *gin.RouterGroup, h *handlers.Handlers) {
	user := middleware.RequireUser()
	service := middleware.RequireService()
	authed := middleware.RequireAuth()
	noStore := middleware.NoStore()

	// Accounts
	api.POST("/users/register", noStore, h.RegisterUser)
	api.POST("/users/login", noStore, h.LoginUser)
	api.POST("/services/register", noStore, h.RegisterService)
	api.POST("/services/login", noStore, h.LoginService)

	// Sessions
	auth := api.Group("/auth", noStore)
	{
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
		auth.GET("/me", authed, h.Me)
		auth.PATCH("/password", authed, h.ChangePassword)
	}

	// Service directory
	api.GET("/services", h.ListServices)
	api.GET("/services/:serviceId", h.GetService)
	api.PATCH("/services/:serviceId", service, h.UpdateService)
	api.GET("/services/:serviceId/summary", h.ServiceSummary)
	api.GET("/services/:serviceId/activity", h.ServiceActivity)
	api.POST("/services/:serviceId/upvote", user, h.UpvoteService)
	api.DELETE("/services/:serviceId/upvote", user, h.RemoveServiceUpvote)

	// Targets
	api.GET("/users/me/targets", user, h.ListMyTargets)
	for _, coll := range collectionOrder {
		kind := collections[coll]

		api.POST("/services/:serviceId/"+coll, user, h.CreateTarget(kind))
		api.GET("/services/:serviceId/"+coll, h.ListServiceTargets(kind))
		api.GET("/services/:serviceId/"+coll+"/similar", h.SimilarTargets(kind))

		g := api.Group("/" + coll + "/:targetId")
		g.GET("", h.GetTarget(kind))
		g.PATCH("", user, h.UpdateTarget(kind))
		g.DELETE("", user, h.DeleteTarget(kind))
		g.POST("/upvote", user, h.Vote(kind, domain.Upvote))
		g.POST("/downvote", user, h.Vote(kind, domain.Downvote))
		g.GET("/vote", user, h.GetVote(kind))
		g.GET("/comments", h.ListComments(kind))
		g.POST("/comments", user, h.AddComment(kind))
		if kind.HasStatus() {
			g.PATCH("/status", service, h.UpdateStatus(kind))
		}
	}

	// Comments
	api.PATCH("/comments/:commentId", user, h.UpdateComment)
	api.DELETE("/comments/:commentId", user, h.DeleteComment)
	api.POST("/comments/:commentId/replies", user, h.Reply)
	api.POST("/comments/:commentId/like", user, h.ToggleLike(domain.LikeComment, "commentId"))
	api.POST("/replies/:replyId/like", user, h.ToggleLike(domain.LikeReply, "replyId"))
}

// idempotencyScope names the collection a target-creating POST writes into,
// e.g. "<serviceID>:issue". Other requests have no scope.
func idempotencyScope(c *gin.Context) string {
	if c.Request.Method != http.MethodPost {
		return ""
	}
	serviceID := c.Param("serviceId")
	if serviceID == "" {
		return ""
	}
	kind, ok := collections[path.Base(c.FullPath())]
	if !ok {
		return ""
	}
	return services.IdempotencyScope(serviceID, kind)
}

// corsMiddleware returns the CORS chain. Without an allow-list every origin is
// accepted without credentials; with one, credentials (the token cookies) are
// allowed for the listed origins only.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", middleware.HeaderIdempotencyReplayed}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    exposeHeaders,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	return []gin.HandlerFunc{cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     methods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    exposeHeaders,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
