package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/service-flow-backend/internal/config"
	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/http/middleware"
	"github.com/tbourn/service-flow-backend/internal/repo"
	"github.com/tbourn/service-flow-backend/internal/services"
)

// ---------- test DB + repo shim ----------

func newHandlersDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// testTargetRepo implements services.TargetRepo using the repo package (like router.go).
type testTargetRepo struct{}

func (testTargetRepo) CreateTarget(ctx context.Context, db *gorm.DB, kind domain.TargetKind, serviceID, openedBy, title, description string) (*domain.Target, error) {
	return repo.CreateTarget(ctx, db, kind, serviceID, openedBy, title, description)
}

func (testTargetRepo) GetTarget(ctx context.Context, db *gorm.DB, id string, kind domain.TargetKind) (*domain.Target, error) {
	return repo.GetTarget(ctx, db, id, kind)
}

func (testTargetRepo) CountTargets(ctx context.Context, db *gorm.DB, f repo.TargetFilter) (int64, error) {
	return repo.CountTargets(ctx, db, f)
}

func (testTargetRepo) ListTargetsPage(ctx context.Context, db *gorm.DB, f repo.TargetFilter, offset, limit int) ([]domain.Target, error) {
	return repo.ListTargetsPage(ctx, db, f, offset, limit)
}

func (testTargetRepo) UpdateTargetContent(ctx context.Context, db *gorm.DB, id, openedBy string, title, description *string) error {
	return repo.UpdateTargetContent(ctx, db, id, openedBy, title, description)
}

func (testTargetRepo) UpdateTargetStatus(ctx context.Context, db *gorm.DB, id, serviceID string, status domain.TargetStatus) error {
	return repo.UpdateTargetStatus(ctx, db, id, serviceID, status)
}

func (testTargetRepo) ListTargetTexts(ctx context.Context, db *gorm.DB, serviceID string, kind domain.TargetKind) ([]domain.Target, error) {
	return repo.ListTargetTexts(ctx, db, serviceID, kind)
}

func (testTargetRepo) GetTargetsByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Target, error) {
	return repo.GetTargetsByIDs(ctx, db, ids)
}

// ---------- engine ----------

type testEnv struct {
	db *gorm.DB
	r  *gin.Engine
}

// newEnv wires real services over a private database behind the same
// middleware and guards the router installs.
func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newHandlersDB(t)

	auth := services.NewAuthService(db, config.AuthConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
		BcryptCost:    10,
	})
	h := New(Services{
		Auth:     auth,
		Targets:  services.NewTargetService(db, testTargetRepo{}, 0.2, time.Hour),
		Votes:    services.NewVoteService(db),
		Comments: services.NewCommentService(db),
		Profiles: services.NewProfileService(db),
		Reports:  services.NewReportService(db),
	}, CookieOptions{})

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Authenticate(services.NewPrincipalResolver(db, auth)))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))

	user, svc, authed := middleware.RequireUser(), middleware.RequireService(), middleware.RequireAuth()

	r.POST("/users/register", h.RegisterUser)
	r.POST("/users/login", h.LoginUser)
	r.POST("/services/register", h.RegisterService)
	r.POST("/services/login", h.LoginService)
	r.POST("/auth/refresh", h.Refresh)
	r.POST("/auth/logout", h.Logout)
	r.GET("/auth/me", authed, h.Me)
	r.PATCH("/auth/password", authed, h.ChangePassword)

	r.GET("/services", h.ListServices)
	r.GET("/services/:serviceId", h.GetService)
	r.PATCH("/services/:serviceId", svc, h.UpdateService)
	r.GET("/services/:serviceId/summary", h.ServiceSummary)
	r.GET("/services/:serviceId/activity", h.ServiceActivity)
	r.POST("/services/:serviceId/upvote", user, h.UpvoteService)
	r.DELETE("/services/:serviceId/upvote", user, h.RemoveServiceUpvote)
	r.GET("/users/me/targets", user, h.ListMyTargets)

	for _, k := range []domain.TargetKind{domain.TargetFeedback, domain.TargetIssue, domain.TargetBug} {
		coll := collection(k)
		r.POST("/services/:serviceId/"+coll, user, h.CreateTarget(k))
		r.GET("/services/:serviceId/"+coll, h.ListServiceTargets(k))
		r.GET("/services/:serviceId/"+coll+"/similar", h.SimilarTargets(k))
		r.GET("/"+coll+"/:targetId", h.GetTarget(k))
		r.PATCH("/"+coll+"/:targetId", user, h.UpdateTarget(k))
		r.DELETE("/"+coll+"/:targetId", user, h.DeleteTarget(k))
		r.POST("/"+coll+"/:targetId/upvote", user, h.Vote(k, domain.Upvote))
		r.POST("/"+coll+"/:targetId/downvote", user, h.Vote(k, domain.Downvote))
		r.GET("/"+coll+"/:targetId/vote", user, h.GetVote(k))
		r.GET("/"+coll+"/:targetId/comments", h.ListComments(k))
		r.POST("/"+coll+"/:targetId/comments", user, h.AddComment(k))
		if k.HasStatus() {
			r.PATCH("/"+coll+"/:targetId/status", svc, h.UpdateStatus(k))
		}
	}
	r.PATCH("/comments/:commentId", user, h.UpdateComment)
	r.DELETE("/comments/:commentId", user, h.DeleteComment)
	r.POST("/comments/:commentId/replies", user, h.Reply)
	r.POST("/comments/:commentId/like", user, h.ToggleLike(domain.LikeComment, "commentId"))
	r.POST("/replies/:replyId/like", user, h.ToggleLike(domain.LikeReply, "replyId"))

	return &testEnv{db: db, r: r}
}

func collection(k domain.TargetKind) string {
	if k == domain.TargetFeedback {
		return "feedbacks"
	}
	return string(k) + "s"
}

// ---------- request helpers ----------

type reqOpt func(*http.Request)

func withToken(tok string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func withCookie(name, v string) reqOpt {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: v}) }
}

func (e *testEnv) do(t *testing.T, method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

// decode unmarshals the envelope and its data into data (if non-nil).
func decode(t *testing.T, w *httptest.ResponseRecorder, data any) map[string]any {
	t.Helper()
	var raw struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("json: %v body=%s", err, w.Body.String())
	}
	if data != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			t.Fatalf("json data: %v", err)
		}
	}
	var env map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return env
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
}

type account struct {
	ID      string
	Access  string
	Refresh string
}

// register signs up a principal through the API.
func (e *testEnv) register(t *testing.T, kind domain.PrincipalKind, name, email string) account {
	t.Helper()
	w := e.do(t, http.MethodPost, "/"+string(kind)+"s/register", RegisterRequest{Name: name, Email: email, Password: "password123"})
	expectStatus(t, w, http.StatusCreated)
	var res AuthResponse
	decode(t, w, &res)
	return account{ID: res.Principal.ID, Access: res.Tokens.AccessToken, Refresh: res.Tokens.RefreshToken}
}

// createTarget opens a target through the API and returns it.
func (e *testEnv) createTarget(t *testing.T, u account, serviceID string, kind domain.TargetKind, title, desc string) domain.Target {
	t.Helper()
	w := e.do(t, http.MethodPost, "/services/"+serviceID+"/"+collection(kind), CreateTargetRequest{Title: title, Description: desc}, withToken(u.Access))
	expectStatus(t, w, http.StatusCreated)
	var tg domain.Target
	decode(t, w, &tg)
	return tg
}
