package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/service-flow-backend/internal/config"
	"github.com/tbourn/service-flow-backend/internal/http/middleware"
	"github.com/tbourn/service-flow-backend/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:      "/api/v1",
		RateRPS:          100,
		RateBurst:        50,
		SimilarThreshold: 0.2,
		IdempotencyTTL:   time.Hour,
		Auth: config.AuthConfig{
			AccessSecret:  "router-access-secret",
			RefreshSecret: "router-refresh-secret",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    time.Hour,
			BcryptCost:    10,
		},
		OTEL: config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), cfg)
	return r
}

func serve(r *gin.Engine, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r := newRouter(t, testConfig())

	w := serve(r, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing: %v", w.Header())
	}

	w = serve(r, http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	w = serve(r, http.MethodGet, "/nope", nil, nil)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"code":"not_found"`) {
		t.Fatalf("GET /nope = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodPost, "/health", nil, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// swagger is off unless enabled
	if w := serve(r, http.MethodGet, "/swagger/index.html", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be disabled, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"https://app.example.org"}}
	r := newRouter(t, cfg)

	w := serve(r, http.MethodGet, "/health", nil, map[string]string{"Origin": "https://app.example.org"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.org" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("credentials must be allowed for listed origins: %v", w.Header())
	}

	w = serve(r, http.MethodGet, "/health", nil, map[string]string{"Origin": "http://evil.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin must not be echoed, got %q", got)
	}

	// API mounted under the configured prefix
	if w := serve(r, http.MethodGet, "/api/v2/services", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("GET /api/v2/services = %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	r := newRouter(t, cfg)

	if w := serve(r, http.MethodGet, "/swagger/index.html", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("GET /swagger/index.html = %d", w.Code)
	}

	w := serve(r, http.MethodGet, "/swagger/doc.json", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /swagger/doc.json = %d", w.Code)
	}
	var doc struct {
		Paths       map[string]map[string]any `json:"paths"`
		Definitions map[string]any            `json:"definitions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("doc.json is not valid JSON: %v", err)
	}
	for _, p := range []string{"/users/register", "/auth/refresh", "/services/{serviceId}/issues", "/comments/{commentId}/like"} {
		if _, ok := doc.Paths[p]; !ok {
			t.Fatalf("missing path %s", p)
		}
	}
	for _, d := range []string{"handlers.Envelope", "handlers.ErrorResponse", "domain.Target", "domain.TargetStatus"} {
		if _, ok := doc.Definitions[d]; !ok {
			t.Fatalf("missing definition %s", d)
		}
	}
	// every schema reference resolves
	for _, ref := range regexp.MustCompile(`"\$ref":\s*"#/definitions/([^"]+)"`).FindAllStringSubmatch(w.Body.String(), -1) {
		if _, ok := doc.Definitions[ref[1]]; !ok {
			t.Fatalf("dangling $ref %s", ref[1])
		}
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		w := serve(r, http.MethodGet, path, nil, nil)
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, w.Code, w.Body.String())
		}
	}
}

func Test_idempotencyScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		method string
		route  string
		path   string
		want   string
	}{
		{http.MethodPost, "/api/v1/services/:serviceId/issues", "/api/v1/services/s1/issues", "s1:issue"},
		{http.MethodPost, "/api/v1/services/:serviceId/feedbacks", "/api/v1/services/s1/feedbacks", "s1:feedback"},
		{http.MethodPost, "/api/v1/services/:serviceId/bugs", "/api/v1/services/s2/bugs", "s2:bug"},
		{http.MethodGet, "/api/v1/services/:serviceId/bugs", "/api/v1/services/s2/bugs", ""},
		{http.MethodPost, "/api/v1/services/:serviceId/upvote", "/api/v1/services/s2/upvote", ""},
		{http.MethodPost, "/api/v1/comments/:commentId/replies", "/api/v1/comments/c1/replies", ""},
	}
	for _, tc := range cases {
		r := gin.New()
		var got string
		r.Handle(tc.method, tc.route, func(c *gin.Context) {
			got = idempotencyScope(c)
			c.Status(http.StatusNoContent)
		})
		serve(r, tc.method, tc.path, nil, nil)
		if got != tc.want {
			t.Fatalf("%s %s: scope=%q want %q", tc.method, tc.path, got, tc.want)
		}
	}
}

// End-to-end: accounts, idempotent creation with replay, and guards through
// the full middleware pipeline.
func TestPipeline_Smoke(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour} // set on https only
	cfg.EnableGzip = true
	r := newRouter(t, cfg)

	type tokens struct {
		Data struct {
			Principal struct {
				ID string `json:"id"`
			} `json:"principal"`
			Tokens struct {
				AccessToken string `json:"accessToken"`
			} `json:"tokens"`
		} `json:"data"`
	}
	register := func(path, name, email string) tokens {
		t.Helper()
		w := serve(r, http.MethodPost, "/api/v1"+path, map[string]string{"name": name, "email": email, "password": "password123"}, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("register %s = %d %s", path, w.Code, w.Body.String())
		}
		if !strings.Contains(w.Header().Get("Cache-Control"), "no-store") {
			t.Fatalf("auth responses must not be cached: %v", w.Header())
		}
		var out tokens
		_ = json.Unmarshal(w.Body.Bytes(), &out)
		return out
	}
	user := register("/users/register", "Ann", "ann@example.com")
	svc := register("/services/register", "Acme", "acme@example.com")

	create := func(key string) *httptest.ResponseRecorder {
		return serve(r, http.MethodPost, "/api/v1/services/"+svc.Data.Principal.ID+"/issues",
			map[string]string{"title": "Login fails", "description": "Cannot log in"},
			map[string]string{
				"Authorization":                 "Bearer " + user.Data.Tokens.AccessToken,
				middleware.HeaderIdempotencyKey: key,
			})
	}

	w := create("abc-123")
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
	first := w.Body.String()

	w = create("abc-123")
	if w.Code != http.StatusOK || w.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay = %d headers=%v", w.Code, w.Header())
	}
	var a, b struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	_ = json.Unmarshal([]byte(first), &a)
	_ = json.Unmarshal(w.Body.Bytes(), &b)
	if a.Data.ID == "" || a.Data.ID != b.Data.ID {
		t.Fatalf("replay returned a different target: %q vs %q", a.Data.ID, b.Data.ID)
	}

	if w := create("bad key!"); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed key = %d", w.Code)
	}

	// services may not open targets
	w = serve(r, http.MethodPost, "/api/v1/services/"+svc.Data.Principal.ID+"/bugs",
		map[string]string{"title": "x", "description": "y"},
		map[string]string{"Authorization": "Bearer " + svc.Data.Tokens.AccessToken})
	if w.Code != http.StatusForbidden {
		t.Fatalf("service create = %d", w.Code)
	}

	// feedback has no status route
	w = serve(r, http.MethodPatch, "/api/v1/feedbacks/x/status", map[string]string{"status": "closed"},
		map[string]string{"Authorization": "Bearer " + svc.Data.Tokens.AccessToken})
	if w.Code != http.StatusNotFound {
		t.Fatalf("feedback status = %d", w.Code)
	}

	// gzip negotiated
	w = serve(r, http.MethodGet, "/api/v1/services/"+svc.Data.Principal.ID+"/issues", nil, map[string]string{"Accept-Encoding": "gzip"})
	if w.Code != http.StatusOK || w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("list = %d encoding=%q", w.Code, w.Header().Get("Content-Encoding"))
	}
}

func TestPipeline_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 2
	r := newRouter(t, cfg)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = serve(r, http.MethodGet, "/api/v1/services", nil, nil)
	}
	if last.Code != http.StatusTooManyRequests || last.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d %v", last.Code, last.Header())
	}
}
