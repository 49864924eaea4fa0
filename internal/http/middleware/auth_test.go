package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/service-flow-backend/internal/domain"
	"github.com/tbourn/service-flow-backend/internal/services"
)

// stubResolver maps fixed tokens to principals or errors.
type stubResolver struct {
	seen []string
}

func (s *stubResolver) Resolve(_ context.Context, token string) (*services.Principal, error) {
	s.seen = append(s.seen, token)
	switch token {
	case "user-token":
		return &services.Principal{ID: "u1", Kind: domain.KindUser}, nil
	case "service-token":
		return &services.Principal{ID: "s1", Kind: domain.KindService}, nil
	case "expired":
		return nil, services.ErrInvalidToken
	case "no-kind":
		return nil, services.ErrMalformedToken
	case "ghost":
		return nil, services.ErrNoPrincipal
	}
	return nil, errors.New("db unavailable")
}

func authRouter(res PrincipalResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Authenticate(res))
	who := func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, string(p.Kind)+":"+p.ID)
	}
	r.GET("/public", who)
	r.GET("/any", RequireAuth(), who)
	r.GET("/user", RequireUser(), who)
	r.GET("/service", RequireService(), who)
	return r
}

func TestAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		cookie string
		header string
		want   string
	}{
		{"none", "", "", ""},
		{"bearer", "", "Bearer abc", "abc"},
		{"bearer case-insensitive", "", "bearer  abc ", "abc"},
		{"other scheme", "", "Basic abc", ""},
		{"cookie wins", "fromcookie", "Bearer fromheader", "fromcookie"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.cookie != "" {
				c.Request.AddCookie(&http.Cookie{Name: CookieAccessToken, Value: tc.cookie})
			}
			if tc.header != "" {
				c.Request.Header.Set("Authorization", tc.header)
			}
			if got := AccessToken(c); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestAuthGuards(t *testing.T) {
	r := authRouter(&stubResolver{})

	cases := []struct {
		name    string
		path    string
		token   string
		status  int
		body    string
		message string
	}{
		{"public anonymous", "/public", "", 200, "anonymous", ""},
		{"public with stale token", "/public", "expired", 200, "anonymous", ""},
		{"public with user", "/public", "user-token", 200, "user:u1", ""},
		{"any without token", "/any", "", 401, "", "no token"},
		{"any expired", "/any", "expired", 401, "", "invalid or expired token"},
		{"any malformed", "/any", "no-kind", 401, "", "malformed token"},
		{"any ghost", "/any", "ghost", 401, "", "no matching principal"},
		{"any service", "/any", "service-token", 200, "service:s1", ""},
		{"user ok", "/user", "user-token", 200, "user:u1", ""},
		{"user as service", "/user", "service-token", 403, "", "only users can perform this action"},
		{"service ok", "/service", "service-token", 200, "service:s1", ""},
		{"service as user", "/service", "user-token", 403, "", "only services can perform this action"},
		{"service without token", "/service", "", 401, "", "no token"},
		{"resolver failure", "/any", "boom", 500, "", "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.status, w.Body.String())
			}
			if tc.status == http.StatusOK {
				if w.Body.String() != tc.body {
					t.Fatalf("body=%q want %q", w.Body.String(), tc.body)
				}
				return
			}
			var env map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
				t.Fatalf("json: %v", err)
			}
			if env["message"] != tc.message || env["success"] != false || env["statusCode"] != float64(tc.status) {
				t.Fatalf("envelope: %v", env)
			}
		})
	}
}

func TestAuthRejectionsCounted(t *testing.T) {
	r := authRouter(&stubResolver{})
	c := authRejections.WithLabelValues("wrong_kind")
	before := testutil.ToFloat64(c)

	req := httptest.NewRequest(http.MethodGet, "/user", nil)
	req.AddCookie(&http.Cookie{Name: CookieAccessToken, Value: "service-token"})
	r.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(c); got != before+1 {
		t.Fatalf("wrong_kind = %v, want %v", got, before+1)
	}
}

func TestAuthenticate_SetsIdentityForDownstream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	res := &stubResolver{}
	r := gin.New()
	r.Use(Authenticate(res))
	var uid any
	r.GET("/", func(c *gin.Context) {
		uid, _ = c.Get(ctxKeyUserID)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieAccessToken, Value: "user-token"})
	r.ServeHTTP(httptest.NewRecorder(), req)
	if uid != "u1" {
		t.Fatalf("userID = %v", uid)
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if len(res.seen) != 1 {
		t.Fatalf("resolver must not run without a token: %v", res.seen)
	}
}
