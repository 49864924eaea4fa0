package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/service-flow-backend/internal/domain"
)

func TestResolve(t *testing.T) {
	db := newTestDB(t)
	auth := NewAuthService(db, testAuthConfig())
	r := NewPrincipalResolver(db, auth)
	ctx := context.Background()

	userTok, _, _ := auth.IssueAccessToken("u1", domain.KindUser)
	svcTok, _, _ := auth.IssueAccessToken("s1", domain.KindService)
	// A user id presented as a service must not resolve.
	crossTok, _, _ := auth.IssueAccessToken("u1", domain.KindService)
	goneTok, _, _ := auth.IssueAccessToken("ghost", domain.KindUser)

	cases := []struct {
		name     string
		token    string
		wantErr  error
		wantKind domain.PrincipalKind
	}{
		{"empty", "  ", ErrNoToken, ""},
		{"garbage", "abc.def.ghi", ErrInvalidToken, ""},
		{"user", userTok, nil, domain.KindUser},
		{"service", svcTok, nil, domain.KindService},
		{"cross kind", crossTok, ErrNoPrincipal, ""},
		{"unknown subject", goneTok, ErrNoPrincipal, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := r.Resolve(ctx, tc.token)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want err %v, got %v", tc.wantErr, err)
			}
			if tc.wantErr == nil && p.Kind != tc.wantKind {
				t.Fatalf("want kind %s, got %+v", tc.wantKind, p)
			}
		})
	}
}

func TestErrorMessagesAreStable(t *testing.T) {
	for err, want := range map[error]string{
		ErrNoToken:        "no token",
		ErrInvalidToken:   "invalid or expired token",
		ErrMalformedToken: "malformed token",
		ErrNoPrincipal:    "no matching principal",
	} {
		if err.Error() != want {
			t.Fatalf("got %q, want %q", err.Error(), want)
		}
	}
}
