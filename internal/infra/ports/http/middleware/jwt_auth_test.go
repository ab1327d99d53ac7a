package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/okaypadak/everup-backend/internal/infra/adapters/auth"
	"github.com/okaypadak/everup-backend/internal/infra/appctx"
)

type fakeVerifier struct {
	identity *auth.Identity
	err      error
	seen     string
}

func (f *fakeVerifier) Verify(token string) (*auth.Identity, error) {
	f.seen = token
	return f.identity, f.err
}

func invoke(t *testing.T, verifier auth.Verifier, mutate func(*http.Request)) (*httptest.ResponseRecorder, *auth.Identity) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	mutate(req)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got *auth.Identity
	handler := JWTAuthMiddleware(verifier)(func(c echo.Context) error {
		got, _ = appctx.Identity(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return rec, got
}

func TestJWTAuthAcceptsBearerHeader(t *testing.T) {
	v := &fakeVerifier{identity: &auth.Identity{Subject: "user-1", Name: "alice"}}

	rec, identity := invoke(t, v, func(req *http.Request) {
		req.Header.Set(echo.HeaderAuthorization, "Bearer tok-123")
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	if v.seen != "tok-123" {
		t.Errorf("verifier saw %q, want %q", v.seen, "tok-123")
	}
	if identity == nil || identity.Subject != "user-1" {
		t.Errorf("identity in context: got %+v", identity)
	}
}

func TestJWTAuthFallsBackToCookie(t *testing.T) {
	v := &fakeVerifier{identity: &auth.Identity{Subject: "user-2"}}

	rec, identity := invoke(t, v, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: "jwt", Value: "cookie-tok"})
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	if v.seen != "cookie-tok" {
		t.Errorf("verifier saw %q, want %q", v.seen, "cookie-tok")
	}
	if identity == nil || identity.Subject != "user-2" {
		t.Errorf("identity in context: got %+v", identity)
	}
}

func TestJWTAuthRejectsMissingCredential(t *testing.T) {
	v := &fakeVerifier{identity: &auth.Identity{Subject: "user-1"}}

	rec, _ := invoke(t, v, func(*http.Request) {})

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if v.seen != "" {
		t.Error("verifier must not be called without a credential")
	}
}

func TestJWTAuthRejectsInvalidToken(t *testing.T) {
	v := &fakeVerifier{err: errors.New("bad signature")}

	rec, identity := invoke(t, v, func(req *http.Request) {
		req.Header.Set(echo.HeaderAuthorization, "Bearer forged")
	})

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if identity != nil {
		t.Error("no identity must reach the handler on rejection")
	}
}
