package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgAuth "github.com/farmolink/farmolink-backend/pkg/auth"
	"github.com/farmolink/farmolink-backend/pkg/config"
	"github.com/farmolink/farmolink-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "farmolink", ExpirationMinutes: 15}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, role enums.ActorRole, pharmacyID *uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg, time.Now(), pkgAuth.AccessTokenPayload{
		UserID:     uuid.New(),
		Role:       role,
		PharmacyID: pharmacyID,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWTConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	other := testJWTConfig()
	other.Secret = "different"
	token := mintTestToken(t, other, enums.ActorRoleCustomer, nil)

	handler := Auth(testJWTConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSeedsActor(t *testing.T) {
	cfg := testJWTConfig()
	pharmacyID := uuid.New()
	token := mintTestToken(t, cfg, enums.ActorRolePharmacy, &pharmacyID)

	var seen pkgAuth.Actor
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			t.Fatal("actor missing from context")
		}
		seen = actor
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", resp.Code)
	}
	if seen.Role != enums.ActorRolePharmacy || seen.PharmacyID == nil || *seen.PharmacyID != pharmacyID {
		t.Fatalf("unexpected actor %+v", seen)
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mw := RequireRole(nil, enums.ActorRoleCustomer, enums.ActorRoleAdmin)(ok)

	cases := []struct {
		role enums.ActorRole
		want int
	}{
		{enums.ActorRoleCustomer, http.StatusOK},
		{enums.ActorRoleAdmin, http.StatusOK},
		{enums.ActorRolePharmacy, http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithActor(req.Context(), pkgAuth.Actor{UserID: uuid.New(), Role: tc.role}))
		resp := httptest.NewRecorder()
		mw.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.role, tc.want, resp.Code)
		}
	}

	resp := httptest.NewRecorder()
	mw.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without actor, got %d", resp.Code)
	}
}
