package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	now := time.Now()
	claims := Claims{
		Sub:    "user-1",
		ShopID: "shop-1",
		Role:   "owner",
		Iat:    now.Unix(),
		Exp:    now.Add(1 * time.Hour).Unix(),
	}
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, secret, now)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.ShopID != claims.ShopID || parsed.Role != claims.Role {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret", now); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
	if _, err := ParseAndVerifyHS256(token, secret, now.Add(2*time.Hour)); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
	if _, err := ParseAndVerifyHS256("a.b", secret, now); err == nil {
		t.Fatal("expected malformed token to be rejected")
	}
}

func TestAuthenticate(t *testing.T) {
	secret := "test-secret"
	token, err := SignHS256(Claims{Sub: "user-1", Role: "staff", Exp: time.Now().Add(time.Hour).Unix()}, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	var seen Identity
	h := Authenticate(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK || seen.UserID != "user-1" || seen.Role != "staff" {
		t.Fatalf("expected authenticated identity, got %d %+v", rw.Code, seen)
	}

	seen = Identity{}
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	if rw.Code != http.StatusOK || !seen.Anonymous() {
		t.Fatalf("expected anonymous pass-through, got %d %+v", rw.Code, seen)
	}

	reqBad := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqBad.Header.Set("Authorization", "Bearer badtoken")
	rwBad := httptest.NewRecorder()
	h.ServeHTTP(rwBad, reqBad)
	if rwBad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rwBad.Code)
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), "owner", "staff")

	cases := []struct {
		name string
		id   Identity
		code int
	}{
		{"anonymous", Identity{}, http.StatusUnauthorized},
		{"customer", Identity{UserID: "u1", Role: "customer"}, http.StatusForbidden},
		{"staff", Identity{UserID: "u2", Role: "staff"}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "http://example.com", nil)
			req = req.WithContext(WithIdentityContext(req.Context(), tc.id))
			rw := httptest.NewRecorder()
			h.ServeHTTP(rw, req)
			if rw.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rw.Code)
			}
		})
	}
}

func TestActsFor(t *testing.T) {
	cases := []struct {
		name string
		id   Identity
		shop string
		want bool
	}{
		{"staff of shop", Identity{UserID: "s1", ShopID: "shop-A", Role: "staff"}, "shop-A", true},
		{"staff of other shop", Identity{UserID: "s2", ShopID: "shop-B", Role: "staff"}, "shop-A", false},
		{"staff without shop", Identity{UserID: "s3", Role: "staff"}, "", false},
		{"customer of shop", Identity{UserID: "u1", ShopID: "shop-A", Role: "customer"}, "shop-A", false},
		{"anonymous", Identity{ShopID: "shop-A", Role: "staff"}, "shop-A", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.id.ActsFor(tc.shop, "owner", "staff"); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
