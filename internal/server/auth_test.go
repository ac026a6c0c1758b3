package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"trivia-night/internal/config"
)

func TestTokenRoundTrip(t *testing.T) {
	srv := New(nil, config.Default(), nil)

	token, err := srv.signToken(7, "ada")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	claims, err := srv.parseToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "ada" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenWrongSecretRejected(t *testing.T) {
	signer := New(nil, config.Default(), nil)
	token, err := signer.signToken(7, "ada")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	cfg := config.Default()
	cfg.JWTSecret = "a completely different secret"
	verifier := New(nil, cfg, nil)
	if _, err := verifier.parseToken(token); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}

func TestTokenGarbageRejected(t *testing.T) {
	srv := New(nil, config.Default(), nil)
	if _, err := srv.parseToken("not.a.token"); err == nil {
		t.Fatal("expected garbage token to be rejected")
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := New(nil, config.Default(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSignupValidation(t *testing.T) {
	srv := New(nil, config.Default(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cases := []struct {
		name string
		body map[string]string
		want int
	}{
		{"short username", map[string]string{"username": "ab", "password": "longenough"}, http.StatusBadRequest},
		{"short password", map[string]string{"username": "ada", "password": "abc"}, http.StatusBadRequest},
		// Accounts need the database; without one the endpoint declines.
		{"no database", map[string]string{"username": "ada", "password": "longenough"}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, _ := json.Marshal(tc.body)
			resp, err := http.Post(ts.URL+"/api/auth/signup", "application/json", bytes.NewReader(payload))
			if err != nil {
				t.Fatalf("post signup: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}
