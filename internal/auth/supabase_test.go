package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSupabaseProvider_SignIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
		}
		if r.Header.Get("apikey") != "anon-key" {
			t.Errorf("apikey = %q", r.Header.Get("apikey"))
		}
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "wrong") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "jwt-token",
			"token_type": "bearer",
			"expires_in": 3600,
			"refresh_token": "refresh",
			"user": {"id": "0b6f4a7e-3c56-4d0f-9d55-4a8e3a3f1c11", "email": "fan@example.com"}
		}`))
	}))
	defer srv.Close()

	p := NewSupabaseProvider(srv.URL+"/", "anon-key")

	identity, err := p.SignIn(context.Background(), "fan@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if identity.UserID != "0b6f4a7e-3c56-4d0f-9d55-4a8e3a3f1c11" || identity.Email != "fan@example.com" || identity.AccessToken != "jwt-token" {
		t.Errorf("identity = %+v", identity)
	}

	_, err = p.SignIn(context.Background(), "fan@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestSupabaseProvider_CanceledContext(t *testing.T) {
	p := NewSupabaseProvider("http://127.0.0.1:1", "anon-key")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.SignIn(ctx, "fan@example.com", "secret1"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
