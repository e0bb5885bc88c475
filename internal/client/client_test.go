package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientNew(t *testing.T) {
	c := New("https://example.com")

	if c.BaseURL != "https://example.com" {
		t.Errorf("expected base URL 'https://example.com', got '%s'", c.BaseURL)
	}

	if c.HTTPClient == nil {
		t.Error("expected non-nil HTTP client")
	}

	if c.IsAuthenticated() {
		t.Error("expected new client to not be authenticated")
	}
}

func TestLoginStoresToken(t *testing.T) {
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":     "tok-1",
			"expiresAt": expires,
			"user":      map[string]any{"id": "u1", "email": "a@example.com", "role": "user"},
		})
	}))
	defer ts.Close()

	c := New(ts.URL)
	user, err := c.Login("a@example.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("unexpected user %+v", user)
	}
	if c.Token != "tok-1" || !c.IsAuthenticated() {
		t.Fatalf("expected client to hold token, got %q exp %s", c.Token, c.TokenExp)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"statusCode": 403,
			"error":      "approve_delete denied: insufficient permissions",
			"reason":     "insufficient permissions",
			"path":       r.URL.Path,
		})
	}))
	defer ts.Close()

	c := New(ts.URL)
	c.Token = "tok"
	_, err := c.ApproveStatementDelete("s1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Reason != "insufficient permissions" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if StatusCode(err) != http.StatusForbidden {
		t.Fatalf("expected StatusCode 403")
	}
}

func TestRegisterConflictIsAlreadyRegistered(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"statusCode":409,"error":"email already registered"}`))
	}))
	defer ts.Close()

	if _, err := New(ts.URL).Register("a@example.com", "pw123456"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestPageQuery(t *testing.T) {
	if got := pageQuery(0, 0, nil); got != "" {
		t.Fatalf("expected empty query, got %q", got)
	}
	if got := pageQuery(10, 20, nil); got != "?limit=10&offset=20" {
		t.Fatalf("unexpected query %q", got)
	}
}
