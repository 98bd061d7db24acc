package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// dummyHandler is a placeholder that records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

func TestIdentity_NoHeader(t *testing.T) {
	dummy := &dummyHandler{}
	h := Identity(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/responses", nil)
	h.ServeHTTP(rec, req)

	if dummy.called {
		t.Error("did not expect next handler to be called without the identity header")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 Unauthorized, got %d", rec.Code)
	}
}

func TestIdentity_HeaderPresent(t *testing.T) {
	dummy := &dummyHandler{}
	h := Identity(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/responses", nil)
	req.Header.Set(IdentityHeader, "cn=alice,ou=people,dc=example,dc=org")
	h.ServeHTTP(rec, req)

	if !dummy.called {
		t.Error("expected next handler to be called when the identity header is set")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 OK, got %d", rec.Code)
	}
	user := GetUserIDFromContext(dummy.ctx)
	if user != "cn=alice,ou=people,dc=example,dc=org" {
		t.Errorf("unexpected context user '%s'", user)
	}
}

func TestGetUserIDFromContext(t *testing.T) {
	// no value
	empty := GetUserIDFromContext(context.Background())
	if empty != "" {
		t.Errorf("expected empty string for missing user, got '%s'", empty)
	}
	// with value
	ctx := context.WithValue(context.Background(), userKey, "bob")
	val := GetUserIDFromContext(ctx)
	if val != "bob" {
		t.Errorf("expected 'bob', got '%s'", val)
	}
}
