package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityMiddleware(t *testing.T) {
	var seen string
	handler := NewIdentityMiddleware("").Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(UserHeader, "alice")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "alice", seen)
}

func TestIdentityMiddleware_AnonymousPassesThrough(t *testing.T) {
	var seen string
	called := false
	handler := NewIdentityMiddleware("").Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		seen = GetUserID(r)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	assert.True(t, called)
	assert.Empty(t, seen)
}

func TestIdentityMiddleware_CustomHeader(t *testing.T) {
	var seen string
	handler := NewIdentityMiddleware("X-Upstream-Subject").Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Upstream-Subject", "bob")
	req.Header.Set(UserHeader, "ignored")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "bob", seen)
}

func TestRequireUser(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	RequireUser(inner).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(UserHeader, "alice")
	NewIdentityMiddleware("").Handler(RequireUser(inner)).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
