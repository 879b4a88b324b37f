package testutil

import (
	"context"
	"testing"

	"artai-go/internal/artai"
)

// Harness is a session manager, cache and service wired to one FakeAPI.
type Harness struct {
	API     *FakeAPI
	Store   artai.TokenStore
	Cache   *artai.Cache
	Session *artai.SessionManager
	Service *artai.Service
}

// NewHarness wires a fresh FakeAPI to a session over store (a new memory
// store when nil), with the default stale times.
func NewHarness(t *testing.T, store artai.TokenStore) *Harness {
	t.Helper()
	if store == nil {
		store = NewTestTokenStore()
	}
	return NewHarnessWithAPI(t, NewFakeAPI(), store, artai.DefaultStaleTimes())
}

// NewHarnessWithAPI wires api to a new session over store.
func NewHarnessWithAPI(t *testing.T, api *FakeAPI, store artai.TokenStore, stale artai.StaleTimes) *Harness {
	t.Helper()
	cache := artai.NewCache(nil, nil)
	sm := artai.NewSessionManager(api, store, cache, nil)
	api.SetTokenSource(sm)
	return &Harness{
		API:     api,
		Store:   store,
		Cache:   cache,
		Session: sm,
		Service: artai.NewService(api, cache, stale, nil),
	}
}

// LoginAs creates an account and logs the harness session into it.
func (h *Harness) LoginAs(t *testing.T, username string) artai.User {
	t.Helper()
	u := h.API.AddUser(username, username+"@example.test", "secret-"+username)
	if _, err := h.Session.Login(context.Background(), username, "secret-"+username); err != nil {
		t.Fatalf("Login(%q) error = %v", username, err)
	}
	return u
}
