package artai_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"artai-go/internal/artai"
	"artai-go/internal/testutil"
)

func requireStatus(t *testing.T, sm *artai.SessionManager, want artai.Status) {
	t.Helper()
	s := sm.Snapshot()
	if s.Status != want {
		t.Fatalf("Status = %s, want %s", s.Status, want)
	}
	if want == artai.StatusAuthenticated && (s.User == nil || s.Token == "") {
		t.Fatalf("authenticated session without user or token: %+v", s)
	}
	if want == artai.StatusAnonymous && s.User != nil {
		t.Fatalf("anonymous session with a user: %+v", s)
	}
}

func storedToken(t *testing.T, store artai.TokenStore) string {
	t.Helper()
	tok, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return tok
}

func TestSessionManager_Login(t *testing.T) {
	t.Run("login then get user returns the same id", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		ctx := context.Background()
		h.API.AddUser("ana", "ana@example.test", "pw")

		logged, err := h.Session.Login(ctx, "ana", "pw")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		requireStatus(t, h.Session, artai.StatusAuthenticated)

		fetched, err := h.Session.RefreshUser(ctx)
		if err != nil {
			t.Fatalf("RefreshUser() error = %v", err)
		}
		if fetched.ID != logged.ID {
			t.Errorf("user id = %d, want %d", fetched.ID, logged.ID)
		}
	})

	t.Run("accepts email as identifier", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		h.API.AddUser("ana", "ana@example.test", "pw")

		if _, err := h.Session.Login(context.Background(), "ana@example.test", "pw"); err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		requireStatus(t, h.Session, artai.StatusAuthenticated)
	})

	t.Run("bad credentials leave the session untouched", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		ctx := context.Background()
		if err := h.Session.Bootstrap(ctx); err != nil {
			t.Fatal(err)
		}
		h.API.AddUser("ana", "ana@example.test", "pw")

		_, err := h.Session.Login(ctx, "ana", "wrong")
		if err == nil {
			t.Fatal("Login() expected error")
		}
		if err.Error() != "Invalid credentials" {
			t.Errorf("Login() error = %q, want the server message", err)
		}
		requireStatus(t, h.Session, artai.StatusAnonymous)
		if tok := storedToken(t, h.Store); tok != "" {
			t.Errorf("stored token = %q, want none", tok)
		}
	})

	t.Run("failed login keeps the previous session", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		ctx := context.Background()
		ana := h.LoginAs(t, "ana")
		before := h.Session.Snapshot().Token

		if _, err := h.Session.Login(ctx, "ana", "wrong"); err == nil {
			t.Fatal("Login() expected error")
		}
		s := h.Session.Snapshot()
		if s.Token != before || s.User.ID != ana.ID {
			t.Errorf("session changed after failed login: %+v", s)
		}
	})
}

func TestSessionManager_Register(t *testing.T) {
	h := testutil.NewHarness(t, nil)
	ctx := context.Background()

	u, err := h.Session.Register(ctx, "bo", "bo@example.test", "pw")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	requireStatus(t, h.Session, artai.StatusAuthenticated)
	if u.Username != "bo" {
		t.Errorf("Username = %q, want bo", u.Username)
	}
	if storedToken(t, h.Store) == "" {
		t.Error("Register() did not persist the token")
	}

	_, err = h.Session.Register(ctx, "bo", "other@example.test", "pw")
	if artai.KindOf(err) != artai.KindValidation {
		t.Errorf("duplicate Register() kind = %v, want validation failure", artai.KindOf(err))
	}
}

func TestSessionManager_Bootstrap(t *testing.T) {
	t.Run("no token settles anonymous", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		if got := h.Session.Status(); got != artai.StatusUnknown {
			t.Fatalf("initial Status = %s, want unknown", got)
		}
		if err := h.Session.Bootstrap(context.Background()); err != nil {
			t.Fatalf("Bootstrap() error = %v", err)
		}
		requireStatus(t, h.Session, artai.StatusAnonymous)
		if n := h.API.Calls("GetUser"); n != 0 {
			t.Errorf("GetUser called %d times without a token", n)
		}
	})

	t.Run("persisted token restores the session in a new manager", func(t *testing.T) {
		api := testutil.NewFakeAPI()
		store := testutil.NewTestTokenStore()
		first := testutil.NewHarnessWithAPI(t, api, store, artai.DefaultStaleTimes())
		ana := first.LoginAs(t, "ana")

		second := testutil.NewHarnessWithAPI(t, api, store, artai.DefaultStaleTimes())
		if err := second.Session.Bootstrap(context.Background()); err != nil {
			t.Fatalf("Bootstrap() error = %v", err)
		}
		requireStatus(t, second.Session, artai.StatusAuthenticated)
		if got := second.Session.User().ID; got != ana.ID {
			t.Errorf("restored user id = %d, want %d", got, ana.ID)
		}
		if n := api.Calls("Login"); n != 1 {
			t.Errorf("Login called %d times, want 1", n)
		}
	})

	t.Run("expired token is erased", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		u := h.API.AddUser("ana", "ana@example.test", "pw")
		tok := h.API.IssueToken(u.ID)
		h.API.RevokeToken(tok)
		h.Store.Save(tok)

		err := h.Session.Bootstrap(context.Background())
		if !artai.IsAuthRejected(err) {
			t.Errorf("Bootstrap() error = %v, want auth rejected", err)
		}
		requireStatus(t, h.Session, artai.StatusAnonymous)
		if got := storedToken(t, h.Store); got != "" {
			t.Errorf("stored token = %q, want erased", got)
		}
	})

	t.Run("network failure also erases the token", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		u := h.API.AddUser("ana", "ana@example.test", "pw")
		h.Store.Save(h.API.IssueToken(u.ID))
		h.API.Hook = func(_ context.Context, op string) error {
			if op == "GetUser" {
				return artai.NewError(artai.KindNetwork, "GET /user", 0, "connection refused", nil)
			}
			return nil
		}

		if err := h.Session.Bootstrap(context.Background()); err == nil {
			t.Error("Bootstrap() expected error")
		}
		requireStatus(t, h.Session, artai.StatusAnonymous)
		if got := storedToken(t, h.Store); got != "" {
			t.Errorf("stored token = %q, want erased", got)
		}

		// No silent retry: a second bootstrap does nothing.
		h.API.Hook = nil
		h.Session.Bootstrap(context.Background())
		if n := h.API.Calls("GetUser"); n != 1 {
			t.Errorf("GetUser called %d times, want 1", n)
		}
	})

	t.Run("reports loading while validating", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		u := h.API.AddUser("ana", "ana@example.test", "pw")
		h.Store.Save(h.API.IssueToken(u.ID))

		var seen []artai.Status
		h.Session.Subscribe(func(s artai.Session) { seen = append(seen, s.Status) })
		if err := h.Session.Bootstrap(context.Background()); err != nil {
			t.Fatal(err)
		}
		want := []artai.Status{artai.StatusLoading, artai.StatusAuthenticated}
		if len(seen) != len(want) || seen[0] != want[0] || seen[1] != want[1] {
			t.Errorf("transitions = %v, want %v", seen, want)
		}
	})
}

func TestSessionManager_Logout(t *testing.T) {
	t.Run("clears token and cache", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		ctx := context.Background()
		h.LoginAs(t, "ana")
		if _, err := h.Service.Categories(ctx); err != nil {
			t.Fatal(err)
		}

		if err := h.Session.Logout(ctx); err != nil {
			t.Fatalf("Logout() error = %v", err)
		}
		requireStatus(t, h.Session, artai.StatusAnonymous)
		if got := storedToken(t, h.Store); got != "" {
			t.Errorf("stored token = %q, want cleared", got)
		}
		if n := h.Cache.Len(); n != 0 {
			t.Errorf("cache holds %d entries after logout, want 0", n)
		}
	})

	t.Run("remote failure still clears local state", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		h.LoginAs(t, "ana")
		h.API.Hook = func(_ context.Context, op string) error {
			if op == "Logout" {
				return artai.NewError(artai.KindServer, "POST /logout", http.StatusBadGateway, "", nil)
			}
			return nil
		}

		err := h.Session.Logout(context.Background())
		if artai.KindOf(err) != artai.KindServer {
			t.Errorf("Logout() error = %v, want the server failure", err)
		}
		requireStatus(t, h.Session, artai.StatusAnonymous)
		if got := storedToken(t, h.Store); got != "" {
			t.Errorf("stored token = %q, want cleared", got)
		}
	})
}

func TestSessionManager_TokenRejected(t *testing.T) {
	t.Run("rejection from a resource call downgrades the session", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		ctx := context.Background()
		h.LoginAs(t, "ana")
		if _, err := h.Service.Tags(ctx); err != nil {
			t.Fatal(err)
		}
		h.API.RevokeToken(h.Session.Snapshot().Token)

		_, err := h.Service.ListImages(ctx, artai.ImageQuery{Page: 1})
		if !artai.IsAuthRejected(err) {
			t.Fatalf("ListImages() error = %v, want auth rejected", err)
		}
		requireStatus(t, h.Session, artai.StatusAnonymous)
		if got := storedToken(t, h.Store); got != "" {
			t.Errorf("stored token = %q, want erased", got)
		}
		if n := h.Cache.Len(); n != 0 {
			t.Errorf("cache holds %d entries after rejection, want 0", n)
		}
	})

	t.Run("rejection of a replaced token is ignored", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		h.LoginAs(t, "ana")
		old := h.Session.Snapshot().Token
		if _, err := h.Session.Login(context.Background(), "ana", "secret-ana"); err != nil {
			t.Fatal(err)
		}

		h.Session.TokenRejected(old)
		requireStatus(t, h.Session, artai.StatusAuthenticated)
		if got := storedToken(t, h.Store); got == "" || got == old {
			t.Errorf("stored token = %q, want the newer token", got)
		}
	})
}

func TestSessionManager_UpdateProfile(t *testing.T) {
	strp := func(s string) *string { return &s }

	t.Run("replaces the user", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		h.LoginAs(t, "ana")
		token := h.Session.Snapshot().Token

		u, err := h.Session.UpdateProfile(context.Background(), artai.ProfilePatch{Username: strp("ana2")})
		if err != nil {
			t.Fatalf("UpdateProfile() error = %v", err)
		}
		if u.Username != "ana2" || h.Session.User().Username != "ana2" {
			t.Errorf("username = %q / %q, want ana2", u.Username, h.Session.User().Username)
		}
		if got := h.Session.Snapshot().Token; got != token {
			t.Error("token changed without the server issuing a new one")
		}
	})

	t.Run("stores a token the server rotated", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		h.LoginAs(t, "ana")
		old := h.Session.Snapshot().Token

		if _, err := h.Session.UpdateProfile(context.Background(), artai.ProfilePatch{Password: strp("new-pw")}); err != nil {
			t.Fatalf("UpdateProfile() error = %v", err)
		}
		now := h.Session.Snapshot().Token
		if now == old || now == "" {
			t.Errorf("token = %q, want a rotated token", now)
		}
		if got := storedToken(t, h.Store); got != now {
			t.Errorf("stored token = %q, want %q", got, now)
		}
	})

	t.Run("role is not updatable", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		h.LoginAs(t, "ana")

		_, err := h.Session.UpdateProfile(context.Background(), artai.ProfilePatch{Role: strp("admin")})
		if !errors.Is(err, artai.ErrRestrictedProfileField) {
			t.Errorf("UpdateProfile() error = %v, want ErrRestrictedProfileField", err)
		}
		if n := h.API.Calls("UpdateUser"); n != 0 {
			t.Errorf("UpdateUser called %d times", n)
		}
	})

	t.Run("requires a session", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		_, err := h.Session.UpdateProfile(context.Background(), artai.ProfilePatch{Email: strp("x@example.test")})
		if !errors.Is(err, artai.ErrNotAuthenticated) {
			t.Errorf("UpdateProfile() error = %v, want ErrNotAuthenticated", err)
		}
	})

	t.Run("empty patch", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		h.LoginAs(t, "ana")
		if _, err := h.Session.UpdateProfile(context.Background(), artai.ProfilePatch{}); !errors.Is(err, artai.ErrEmptyProfilePatch) {
			t.Errorf("UpdateProfile() error = %v, want ErrEmptyProfilePatch", err)
		}
	})
}

func TestSessionManager_RefreshUser(t *testing.T) {
	t.Run("rejection downgrades like bootstrap", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		h.LoginAs(t, "ana")
		h.API.RevokeToken(h.Session.Snapshot().Token)

		if _, err := h.Session.RefreshUser(context.Background()); err == nil {
			t.Fatal("RefreshUser() expected error")
		}
		requireStatus(t, h.Session, artai.StatusAnonymous)
	})

	t.Run("without a session", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		if _, err := h.Session.RefreshUser(context.Background()); !errors.Is(err, artai.ErrNotAuthenticated) {
			t.Errorf("RefreshUser() error = %v, want ErrNotAuthenticated", err)
		}
	})

	t.Run("concurrent refreshes and updates", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		h.LoginAs(t, "ana")
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := h.Session.RefreshUser(ctx); err != nil {
					t.Errorf("RefreshUser() error = %v", err)
				}
			}()
		}
		name := "ana-renamed"
		if _, err := h.Session.UpdateProfile(ctx, artai.ProfilePatch{Username: &name}); err != nil {
			t.Fatalf("UpdateProfile() error = %v", err)
		}
		wg.Wait()

		// Every refresh is serialized against the update, so the final
		// refresh cannot report the name from before it.
		u, err := h.Session.RefreshUser(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if u.Username != name || h.Session.User().Username != name {
			t.Errorf("username = %q, want %q", h.Session.User().Username, name)
		}
	})
}
