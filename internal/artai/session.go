package artai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Status is the lifecycle state of the local session.
type Status int

const (
	StatusUnknown Status = iota
	StatusLoading
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Session is the live authentication state. Authenticated holds exactly when
// both User and Token are set; Anonymous always has a nil User.
type Session struct {
	Token  string
	User   *User
	Status Status
}

// ErrRestrictedProfileField is returned when a profile update tries to change
// anything but username, email or password.
var ErrRestrictedProfileField = errors.New("only username, email and password can be updated")

// ErrEmptyProfilePatch is returned by UpdateProfile when nothing would change.
var ErrEmptyProfilePatch = errors.New("profile update has no fields")

// SessionManager owns the token and the current user for the lifetime of
// the process. It is the only writer of the TokenStore, and it clears the
// cache whenever the session ends, since cached data belongs to the user.
//
// SessionManager implements TokenSource for the resource client.
type SessionManager struct {
	api    AuthAPI
	store  TokenStore
	cache  *Cache
	logger Logger

	mu      sync.RWMutex
	session Session
	subs    []func(Session)
	booted  bool

	// identity serializes profile writes against user refreshes so a refresh
	// never reports a user one write behind.
	identity sync.Mutex
	refresh  singleflight.Group
}

var _ TokenSource = (*SessionManager)(nil)

// NewSessionManager creates a manager in StatusUnknown. cache and logger may
// be nil.
func NewSessionManager(api AuthAPI, store TokenStore, cache *Cache, logger Logger) *SessionManager {
	return &SessionManager{
		api:    api,
		store:  store,
		cache:  cache,
		logger: orNop(logger),
	}
}

// Snapshot returns a copy of the current session.
func (s *SessionManager) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.session)
}

// Status returns the current lifecycle state.
func (s *SessionManager) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Status
}

// User returns a copy of the current user, or nil.
func (s *SessionManager) User() *User {
	return s.Snapshot().User
}

// Subscribe registers fn to be called with every new session state.
func (s *SessionManager) Subscribe(fn func(Session)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Token implements TokenSource.
func (s *SessionManager) Token() *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session.Token == "" {
		return nil
	}
	return &oauth2.Token{AccessToken: s.session.Token, TokenType: "Bearer"}
}

// TokenRejected implements TokenSource. The session is downgraded only when
// token is still the current one, so a late 401 for a replaced token never
// ends the newer session.
func (s *SessionManager) TokenRejected(token string) {
	if token == "" {
		return
	}
	s.mu.RLock()
	current := s.session.Token
	s.mu.RUnlock()
	if current != token {
		s.logger.Debug("ignoring rejection of a replaced token")
		return
	}
	s.logger.Warn("server rejected the session token")
	if err := s.endSession(token); err != nil {
		s.logger.Error("clearing rejected token", "error", err)
	}
}

// Bootstrap validates the persisted token, if any, and settles the session to
// Authenticated or Anonymous. Any failure to validate erases the token; it is
// never retried without a new login. Bootstrap only runs once, and not at all
// after a login; other calls return nil without doing anything.
func (s *SessionManager) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	if s.booted {
		s.mu.Unlock()
		return nil
	}
	s.booted = true
	s.mu.Unlock()

	token, err := s.store.Load()
	if err != nil {
		s.transition(Session{Status: StatusAnonymous})
		return fmt.Errorf("loading persisted token: %w", err)
	}
	if token == "" {
		s.logger.Debug("no persisted token")
		s.transition(Session{Status: StatusAnonymous})
		return nil
	}

	s.transition(Session{Token: token, Status: StatusLoading})
	user, err := s.api.GetUser(ctx)
	if err != nil {
		s.logger.Warn("persisted token did not validate", "error", err)
		if clearErr := s.endSession(token); clearErr != nil {
			return errors.Join(fmt.Errorf("validating persisted token: %w", err), clearErr)
		}
		return fmt.Errorf("validating persisted token: %w", err)
	}

	// The token may have been rejected or replaced while validating.
	if s.transitionFrom(token, Session{Token: token, User: user, Status: StatusAuthenticated}) {
		s.logger.Info("session restored", "user_id", user.ID)
	}
	return nil
}

// Login authenticates with an identifier (username or email) and password.
// On failure the session is left exactly as it was.
func (s *SessionManager) Login(ctx context.Context, ident, password string) (*User, error) {
	res, err := s.api.Login(ctx, ident, password)
	if err != nil {
		return nil, err
	}
	return s.establish(res, "POST /login")
}

// Register creates an account and logs in as it.
func (s *SessionManager) Register(ctx context.Context, username, email, password string) (*User, error) {
	res, err := s.api.Register(ctx, username, email, password)
	if err != nil {
		return nil, err
	}
	return s.establish(res, "POST /register")
}

func (s *SessionManager) establish(res *AuthResult, op string) (*User, error) {
	if res == nil || res.Token == "" {
		return nil, NewError(KindDecode, op, http.StatusOK, "authentication response carried no token", nil)
	}
	if err := s.store.Save(res.Token); err != nil {
		return nil, fmt.Errorf("persisting token: %w", err)
	}
	user := res.User
	if s.cache != nil {
		s.cache.Clear()
	}
	s.mu.Lock()
	s.booted = true
	s.mu.Unlock()
	s.transition(Session{Token: res.Token, User: &user, Status: StatusAuthenticated})
	s.logger.Info("logged in", "user_id", user.ID, "username", user.Username)
	return &user, nil
}

// Logout ends the session on the server and locally. Local state is cleared
// even when the remote call fails; the remote error is still returned.
func (s *SessionManager) Logout(ctx context.Context) (err error) {
	s.mu.RLock()
	token := s.session.Token
	s.mu.RUnlock()

	defer func() {
		if clearErr := s.endSession(token); clearErr != nil {
			err = errors.Join(err, clearErr)
		}
		s.logger.Info("logged out")
	}()

	if token == "" {
		return nil
	}
	if _, remoteErr := s.api.Logout(ctx); remoteErr != nil {
		s.logger.Warn("remote logout failed", "error", remoteErr)
		return fmt.Errorf("remote logout: %w", remoteErr)
	}
	return nil
}

// UpdateProfile applies a partial update to the current user and replaces
// the whole user record with the server's answer.
func (s *SessionManager) UpdateProfile(ctx context.Context, patch ProfilePatch) (*User, error) {
	if patch.Role != nil {
		return nil, ErrRestrictedProfileField
	}
	if patch.Empty() {
		return nil, ErrEmptyProfilePatch
	}

	s.identity.Lock()
	defer s.identity.Unlock()

	s.mu.RLock()
	token, status := s.session.Token, s.session.Status
	s.mu.RUnlock()
	if status != StatusAuthenticated {
		return nil, ErrNotAuthenticated
	}

	user, newToken, err := s.api.UpdateUser(ctx, patch)
	if err != nil {
		return nil, err
	}
	if newToken != "" && newToken != token {
		if err := s.store.Save(newToken); err != nil {
			return nil, fmt.Errorf("persisting rotated token: %w", err)
		}
	}

	next := Session{Token: token, User: user, Status: StatusAuthenticated}
	if newToken != "" {
		next.Token = newToken
	}
	s.transitionFrom(token, next)
	return copyUser(user), nil
}

// RefreshUser re-fetches the current user. Failure is handled like a failed
// bootstrap: the token is erased and the session becomes Anonymous.
// Concurrent refreshes share one request.
func (s *SessionManager) RefreshUser(ctx context.Context) (*User, error) {
	s.mu.RLock()
	token := s.session.Token
	s.mu.RUnlock()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	v, err, _ := s.refresh.Do(token, func() (any, error) {
		s.identity.Lock()
		defer s.identity.Unlock()
		user, err := s.api.GetUser(ctx)
		if err != nil {
			return nil, err
		}
		// Applied before identity is released, so a profile update queued
		// behind this refresh always lands last.
		s.transitionFrom(token, Session{Token: token, User: user, Status: StatusAuthenticated})
		return user, nil
	})
	if err != nil {
		if clearErr := s.endSession(token); clearErr != nil {
			return nil, errors.Join(err, clearErr)
		}
		return nil, err
	}
	return copyUser(v.(*User)), nil
}

// endSession erases token from the store and memory and drops the cache.
// It does nothing to a session that has already moved on to another token.
func (s *SessionManager) endSession(token string) error {
	s.mu.RLock()
	current := s.session.Token
	status := s.session.Status
	s.mu.RUnlock()
	if token != "" && current != "" && current != token {
		return nil
	}

	err := s.store.Clear()
	if s.cache != nil {
		s.cache.Clear()
	}
	if status != StatusAnonymous || current != "" {
		s.transition(Session{Status: StatusAnonymous})
	}
	if err != nil {
		return fmt.Errorf("clearing persisted token: %w", err)
	}
	return nil
}

func (s *SessionManager) transition(next Session) {
	s.mu.Lock()
	prev := s.session.Status
	s.session = next
	subs := append([]func(Session){}, s.subs...)
	s.mu.Unlock()
	s.notify(prev, next, subs)
}

// transitionFrom moves to next only if the session still holds token. It
// reports whether it did.
func (s *SessionManager) transitionFrom(token string, next Session) bool {
	s.mu.Lock()
	if s.session.Token != token {
		s.mu.Unlock()
		return false
	}
	prev := s.session.Status
	s.session = next
	subs := append([]func(Session){}, s.subs...)
	s.mu.Unlock()
	s.notify(prev, next, subs)
	return true
}

func (s *SessionManager) notify(prev Status, next Session, subs []func(Session)) {
	if prev != next.Status {
		s.logger.Debug("session transition", "from", prev.String(), "to", next.Status.String())
	}
	snap := copySession(next)
	for _, fn := range subs {
		fn(snap)
	}
}

func copySession(in Session) Session {
	in.User = copyUser(in.User)
	return in
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
