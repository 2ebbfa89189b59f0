// ABOUTME: Session lifecycle manager: restore, login, signup, refresh, logout
// ABOUTME: Owns the in-memory session state and publishes one settlement per operation

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glintapp/glint/internal/authapi"
	"github.com/glintapp/glint/internal/credstore"
)

// ErrNoRefreshToken is returned by RefreshAccessToken when the session holds
// no refresh token to exchange.
var ErrNoRefreshToken = errors.New("no refresh token")

// AuthAPI is the subset of the remote auth client the manager needs.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*authapi.AuthResult, error)
	Signup(ctx context.Context, req authapi.SignupRequest) (*authapi.AuthResult, error)
	VerifyToken(ctx context.Context, accessToken string) (*authapi.User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*authapi.TokenPair, error)
}

// Snapshot is the externally visible session state. Authenticated is derived:
// true iff both a user and an access token are held.
type Snapshot struct {
	User          *authapi.User
	AccessToken   string
	Authenticated bool
	Loading       bool
}

// IdentityID returns the current user id, or "" when unauthenticated.
func (s Snapshot) IdentityID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

// Manager owns the session state and orchestrates the lifecycle against the
// credential store and the remote auth service.
type Manager struct {
	store         credstore.Store
	api           AuthAPI
	verifyTimeout time.Duration
	logger        *slog.Logger

	stateMu      sync.Mutex
	user         *authapi.User
	accessToken  string
	refreshToken string
	loading      bool

	subs *subscribers
}

// NewManager creates a Manager. Pass nil logger for the default.
func NewManager(store credstore.Store, api AuthAPI, verifyTimeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if verifyTimeout <= 0 {
		verifyTimeout = 5 * time.Second
	}
	return &Manager{
		store:         store,
		api:           api,
		verifyTimeout: verifyTimeout,
		logger:        logger.With("component", "session"),
		subs:          newSubscribers(),
	}
}

// Current returns the session state as of now.
func (m *Manager) Current() Snapshot {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		User:          m.user,
		AccessToken:   m.accessToken,
		Authenticated: m.user != nil && m.accessToken != "",
		Loading:       m.loading,
	}
}

// Restore rebuilds the session from stored credentials. It is invoked once at
// startup and always settles: either authenticated (verification or
// verification-after-refresh succeeded) or unauthenticated (anything else).
// The returned snapshot is the settlement; it is also published to subscribers.
func (m *Manager) Restore(ctx context.Context) Snapshot {
	m.setLoading(true)

	creds, err := credstore.LoadCredentials(ctx, m.store)
	if err != nil {
		if !errors.Is(err, credstore.ErrNotFound) {
			m.logger.Warn("reading stored credentials", "error", err)
		}
		return m.settle(nil, "", "")
	}

	var stored authapi.User
	if err := json.Unmarshal([]byte(creds.UserSnapshot), &stored); err != nil || stored.ID == "" {
		m.logger.Warn("stored user snapshot unreadable, discarding session", "error", err)
		m.clearStored(ctx)
		return m.settle(nil, "", "")
	}

	user, err := m.verifyWithTimeout(ctx, creds.AccessToken)
	if err == nil {
		return m.settle(user, creds.AccessToken, creds.RefreshToken)
	}
	m.logger.Info("stored access token failed verification, attempting refresh", "error", err)

	pair, err := m.api.RefreshToken(ctx, creds.RefreshToken)
	if err != nil {
		m.logger.Info("token refresh failed, clearing stored session", "error", err)
		m.clearStored(ctx)
		return m.settle(nil, "", "")
	}

	// Persist the new pair before re-verifying so a crash between the two
	// steps leaves the refreshed tokens, not the revoked ones.
	if err := m.persist(ctx, &stored, pair.AccessToken, pair.RefreshToken); err != nil {
		m.logger.Warn("persisting refreshed tokens", "error", err)
	}

	user, err = m.verifyWithTimeout(ctx, pair.AccessToken)
	if err != nil {
		m.logger.Info("refreshed token failed verification, clearing stored session", "error", err)
		m.clearStored(ctx)
		return m.settle(nil, "", "")
	}

	if err := m.persist(ctx, user, pair.AccessToken, pair.RefreshToken); err != nil {
		m.logger.Warn("persisting verified user snapshot", "error", err)
	}
	return m.settle(user, pair.AccessToken, pair.RefreshToken)
}

// Login authenticates with the remote service and adopts the returned session.
// On failure the session is left unchanged and the error is returned for
// display; no settlement is published.
func (m *Manager) Login(ctx context.Context, email, password string) (Snapshot, error) {
	m.setLoading(true)

	result, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.setLoading(false)
		return m.Current(), err
	}

	return m.adopt(ctx, result), nil
}

// Signup creates an account with the remote service and adopts the returned
// session. Failure semantics match Login.
func (m *Manager) Signup(ctx context.Context, req authapi.SignupRequest) (Snapshot, error) {
	m.setLoading(true)

	result, err := m.api.Signup(ctx, req)
	if err != nil {
		m.setLoading(false)
		return m.Current(), err
	}

	return m.adopt(ctx, result), nil
}

// RefreshAccessToken exchanges the held refresh token for a new pair and
// mutates the session in place. A remote failure is fatal: the session is
// cleared before the error is returned.
func (m *Manager) RefreshAccessToken(ctx context.Context) (Snapshot, error) {
	m.stateMu.Lock()
	refresh := m.refreshToken
	user := m.user
	m.stateMu.Unlock()

	if refresh == "" {
		return m.Current(), ErrNoRefreshToken
	}

	pair, err := m.api.RefreshToken(ctx, refresh)
	if err != nil {
		m.logger.Warn("explicit token refresh failed, clearing session", "error", err)
		m.clearStored(ctx)
		m.settle(nil, "", "")
		return m.Current(), fmt.Errorf("refreshing access token: %w", err)
	}

	if err := m.persist(ctx, user, pair.AccessToken, pair.RefreshToken); err != nil {
		m.logger.Warn("persisting refreshed tokens", "error", err)
	}
	return m.settle(user, pair.AccessToken, pair.RefreshToken), nil
}

// Logout clears stored credentials and resets the session to empty. Clearing
// is best-effort; Logout itself never fails.
func (m *Manager) Logout(ctx context.Context) Snapshot {
	if err := credstore.ClearCredentials(ctx, m.store); err != nil {
		m.logger.Warn("clearing stored credentials", "error", err)
	}
	return m.settle(nil, "", "")
}

// verifyWithTimeout runs VerifyToken bounded by the configured timeout.
// A reply that loses the race is abandoned with the context; it never
// retroactively corrects the session.
func (m *Manager) verifyWithTimeout(ctx context.Context, accessToken string) (*authapi.User, error) {
	ctx, cancel := context.WithTimeout(ctx, m.verifyTimeout)
	defer cancel()
	return m.api.VerifyToken(ctx, accessToken)
}

// adopt persists and installs a successful login/signup result.
func (m *Manager) adopt(ctx context.Context, result *authapi.AuthResult) Snapshot {
	user := result.User
	if err := m.persist(ctx, &user, result.AccessToken, result.RefreshToken); err != nil {
		m.logger.Warn("persisting session credentials", "error", err)
	}
	return m.settle(&user, result.AccessToken, result.RefreshToken)
}

// persist writes the credential triple for the given session.
func (m *Manager) persist(ctx context.Context, user *authapi.User, accessToken, refreshToken string) error {
	snapshot, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding user snapshot: %w", err)
	}
	return credstore.SaveCredentials(ctx, m.store, &credstore.Credentials{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserSnapshot: string(snapshot),
	})
}

// clearStored removes the credential triple, logging rather than failing.
func (m *Manager) clearStored(ctx context.Context) {
	if err := credstore.ClearCredentials(ctx, m.store); err != nil {
		m.logger.Warn("clearing stored credentials", "error", err)
	}
}

// settle installs the final state for an operation and publishes the
// settlement. The user/token fields change together: subscribers never see a
// token without its user.
func (m *Manager) settle(user *authapi.User, accessToken, refreshToken string) Snapshot {
	m.stateMu.Lock()
	m.user = user
	m.accessToken = accessToken
	m.refreshToken = refreshToken
	m.loading = false
	snap := m.snapshotLocked()
	m.stateMu.Unlock()

	m.subs.publish(Settlement{Snapshot: snap}, m.logger)
	return snap
}

func (m *Manager) setLoading(loading bool) {
	m.stateMu.Lock()
	m.loading = loading
	m.stateMu.Unlock()
}
