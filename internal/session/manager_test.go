// ABOUTME: Tests for the session lifecycle manager
// ABOUTME: Covers restore paths, login/signup failure isolation, refresh, logout, settlements

package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glintapp/glint/internal/authapi"
	"github.com/glintapp/glint/internal/credstore"
)

// fakeAuthAPI is a scriptable AuthAPI with call counters.
type fakeAuthAPI struct {
	mu sync.Mutex

	loginFn   func(ctx context.Context, email, password string) (*authapi.AuthResult, error)
	signupFn  func(ctx context.Context, req authapi.SignupRequest) (*authapi.AuthResult, error)
	verifyFn  func(ctx context.Context, accessToken string) (*authapi.User, error)
	refreshFn func(ctx context.Context, refreshToken string) (*authapi.TokenPair, error)

	loginCalls   int
	signupCalls  int
	verifyCalls  int
	refreshCalls int
}

func (f *fakeAuthAPI) Login(ctx context.Context, email, password string) (*authapi.AuthResult, error) {
	f.mu.Lock()
	f.loginCalls++
	fn := f.loginFn
	f.mu.Unlock()
	return fn(ctx, email, password)
}

func (f *fakeAuthAPI) Signup(ctx context.Context, req authapi.SignupRequest) (*authapi.AuthResult, error) {
	f.mu.Lock()
	f.signupCalls++
	fn := f.signupFn
	f.mu.Unlock()
	return fn(ctx, req)
}

func (f *fakeAuthAPI) VerifyToken(ctx context.Context, accessToken string) (*authapi.User, error) {
	f.mu.Lock()
	f.verifyCalls++
	fn := f.verifyFn
	f.mu.Unlock()
	return fn(ctx, accessToken)
}

func (f *fakeAuthAPI) RefreshToken(ctx context.Context, refreshToken string) (*authapi.TokenPair, error) {
	f.mu.Lock()
	f.refreshCalls++
	fn := f.refreshFn
	f.mu.Unlock()
	return fn(ctx, refreshToken)
}

func (f *fakeAuthAPI) calls() (login, signup, verify, refresh int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.signupCalls, f.verifyCalls, f.refreshCalls
}

func userU1() *authapi.User {
	return &authapi.User{ID: "u1", Email: "nina@example.com", Name: "Nina", Role: authapi.RoleOwner}
}

// seedCredentials stores a full triple for userU1 with the given tokens.
func seedCredentials(t *testing.T, store credstore.Store, access, refresh string) {
	t.Helper()
	snapshot, err := json.Marshal(userU1())
	require.NoError(t, err)
	require.NoError(t, credstore.SaveCredentials(context.Background(), store, &credstore.Credentials{
		AccessToken:  access,
		RefreshToken: refresh,
		UserSnapshot: string(snapshot),
	}))
}

func newTestManager(store credstore.Store, api AuthAPI) *Manager {
	return NewManager(store, api, 5*time.Second, nil)
}

func TestRestore_NoStoredCredentials(t *testing.T) {
	store := credstore.NewMockStore()
	api := &fakeAuthAPI{}
	mgr := newTestManager(store, api)

	snap := mgr.Restore(context.Background())

	assert.False(t, snap.Authenticated)
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.User)

	_, _, verify, refresh := api.calls()
	assert.Zero(t, verify, "no remote calls without stored credentials")
	assert.Zero(t, refresh)
}

func TestRestore_PartialCredentials(t *testing.T) {
	store := credstore.NewMockStore()
	require.NoError(t, store.Set(context.Background(), credstore.KeyAccessToken, "t1"))

	api := &fakeAuthAPI{}
	mgr := newTestManager(store, api)

	snap := mgr.Restore(context.Background())

	assert.False(t, snap.Authenticated)
	_, _, verify, refresh := api.calls()
	assert.Zero(t, verify)
	assert.Zero(t, refresh)
}

func TestRestore_VerifySucceeds(t *testing.T) {
	store := credstore.NewMockStore()
	seedCredentials(t, store, "t1", "r1")

	api := &fakeAuthAPI{
		verifyFn: func(ctx context.Context, accessToken string) (*authapi.User, error) {
			assert.Equal(t, "t1", accessToken)
			return userU1(), nil
		},
	}
	mgr := newTestManager(store, api)

	snap := mgr.Restore(context.Background())

	require.True(t, snap.Authenticated)
	assert.Equal(t, "u1", snap.User.ID)
	assert.Equal(t, "t1", snap.AccessToken)

	_, _, verify, refresh := api.calls()
	assert.Equal(t, 1, verify)
	assert.Zero(t, refresh, "no refresh call when verification succeeds")
}

func TestRestore_VerifyFailsRefreshSucceeds(t *testing.T) {
	store := credstore.NewMockStore()
	seedCredentials(t, store, "t1", "r1")
	ctx := context.Background()

	api := &fakeAuthAPI{
		verifyFn: func(ctx context.Context, accessToken string) (*authapi.User, error) {
			if accessToken == "t1" {
				return nil, &authapi.Error{Kind: authapi.KindUnauthorized, Message: "token expired"}
			}
			require.Equal(t, "t2", accessToken)
			return userU1(), nil
		},
		refreshFn: func(ctx context.Context, refreshToken string) (*authapi.TokenPair, error) {
			assert.Equal(t, "r1", refreshToken)
			return &authapi.TokenPair{AccessToken: "t2", RefreshToken: "r2"}, nil
		},
	}
	mgr := newTestManager(store, api)

	snap := mgr.Restore(ctx)

	require.True(t, snap.Authenticated)
	assert.Equal(t, "u1", snap.User.ID)
	assert.Equal(t, "t2", snap.AccessToken)

	_, _, verify, refresh := api.calls()
	assert.Equal(t, 2, verify, "one verification per token")
	assert.Equal(t, 1, refresh, "exactly one refresh attempt")

	// The store holds the refreshed pair
	creds, err := credstore.LoadCredentials(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "t2", creds.AccessToken)
	assert.Equal(t, "r2", creds.RefreshToken)
}

func TestRestore_RefreshFails(t *testing.T) {
	store := credstore.NewMockStore()
	seedCredentials(t, store, "t1", "r1")
	ctx := context.Background()

	api := &fakeAuthAPI{
		verifyFn: func(ctx context.Context, accessToken string) (*authapi.User, error) {
			return nil, &authapi.Error{Kind: authapi.KindUnauthorized, Message: "token expired"}
		},
		refreshFn: func(ctx context.Context, refreshToken string) (*authapi.TokenPair, error) {
			return nil, &authapi.Error{Kind: authapi.KindUnauthorized, Message: "refresh token revoked"}
		},
	}
	mgr := newTestManager(store, api)

	snap := mgr.Restore(ctx)

	assert.False(t, snap.Authenticated)
	assert.Equal(t, 0, store.Len(), "stored credentials cleared after fatal refresh failure")
}

func TestRestore_ReverifyFails(t *testing.T) {
	store := credstore.NewMockStore()
	seedCredentials(t, store, "t1", "r1")

	api := &fakeAuthAPI{
		verifyFn: func(ctx context.Context, accessToken string) (*authapi.User, error) {
			return nil, &authapi.Error{Kind: authapi.KindUnauthorized, Message: "nope"}
		},
		refreshFn: func(ctx context.Context, refreshToken string) (*authapi.TokenPair, error) {
			return &authapi.TokenPair{AccessToken: "t2", RefreshToken: "r2"}, nil
		},
	}
	mgr := newTestManager(store, api)

	snap := mgr.Restore(context.Background())

	assert.False(t, snap.Authenticated)
	assert.Equal(t, 0, store.Len())
}

func TestRestore_VerifyTimeout(t *testing.T) {
	store := credstore.NewMockStore()
	seedCredentials(t, store, "t1", "r1")

	api := &fakeAuthAPI{
		verifyFn: func(ctx context.Context, accessToken string) (*authapi.User, error) {
			// Simulate a hung verification; the manager's timeout fires first
			<-ctx.Done()
			return nil, ctx.Err()
		},
		refreshFn: func(ctx context.Context, refreshToken string) (*authapi.TokenPair, error) {
			return nil, &authapi.Error{Kind: authapi.KindTransient, Message: "still down"}
		},
	}
	mgr := NewManager(store, api, 30*time.Millisecond, nil)

	snap := mgr.Restore(context.Background())

	assert.False(t, snap.Authenticated, "timeout is treated as verification failure")
	assert.Equal(t, 0, store.Len())
}

func TestRestore_CorruptSnapshot(t *testing.T) {
	store := credstore.NewMockStore()
	ctx := context.Background()
	require.NoError(t, credstore.SaveCredentials(ctx, store, &credstore.Credentials{
		AccessToken:  "t1",
		RefreshToken: "r1",
		UserSnapshot: "{not json",
	}))

	api := &fakeAuthAPI{}
	mgr := newTestManager(store, api)

	snap := mgr.Restore(ctx)

	assert.False(t, snap.Authenticated)
	assert.Equal(t, 0, store.Len())
	_, _, verify, _ := api.calls()
	assert.Zero(t, verify)
}

func TestLogin_Success(t *testing.T) {
	store := credstore.NewMockStore()
	ctx := context.Background()

	api := &fakeAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (*authapi.AuthResult, error) {
			return &authapi.AuthResult{AccessToken: "t1", RefreshToken: "r1", User: *userU1()}, nil
		},
	}
	mgr := newTestManager(store, api)

	snap, err := mgr.Login(ctx, "nina@example.com", "secret")
	require.NoError(t, err)

	assert.True(t, snap.Authenticated)
	assert.Equal(t, "u1", snap.User.ID)
	assert.False(t, snap.Loading)

	creds, err := credstore.LoadCredentials(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "t1", creds.AccessToken)
	assert.Equal(t, "r1", creds.RefreshToken)
}

func TestLogin_FailureLeavesSessionUnchanged(t *testing.T) {
	store := credstore.NewMockStore()

	api := &fakeAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (*authapi.AuthResult, error) {
			return nil, &authapi.Error{Kind: authapi.KindInvalidCredentials, Message: "invalid email or password"}
		},
	}
	mgr := newTestManager(store, api)

	snap, err := mgr.Login(context.Background(), "nina@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, authapi.IsKind(err, authapi.KindInvalidCredentials))

	assert.False(t, snap.Authenticated)
	assert.False(t, snap.Loading, "loading reverts to false on failure")
	assert.Equal(t, 0, store.Len())
}

func TestSignup_Success(t *testing.T) {
	store := credstore.NewMockStore()

	api := &fakeAuthAPI{
		signupFn: func(ctx context.Context, req authapi.SignupRequest) (*authapi.AuthResult, error) {
			return &authapi.AuthResult{AccessToken: "t1", RefreshToken: "r1", User: *userU1()}, nil
		},
	}
	mgr := newTestManager(store, api)

	snap, err := mgr.Signup(context.Background(), authapi.SignupRequest{
		Email: "nina@example.com", Password: "secret", Role: authapi.RoleOwner,
	})
	require.NoError(t, err)
	assert.True(t, snap.Authenticated)
}

func TestSignup_DuplicateAccount(t *testing.T) {
	store := credstore.NewMockStore()

	api := &fakeAuthAPI{
		signupFn: func(ctx context.Context, req authapi.SignupRequest) (*authapi.AuthResult, error) {
			return nil, &authapi.Error{Kind: authapi.KindDuplicateAccount, Message: "email already registered"}
		},
	}
	mgr := newTestManager(store, api)

	snap, err := mgr.Signup(context.Background(), authapi.SignupRequest{Email: "nina@example.com"})
	require.Error(t, err)
	assert.False(t, snap.Authenticated)
}

func TestRefreshAccessToken_NoToken(t *testing.T) {
	mgr := newTestManager(credstore.NewMockStore(), &fakeAuthAPI{})

	_, err := mgr.RefreshAccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestRefreshAccessToken_Success(t *testing.T) {
	store := credstore.NewMockStore()
	ctx := context.Background()

	api := &fakeAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (*authapi.AuthResult, error) {
			return &authapi.AuthResult{AccessToken: "t1", RefreshToken: "r1", User: *userU1()}, nil
		},
		refreshFn: func(ctx context.Context, refreshToken string) (*authapi.TokenPair, error) {
			assert.Equal(t, "r1", refreshToken)
			return &authapi.TokenPair{AccessToken: "t2", RefreshToken: "r2"}, nil
		},
	}
	mgr := newTestManager(store, api)

	_, err := mgr.Login(ctx, "nina@example.com", "secret")
	require.NoError(t, err)

	snap, err := mgr.RefreshAccessToken(ctx)
	require.NoError(t, err)

	assert.True(t, snap.Authenticated)
	assert.Equal(t, "t2", snap.AccessToken)
	assert.Equal(t, "u1", snap.User.ID, "user survives in-place refresh")

	creds, err := credstore.LoadCredentials(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "r2", creds.RefreshToken)
}

func TestRefreshAccessToken_RemoteFailureClearsSession(t *testing.T) {
	store := credstore.NewMockStore()
	ctx := context.Background()

	api := &fakeAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (*authapi.AuthResult, error) {
			return &authapi.AuthResult{AccessToken: "t1", RefreshToken: "r1", User: *userU1()}, nil
		},
		refreshFn: func(ctx context.Context, refreshToken string) (*authapi.TokenPair, error) {
			return nil, &authapi.Error{Kind: authapi.KindUnauthorized, Message: "refresh token revoked"}
		},
	}
	mgr := newTestManager(store, api)

	_, err := mgr.Login(ctx, "nina@example.com", "secret")
	require.NoError(t, err)

	_, err = mgr.RefreshAccessToken(ctx)
	require.Error(t, err)

	snap := mgr.Current()
	assert.False(t, snap.Authenticated)
	assert.Equal(t, 0, store.Len())
}

func TestLogout(t *testing.T) {
	store := credstore.NewMockStore()
	ctx := context.Background()

	api := &fakeAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (*authapi.AuthResult, error) {
			return &authapi.AuthResult{AccessToken: "t1", RefreshToken: "r1", User: *userU1()}, nil
		},
	}
	mgr := newTestManager(store, api)

	_, err := mgr.Login(ctx, "nina@example.com", "secret")
	require.NoError(t, err)

	snap := mgr.Logout(ctx)

	assert.False(t, snap.Authenticated)
	assert.Nil(t, snap.User)
	assert.Empty(t, snap.AccessToken)
	assert.Equal(t, 0, store.Len())
}

func TestLogout_StoreFailureStillResets(t *testing.T) {
	store := credstore.NewMockStore()
	store.RemoveErr = assert.AnError

	mgr := newTestManager(store, &fakeAuthAPI{})
	snap := mgr.Logout(context.Background())

	assert.False(t, snap.Authenticated, "logout never fails")
}

func TestSettlement_PublishedOncePerOperation(t *testing.T) {
	store := credstore.NewMockStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := &fakeAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (*authapi.AuthResult, error) {
			return &authapi.AuthResult{AccessToken: "t1", RefreshToken: "r1", User: *userU1()}, nil
		},
	}
	mgr := newTestManager(store, api)

	ch, subID := mgr.Subscribe(ctx)
	defer mgr.Unsubscribe(subID)

	// Restore on an empty store publishes one unauthenticated settlement
	mgr.Restore(ctx)
	st := <-ch
	assert.False(t, st.Snapshot.Authenticated)
	assert.False(t, st.Snapshot.Loading, "settlements are always final states")

	// Login publishes exactly one authenticated settlement
	_, err := mgr.Login(ctx, "nina@example.com", "secret")
	require.NoError(t, err)
	st = <-ch
	assert.True(t, st.Snapshot.Authenticated)
	assert.Equal(t, "u1", st.Snapshot.IdentityID())

	// Logout publishes one empty settlement
	mgr.Logout(ctx)
	st = <-ch
	assert.False(t, st.Snapshot.Authenticated)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra settlement: %+v", extra)
	default:
	}
}

func TestSettlement_FailedLoginPublishesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := &fakeAuthAPI{
		loginFn: func(ctx context.Context, email, password string) (*authapi.AuthResult, error) {
			return nil, &authapi.Error{Kind: authapi.KindInvalidCredentials, Message: "nope"}
		},
	}
	mgr := newTestManager(credstore.NewMockStore(), api)

	ch, subID := mgr.Subscribe(ctx)
	defer mgr.Unsubscribe(subID)

	_, err := mgr.Login(ctx, "nina@example.com", "wrong")
	require.Error(t, err)

	select {
	case st := <-ch:
		t.Fatalf("failed login must not settle, got %+v", st)
	case <-time.After(50 * time.Millisecond):
	}
}
