// ABOUTME: Identity-scoped single-entity cache for the owner's company profile
// ABOUTME: Classifies session settlements and latches loads per identity

package company

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/glintapp/glint/internal/authapi"
	"github.com/glintapp/glint/internal/session"
)

// ErrNoCompany is returned by Update when no company is cached.
var ErrNoCompany = errors.New("no company loaded")

// identityUnset marks a cache that has not yet observed any settlement. It is
// distinct from "" (signed out) so the first settlement classifies as initial
// mount rather than logout.
const identityUnset = "\x00unset"

// loadState is the per-identity load latch. Once a load has been attempted
// for an identity — whatever the outcome — the state is loadSettled and no
// further automatic load runs until the identity changes. This is what keeps
// "this owner has no company" from turning into an endless refetch loop.
type loadState int

const (
	loadIdle loadState = iota
	loadInFlight
	loadSettled
)

// SessionSource provides the current session snapshot. *session.Manager
// satisfies it; tests substitute a fake.
type SessionSource interface {
	Current() session.Snapshot
}

// State is the externally visible cache state.
type State struct {
	Company   *Company
	Loading   bool
	Err       error
	Attempted bool
}

// Cache holds at most one Company, scoped to the current session identity.
type Cache struct {
	api      API
	sessions SessionSource
	logger   *slog.Logger

	mu           sync.Mutex
	company      *Company
	loadErr      error
	state        loadState
	prevIdentity string
	fetchSeq     uint64
}

// NewCache creates a Cache. Pass nil logger for the default.
func NewCache(api API, sessions SessionSource, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		api:          api,
		sessions:     sessions,
		logger:       logger.With("component", "company-cache"),
		prevIdentity: identityUnset,
	}
}

// State returns the cache state as of now.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Company:   c.company,
		Loading:   c.state == loadInFlight,
		Err:       c.loadErr,
		Attempted: c.state != loadIdle,
	}
}

// HandleSettlement reacts to a session settlement. It classifies the identity
// transition, resets cache state where the identity changed, and runs the
// auto-load check for the new identity. The session has already settled when
// this runs, so the cache never acts on a loading session.
func (c *Cache) HandleSettlement(ctx context.Context, st session.Settlement) {
	currentID := st.Snapshot.IdentityID()

	c.mu.Lock()
	prev := c.prevIdentity
	c.prevIdentity = currentID

	switch {
	case prev == identityUnset:
		// Initial mount: nothing to reset
	case prev == currentID:
		// Same identity (or still signed out): nothing to do
		c.mu.Unlock()
		return
	case currentID == "":
		// Logout: reset the latch, drop the entity, no auto-load
		c.logger.Debug("identity signed out, clearing cache", "previous", prev)
		c.state = loadIdle
		c.clearLocked()
		c.mu.Unlock()
		return
	case prev == "":
		// Login after logout: the logout transition already reset the latch
	default:
		// User switch: A's cached profile must not survive into B's session
		c.logger.Debug("identity switched, clearing cache", "previous", prev, "current", currentID)
		c.state = loadIdle
		c.clearLocked()
	}
	c.mu.Unlock()

	c.autoLoad(ctx, st.Snapshot)
}

// Watch applies settlements from ch until ctx is cancelled or ch closes.
func (c *Cache) Watch(ctx context.Context, ch <-chan session.Settlement) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-ch:
			if !ok {
				return
			}
			c.HandleSettlement(ctx, st)
		}
	}
}

// autoLoad starts a load when the settled session is an eligible identity
// whose latch is still open.
func (c *Cache) autoLoad(ctx context.Context, snap session.Snapshot) {
	if !eligible(snap) {
		return
	}

	c.mu.Lock()
	idle := c.state == loadIdle
	c.mu.Unlock()
	if !idle {
		return
	}

	if err := c.Load(ctx); err != nil {
		c.logger.Warn("automatic company load failed", "error", err)
	}
}

// Load fetches the company for the current identity. It is a no-op when the
// role is ineligible, when a company is already cached, or when a load for
// this identity has already been attempted or is in flight. The latch closes
// before the remote call is issued, so a concurrent Load cannot race past it.
// The returned error, if any, is also recorded in State().Err.
func (c *Cache) Load(ctx context.Context) error {
	snap := c.sessions.Current()
	if !eligible(snap) {
		return nil
	}

	c.mu.Lock()
	if c.company != nil && c.state != loadInFlight {
		c.mu.Unlock()
		return nil // cache hit
	}
	if c.state != loadIdle {
		c.mu.Unlock()
		return nil // latched or already in flight
	}
	c.state = loadInFlight
	c.loadErr = nil
	c.fetchSeq++
	seq := c.fetchSeq
	c.mu.Unlock()

	return c.fetch(ctx, snap, seq, false)
}

// Refresh re-fetches unconditionally for the current identity, bypassing the
// cache-hit and latch checks. On failure the previously cached company is
// kept: stale-but-present beats empty.
func (c *Cache) Refresh(ctx context.Context) error {
	snap := c.sessions.Current()
	if !eligible(snap) {
		return nil
	}

	c.mu.Lock()
	if c.state == loadInFlight {
		c.mu.Unlock()
		return nil
	}
	c.state = loadInFlight
	c.fetchSeq++
	seq := c.fetchSeq
	c.mu.Unlock()

	return c.fetch(ctx, snap, seq, true)
}

// fetch performs the remote GetMine and applies the outcome. keepOnError
// controls whether a failure preserves the cached company (Refresh) or drops
// it (Load). A result is discarded when a newer fetch has superseded it or
// when the identity changed while it was in flight.
func (c *Cache) fetch(ctx context.Context, snap session.Snapshot, seq uint64, keepOnError bool) error {
	identity := snap.IdentityID()

	got, err := c.api.GetMine(ctx, snap.AccessToken)

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.fetchSeq {
		// A newer fetch owns the state now
		return nil
	}
	if cur := c.sessions.Current(); cur.IdentityID() != identity {
		// The session moved on while the fetch was in flight. Applying the
		// result now would leak identity A's profile into identity B's cache.
		// The new identity has not attempted a load, so the latch reopens.
		c.logger.Debug("discarding fetch result for stale identity", "identity", identity)
		c.state = loadIdle
		return nil
	}

	c.state = loadSettled

	switch {
	case err == nil:
		c.company = got
		c.loadErr = nil
	case authapi.IsKind(err, authapi.KindNotFound):
		// Valid terminal state: this owner has no company yet
		c.company = nil
		c.loadErr = nil
	case authapi.IsKind(err, authapi.KindUnauthorized):
		// Stale token; keep whatever we had
		c.loadErr = err
	default:
		if !keepOnError {
			c.company = nil
		}
		c.loadErr = err
	}
	return c.loadErr
}

// Update applies a partial update through the remote API and replaces the
// cached company with the server's response. It requires a cached company;
// errors are recorded and returned, since a failed user-initiated mutation
// must not look like a success.
func (c *Cache) Update(ctx context.Context, patch Patch) (*Company, error) {
	snap := c.sessions.Current()

	c.mu.Lock()
	if c.company == nil {
		c.mu.Unlock()
		return nil, ErrNoCompany
	}
	id := c.company.ID
	c.mu.Unlock()

	got, err := c.api.Update(ctx, snap.AccessToken, id, patch)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.loadErr = err
		return nil, err
	}

	c.company = got
	c.loadErr = nil
	c.state = loadSettled // holding an entity latches the identity
	return got, nil
}

// Clear empties the entity, error, and loading flag without touching the
// latch. The logout transition resets the latch itself, separately, so the
// two resets cannot race each other.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Cache) clearLocked() {
	c.company = nil
	c.loadErr = nil
	if c.state == loadInFlight {
		c.state = loadSettled
	}
}

// eligible reports whether the settled session may own a company: an
// authenticated owner. The cache is scoped to the owner role.
func eligible(snap session.Snapshot) bool {
	return snap.Authenticated && snap.User != nil && snap.User.Role == authapi.RoleOwner
}
