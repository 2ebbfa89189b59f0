// Package company caches the owner's company profile in lockstep with the
// session identity.
//
// The Cache holds at most one Company, scoped to the signed-in owner. It
// consumes session settlements (HandleSettlement) and classifies each one as
// initial mount, login, logout, user switch, or no change, resetting or
// reloading accordingly so that one user's cached profile can never leak into
// another user's session.
//
// A per-identity load latch prevents unbounded refetching: once a load has
// been attempted for an identity — whatever the outcome, including "this
// owner has no company yet" — no further automatic load happens until the
// identity changes. Refresh bypasses the latch for explicit re-fetches.
package company
