// Package session owns the client's authenticated session.
//
// # Lifecycle
//
// A Manager starts empty and moves through the session lifecycle:
//
//   - Restore: run once at startup. Reads the stored credential triple,
//     verifies the access token (bounded by the configured timeout), falls
//     back to a single refresh attempt, and settles either authenticated or
//     unauthenticated. Auth failures here are a normal outcome, never an
//     error to the caller.
//   - Login / Signup: exchange credentials for a token pair, persist it, and
//     adopt it. Failures are returned to the caller and leave the session
//     untouched.
//   - RefreshAccessToken: explicit refresh with the held refresh token. A
//     remote failure is fatal for the session (forced logout) and returned.
//   - Logout: best-effort clear of the store and reset to empty. Never fails.
//
// # Settlements
//
// Every operation that reaches a final state publishes exactly one Settlement
// carrying the final Snapshot. Intermediate states are never published, so a
// subscriber can never observe a loading session as if it were final.
// Subscribe in the same pattern as any fan-out consumer:
//
//	ch, id := mgr.Subscribe(ctx)
//	defer mgr.Unsubscribe(id)
//	for st := range ch { ... }
//
// The access and refresh tokens are held and cleared together with the user
// they belong to; no snapshot ever carries one without the other.
package session
