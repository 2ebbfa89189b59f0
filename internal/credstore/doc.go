// Package credstore persists the client's credential triple — access token,
// refresh token, and the user snapshot they belong to — in a local SQLite
// database.
//
// The Store interface is a plain key-value contract with no transactions.
// The triple helpers (LoadCredentials, SaveCredentials, ClearCredentials)
// sequence the three keys so that no caller ever observes a partial triple:
// a partially written record reads back as ErrNotFound.
//
// MockStore provides an in-memory implementation for tests, with optional
// per-operation error injection.
package credstore
