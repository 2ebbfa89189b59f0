// ABOUTME: Store interface and credential keys for durable token persistence
// ABOUTME: Defines the key-value contract and the credential triple helpers built on it

package credstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested key does not exist
var ErrNotFound = errors.New("not found")

// Credential keys. The three keys form a single logical record: the session
// layer never acts on a partial triple.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserSnapshot = "user_snapshot"
)

// Store is a durable key-value store for credentials. Implementations have no
// transaction support; callers sequence multi-key reads and writes.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Credentials is the stored triple: bearer tokens plus the JSON-encoded user
// snapshot they were issued for.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	UserSnapshot string
}

// LoadCredentials reads the credential triple from the store. A missing or
// partially written triple is reported as ErrNotFound — a torn write from a
// crashed process reads back as "no stored session" rather than as a session
// with pieces missing.
func LoadCredentials(ctx context.Context, s Store) (*Credentials, error) {
	creds := &Credentials{}

	for _, entry := range []struct {
		key string
		dst *string
	}{
		{KeyAccessToken, &creds.AccessToken},
		{KeyRefreshToken, &creds.RefreshToken},
		{KeyUserSnapshot, &creds.UserSnapshot},
	} {
		value, err := s.Get(ctx, entry.key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("reading %s: %w", entry.key, err)
		}
		*entry.dst = value
	}

	return creds, nil
}

// SaveCredentials writes the credential triple. The user snapshot is written
// last so that an interrupted save leaves a partial triple, which
// LoadCredentials reports as absent.
func SaveCredentials(ctx context.Context, s Store, creds *Credentials) error {
	for _, entry := range []struct {
		key   string
		value string
	}{
		{KeyAccessToken, creds.AccessToken},
		{KeyRefreshToken, creds.RefreshToken},
		{KeyUserSnapshot, creds.UserSnapshot},
	} {
		if err := s.Set(ctx, entry.key, entry.value); err != nil {
			return fmt.Errorf("writing %s: %w", entry.key, err)
		}
	}

	return nil
}

// ClearCredentials removes all three credential keys. Removal of a missing key
// is not an error; the first real failure is returned after attempting all keys.
func ClearCredentials(ctx context.Context, s Store) error {
	var firstErr error
	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyUserSnapshot} {
		if err := s.Remove(ctx, key); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("removing %s: %w", key, err)
		}
	}
	return firstErr
}
