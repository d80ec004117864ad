package driven

import (
	"context"
	"errors"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// ISSUETRIAGE_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set ISSUETRIAGE_SECRET_KEY")

// CredentialStore defines the driven port for encrypted per-user credential
// persistence. The adapter encrypts and decrypts; this interface operates on
// plaintext values.
type CredentialStore interface {
	// Set stores or replaces the user's credential for the given service.
	Set(ctx context.Context, userID int64, service, plaintext string) error

	// Get returns the user's plaintext credential for the service, or
	// ("", nil) if none is stored.
	Get(ctx context.Context, userID int64, service string) (string, error)

	Delete(ctx context.Context, userID int64, service string) error
}
