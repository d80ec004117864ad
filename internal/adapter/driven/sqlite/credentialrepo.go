package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Values are sealed with AES-256-GCM. The (user, service) pair is bound in as
// additional data, so a ciphertext moved to another user's row fails to open.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable credential storage (all operations will return ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key}
}

// Set stores or replaces the user's credential for the given service.
func (r *CredentialRepo) Set(ctx context.Context, userID int64, service, plaintext string) error {
	encrypted, err := r.seal(userID, service, plaintext)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO credentials (user_id, service, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, service) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	_, err = r.db.Writer.ExecContext(ctx, query, userID, service, encrypted)
	if err != nil {
		return fmt.Errorf("set credential %q for user %d: %w", service, userID, err)
	}
	return nil
}

// Get retrieves the user's plaintext credential for the given service.
// Returns ("", nil) if no credential exists.
func (r *CredentialRepo) Get(ctx context.Context, userID int64, service string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT value FROM credentials WHERE user_id = ? AND service = ?`
	var encrypted string
	err := r.db.Reader.QueryRowContext(ctx, query, userID, service).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get credential %q for user %d: %w", service, userID, err)
	}

	plaintext, err := r.open(userID, service, encrypted)
	if err != nil {
		return "", fmt.Errorf("decrypt credential %q for user %d: %w", service, userID, err)
	}
	return plaintext, nil
}

// Delete removes the user's credential for the given service.
func (r *CredentialRepo) Delete(ctx context.Context, userID int64, service string) error {
	const query = `DELETE FROM credentials WHERE user_id = ? AND service = ?`
	_, err := r.db.Writer.ExecContext(ctx, query, userID, service)
	if err != nil {
		return fmt.Errorf("delete credential %q for user %d: %w", service, userID, err)
	}
	return nil
}

// credentialAAD is the additional data binding a ciphertext to its row.
func credentialAAD(userID int64, service string) []byte {
	return []byte(strconv.FormatInt(userID, 10) + "/" + service)
}

func (r *CredentialRepo) aead() (cipher.AEAD, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return gcm, nil
}

// seal encrypts plaintext and returns base64(nonce || ciphertext || tag).
func (r *CredentialRepo) seal(userID int64, service, plaintext string) (string, error) {
	gcm, err := r.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), credentialAAD(userID, service))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// open reverses seal for the same user and service.
func (r *CredentialRepo) open(userID int64, service, encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := r.aead()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], credentialAAD(userID, service))
	if err != nil {
		return "", fmt.Errorf("gcm open: %w", err)
	}
	return string(plaintext), nil
}
