package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
)

// GitHubService is the credential service name under which tokens are stored.
const GitHubService = "github"

// ClientFactory builds an upstream client bound to one token.
type ClientFactory func(token string) driven.GitHubClient

type cachedClient struct {
	token  string
	client driven.GitHubClient
}

// SourceProvider hands out upstream clients bound to each user's own
// credential. Clients are cached per user and rebuilt when the user's token
// changes, so each client's HTTP cache survives between requests.
type SourceProvider struct {
	mu            sync.Mutex
	creds         driven.CredentialStore
	fallbackToken string
	newClient     ClientFactory
	clients       map[int64]cachedClient
}

// NewSourceProvider creates a provider. fallbackToken is used for users with
// no stored credential and may be empty.
func NewSourceProvider(creds driven.CredentialStore, fallbackToken string, newClient ClientFactory) *SourceProvider {
	return &SourceProvider{
		creds:         creds,
		fallbackToken: fallbackToken,
		newClient:     newClient,
		clients:       make(map[int64]cachedClient),
	}
}

// ForUser returns a client authenticated as userID. It returns
// ErrNoCredential when neither a stored nor a fallback token exists.
func (p *SourceProvider) ForUser(ctx context.Context, userID int64) (driven.GitHubClient, error) {
	token, err := p.token(ctx, userID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[userID]; ok && c.token == token {
		return c.client, nil
	}

	client := p.newClient(token)
	p.clients[userID] = cachedClient{token: token, client: client}
	return client, nil
}

func (p *SourceProvider) token(ctx context.Context, userID int64) (string, error) {
	token, err := p.creds.Get(ctx, userID, GitHubService)
	if err != nil && !errors.Is(err, driven.ErrEncryptionKeyNotSet) {
		return "", fmt.Errorf("load credential for user %d: %w", userID, err)
	}
	if token == "" {
		token = p.fallbackToken
	}
	if token == "" {
		return "", fmt.Errorf("user %d: %w", userID, ErrNoCredential)
	}
	return token, nil
}

// SetToken validates token against the upstream tracker and stores it as
// the user's credential. It returns the login the token belongs to.
func (p *SourceProvider) SetToken(ctx context.Context, userID int64, token string, validator driven.TokenValidator) (string, error) {
	if token == "" {
		return "", validationErrorf("token is required")
	}

	login, err := validator.ValidateToken(ctx, token)
	if err != nil {
		return "", err
	}

	if err := p.creds.Set(ctx, userID, GitHubService, token); err != nil {
		return "", err
	}

	p.mu.Lock()
	delete(p.clients, userID)
	p.mu.Unlock()

	return login, nil
}

// ClearToken removes the user's stored credential.
func (p *SourceProvider) ClearToken(ctx context.Context, userID int64) error {
	if err := p.creds.Delete(ctx, userID, GitHubService); err != nil {
		return err
	}

	p.mu.Lock()
	delete(p.clients, userID)
	p.mu.Unlock()
	return nil
}
