package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// DefaultRevokeURL is the host platform's token revocation endpoint.
const DefaultRevokeURL = "https://accounts.google.com/o/oauth2/revoke"

// Identity is the platform subsystem that issues and caches bearer tokens.
type Identity interface {
	GetAuthToken(ctx context.Context, interactive bool) (string, error)
	RemoveCachedAuthToken(ctx context.Context, token string) error
}

// Forgetter is implemented by identities that can drop every stored credential.
type Forgetter interface {
	Forget(ctx context.Context) error
}

// TokenManager is the single owner of the current bearer token.
type TokenManager struct {
	identity  Identity
	revokeURL string
	client    *http.Client
	logger    *log.Logger
	verbose   bool

	mu      sync.Mutex
	current string
}

// NewTokenManager builds a manager over identity. An empty revokeURL disables
// remote revocation.
func NewTokenManager(identity Identity, revokeURL string, client *http.Client, logger *log.Logger, verbose bool) (*TokenManager, error) {
	if identity == nil {
		return nil, errors.New("identity is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &TokenManager{
		identity:  identity,
		revokeURL: revokeURL,
		client:    client,
		logger:    logger,
		verbose:   verbose,
	}, nil
}

func (m *TokenManager) infof(format string, args ...interface{}) {
	if !m.verbose {
		return
	}
	m.logger.Printf("[INFO] [auth] "+format, args...)
}

// Token returns a bearer token. Non-interactive calls never prompt and fail
// with ErrNoToken; interactive failures are ErrAuthDenied.
func (m *TokenManager) Token(ctx context.Context, interactive bool) (string, error) {
	token, err := m.identity.GetAuthToken(ctx, interactive)
	if err == nil && token == "" {
		err = ErrNoToken
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &AuthError{Op: "get token", Err: classify(err, interactive)}
	}

	m.mu.Lock()
	m.current = token
	m.mu.Unlock()
	return token, nil
}

func classify(err error, interactive bool) error {
	if errors.Is(err, ErrNoToken) || errors.Is(err, ErrAuthDenied) {
		if interactive && errors.Is(err, ErrNoToken) {
			return fmt.Errorf("%w: %w", ErrAuthDenied, err)
		}
		return err
	}
	if interactive {
		return fmt.Errorf("%w: %w", ErrAuthDenied, err)
	}
	return fmt.Errorf("%w: %w", ErrNoToken, err)
}

// Invalidate drops token from the local cache, then revokes it remotely on a
// best-effort basis. Only the local removal can fail the call.
func (m *TokenManager) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.identity.RemoveCachedAuthToken(ctx, token); err != nil {
		return &AuthError{Op: "remove cached token", Err: err}
	}

	m.mu.Lock()
	if m.current == token {
		m.current = ""
	}
	m.mu.Unlock()

	if err := m.revoke(ctx, token); err != nil {
		m.logger.Printf("[WARN] [auth] %v", err)
	} else if m.revokeURL != "" {
		m.infof("revoked token")
	}
	return nil
}

// Refresh invalidates the current token, if any, and interactively obtains a new one.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	stale := m.current
	m.mu.Unlock()

	if err := m.Invalidate(ctx, stale); err != nil {
		return "", err
	}
	m.infof("refreshing token")
	return m.Token(ctx, true)
}

// Clear invalidates the current token and forgets stored credentials.
func (m *TokenManager) Clear(ctx context.Context) error {
	m.mu.Lock()
	stale := m.current
	m.mu.Unlock()

	if stale == "" {
		if tok, err := m.identity.GetAuthToken(ctx, false); err == nil {
			stale = tok
		}
	}
	if err := m.Invalidate(ctx, stale); err != nil {
		return err
	}
	if f, ok := m.identity.(Forgetter); ok {
		if err := f.Forget(ctx); err != nil {
			return &AuthError{Op: "forget credentials", Err: err}
		}
	}
	return nil
}

func (m *TokenManager) revoke(ctx context.Context, token string) error {
	if m.revokeURL == "" {
		return nil
	}
	u := m.revokeURL + "?token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &RevokeError{Err: err}
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return &RevokeError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &RevokeError{Status: resp.StatusCode}
	}
	return nil
}
