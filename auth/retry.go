package auth

import (
	"context"
	"fmt"
)

// WithRefresh runs call with the current token. When call reports an explicit
// 401 or 403 the token is refreshed and call runs exactly once more; any other
// failure, including network errors and 5xx, is returned as is.
func WithRefresh(ctx context.Context, m *TokenManager, call func(ctx context.Context, token string) error) error {
	token, err := m.Token(ctx, true)
	if err != nil {
		return err
	}

	err = call(ctx, token)
	if err == nil || !IsUnauthorized(err) {
		return err
	}

	m.logger.Printf("[WARN] [auth] request rejected with %d, refreshing token and retrying once", StatusOf(err))
	token, rerr := m.Refresh(ctx)
	if rerr != nil {
		return fmt.Errorf("refresh after %w: %w", err, rerr)
	}
	return call(ctx, token)
}
