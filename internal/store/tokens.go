package store

import (
	"context"
	"fmt"
	"time"
)

// RevokeToken puts a session token on the deny list until expiresAt, when
// the token stops validating on its own. Revoking twice is a no-op.
func RevokeToken(ctx context.Context, db Querier, jti string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?)
		 ON CONFLICT (jti) DO NOTHING`,
		jti, expiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("revoking session token: %w", err)
	}
	return nil
}

// IsTokenRevoked reports whether a session token was logged out.
func IsTokenRevoked(ctx context.Context, db Querier, jti string) (bool, error) {
	var revoked bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = ?)`, jti,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("checking session token: %w", err)
	}
	return revoked, nil
}

// PruneRevokedTokens drops deny list entries of tokens expired before now
// and returns how many it dropped.
func PruneRevokedTokens(ctx context.Context, db Querier, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning revoked tokens: %w", err)
	}
	return res.RowsAffected()
}
