package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const jwtSecretKey = "jwt_secret"

// GetJWTSecret returns the key signing session tokens. The first start
// stores a random key; servers starting together all read the one stored.
func GetJWTSecret(ctx context.Context, db Querier) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating session key: %w", err)
	}
	return initSetting(ctx, db, jwtSecretKey, hex.EncodeToString(buf))
}

// initSetting stores value under key unless key is already set, and returns
// the stored value.
func initSetting(ctx context.Context, db Querier, key, value string) (string, error) {
	var stored string
	err := db.QueryRowContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = settings.value
		 RETURNING value`,
		key, value,
	).Scan(&stored)
	if err != nil {
		return "", fmt.Errorf("reading setting %s: %w", key, err)
	}
	return stored, nil
}
