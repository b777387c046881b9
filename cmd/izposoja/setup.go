package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/izposoja/internal/config"
	"github.com/erazemk/izposoja/internal/cron"
	"github.com/erazemk/izposoja/internal/db"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/notify"
	"github.com/erazemk/izposoja/internal/reservation"
	"github.com/erazemk/izposoja/internal/store"
)

// initDatabase creates a new database, ensures the schema, and creates the admin user.
func initDatabase(path, adminUsername string) (*sql.DB, string, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	fail := func(err error) (*sql.DB, string, error) {
		database.Close()
		os.Remove(path)
		return nil, "", err
	}

	if err := db.EnsureSchema(database); err != nil {
		return fail(fmt.Errorf("ensuring schema: %w", err))
	}

	password, err := generatePassword(16)
	if err != nil {
		return fail(fmt.Errorf("generating password: %w", err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fail(fmt.Errorf("hashing password: %w", err))
	}

	if _, err := store.CreateUser(context.Background(), database, adminUsername, string(hash), model.RoleAdmin); err != nil {
		return fail(fmt.Errorf("creating admin user: %w", err))
	}

	return database, password, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath, username, password string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}

// notificationSinks returns the log sink and, when configured, the Redis
// sink. The returned function closes the Redis client.
func notificationSinks(ctx context.Context, cfg config.Config) ([]notify.Sink, func()) {
	sinks := []notify.Sink{notify.LogSink{Logger: slog.Default()}}
	if cfg.RedisAddr == "" {
		return sinks, func() {}
	}

	redisSink := notify.NewRedisSink(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisChannel)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisSink.Ping(pingCtx); err != nil {
		slog.Warn("redis unreachable, deliveries will fail until it is back", "addr", cfg.RedisAddr, "error", err)
	} else {
		slog.Info("publishing events to redis", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}
	return append(sinks, redisSink), func() { redisSink.Close() }
}

// dailySweep returns the job run once a day: automatic returns of expired
// reservations when enabled, reminders for overdue ones, and pruning of
// revoked tokens that have expired.
func dailySweep(database *sql.DB, engine *reservation.Engine, cfg config.Config) cron.Job {
	return func(ctx context.Context) error {
		var errs []error
		if cfg.AutomaticReturn {
			n, err := engine.AutoReturnExpired(ctx)
			if err != nil {
				errs = append(errs, fmt.Errorf("automatic return: %w", err))
			}
			slog.Info("automatic return finished", "reservations", n)
		}

		n, err := engine.RemindOverdue(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("overdue reminders: %w", err))
		}
		slog.Info("overdue reminders sent", "reservations", n)

		pruned, err := store.PruneRevokedTokens(ctx, database, time.Now())
		if err != nil {
			errs = append(errs, err)
		}
		slog.Debug("revoked tokens pruned", "count", pruned)
		return errors.Join(errs...)
	}
}
