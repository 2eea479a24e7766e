package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, +/- fraction of the delay
	MaxSameErrorType int     // after N consecutive same-type errors, give up
}

// DefaultConfig returns defaults for database operations:
// 3 retries starting at 50ms, capped at 2s, doubling each time, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     50 * time.Millisecond,
		MaxDelay:         2 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Postgres SQLSTATE codes that indicate a transient failure.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeTooManyConnections   = "53300"
	codeAdminShutdown        = "57P01"
)

var retryablePGCodes = map[string]bool{
	codeSerializationFailure: true,
	codeDeadlockDetected:     true,
	codeLockNotAvailable:     true,
	codeTooManyConnections:   true,
	codeAdminShutdown:        true,
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"timed out",
	"too many connections",
	"deadlock",
}

// IsRetryable reports whether err is a transient failure worth retrying.
// Postgres errors are classified by SQLSTATE; other errors by message.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryablePGCodes[pgErr.Code]
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// classifyErrorType returns a coarse category used to detect repeated failures.
func classifyErrorType(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return "pg_" + pgErr.Code
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection"):
		return "connection"
	case strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout"):
		return "timeout"
	}
	return "unknown"
}

// Do executes fn with exponential backoff until it succeeds or retries run out.
// Respects context cancellation during wait periods.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxRetries {
			break
		}
		if err := wait(ctx, &delay, cfg); err != nil {
			return err
		}
	}
	return lastErr
}

// DoIfRetryable is like Do but returns immediately on errors IsRetryable rejects.
// After MaxSameErrorType consecutive failures of one type it gives up early.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	return DoWhen(ctx, cfg, IsRetryable, fn)
}

// DoWhen is DoIfRetryable with a caller-supplied retryable predicate.
func DoWhen(ctx context.Context, cfg *Config, retryable func(error) bool, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	var lastType string
	sameCount := 0
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}

		errType := classifyErrorType(lastErr)
		if errType == lastType {
			sameCount++
			if cfg.MaxSameErrorType > 0 && sameCount >= cfg.MaxSameErrorType {
				return fmt.Errorf("repeated error (%d times, type=%s): %w", sameCount, errType, lastErr)
			}
		} else {
			sameCount = 1
			lastType = errType
		}

		if attempt == cfg.MaxRetries {
			break
		}
		if err := wait(ctx, &delay, cfg); err != nil {
			return err
		}
	}
	return lastErr
}

func wait(ctx context.Context, delay *time.Duration, cfg *Config) error {
	timer := time.NewTimer(applyJitter(*delay, cfg.JitterFactor))
	defer timer.Stop()

	select {
	case <-timer.C:
		*delay = time.Duration(float64(*delay) * cfg.Multiplier)
		if *delay > cfg.MaxDelay {
			*delay = cfg.MaxDelay
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
