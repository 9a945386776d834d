package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTxRetriesExhausted is returned when every attempt hit a retryable conflict.
var ErrTxRetriesExhausted = errors.New("platform/db: transaction retries exhausted")

// TxPolicy bounds a multi-row ledger transaction.
type TxPolicy struct {
	// Timeout applies to each attempt. Zero disables the per-attempt deadline.
	Timeout time.Duration
	// Retries is the number of additional attempts after a serialization
	// failure or deadlock.
	Retries int
	// Backoff is the base delay between attempts; it grows linearly.
	Backoff time.Duration
	// IsoLevel defaults to RepeatableRead. Paths that serialise on an advisory
	// lock and then re-read rows FOR UPDATE should use ReadCommitted, since a
	// RepeatableRead snapshot is taken before the lock is granted.
	IsoLevel pgx.TxIsoLevel
}

// WithIsoLevel returns a copy of p running at level.
func (p TxPolicy) WithIsoLevel(level pgx.TxIsoLevel) TxPolicy {
	p.IsoLevel = level
	return p
}

func (p TxPolicy) normalized() TxPolicy {
	if p.Timeout == 0 && p.Retries == 0 && p.Backoff == 0 {
		level := p.IsoLevel
		p = DefaultTxPolicy
		p.IsoLevel = level
	}
	if p.IsoLevel == "" {
		p.IsoLevel = pgx.RepeatableRead
	}
	return p
}

// DefaultTxPolicy is used when callers pass a zero policy.
var DefaultTxPolicy = TxPolicy{Timeout: 5 * time.Second, Retries: 3, Backoff: 20 * time.Millisecond}

// Beginner starts transactions. Satisfied by *pgxpool.Pool and pgx.Tx.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	return withTx(ctx, pool, pgx.RepeatableRead, fn)
}

func withTx(ctx context.Context, b Beginner, level pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	tx, err := b.BeginTx(ctx, pgx.TxOptions{IsoLevel: level})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// RunInTx runs fn inside a transaction at policy.IsoLevel, retrying the whole
// attempt on serialization failures and deadlocks. Each attempt is bounded by
// policy.Timeout. fn must be safe to re-run: it receives a fresh transaction
// every time and must not retain state across attempts.
func RunInTx(ctx context.Context, b Beginner, policy TxPolicy, fn func(context.Context, pgx.Tx) error) error {
	policy = policy.normalized()
	attempts := policy.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, policy.Backoff*time.Duration(attempt)); err != nil {
				return err
			}
		}
		lastErr = runAttempt(ctx, b, policy, fn)
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%w: %w", ErrTxRetriesExhausted, lastErr)
}

func runAttempt(ctx context.Context, b Beginner, policy TxPolicy, fn func(context.Context, pgx.Tx) error) error {
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}
	return withTx(ctx, b, policy.IsoLevel, func(tx pgx.Tx) error {
		return fn(ctx, tx)
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
