package shared

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// keyTable mimics idempotency_keys with ON CONFLICT DO NOTHING semantics.
type keyTable struct {
	keys map[string]time.Time
}

func (k *keyTable) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	switch {
	case len(args) == 3:
		key := args[0].(string)
		if _, ok := k.keys[key]; ok {
			return pgconn.NewCommandTag("INSERT 0 0"), nil
		}
		k.keys[key] = args[2].(time.Time)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case len(args) == 1:
		if key, ok := args[0].(string); ok {
			delete(k.keys, key)
			return pgconn.NewCommandTag("DELETE 1"), nil
		}
		cutoff := args[0].(time.Time)
		n := 0
		for key, at := range k.keys {
			if at.Before(cutoff) {
				delete(k.keys, key)
				n++
			}
		}
		return pgconn.NewCommandTag("DELETE " + strconv.Itoa(n)), nil
	}
	return pgconn.CommandTag{}, nil
}

func TestIdempotencyClaimIsScoped(t *testing.T) {
	table := &keyTable{keys: map[string]time.Time{}}
	store := NewIdempotencyStore(table)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "req-1", IdempotencyInvoiceCreate))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "req-1", IdempotencyInvoiceCreate), ErrIdempotencyConflict)
	require.NoError(t, store.CheckAndInsert(ctx, "req-1", IdempotencyInvoicePayment))

	require.NoError(t, store.Delete(ctx, "req-1", IdempotencyInvoiceCreate))
	require.NoError(t, store.CheckAndInsert(ctx, "req-1", IdempotencyInvoiceCreate))

	err := store.CheckAndInsert(ctx, "", IdempotencyInvoiceCreate)
	require.ErrorIs(t, err, ErrValidation)
}

func TestIdempotencyCleanupHonoursRetention(t *testing.T) {
	table := &keyTable{keys: map[string]time.Time{}}
	now := time.Date(2026, 4, 14, 12, 0, 0, 0, time.UTC)
	store := NewIdempotencyStore(table)
	store.now = func() time.Time { return now }

	table.keys["sales.invoice:old"] = now.Add(-100 * time.Hour)
	table.keys["sales.invoice:fresh"] = now.Add(-time.Hour)

	n, err := store.Cleanup(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Contains(t, table.keys, "sales.invoice:fresh")

	_, err = store.Cleanup(context.Background(), 0)
	require.ErrorIs(t, err, ErrValidation)
}
