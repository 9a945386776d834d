package shared

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Scopes under which idempotency keys are claimed. The same client key may be
// reused across scopes.
const (
	IdempotencyInvoiceCreate  = "sales.invoice"
	IdempotencySellerPayment  = "ap.seller_payment"
	IdempotencyInvoicePayment = "ar.payment"
)

// ErrIdempotencyConflict is returned when a key was already claimed in its scope.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore claims request keys in idempotency_keys so a retried write
// is applied at most once.
type IdempotencyStore struct {
	db  Execer
	now func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(db Execer) *IdempotencyStore {
	return &IdempotencyStore{db: db, now: time.Now}
}

func scopedKey(scope, key string) string {
	return scope + ":" + key
}

// CheckAndInsert claims key within scope, returning ErrIdempotencyConflict if
// it is already taken.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, scope string) error {
	if s == nil || s.db == nil {
		return errors.New("idempotency: store not initialised")
	}
	fields := FieldErrors{}
	if key == "" {
		fields["idempotency_key"] = "is required"
	}
	if scope == "" {
		fields["scope"] = "is required"
	}
	if len(fields) > 0 {
		return fields
	}
	tag, err := s.db.Exec(ctx,
		`INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`,
		scopedKey(scope, key), scope, s.now().UTC())
	if err != nil {
		return fmt.Errorf("idempotency: claim %s: %w", scope, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Delete releases a claimed key so the request can be retried after a failure.
func (s *IdempotencyStore) Delete(ctx context.Context, key, scope string) error {
	if s == nil || s.db == nil || key == "" {
		return nil
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, scopedKey(scope, key)); err != nil {
		return fmt.Errorf("idempotency: release %s: %w", scope, err)
	}
	return nil
}

// Cleanup drops keys claimed more than retention ago and returns the count.
func (s *IdempotencyStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if retention <= 0 {
		return 0, Validationf("retention must be positive, got %s", retention)
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-retention).UTC())
	if err != nil {
		return 0, fmt.Errorf("idempotency: cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}
