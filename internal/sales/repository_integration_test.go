//go:build integration

package sales

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gemledger/gemledger/internal/ar"
	"github.com/gemledger/gemledger/internal/inventory"
	"github.com/gemledger/gemledger/internal/money"
	"github.com/gemledger/gemledger/internal/platform/db"
	"github.com/gemledger/gemledger/internal/shared"
	ledgertest "github.com/gemledger/gemledger/testing"
)

func TestPostgresInvoiceLifecycle(t *testing.T) {
	pool := ledgertest.NewPostgres(t)
	ledgertest.Exec(t, pool,
		`INSERT INTO clients (id, name, country, currency) VALUES (1, 'Mumbai Traders', 'India', 'INR')`,
		`INSERT INTO diamonds (id, stock_no, cost_price, discount_pct, quantity) VALUES (1, 'GL-1', 1000, 10, 1), (2, 'GL-2', 50, 0, 3)`,
	)
	ctx := context.Background()
	repo := NewRepository(pool, db.TxPolicy{Timeout: 5 * time.Second, Retries: 3, Backoff: 10 * time.Millisecond})
	svc := NewService(repo, money.NewGSTStrategy(0.75, 0.75, "27AAACG1234F1Z5"), shared.NewAuditLogger(pool), shared.NewIdempotencyStore(pool), nil, discardLogger())
	stock := inventory.NewRepository(pool)

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		ClientID:     1,
		ExchangeRate: 85,
		DueDays:      30,
		Items: []LineInput{
			{DiamondID: 1, Quantity: 1, SalePrice: 1200},
			{DiamondID: 2, Quantity: 2, SalePrice: 100},
		},
		IdempotencyKey: "it-1",
	})
	require.NoError(t, err)
	require.Regexp(t, `^INV-\d{6}-\d{6}$`, inv.Number)

	got, err := svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, ar.StatusPending, got.PaymentStatus)
	require.Equal(t, 1400.0, got.SubtotalUSD)
	require.Equal(t, 119000.0, got.SubtotalClient)
	require.Equal(t, 892.5, got.CGSTAmount)
	require.Equal(t, 120785.0, got.GrandTotalClient)
	require.Equal(t, got.GrandTotalClient, got.BalanceDue)
	require.Len(t, got.Items, 2)
	require.Equal(t, 300.0, got.Items[0].Profit)

	d1, err := stock.GetDiamond(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, inventory.StatusSold, d1.Status)
	d2, err := stock.GetDiamond(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 1, d2.Quantity)

	require.NoError(t, svc.DeleteInvoice(ctx, inv.ID))
	d1, err = stock.GetDiamond(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, d1.Quantity)
	require.Equal(t, inventory.StatusInStock, d1.Status)
	d2, err = stock.GetDiamond(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 3, d2.Quantity)

	_, err = svc.GetInvoice(ctx, inv.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPostgresConcurrentCreateSameDiamond(t *testing.T) {
	pool := ledgertest.NewPostgres(t)
	ledgertest.Exec(t, pool,
		`INSERT INTO clients (id, name) VALUES (1, 'Client')`,
		`INSERT INTO diamonds (id, stock_no, cost_price, quantity) VALUES (7, 'GL-7', 100, 1)`,
	)
	repo := NewRepository(pool, db.TxPolicy{Timeout: 5 * time.Second, Retries: 5, Backoff: 5 * time.Millisecond})
	svc := NewService(repo, money.NoTax{}, nil, nil, nil, discardLogger())

	const workers = 6
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
				ClientID: 1,
				Items:    []LineInput{{DiamondID: 7, Quantity: 1, SalePrice: 150}},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.True(t, errors.Is(err, shared.ErrConflict), "unexpected error: %v", err)
	}
	require.Equal(t, 1, ok)

	var items int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM invoice_items WHERE diamond_id = 7`).Scan(&items))
	require.Equal(t, 1, items)
}
