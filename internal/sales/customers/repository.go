package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gemledger/gemledger/internal/platform/db"
	"github.com/gemledger/gemledger/internal/shared"
)

// ErrClientNotFound indicates a missing client row.
var ErrClientNotFound = fmt.Errorf("%w: client", shared.ErrNotFound)

// Store reads and writes clients on a pool or inside a caller's transaction.
type Store struct {
	db db.DBTX
}

// NewStore wraps q.
func NewStore(q db.DBTX) *Store {
	return &Store{db: q}
}

// Get loads a client by id.
func (s *Store) Get(ctx context.Context, id int64) (Client, error) {
	var c Client
	err := s.db.QueryRow(ctx, `SELECT id, name, email, phone, country, currency, created_at FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Country, &c.Currency, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, fmt.Errorf("%w %d", ErrClientNotFound, id)
	}
	if err != nil {
		return Client{}, fmt.Errorf("customers: get: %w", err)
	}
	return c, nil
}

// Create inserts a client and returns it with its id.
func (s *Store) Create(ctx context.Context, in NewClient) (Client, error) {
	c := Client{Name: in.Name, Email: in.Email, Phone: in.Phone, Country: in.Country, Currency: in.Currency}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	err := s.db.QueryRow(ctx, `INSERT INTO clients (name, email, phone, country, currency) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		c.Name, c.Email, c.Phone, c.Country, c.Currency).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return Client{}, fmt.Errorf("customers: create: %w", err)
	}
	return c, nil
}
