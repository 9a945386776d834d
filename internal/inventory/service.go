package inventory

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gemledger/gemledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDiamond(ctx context.Context, id int64) (Diamond, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates diamond stock state outside of invoicing.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Get returns a diamond by id.
func (s *Service) Get(ctx context.Context, id int64) (Diamond, error) {
	if id <= 0 {
		return Diamond{}, shared.Validationf("diamond id required")
	}
	return s.repo.GetDiamond(ctx, id)
}

// Reserve moves an in-stock diamond into a cart.
func (s *Service) Reserve(ctx context.Context, id int64) (Diamond, error) {
	return s.move(ctx, id, StatusInCart, "inventory:diamond.reserve")
}

// Release returns a reserved diamond to stock.
func (s *Service) Release(ctx context.Context, id int64) (Diamond, error) {
	return s.move(ctx, id, StatusInStock, "inventory:diamond.release")
}

func (s *Service) move(ctx context.Context, id int64, to Status, action string) (Diamond, error) {
	if id <= 0 {
		return Diamond{}, shared.Validationf("diamond id required")
	}
	var out Diamond
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetDiamondForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if to == StatusInCart && d.Quantity <= 0 {
			return ErrInsufficientStock
		}
		if to == StatusInStock && d.Status != StatusInCart {
			return ErrInvalidTransition
		}
		if err := Transition(d.Status, to); err != nil {
			return err
		}
		from := d.Status
		d.Status = to
		if err := tx.UpdateStock(ctx, d); err != nil {
			return err
		}
		out = d
		s.logger.Info("diamond status changed", slog.Int64("diamond_id", id), slog.String("from", string(from)), slog.String("to", string(to)))
		return nil
	})
	if err != nil {
		return Diamond{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "diamond", EntityID: strconv.FormatInt(id, 10), Meta: map[string]any{"status": string(to)}}); err != nil {
			s.logger.Warn("audit diamond status", slog.Any("error", err))
		}
	}
	return out, nil
}
