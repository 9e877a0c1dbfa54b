// Package pharmacies is the read side of the pharmacy directory plus the admin
// commission-rate update.
package pharmacies

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/pkg/auth"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	pkgerrors "github.com/farmolink/farmolink-backend/pkg/errors"
)

var maxRate = decimal.NewFromInt(100)

type Service interface {
	ListEligible(ctx context.Context) ([]models.Pharmacy, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error)
	EnsureEligible(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Pharmacy, error)
	UpdateCommissionRate(ctx context.Context, actor auth.Actor, id uuid.UUID, rate *decimal.Decimal) (*models.Pharmacy, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("pharmacies repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListEligible(ctx context.Context) ([]models.Pharmacy, error) {
	rows, err := s.repo.ListEligible(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pharmacies")
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error) {
	pharmacy, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pharmacy not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pharmacy")
	}
	return pharmacy, nil
}

// EnsureEligible loads every id and fails with a validation error naming the
// ids that are unknown, not approved, or unavailable.
func (s *service) EnsureEligible(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Pharmacy, error) {
	rows, err := s.repo.WithTx(tx).FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pharmacies")
	}
	byID := make(map[uuid.UUID]models.Pharmacy, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	var ineligible []string
	ordered := make([]models.Pharmacy, 0, len(ids))
	for _, id := range ids {
		row, ok := byID[id]
		if !ok || !row.Eligible() {
			ineligible = append(ineligible, id.String())
			continue
		}
		ordered = append(ordered, row)
	}
	if len(ineligible) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pharmacies not available").
			WithDetails(map[string]any{"pharmacy_ids": ineligible})
	}
	return ordered, nil
}

// UpdateCommissionRate sets or clears the rate used for future orders. Orders
// already placed keep the commission frozen on them.
func (s *service) UpdateCommissionRate(ctx context.Context, actor auth.Actor, id uuid.UUID, rate *decimal.Decimal) (*models.Pharmacy, error) {
	if !actor.Is(enums.ActorRoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if rate != nil && (rate.IsNegative() || rate.GreaterThan(maxRate)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be between 0 and 100")
	}
	affected, err := s.repo.UpdateCommissionRate(ctx, id, rate)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update commission rate")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pharmacy not found")
	}
	return s.Get(ctx, id)
}
