// Package orders owns order creation and the order lifecycle state machine.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/internal/commission"
	"github.com/farmolink/farmolink-backend/pkg/auth"
	dbpkg "github.com/farmolink/farmolink-backend/pkg/db"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	pkgerrors "github.com/farmolink/farmolink-backend/pkg/errors"
	"github.com/farmolink/farmolink-backend/pkg/logger"
	"github.com/farmolink/farmolink-backend/pkg/metrics"
	"github.com/farmolink/farmolink-backend/pkg/outbox"
	"github.com/farmolink/farmolink-backend/pkg/outbox/payloads"
	"github.com/farmolink/farmolink-backend/pkg/pagination"
)

const idempotencyIndex = "ux_orders_customer_idempotency_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PharmacyLookup resolves the pharmacy an order is placed with.
type PharmacyLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error)
}

// PharmacyLookupFunc binds a lookup to the caller's transaction.
type PharmacyLookupFunc func(tx *gorm.DB) PharmacyLookup

// DuplicateGuard detects repeated submissions of the same order.
type DuplicateGuard interface {
	Lock(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, customerName string, total int64) error
	Check(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, customerName string, total int64, now time.Time) (*uuid.UUID, error)
	FindByKey(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, key string) (*uuid.UUID, error)
}

// Service defines order creation, lifecycle moves and reads.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	CreateOrderTx(ctx context.Context, tx *gorm.DB, input CreateOrderInput) (*CreateOrderResult, error)
	Advance(ctx context.Context, actor auth.Actor, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error)
	Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListForPharmacy(ctx context.Context, pharmacyID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (*OrderList, error)
}

// ServiceParams groups the collaborators of the order service.
type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Outbox      outbox.Emitter
	Pharmacies  PharmacyLookupFunc
	Guard       DuplicateGuard
	DefaultRate decimal.Decimal
	Metrics     *metrics.Marketplace
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	repo        Repository
	tx          txRunner
	outbox      outbox.Emitter
	pharmacies  PharmacyLookupFunc
	guard       DuplicateGuard
	defaultRate decimal.Decimal
	metrics     *metrics.Marketplace
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Pharmacies == nil {
		return nil, fmt.Errorf("pharmacy lookup required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("duplicate guard required")
	}
	rate := params.DefaultRate
	if rate.IsZero() {
		rate = commission.DefaultRate
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:        params.Repo,
		tx:          params.Tx,
		outbox:      params.Outbox,
		pharmacies:  params.Pharmacies,
		guard:       params.Guard,
		defaultRate: rate,
		metrics:     params.Metrics,
		logg:        logg,
		now:         now,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	var result *CreateOrderResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.CreateOrderTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !result.Duplicate {
		s.metrics.OrderCreated(string(input.Type), orderSource(input))
	}
	return result, nil
}

// CreateOrderTx places the order inside the caller's transaction. Quote
// acceptance uses it so the order commits or rolls back with the quote.
func (s *service) CreateOrderTx(ctx context.Context, tx *gorm.DB, input CreateOrderInput) (*CreateOrderResult, error) {
	input = normalizeInput(input)
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	if existing, err := s.findDuplicate(ctx, tx, input); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	pharmacy, err := s.pharmacies(tx).FindByID(ctx, input.PharmacyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "pharmacy not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pharmacy")
	}
	if !pharmacy.Eligible() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pharmacy is not accepting orders")
	}

	rate := commission.ResolveNullRate(pharmacy.CommissionRate, s.defaultRate)
	fee := commission.ComputeOrderCommission(input.Total, rate)

	order := &models.Order{
		CustomerID:       input.CustomerID,
		CustomerName:     input.CustomerName,
		CustomerPhone:    input.CustomerPhone,
		PharmacyID:       input.PharmacyID,
		PrescriptionID:   input.PrescriptionID,
		QuoteID:          input.QuoteID,
		Items:            input.Items,
		Total:            input.Total,
		Type:             input.Type,
		Address:          input.Address,
		Status:           enums.OrderStatusPending,
		CommissionRate:   decimal.NewNullDecimal(rate),
		CommissionAmount: &fee,
		CommissionStatus: enums.CommissionStatusPending,
		IdempotencyKey:   input.IdempotencyKey,
		CreatedAt:        s.now(),
	}

	repo := s.repo.WithTx(tx)
	if err := repo.Create(ctx, order); err != nil {
		if input.IdempotencyKey != nil && dbpkg.IsUniqueViolation(err, idempotencyIndex) {
			// a concurrent request with the same key won the insert
			id, findErr := s.guard.FindByKey(ctx, tx, input.CustomerID, *input.IdempotencyKey)
			if findErr == nil && id != nil {
				s.metrics.OrderDuplicate("idempotency_key")
				return &CreateOrderResult{OrderID: *id, Duplicate: true}, nil
			}
		}
		if input.QuoteID != nil && dbpkg.IsUniqueViolation(err, "ux_orders_quote_id") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "quote already has an order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.NewActorRef(input.CustomerID, nil, string(enums.ActorRoleCustomer)),
		Data: payloads.OrderCreatedEvent{
			OrderID:          order.ID,
			CustomerID:       order.CustomerID,
			PharmacyID:       order.PharmacyID,
			Type:             order.Type,
			Total:            order.Total,
			CommissionAmount: fee,
			QuoteID:          order.QuoteID,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order_created")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":    order.ID.String(),
		"pharmacy_id": order.PharmacyID.String(),
		"total":       order.Total,
		"commission":  fee,
	})
	s.logg.Info(logCtx, "order created")
	return &CreateOrderResult{OrderID: order.ID}, nil
}

func (s *service) findDuplicate(ctx context.Context, tx *gorm.DB, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.IdempotencyKey != nil {
		id, err := s.guard.FindByKey(ctx, tx, input.CustomerID, *input.IdempotencyKey)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency key")
		}
		if id != nil {
			s.metrics.OrderDuplicate("idempotency_key")
			return &CreateOrderResult{OrderID: *id, Duplicate: true}, nil
		}
		return nil, nil
	}

	if err := s.guard.Lock(ctx, tx, input.PharmacyID, input.CustomerName, input.Total); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock duplicate window")
	}
	id, err := s.guard.Check(ctx, tx, input.PharmacyID, input.CustomerName, input.Total, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check duplicate window")
	}
	if id != nil {
		s.metrics.OrderDuplicate("window")
		s.logg.Info(s.logg.WithField(ctx, "order_id", id.String()), "duplicate order submission suppressed")
		return &CreateOrderResult{OrderID: *id, Duplicate: true}, nil
	}
	return nil, nil
}

func (s *service) Advance(ctx context.Context, actor auth.Actor, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !target.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", target)
	}

	var updated *models.Order
	var from enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := loadOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if err := authorizeParticipant(actor, order); err != nil {
			return err
		}
		if err := checkTransition(order.Status, target, actor.Role, order.Type); err != nil {
			return err
		}

		from = order.Status
		affected, err := repo.UpdateStatus(ctx, order.ID, order.Status, target)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "order status changed, refresh")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.NewActorRef(actor.UserID, actor.PharmacyID, string(actor.Role)),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				PharmacyID: order.PharmacyID,
				From:       order.Status,
				To:         target,
				ActorRole:  actor.Role,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order_status_changed")
		}

		updated, err = loadOrder(ctx, repo, orderID)
		return err
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			s.metrics.Conflict("advance_order")
		}
		return nil, err
	}
	s.metrics.OrderTransition(string(from), string(target))
	return updated, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if actor.Is(enums.ActorRoleAdmin) {
		return order, nil
	}
	if err := authorizeParticipant(actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	return s.list(ctx, ListFilters{CustomerID: &customerID}, params, enums.ActorRoleCustomer)
}

func (s *service) ListForPharmacy(ctx context.Context, pharmacyID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (*OrderList, error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", *status)
	}
	return s.list(ctx, ListFilters{PharmacyID: &pharmacyID, Status: status}, params, enums.ActorRolePharmacy)
}

func (s *service) list(ctx context.Context, filters ListFilters, params pagination.Params, viewer enums.ActorRole) (*OrderList, error) {
	rows, err := s.repo.List(ctx, filters, params)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	out := &OrderList{Orders: make([]OrderDTO, 0, len(page)), NextCursor: next}
	for _, order := range page {
		out.Orders = append(out.Orders, ToDTO(order, viewer))
	}
	return out, nil
}

func loadOrder(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// authorizeParticipant allows the owning customer and the fulfilling pharmacy.
func authorizeParticipant(actor auth.Actor, order *models.Order) error {
	switch actor.Role {
	case enums.ActorRoleCustomer:
		if order.CustomerID == actor.UserID {
			return nil
		}
	case enums.ActorRolePharmacy:
		if actor.ActsFor(order.PharmacyID) {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to caller")
}

func normalizeInput(input CreateOrderInput) CreateOrderInput {
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.CustomerPhone = strings.TrimSpace(input.CustomerPhone)
	if input.Address != nil {
		trimmed := strings.TrimSpace(*input.Address)
		if trimmed == "" {
			input.Address = nil
		} else {
			input.Address = &trimmed
		}
	}
	if input.IdempotencyKey != nil {
		trimmed := strings.TrimSpace(*input.IdempotencyKey)
		if trimmed == "" {
			input.IdempotencyKey = nil
		} else {
			input.IdempotencyKey = &trimmed
		}
	}
	return input
}

func validateCreateInput(input CreateOrderInput) error {
	switch {
	case input.CustomerID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	case input.PharmacyID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "pharmacyId is required")
	case input.CustomerName == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "customerName is required")
	case !input.Type.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "type must be delivery or pickup")
	case input.Total < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "total must not be negative")
	case len(input.Items) == 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	case input.Type == enums.OrderTypeDelivery && input.Address == nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "address is required for delivery")
	}
	for i, item := range input.Items {
		if strings.TrimSpace(item.Name) == "" || item.Quantity < 1 || item.UnitPrice < 0 {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d is invalid", i)
		}
	}
	return nil
}

func orderSource(input CreateOrderInput) string {
	if input.QuoteID != nil {
		return "quote"
	}
	return "direct"
}
