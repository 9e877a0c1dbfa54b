// Package settlement turns completed orders into monthly commission
// statements and records the report/confirm handshake between a pharmacy and
// the platform.
package settlement

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmolink/farmolink-backend/internal/commission"
	"github.com/farmolink/farmolink-backend/pkg/auth"
	"github.com/farmolink/farmolink-backend/pkg/db/models"
	"github.com/farmolink/farmolink-backend/pkg/enums"
	pkgerrors "github.com/farmolink/farmolink-backend/pkg/errors"
	"github.com/farmolink/farmolink-backend/pkg/logger"
	"github.com/farmolink/farmolink-backend/pkg/metrics"
	"github.com/farmolink/farmolink-backend/pkg/outbox"
	"github.com/farmolink/farmolink-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Service interface {
	Statements(ctx context.Context, actor auth.Actor, pharmacyID uuid.UUID) ([]commission.MonthlyStatement, error)
	AllStatements(ctx context.Context, actor auth.Actor, year, month *int) ([]commission.MonthlyStatement, error)
	MarkPaymentReported(ctx context.Context, actor auth.Actor, pharmacyID uuid.UUID, month, year int) (*Result, error)
	ConfirmPayment(ctx context.Context, actor auth.Actor, pharmacyID uuid.UUID, month, year int) (*Result, error)
	History(ctx context.Context, actor auth.Actor, pharmacyID uuid.UUID) ([]models.SettlementEvent, error)
	PendingMonths(ctx context.Context, before time.Time) ([]PendingMonth, error)
}

// Result summarises one bulk commission status change.
type Result struct {
	PharmacyID     uuid.UUID              `json:"pharmacyId"`
	Year           int                    `json:"year"`
	Month          int                    `json:"month"`
	Status         enums.CommissionStatus `json:"status"`
	OrdersAffected int64                  `json:"ordersAffected"`
	Amount         int64                  `json:"amount"`
}

// PendingMonth is one pharmacy month that still owes commission.
type PendingMonth struct {
	PharmacyID uuid.UUID
	Year       int
	Month      int
	Orders     int64
	Amount     int64
}

type ServiceParams struct {
	Repo          Repository
	Tx            txRunner
	Outbox        outbox.Emitter
	DefaultRate   decimal.Decimal
	RequireReport bool
	Metrics       *metrics.Marketplace
	Logger        *logger.Logger
}

type service struct {
	repo          Repository
	tx            txRunner
	outbox        outbox.Emitter
	defaultRate   decimal.Decimal
	requireReport bool
	metrics       *metrics.Marketplace
	logg          *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	rate := params.DefaultRate
	if rate.IsZero() {
		rate = commission.DefaultRate
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:          params.Repo,
		tx:            params.Tx,
		outbox:        params.Outbox,
		defaultRate:   rate,
		requireReport: params.RequireReport,
		metrics:       params.Metrics,
		logg:          logg,
	}, nil
}

func (s *service) Statements(ctx context.Context, actor auth.Actor, pharmacyID uuid.UUID) ([]commission.MonthlyStatement, error) {
	if !actor.Is(enums.ActorRoleAdmin) && !(actor.Is(enums.ActorRolePharmacy) && actor.ActsFor(pharmacyID)) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "statements are private to the pharmacy")
	}
	orders, err := s.repo.CompletedOrders(ctx, &pharmacyID, nil, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load completed orders")
	}
	return commission.BuildMonthlyStatement(pharmacyID, orders, s.defaultRate), nil
}

// AllStatements is the admin view across pharmacies, optionally narrowed to a
// year or a single month.
func (s *service) AllStatements(ctx context.Context, actor auth.Actor, year, month *int) ([]commission.MonthlyStatement, error) {
	if !actor.Is(enums.ActorRoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	var from, to *time.Time
	switch {
	case month != nil && year == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "year is required when month is set")
	case month != nil:
		if err := validatePeriod(*month, *year); err != nil {
			return nil, err
		}
		start, end := commission.MonthBounds(*year, *month)
		from, to = &start, &end
	case year != nil:
		if err := validatePeriod(1, *year); err != nil {
			return nil, err
		}
		start, _ := commission.MonthBounds(*year, 1)
		end := start.AddDate(1, 0, 0)
		from, to = &start, &end
	}

	orders, err := s.repo.CompletedOrders(ctx, nil, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load completed orders")
	}
	byPharmacy := make(map[uuid.UUID][]models.Order)
	for _, order := range orders {
		byPharmacy[order.PharmacyID] = append(byPharmacy[order.PharmacyID], order)
	}
	out := make([]commission.MonthlyStatement, 0, len(byPharmacy))
	for pharmacyID, rows := range byPharmacy {
		out = append(out, commission.BuildMonthlyStatement(pharmacyID, rows, s.defaultRate)...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		if out[i].Month != out[j].Month {
			return out[i].Month > out[j].Month
		}
		return out[i].PharmacyID.String() < out[j].PharmacyID.String()
	})
	return out, nil
}

func (s *service) MarkPaymentReported(ctx context.Context, actor auth.Actor, pharmacyID uuid.UUID, month, year int) (*Result, error) {
	if !actor.Is(enums.ActorRolePharmacy) || !actor.ActsFor(pharmacyID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the pharmacy may report its payment")
	}
	return s.settle(ctx, actor, settleStep{
		pharmacyID: pharmacyID,
		month:      month,
		year:       year,
		from:       []enums.CommissionStatus{enums.CommissionStatusPending},
		to:         enums.CommissionStatusWaitingApproval,
		eventType:  enums.SettlementEventPaymentReported,
		outboxType: enums.EventSettlementReported,
	})
}

// ConfirmPayment marks a pharmacy month as paid. Unless RequireReport is set,
// months the pharmacy never reported are confirmed too.
func (s *service) ConfirmPayment(ctx context.Context, actor auth.Actor, pharmacyID uuid.UUID, month, year int) (*Result, error) {
	if !actor.Is(enums.ActorRoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	from := []enums.CommissionStatus{enums.CommissionStatusPending, enums.CommissionStatusWaitingApproval}
	if s.requireReport {
		from = []enums.CommissionStatus{enums.CommissionStatusWaitingApproval}
	}
	return s.settle(ctx, actor, settleStep{
		pharmacyID: pharmacyID,
		month:      month,
		year:       year,
		from:       from,
		to:         enums.CommissionStatusPaid,
		eventType:  enums.SettlementEventPaymentConfirmed,
		outboxType: enums.EventSettlementConfirmed,
	})
}

type settleStep struct {
	pharmacyID uuid.UUID
	month      int
	year       int
	from       []enums.CommissionStatus
	to         enums.CommissionStatus
	eventType  enums.SettlementEventType
	outboxType enums.OutboxEventType
}

func (s *service) settle(ctx context.Context, actor auth.Actor, step settleStep) (*Result, error) {
	if step.pharmacyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pharmacyId is required")
	}
	if err := validatePeriod(step.month, step.year); err != nil {
		return nil, err
	}
	start, end := commission.MonthBounds(step.year, step.month)

	result := &Result{PharmacyID: step.pharmacyID, Year: step.year, Month: step.month, Status: step.to}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.LockSettleable(ctx, step.pharmacyID, start, end, step.from)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settleable orders")
		}
		ids := make([]uuid.UUID, 0, len(rows))
		var amount int64
		for _, order := range rows {
			ids = append(ids, order.ID)
			amount += commission.FeeFor(order, s.defaultRate)
		}
		affected, err := repo.SetCommissionStatus(ctx, ids, step.from, step.to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update commission status")
		}
		if affected == 0 {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "nothing to settle for %04d-%02d", step.year, step.month)
		}
		result.OrdersAffected = affected
		result.Amount = amount

		if err := repo.InsertEvent(ctx, &models.SettlementEvent{
			PharmacyID:     step.pharmacyID,
			Year:           step.year,
			Month:          step.month,
			Type:           step.eventType,
			OrdersAffected: affected,
			Amount:         amount,
			ActorUserID:    actor.UserID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert settlement event")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     step.outboxType,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   PeriodKey(step.pharmacyID, step.year, step.month),
			Actor:         outbox.NewActorRef(actor.UserID, actor.PharmacyID, string(actor.Role)),
			Data: payloads.SettlementEvent{
				PharmacyID:     step.pharmacyID,
				Year:           step.year,
				Month:          step.month,
				OrdersAffected: affected,
				Amount:         amount,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Settlement(string(step.eventType))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"pharmacy_id":     step.pharmacyID.String(),
		"period":          fmt.Sprintf("%04d-%02d", step.year, step.month),
		"commission":      string(step.to),
		"orders_affected": result.OrdersAffected,
		"amount":          result.Amount,
	})
	s.logg.Info(logCtx, "commission status updated")
	return result, nil
}

func (s *service) History(ctx context.Context, actor auth.Actor, pharmacyID uuid.UUID) ([]models.SettlementEvent, error) {
	if !actor.Is(enums.ActorRoleAdmin) && !(actor.Is(enums.ActorRolePharmacy) && actor.ActsFor(pharmacyID)) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "settlement history is private to the pharmacy")
	}
	rows, err := s.repo.ListEvents(ctx, pharmacyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settlement events")
	}
	return rows, nil
}

// PendingMonths lists pharmacy months with unpaid commission that ended before
// the cutoff.
func (s *service) PendingMonths(ctx context.Context, before time.Time) ([]PendingMonth, error) {
	rows, err := s.repo.PendingOrders(ctx, before)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending orders")
	}
	type key struct {
		pharmacy uuid.UUID
		year     int
		month    time.Month
	}
	index := make(map[key]int)
	var out []PendingMonth
	for _, order := range rows {
		created := order.CreatedAt.UTC()
		k := key{pharmacy: order.PharmacyID, year: created.Year(), month: created.Month()}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, PendingMonth{PharmacyID: k.pharmacy, Year: k.year, Month: int(k.month)})
		}
		out[i].Orders++
		out[i].Amount += commission.FeeFor(order, s.defaultRate)
	}
	return out, nil
}

// PeriodKey is the outbox aggregate id of one pharmacy month.
func PeriodKey(pharmacyID uuid.UUID, year, month int) uuid.UUID {
	return outbox.AggregateKey("settlement", pharmacyID.String(), strconv.Itoa(year), strconv.Itoa(month))
}

func validatePeriod(month, year int) error {
	if month < 1 || month > 12 {
		return pkgerrors.New(pkgerrors.CodeValidation, "month must be between 1 and 12")
	}
	if year < 2000 || year > 9999 {
		return pkgerrors.New(pkgerrors.CodeValidation, "year is out of range")
	}
	return nil
}

// EventDTO is the audit-trail entry returned by History.
type EventDTO struct {
	ID             uuid.UUID                 `json:"id"`
	Year           int                       `json:"year"`
	Month          int                       `json:"month"`
	Type           enums.SettlementEventType `json:"type"`
	OrdersAffected int64                     `json:"ordersAffected"`
	Amount         int64                     `json:"amount"`
	ActorUserID    uuid.UUID                 `json:"actorUserId"`
	CreatedAt      time.Time                 `json:"createdAt"`
}

func EventToDTO(e models.SettlementEvent) EventDTO {
	return EventDTO{
		ID:             e.ID,
		Year:           e.Year,
		Month:          e.Month,
		Type:           e.Type,
		OrdersAffected: e.OrdersAffected,
		Amount:         e.Amount,
		ActorUserID:    e.ActorUserID,
		CreatedAt:      e.CreatedAt,
	}
}
